package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pondflow/internal/model"
	"pondflow/internal/workflow"
	"pondflow/pkg/outbox"
)

// Store is the Postgres Entity Store. Every workflow command runs in one
// pgx transaction together with its outbox rows.
type Store struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db, outbox: outbox.NewRepository(db)}
}

// Outbox exposes the outbox table for the dispatcher and replay service.
func (s *Store) Outbox() *outbox.Repository {
	return s.outbox
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// InTx implements workflow.Store.
func (s *Store) InTx(ctx context.Context, fn func(tx workflow.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&txRepo{tx: tx, outbox: s.outbox})
	})
}

// txRepo implements workflow.Tx on one pgx transaction.
type txRepo struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (r *txRepo) AppendEvent(ctx context.Context, ev workflow.Event) error {
	id := ev.AggregateID
	return outbox.InsertEventInTx(ctx, r.tx, r.outbox, ev.AggregateType, &id, ev.RoutingKey, ev.Payload)
}

func (r *txRepo) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := r.tx.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// notFound maps pgx.ErrNoRows onto model.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	return fmt.Errorf("%s: %w", what, err)
}
