package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pondflow/internal/auth"
	"pondflow/internal/config"
	"pondflow/internal/handler"
	"pondflow/internal/httpserver"
	"pondflow/internal/model"
	"pondflow/internal/mqhandler"
	"pondflow/internal/payment"
	"pondflow/internal/repository"
	"pondflow/internal/repository/memory"
	"pondflow/internal/workflow"
	pkgconfig "pondflow/pkg/config"
	"pondflow/pkg/db"
	"pondflow/pkg/logger"
	"pondflow/pkg/mq"
	"pondflow/pkg/outbox"
	redisclient "pondflow/pkg/redis"
	"pondflow/pkg/util"
)

const paymentResultQueue = "payment.result.q"

// backend is the storage selected by storage.driver.
type backend struct {
	store  workflow.Store
	users  auth.Users
	outbox outbox.Store
	db     httpserver.Pinger
	close  func()
}

func openBackend(cfg *config.Config, log *zap.Logger) (*backend, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		store := memory.NewStore()
		return &backend{store: store, users: store, outbox: store, db: store, close: func() {}}, nil
	}

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return nil, err
	}
	store := repository.NewStore(pool)
	return &backend{
		store:  store,
		users:  repository.NewUserRepository(pool),
		outbox: store.Outbox(),
		db:     store,
		close:  pool.Close,
	}, nil
}

// staff seeded in local runs, one account per role, password "pondflow".
var localStaff = []model.Role{
	model.RoleManager,
	model.RoleConsultant,
	model.RoleDesigner,
	model.RoleConstructionStaff,
}

func main() {
	cfg, err := config.Load("", pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.Env == "local")
	defer log.Sync()

	log.Info("Starting pondflow",
		zap.String("env", cfg.Env),
		zap.String("storage", cfg.Storage.Driver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openBackend(cfg, log)
	if err != nil {
		log.Fatal("Storage initialization failed", zap.Error(err))
	}
	defer store.close()

	// Redis failures degrade to processing every message; the payment
	// interlock still refuses a second settlement.
	rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, dedup disabled until it recovers", zap.Error(err))
	}
	defer rdb.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		if cfg.Storage.Driver != config.DriverMemory {
			log.Fatal("Failed to init publisher", zap.Error(err))
		}
		log.Warn("RabbitMQ unavailable, events stay in the outbox", zap.Error(err))
		publisher = nil
	}
	if publisher != nil {
		defer publisher.Close()
	}

	// Services
	locks := workflow.NewKeyedMutex()
	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWTTTL())
	authService := auth.NewService(store.users, tokens, log)
	gateway := payment.NewClient(payment.Config{
		BaseURL:      cfg.Payment.BaseURL,
		MerchantCode: cfg.Payment.MerchantCode,
		SecretKey:    cfg.Payment.SecretKey,
		ReturnURL:    cfg.Payment.ReturnURL,
		Timeout:      cfg.Payment.Timeout(),
	}, log)

	consultations := workflow.NewConsultationService(store.store, locks, log)
	designs := workflow.NewDesignService(store.store, locks, log)
	requests := workflow.NewDesignRequestService(store.store, locks, log)
	projects := workflow.NewProjectService(store.store, locks, workflow.ProjectConfig{
		DepositPercent: cfg.Workflow.DepositPercent,
		TaskTemplates:  cfg.Workflow.TaskTemplates,
	}, log)
	payments := workflow.NewPaymentService(store.store, locks, gateway, log)

	if cfg.Env == "local" {
		for _, role := range localStaff {
			if _, err := authService.Provision(ctx, string(role), "pondflow", role); err != nil {
				log.Fatal("Failed to seed staff", zap.String("role", string(role)), zap.Error(err))
			}
		}
	}

	readiness := map[string]httpserver.Pinger{"db": store.db}
	handlers := httpserver.Handlers{
		Auth:          handler.NewAuthHandler(authService, log),
		Consultations: handler.NewConsultationHandler(consultations, log),
		Designs:       handler.NewDesignHandler(designs, log),
		Requests:      handler.NewDesignRequestHandler(requests, log),
		Projects:      handler.NewProjectHandler(projects, log),
		Payments:      handler.NewPaymentHandler(payments, gateway, log),
	}

	if publisher != nil {
		readiness["mq"] = httpserver.PingFunc(func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("rabbitmq connection closed")
			}
			return nil
		})
		handlers.Admin = handler.NewAdminHandler(outbox.NewReplayService(store.outbox, publisher, log), log)

		dispatcher := outbox.NewDispatcher(store.outbox, publisher, log).
			WithInterval(cfg.Outbox.Interval()).
			WithBatchSize(cfg.Outbox.BatchSize).
			WithMaxRetries(cfg.Outbox.MaxRetries)
		go dispatcher.Start(ctx)

		if cfg.Consumer.Enabled {
			resultHandler := mqhandler.NewPaymentResultHandler(
				payments,
				gateway,
				util.NewDeduper(rdb, cfg.Consumer.DedupTTL(), log),
				util.NewRetryCounter(rdb, cfg.Consumer.DedupTTL()),
				publisher,
				cfg.Consumer.MaxRetries,
				log,
			)
			consumer, err := mq.NewConsumer(cfg.MQ.URL, paymentResultQueue, mqhandler.RoutingPaymentResult, log)
			if err != nil {
				log.Fatal("Failed to init payment.result consumer", zap.Error(err))
			}
			defer consumer.Close()
			consumer.SetHandler(resultHandler.HandlePaymentResult)
			go func() {
				if err := consumer.StartConsuming(ctx); err != nil {
					log.Error("payment.result consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	router := httpserver.NewRouter(handlers, tokens, readiness, log)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down pondflow gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("pondflow shutdown complete")
}
