package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"pondflow/internal/model"
)

const passwordCost = 8

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already exists")
)

// Users is the slice of the entity store the auth service needs.
type Users interface {
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)
	CreateUser(ctx context.Context, u *model.User) error
}

type Service struct {
	users  Users
	tokens *Tokens
	logger *zap.Logger
}

func NewService(users Users, tokens *Tokens, logger *zap.Logger) *Service {
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Register signs up a customer. Staff accounts are provisioned by seeding.
func (s *Service) Register(ctx context.Context, username, password, fullName string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(password) < 6 {
		return nil, fmt.Errorf("%w: username required and password of at least 6 characters", ErrInvalidCredentials)
	}

	existing, err := s.users.FindUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	u, err := s.create(ctx, username, password, fullName, model.RoleCustomer)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User registered", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

// Provision creates a staff account unless the username already exists, in
// which case the existing user is returned untouched.
func (s *Service) Provision(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("provision %s: unknown role %q", username, role)
	}
	existing, err := s.users.FindUserByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	u, err := s.create(ctx, username, password, username, role)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User provisioned", zap.Int64("user_id", u.ID), zap.String("role", string(role)))
	return u, nil
}

func (s *Service) create(ctx context.Context, username, password, fullName string, role model.Role) (*model.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Username:     username,
		PasswordHash: hash,
		FullName:     fullName,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, model.ErrDuplicateUsername) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return u, nil
}

// Login checks credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	u, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !u.IsActive || !CheckPassword(password, u.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

// HashPassword turns a plaintext password into a bcrypt hash.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword verifies a plaintext password against a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
