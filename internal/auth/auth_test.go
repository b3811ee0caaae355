package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pondflow/internal/model"
	"pondflow/internal/repository/memory"
)

func TestTokens_IssueAndResolve(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	token, err := tokens.Issue(&model.User{ID: 42, Username: "mia", Role: model.RoleConsultant})
	require.NoError(t, err)

	caller, err := tokens.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), caller.UserID)
	assert.Equal(t, model.RoleConsultant, caller.Role)
}

func TestTokens_Rejects(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)
	u := &model.User{ID: 1, Role: model.RoleManager}

	other, err := NewTokens("other", time.Hour).Issue(u)
	require.NoError(t, err)
	_, err = tokens.Resolve(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Resolve("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokens("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Issue(u)
	require.NoError(t, err)
	_, err = tokens.Resolve(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	bogusRole, err := tokens.Issue(&model.User{ID: 1, Role: "JANITOR"})
	require.NoError(t, err)
	_, err = tokens.Resolve(bogusRole)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, ExtractToken(r), tt.header)
	}
}

func TestService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	tokens := NewTokens("secret", time.Hour)
	svc := NewService(store, tokens, zap.NewNop())

	u, err := svc.Register(ctx, "lan", "koi-pond", "Lan Nguyen")
	require.NoError(t, err)
	assert.Equal(t, model.RoleCustomer, u.Role)
	assert.NotEqual(t, "koi-pond", u.PasswordHash)

	_, err = svc.Register(ctx, "LAN", "whatever", "")
	assert.ErrorIs(t, err, ErrUsernameTaken)
	_, err = svc.Register(ctx, "short", "123", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, got, err := svc.Login(ctx, "lan", "koi-pond")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	caller, err := tokens.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, caller.UserID)

	_, _, err = svc.Login(ctx, "lan", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody", "koi-pond")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_InactiveUserCannotLogin(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	hash, err := HashPassword("password")
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(ctx, &model.User{Username: "gone", PasswordHash: hash, Role: model.RoleDesigner}))

	_, _, err = NewService(store, NewTokens("s", time.Hour), zap.NewNop()).Login(ctx, "gone", "password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_ProvisionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store, NewTokens("s", time.Hour), zap.NewNop())

	first, err := svc.Provision(ctx, "manager", "pondflow", model.RoleManager)
	require.NoError(t, err)
	again, err := svc.Provision(ctx, "manager", "other-password", model.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, u, err := svc.Login(ctx, "manager", "pondflow")
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, u.Role)

	_, err = svc.Provision(ctx, "ghost", "pondflow", model.Role("JANITOR"))
	assert.Error(t, err)
}
