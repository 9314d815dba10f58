package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/account-service/internal/cache"
	"github.com/pribylovaa/account-service/internal/config"
	"github.com/pribylovaa/account-service/internal/models"
	"github.com/pribylovaa/account-service/internal/storage/memory"
	"github.com/pribylovaa/account-service/mocks"
)

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "unit-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "account-service",
		Audience:        []string{"account-api"},
		BcryptCost:      bcrypt.MinCost,
	}
}

// testClock: управляемый источник времени.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recorder собирает события аутентификации.
type recorder struct {
	mu     sync.Mutex
	events map[string]int
}

func (r *recorder) AuthEvent(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[string]int)
	}
	r.events[event]++
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[event]
}

func newMockSvc(t *testing.T) (*Service, *mocks.MockStorage) {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	return New(st, testCfg()), st
}

func newMemSvc(t *testing.T, opts ...Option) (*Service, *memory.Storage) {
	t.Helper()
	st := memory.New()
	return New(st, testCfg(), opts...), st
}

func mustHashPW(t *testing.T, pw string) string {
	t.Helper()
	h, err := NewBcryptHasher(bcrypt.MinCost).Hash(pw)
	require.NoError(t, err)
	return h
}

func registerInput(email string) RegisterInput {
	return RegisterInput{
		Title:           "Mr",
		FirstName:       "John",
		LastName:        "Doe",
		Email:           email,
		Password:        "secret1",
		ConfirmPassword: "secret1",
		AcceptTerms:     true,
	}
}

// mustRegister регистрирует аккаунт и возвращает его ID.
func mustRegister(t *testing.T, svc *Service, email string) int64 {
	t.Helper()
	view, err := svc.Register(context.Background(), registerInput(email))
	require.NoError(t, err)
	return view.ID
}

// fakeCache: RefreshCache в памяти для проверки быстрого пути.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]cache.RefreshEntry
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]cache.RefreshEntry)}
}

func (c *fakeCache) Get(_ context.Context, token string) (*cache.RefreshEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[token]
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (c *fakeCache) Set(_ context.Context, token string, e *cache.RefreshEntry, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = *e
	return nil
}

func (c *fakeCache) MarkRevoked(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[token]; ok {
		e.Revoked = true
		c.entries[token] = e
	}
	return nil
}

func (c *fakeCache) Close() error { return nil }

func activeAccount(id int64, token string, now time.Time) *models.Account {
	return &models.Account{
		ID:      id,
		Email:   "user@example.com",
		Role:    models.RoleUser,
		Version: 1,
		RefreshTokens: []models.RefreshToken{{
			Token:     token,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		}},
	}
}
