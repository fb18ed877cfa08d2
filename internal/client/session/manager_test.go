package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusflow/internal/auth"
	"focusflow/internal/client/api"
	"focusflow/internal/client/storage"
	"focusflow/internal/handler"
	"focusflow/internal/model"
	"focusflow/internal/repository"
	"focusflow/internal/router"
	"focusflow/internal/service"
)

const validSnapshot = `{"id":2,"username":"admin","role":"admin"}`

func newStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.Open(context.Background(), storage.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// startServer runs the real API against a seeded in-memory store.
func startServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo := repository.NewMemoryUserRepository()
	_, err := service.NewSeeder(repo, nil, nil).Seed(context.Background())
	require.NoError(t, err)

	tokens := auth.NewTokenService("session-test-secret", time.Hour)
	e := echo.New()
	router.Register(e, nil, auth.NewGate(tokens, nil), router.Handlers{
		Auth:   handler.NewAuthHandler(service.NewAuthService(repo, tokens, nil), nil),
		User:   handler.NewUserHandler(service.NewUserService(repo, nil)),
		Health: handler.NewHealthHandler(nil, nil),
	})

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func stored(t *testing.T, s storage.Storage, key string) (string, bool) {
	t.Helper()
	value, ok, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	return value, ok
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager(newStore(t), api.NewClient("http://127.0.0.1:0", nil), nil)

	assert.Equal(t, State{Status: Unauthenticated}, m.State())
	assert.False(t, m.IsHydrated())
	assert.Equal(t, GuardPending, m.Guard(model.RoleUser))
}

func TestManager_HydrateEmpty(t *testing.T) {
	m := NewManager(newStore(t), api.NewClient("http://127.0.0.1:0", nil), nil)

	state := m.Hydrate(context.Background())

	assert.Equal(t, Unauthenticated, state.Status)
	assert.True(t, m.IsHydrated())
	assert.Equal(t, GuardRedirectLogin, m.Guard())
}

func TestManager_HydrateValid(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SetMany(context.Background(), map[string]string{
		TokenKey:    "opaque-token",
		SnapshotKey: validSnapshot,
	}))
	m := NewManager(store, api.NewClient("http://127.0.0.1:0", nil), nil)

	state := m.Hydrate(context.Background())

	assert.Equal(t, Authenticated, state.Status)
	assert.Equal(t, &model.AuthenticatedUser{ID: 2, Username: "admin", Role: model.RoleAdmin}, state.User)
	assert.True(t, m.IsHydrated())
	assert.Equal(t, GuardAllow, m.Guard(model.RoleAdmin))
}

func TestManager_HydrateDiscardsBadSessions(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]string
	}{
		{"unknown role", map[string]string{TokenKey: "t", SnapshotKey: `{"id":2,"username":"admin","role":"superuser"}`}},
		{"not json", map[string]string{TokenKey: "t", SnapshotKey: `{"id":`}},
		{"non-numeric id", map[string]string{TokenKey: "t", SnapshotKey: `{"id":"2","username":"admin","role":"admin"}`}},
		{"empty username", map[string]string{TokenKey: "t", SnapshotKey: `{"id":2,"username":"","role":"admin"}`}},
		{"null snapshot", map[string]string{TokenKey: "t", SnapshotKey: `null`}},
		{"snapshot without token", map[string]string{SnapshotKey: validSnapshot}},
		{"token without snapshot", map[string]string{TokenKey: "t"}},
		{"empty token", map[string]string{TokenKey: "", SnapshotKey: validSnapshot}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.SetMany(context.Background(), tt.entries))
			m := NewManager(store, api.NewClient("http://127.0.0.1:0", nil), nil)

			var state State
			assert.NotPanics(t, func() { state = m.Hydrate(context.Background()) })

			assert.Equal(t, State{Status: Unauthenticated}, state)
			assert.True(t, m.IsHydrated())
			_, hasToken := stored(t, store, TokenKey)
			_, hasSnapshot := stored(t, store, SnapshotKey)
			assert.False(t, hasToken)
			assert.False(t, hasSnapshot)
		})
	}
}

func TestManager_HydrateDiscardsExpiredToken(t *testing.T) {
	issuedAt := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	tokens := auth.NewTokenService("secret", time.Hour, auth.WithClock(func() time.Time { return issuedAt }))
	token, err := tokens.Issue(&model.AuthenticatedUser{ID: 2, Username: "admin", Role: model.RoleAdmin})
	require.NoError(t, err)

	for _, tc := range []struct {
		name   string
		now    time.Time
		status Status
	}{
		{"still valid", issuedAt.Add(59 * time.Minute), Authenticated},
		{"exactly at expiry", issuedAt.Add(time.Hour), Unauthenticated},
		{"expired", issuedAt.Add(2 * time.Hour), Unauthenticated},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.SetMany(context.Background(), map[string]string{TokenKey: token, SnapshotKey: validSnapshot}))
			now := tc.now
			m := NewManager(store, api.NewClient("http://127.0.0.1:0", nil), nil, WithClock(func() time.Time { return now }))

			assert.Equal(t, tc.status, m.Hydrate(context.Background()).Status)
		})
	}
}

func TestManager_LoginLogoutScenario(t *testing.T) {
	srv := startServer(t)
	store := newStore(t)
	ctx := context.Background()
	m := NewManager(store, api.NewClient(srv.URL, srv.Client()), nil)
	m.Hydrate(ctx)

	result := m.Login(ctx, "admin", "admin123")
	require.True(t, result.OK, result.Message)

	state := m.State()
	assert.Equal(t, Authenticated, state.Status)
	assert.Equal(t, model.RoleAdmin, state.User.Role)

	token, ok := stored(t, store, TokenKey)
	require.True(t, ok)
	claims, err := auth.PeekClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	snapshot, ok := stored(t, store, SnapshotKey)
	require.True(t, ok)
	assert.JSONEq(t, validSnapshot, snapshot)

	// A failed login leaves the existing session alone.
	result = m.Login(ctx, "admin", "wrong")
	assert.Equal(t, Result{OK: false, Message: "Invalid credentials"}, result)
	assert.Equal(t, state, m.State())
	stillToken, _ := stored(t, store, TokenKey)
	assert.Equal(t, token, stillToken)

	// A fresh manager on the same storage restores the session.
	restored := NewManager(store, api.NewClient(srv.URL, srv.Client()), nil)
	assert.Equal(t, state, restored.Hydrate(ctx))

	m.Logout(ctx)
	assert.Equal(t, State{Status: Unauthenticated}, m.State())
	_, hasToken := stored(t, store, TokenKey)
	_, hasSnapshot := stored(t, store, SnapshotKey)
	assert.False(t, hasToken)
	assert.False(t, hasSnapshot)
}

func TestManager_LoginFailuresLeaveStateUnchanged(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name    string
		url     func(t *testing.T) string
		wantMsg string
	}{
		{
			name:    "network error",
			url:     func(*testing.T) string { return closedURL },
			wantMsg: MsgUnreachable,
		},
		{
			name:    "missing token",
			url:     serve(http.StatusOK, `{"user":{"id":1,"username":"user","role":"user"}}`),
			wantMsg: MsgBadResponse,
		},
		{
			name:    "malformed user",
			url:     serve(http.StatusOK, `{"token":"t","user":{"id":1,"username":"user","role":"root"}}`),
			wantMsg: MsgBadResponse,
		},
		{
			name:    "non-2xx without message",
			url:     serve(http.StatusInternalServerError, `oops`),
			wantMsg: MsgLoginFailed,
		},
		{
			name:    "non-2xx with message",
			url:     serve(http.StatusBadRequest, `{"message":"Username and password are required"}`),
			wantMsg: "Username and password are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			m := NewManager(store, api.NewClient(tt.url(t), nil), nil)
			m.Hydrate(context.Background())

			var notified int
			m.Subscribe(func(State) { notified++ })

			result := m.Login(context.Background(), "user", "user123")

			assert.Equal(t, Result{OK: false, Message: tt.wantMsg}, result)
			assert.Equal(t, State{Status: Unauthenticated}, m.State())
			assert.Zero(t, notified)
			_, hasToken := stored(t, store, TokenKey)
			assert.False(t, hasToken)
		})
	}
}

func serve(status int, body string) func(t *testing.T) string {
	return func(t *testing.T) string {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
		t.Cleanup(srv.Close)
		return srv.URL
	}
}

type failingStore struct {
	storage.Storage
}

func (failingStore) SetMany(context.Context, map[string]string) error {
	return errors.New("disk full")
}

func TestManager_LoginPersistFailure(t *testing.T) {
	srv := startServer(t)
	m := NewManager(failingStore{Storage: newStore(t)}, api.NewClient(srv.URL, srv.Client()), nil)

	result := m.Login(context.Background(), "user", "user123")

	assert.Equal(t, Result{OK: false, Message: MsgPersistFailed}, result)
	assert.Equal(t, Unauthenticated, m.State().Status)
}

func TestManager_DoClearsSessionOnUnauthorized(t *testing.T) {
	srv := startServer(t)
	store := newStore(t)
	ctx := context.Background()
	client := api.NewClient(srv.URL, srv.Client())
	m := NewManager(store, client, nil)

	require.True(t, m.Login(ctx, "user", "user123").OK)

	// Forbidden keeps the session.
	req, err := http.NewRequest(http.MethodGet, client.URL("/api/users"), nil)
	require.NoError(t, err)
	resp, err := m.Do(ctx, req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, Authenticated, m.State().Status)

	req, err = http.NewRequest(http.MethodGet, client.URL("/api/me"), nil)
	require.NoError(t, err)
	resp, err = m.Do(ctx, req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Simulate the server no longer accepting the token.
	require.NoError(t, store.Set(ctx, TokenKey, "revoked"))
	restored := NewManager(store, client, nil)
	require.Equal(t, Authenticated, restored.Hydrate(ctx).Status)

	req, err = http.NewRequest(http.MethodGet, client.URL("/api/me"), nil)
	require.NoError(t, err)
	resp, err = restored.Do(ctx, req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, State{Status: Unauthenticated}, restored.State())
	_, hasToken := stored(t, store, TokenKey)
	_, hasSnapshot := stored(t, store, SnapshotKey)
	assert.False(t, hasToken)
	assert.False(t, hasSnapshot)
}

func TestManager_SubscribeAndGuard(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()
	m := NewManager(newStore(t), api.NewClient(srv.URL, srv.Client()), nil)

	var (
		mu     sync.Mutex
		states []Status
	)
	unsubscribe := m.Subscribe(func(s State) {
		mu.Lock()
		states = append(states, s.Status)
		mu.Unlock()
	})

	m.Hydrate(ctx)
	require.True(t, m.Login(ctx, "user", "user123").OK)

	assert.Equal(t, GuardAllow, m.Guard())
	assert.Equal(t, GuardAllow, m.Guard(model.RoleUser, model.RoleAdmin))
	assert.Equal(t, GuardRedirectHome, m.Guard(model.RoleAdmin))

	m.Logout(ctx)
	assert.Equal(t, GuardRedirectLogin, m.Guard(model.RoleAdmin))

	unsubscribe()
	require.True(t, m.Login(ctx, "admin", "admin123").OK)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{Unauthenticated, Authenticated, Unauthenticated}, states)
}

func TestManager_ConcurrentLoginsLastWriteWins(t *testing.T) {
	srv := startServer(t)
	store := newStore(t)
	ctx := context.Background()
	m := NewManager(store, api.NewClient(srv.URL, srv.Client()), nil)

	var wg sync.WaitGroup
	for _, creds := range [][2]string{{"user", "user123"}, {"admin", "admin123"}} {
		wg.Add(1)
		go func(username, password string) {
			defer wg.Done()
			assert.True(t, m.Login(ctx, username, password).OK)
		}(creds[0], creds[1])
	}
	wg.Wait()

	// Whichever login finished last, memory and storage agree on it.
	state := m.State()
	require.Equal(t, Authenticated, state.Status)
	token, ok := stored(t, store, TokenKey)
	require.True(t, ok)
	claims, err := auth.PeekClaims(token)
	require.NoError(t, err)
	assert.Equal(t, state.User.Username, claims.Username)
}

func TestManager_GuardNeverRedirectsWhileRestoring(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SetMany(context.Background(), map[string]string{
		TokenKey:    "opaque-token",
		SnapshotKey: validSnapshot,
	}))

	for i := 0; i < 200; i++ {
		m := NewManager(store, api.NewClient("http://127.0.0.1:0", nil), nil)

		done := make(chan struct{})
		seen := make(chan GuardDecision, 1)
		go func() {
			defer close(seen)
			for {
				select {
				case <-done:
					return
				default:
				}
				if d := m.Guard(model.RoleAdmin); d == GuardRedirectLogin {
					seen <- d
					return
				}
			}
		}()

		m.Hydrate(context.Background())
		close(done)

		for d := range seen {
			t.Fatalf("run %d: guard returned %s while a valid session was restored", i, d)
		}
		assert.Equal(t, GuardAllow, m.Guard(model.RoleAdmin))
	}
}
