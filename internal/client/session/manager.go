// Package session holds the client's authentication state and keeps it in
// step with persisted storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"focusflow/internal/auth"
	"focusflow/internal/client/api"
	"focusflow/internal/client/storage"
	apperrors "focusflow/internal/errors"
	"focusflow/internal/model"
)

// Storage keys for the persisted session.
const (
	TokenKey    = "jwt"
	SnapshotKey = "focusflow.auth.state"
)

// Messages returned when the server gives none.
const (
	MsgUnreachable   = "Unable to reach the server"
	MsgBadResponse   = "Unexpected response from the server"
	MsgLoginFailed   = "Login failed"
	MsgPersistFailed = "Unable to save the session"
)

// Status is the authentication status of the client.
type Status int

const (
	Unauthenticated Status = iota
	Authenticated
)

func (s Status) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// State is a snapshot of the session. User is set only when Authenticated.
type State struct {
	Status Status
	User   *model.AuthenticatedUser
}

// Result reports the outcome of Login.
type Result struct {
	OK      bool
	Message string
}

// Listener receives every state the manager transitions to. Listeners run
// synchronously and must not call Hydrate, Login or Logout.
type Listener func(State)

// Manager is the client session state container. All methods are safe for
// concurrent use; concurrent logins resolve last-write-wins.
type Manager struct {
	store  storage.Storage
	client *api.Client
	log    *zap.Logger
	now    func() time.Time

	// persistMu orders storage writes with the state change they produce.
	persistMu sync.Mutex

	mu        sync.RWMutex
	state     State
	token     string
	hydrated  bool
	listeners map[int]Listener
	nextID    int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used to discard expired tokens at hydration.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager in the Unauthenticated, not hydrated state.
func NewManager(store storage.Storage, client *api.Client, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		store:     store,
		client:    client,
		log:       log,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsHydrated reports whether Hydrate has completed. Role-gated content must
// not be shown before it returns true.
func (m *Manager) IsHydrated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hydrated
}

// Subscribe registers fn for state changes and returns a function removing it.
func (m *Manager) Subscribe(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Hydrate rebuilds the state from storage. The session is Authenticated only
// when both the token and a structurally valid snapshot are present; anything
// else is cleared from storage. The manager is hydrated afterwards whatever
// the outcome.
func (m *Manager) Hydrate(ctx context.Context) State {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	token, user, err := m.load(ctx)
	if err != nil {
		m.log.Warn("discarding persisted session", zap.Error(err))
		if clearErr := m.store.DeleteMany(ctx, TokenKey, SnapshotKey); clearErr != nil {
			m.log.Error("clear persisted session", zap.Error(clearErr))
		}
	}

	// The hydrated flag is published together with the restored state so no
	// reader sees a hydrated but not yet restored session.
	if user == nil {
		return m.apply(State{Status: Unauthenticated}, "", true)
	}
	return m.apply(State{Status: Authenticated, User: user}, token, true)
}

// load reads the persisted session. It returns nil user with nil error when
// nothing usable is stored and there is nothing to clean up.
func (m *Manager) load(ctx context.Context) (string, *model.AuthenticatedUser, error) {
	token, hasToken, err := m.store.Get(ctx, TokenKey)
	if err != nil {
		return "", nil, fmt.Errorf("read token: %w", err)
	}
	raw, hasSnapshot, err := m.store.Get(ctx, SnapshotKey)
	if err != nil {
		return "", nil, fmt.Errorf("read snapshot: %w", err)
	}

	switch {
	case !hasToken && !hasSnapshot:
		return "", nil, nil
	case token == "" || !hasSnapshot:
		return "", nil, fmt.Errorf("%w: token and snapshot disagree", apperrors.ErrStorageCorruption)
	}

	user, err := decodeSnapshot(raw)
	if err != nil {
		return "", nil, err
	}

	if claims, err := auth.PeekClaims(token); err == nil && claims.ExpiresAt != nil && !m.now().Before(claims.ExpiresAt.Time) {
		return "", nil, fmt.Errorf("token expired at %s", claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return token, user, nil
}

func decodeSnapshot(raw string) (*model.AuthenticatedUser, error) {
	var user model.AuthenticatedUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageCorruption, err)
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStorageCorruption, err)
	}
	return &user, nil
}

// Login authenticates against the server. On success the token and snapshot
// are persisted together and the state becomes Authenticated. On failure the
// state and storage are untouched and Message says why.
func (m *Manager) Login(ctx context.Context, username, password string) Result {
	resp, err := m.client.Login(ctx, username, password)
	if err != nil {
		m.log.Info("login failed", zap.String("username", username), zap.Error(err))
		return Result{Message: failureMessage(err)}
	}

	snapshot, err := json.Marshal(resp.User)
	if err != nil {
		return Result{Message: MsgBadResponse}
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if err := m.store.SetMany(ctx, map[string]string{
		TokenKey:    resp.Token,
		SnapshotKey: string(snapshot),
	}); err != nil {
		m.log.Error("persist session", zap.Error(err))
		return Result{Message: MsgPersistFailed}
	}

	m.set(State{Status: Authenticated, User: resp.User}, resp.Token)
	m.log.Info("logged in", zap.String("username", resp.User.Username), zap.String("role", string(resp.User.Role)))
	return Result{OK: true}
}

func failureMessage(err error) string {
	var statusErr *api.StatusError
	switch {
	case errors.As(err, &statusErr):
		if statusErr.Message != "" {
			return statusErr.Message
		}
		return MsgLoginFailed
	case errors.Is(err, apperrors.ErrMalformedResponse):
		return MsgBadResponse
	default:
		return MsgUnreachable
	}
}

// Logout clears the persisted session and becomes Unauthenticated. It does
// not contact the server.
func (m *Manager) Logout(ctx context.Context) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.clear(ctx)
}

func (m *Manager) clear(ctx context.Context) {
	if err := m.store.DeleteMany(ctx, TokenKey, SnapshotKey); err != nil {
		m.log.Error("clear persisted session", zap.Error(err))
	}
	m.set(State{Status: Unauthenticated}, "")
}

// Do sends req with the session's bearer token. A 401 response clears the
// session so the client does not keep retrying a dead token. The caller
// closes the response body.
func (m *Manager) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	resp, err := m.client.Do(ctx, req, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		m.persistMu.Lock()
		// A login that raced this request already replaced the token.
		m.mu.RLock()
		stale := m.token == token
		m.mu.RUnlock()
		if stale {
			m.log.Info("server rejected session token, logging out", zap.String("path", req.URL.Path))
			m.clear(ctx)
		}
		m.persistMu.Unlock()
	}
	return resp, nil
}

func (m *Manager) set(state State, token string) State {
	return m.apply(state, token, false)
}

func (m *Manager) apply(state State, token string, markHydrated bool) State {
	m.mu.Lock()
	m.state = state
	m.token = token
	if markHydrated {
		m.hydrated = true
	}
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
	return state
}
