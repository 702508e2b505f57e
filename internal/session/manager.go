// Package session owns the credential lifecycle: validation at startup,
// silent refresh, and forced logout. Every authenticated call goes through
// the manager so the refresh-then-retry-once rule lives in one place.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"servifind/internal/api"
	"servifind/internal/credentials"
	"servifind/internal/events"
	"servifind/internal/metrics"
	"servifind/internal/models"
)

// State is the session lifecycle state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateValidating      State = "validating"
	StateValid           State = "valid"
	StateRefreshing      State = "refreshing"
	StateInvalid         State = "invalid"
)

// ErrNotSignedIn is returned by Do when no access token is held.
var ErrNotSignedIn = errors.New("not signed in")

// Manager drives the session state machine. It is safe for concurrent use;
// concurrent authenticated calls share a single in-flight refresh.
type Manager struct {
	client *api.Client
	store  credentials.Store
	bus    *events.Bus
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	creds    models.Credentials
	user     *models.User
	inflight *refreshCall
}

// refreshCall is the shared handle for one in-flight refresh. Every caller
// awaiting it observes the same outcome.
type refreshCall struct {
	done  chan struct{}
	creds models.Credentials
	err   error
}

// NewManager constructs a manager in the Unauthenticated state. The bus is
// optional; when set, transitions into Invalid publish a session event.
func NewManager(client *api.Client, store credentials.Store, bus *events.Bus, logger zerolog.Logger) *Manager {
	return &Manager{
		client: client,
		store:  store,
		bus:    bus,
		logger: logger.With().Str("component", "session").Logger(),
		state:  StateUnauthenticated,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentUser returns the validated profile, or nil outside the Valid state.
func (m *Manager) CurrentUser() *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	user := *m.user
	return &user
}

// Bootstrap restores persisted credentials at process start and validates
// them against the identity endpoint. A refresh is attempted once when the
// stored access token is rejected; any refresh failure clears credentials.
func (m *Manager) Bootstrap(ctx context.Context) error {
	creds, err := m.store.Load(ctx)
	if errors.Is(err, credentials.ErrNoCredentials) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	m.mu.Lock()
	m.creds = creds
	m.state = StateValidating
	m.mu.Unlock()

	user, err := api.CurrentUser(ctx, m)
	if err != nil {
		// Do has already invalidated the session on an authorization
		// failure that survived the refresh attempt.
		if !api.IsAuthorization(err) {
			m.invalidate(ctx, "identity check failed")
		}
		return fmt.Errorf("validate session: %w", err)
	}

	m.mu.Lock()
	m.user = user
	m.state = StateValid
	m.mu.Unlock()
	m.logger.Info().Str("user", user.Email).Msg("session restored")
	return nil
}

// Login authenticates with email/password. Both tokens are persisted before
// the call returns.
func (m *Manager) Login(ctx context.Context, email, password string) (*models.User, error) {
	resp, err := m.client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.adopt(ctx, resp)
}

// Register creates an account and signs in with its first token pair.
func (m *Manager) Register(ctx context.Context, name, email, password, role string) (*models.User, error) {
	resp, err := m.client.Register(ctx, name, email, password, role)
	if err != nil {
		return nil, err
	}
	return m.adopt(ctx, resp)
}

func (m *Manager) adopt(ctx context.Context, resp *api.AuthResponse) (*models.User, error) {
	creds := models.Credentials{AccessToken: resp.Token, RefreshToken: resp.RefreshToken}
	if err := m.store.Save(ctx, creds); err != nil {
		return nil, fmt.Errorf("persist credentials: %w", err)
	}

	user := resp.User
	m.mu.Lock()
	m.creds = creds
	m.user = &user
	m.state = StateValid
	m.mu.Unlock()
	m.logger.Info().Str("user", user.Email).Msg("signed in")
	return &user, nil
}

// Logout clears both tokens from memory and persistence. It always succeeds
// locally; a persistence error is reported but the in-memory session is
// gone regardless.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.store.Clear(ctx)

	m.mu.Lock()
	m.creds = models.Credentials{}
	m.user = nil
	m.state = StateUnauthenticated
	m.mu.Unlock()

	m.logger.Info().Msg("signed out")
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Do executes an authenticated request. It attaches the current access
// token; on an authorization failure it runs exactly one refresh (shared
// across concurrent callers) and retries the original request once. A
// second authorization failure invalidates the session and is surfaced.
func (m *Manager) Do(ctx context.Context, req api.Request, out any) error {
	m.mu.Lock()
	token := m.creds.AccessToken
	m.mu.Unlock()
	if token == "" {
		return &api.Error{Kind: api.KindAuthorization, Status: http.StatusUnauthorized, Message: ErrNotSignedIn.Error()}
	}

	req.Token = token
	err := m.client.Do(ctx, req, out)
	if err == nil || !api.IsAuthorization(err) {
		return err
	}

	creds, err := m.refresh(ctx)
	if err != nil {
		return fmt.Errorf("session expired: %w", err)
	}

	req.Token = creds.AccessToken
	err = m.client.Do(ctx, req, out)
	if err != nil && api.IsAuthorization(err) {
		m.invalidate(ctx, "token rejected after refresh")
	}
	return err
}

// refresh funnels all triggers through a single in-flight call. The first
// caller performs the network exchange; the rest await the same outcome.
func (m *Manager) refresh(ctx context.Context) (models.Credentials, error) {
	m.mu.Lock()
	if call := m.inflight; call != nil {
		m.mu.Unlock()
		select {
		case <-call.done:
			return call.creds, call.err
		case <-ctx.Done():
			return models.Credentials{}, ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	m.inflight = call
	refreshToken := m.creds.RefreshToken
	if m.state == StateValid || m.state == StateValidating {
		m.state = StateRefreshing
	}
	m.mu.Unlock()

	call.creds, call.err = m.doRefresh(ctx, refreshToken)

	m.mu.Lock()
	m.inflight = nil
	m.mu.Unlock()
	close(call.done)

	return call.creds, call.err
}

func (m *Manager) doRefresh(ctx context.Context, refreshToken string) (models.Credentials, error) {
	if refreshToken == "" {
		metrics.IncTokenRefresh("failure")
		m.invalidate(ctx, "no refresh token")
		return models.Credentials{}, &api.Error{Kind: api.KindAuthorization, Status: http.StatusUnauthorized, Message: "no refresh token"}
	}

	resp, err := m.client.Refresh(ctx, refreshToken)
	if err != nil {
		metrics.IncTokenRefresh("failure")
		m.invalidate(ctx, "refresh rejected")
		return models.Credentials{}, err
	}

	creds := models.Credentials{AccessToken: resp.Token, RefreshToken: resp.RefreshToken}
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		metrics.IncTokenRefresh("failure")
		m.invalidate(ctx, "malformed refresh response")
		return models.Credentials{}, &api.Error{Kind: api.KindAuthorization, Message: "malformed refresh response"}
	}

	// Persist before any caller can observe the new pair.
	if err := m.store.Save(ctx, creds); err != nil {
		metrics.IncTokenRefresh("failure")
		m.invalidate(ctx, "persist failed")
		return models.Credentials{}, fmt.Errorf("persist refreshed credentials: %w", err)
	}

	m.mu.Lock()
	m.creds = creds
	m.state = StateValid
	m.mu.Unlock()

	metrics.IncTokenRefresh("success")
	m.logger.Debug().Msg("access token refreshed")
	return creds, nil
}

// invalidate clears persisted credentials before the in-memory state flips,
// so callers never observe a torn state between memory and disk.
func (m *Manager) invalidate(ctx context.Context, reason string) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error().Err(err).Msg("clear credentials")
	}

	m.mu.Lock()
	m.creds = models.Credentials{}
	m.user = nil
	m.state = StateInvalid
	m.mu.Unlock()

	m.logger.Warn().Str("reason", reason).Msg("session invalidated")
	if m.bus != nil {
		m.bus.Publish(events.Event{Type: events.TypeSessionInvalidated, Payload: reason})
	}
}
