package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servifind/internal/api"
	"servifind/internal/credentials"
	"servifind/internal/events"
	"servifind/internal/models"
)

// authBackend is a minimal identity server: one valid access token, one
// valid refresh token, both rotated on refresh.
type authBackend struct {
	mu           sync.Mutex
	accessToken  string
	refreshToken string
	refreshCalls int
	refreshDelay time.Duration
	refreshFails bool
	// nextAccessValid controls whether the token issued by refresh is
	// accepted by the identity endpoint afterwards.
	nextAccessValid bool
}

func newAuthBackend() *authBackend {
	return &authBackend{
		accessToken:     "at1",
		refreshToken:    "rt1",
		nextAccessValid: true,
	}
}

func (b *authBackend) handler() http.Handler {
	user := models.User{ID: "u1", Name: "Asha", Email: "a@x.io", Role: "user"}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		valid := "Bearer " + b.accessToken
		b.mu.Unlock()
		if r.Header.Get("Authorization") != valid {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "invalid token"})
			return
		}
		json.NewEncoder(w).Encode(user)
	})

	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		resp := api.AuthResponse{Token: b.accessToken, RefreshToken: b.refreshToken, User: user}
		b.mu.Unlock()
		json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/api/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)

		b.mu.Lock()
		b.refreshCalls++
		delay := b.refreshDelay
		fails := b.refreshFails || body["refreshToken"] != b.refreshToken
		b.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if fails {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "refresh token expired"})
			return
		}

		b.mu.Lock()
		b.refreshToken = b.refreshToken + "x"
		if b.nextAccessValid {
			b.accessToken = b.accessToken + "x"
		}
		resp := api.RefreshResponse{Token: b.accessToken, RefreshToken: b.refreshToken}
		if !b.nextAccessValid {
			// Issue a token the identity endpoint will keep rejecting.
			resp.Token = "still-bad"
		}
		b.mu.Unlock()
		json.NewEncoder(w).Encode(resp)
	})

	return mux
}

func (b *authBackend) expireAccessToken() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessToken = b.accessToken + "-rotated"
}

func (b *authBackend) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

func newTestManager(t *testing.T, backend *authBackend) (*Manager, *credentials.MemoryStore, *events.Bus) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	client := api.NewClient(srv.URL, 5*time.Second, zerolog.Nop())
	store := credentials.NewMemoryStore()
	bus := events.NewBus()
	return NewManager(client, store, bus, zerolog.Nop()), store, bus
}

func TestLoginLogoutRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newAuthBackend()
	m, store, _ := newTestManager(t, backend)

	user, err := m.Login(ctx, "a@x.io", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Asha", user.Name)
	assert.Equal(t, StateValid, m.State())

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "at1", persisted.AccessToken)
	assert.Equal(t, "rt1", persisted.RefreshToken)

	require.NoError(t, m.Logout(ctx))
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Nil(t, m.CurrentUser())

	_, err = store.Load(ctx)
	assert.True(t, errors.Is(err, credentials.ErrNoCredentials),
		"credentials must be absent from persistence after logout")
}

func TestBootstrapWithoutStoredCredentials(t *testing.T) {
	m, _, _ := newTestManager(t, newAuthBackend())

	require.NoError(t, m.Bootstrap(context.Background()))
	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Nil(t, m.CurrentUser())
}

func TestBootstrapWithValidToken(t *testing.T) {
	ctx := context.Background()
	backend := newAuthBackend()
	m, store, _ := newTestManager(t, backend)
	require.NoError(t, store.Save(ctx, models.Credentials{AccessToken: "at1", RefreshToken: "rt1"}))

	require.NoError(t, m.Bootstrap(ctx))
	assert.Equal(t, StateValid, m.State())
	require.NotNil(t, m.CurrentUser())
	assert.Equal(t, "a@x.io", m.CurrentUser().Email)
	assert.Zero(t, backend.refreshCount())
}

func TestBootstrapRefreshesExpiredToken(t *testing.T) {
	ctx := context.Background()
	backend := newAuthBackend()
	m, store, _ := newTestManager(t, backend)
	require.NoError(t, store.Save(ctx, models.Credentials{AccessToken: "stale", RefreshToken: "rt1"}))

	require.NoError(t, m.Bootstrap(ctx))
	assert.Equal(t, StateValid, m.State())
	assert.Equal(t, 1, backend.refreshCount())

	// The rotated pair is persisted.
	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "at1x", persisted.AccessToken)
	assert.Equal(t, "rt1x", persisted.RefreshToken)
}

func TestRefreshFailureInvalidatesSession(t *testing.T) {
	ctx := context.Background()
	backend := newAuthBackend()
	backend.refreshFails = true
	m, store, bus := newTestManager(t, backend)
	require.NoError(t, store.Save(ctx, models.Credentials{AccessToken: "stale", RefreshToken: "rt1"}))

	var invalidated bool
	bus.Subscribe(events.TypeSessionInvalidated, func(events.Event) { invalidated = true })

	err := m.Bootstrap(ctx)
	require.Error(t, err)
	assert.Equal(t, StateInvalid, m.State())
	assert.True(t, invalidated)

	_, err = store.Load(ctx)
	assert.True(t, errors.Is(err, credentials.ErrNoCredentials),
		"credentials must be cleared on refresh failure")
}

func TestMissingRefreshTokenInvalidatesWithoutNetworkRefresh(t *testing.T) {
	ctx := context.Background()
	backend := newAuthBackend()
	m, store, _ := newTestManager(t, backend)
	require.NoError(t, store.Save(ctx, models.Credentials{AccessToken: "stale"}))

	err := m.Bootstrap(ctx)
	require.Error(t, err)
	assert.Equal(t, StateInvalid, m.State())
	assert.Zero(t, backend.refreshCount())
}

func TestSingleFlightRefresh(t *testing.T) {
	ctx := context.Background()
	backend := newAuthBackend()
	backend.refreshDelay = 50 * time.Millisecond
	m, _, _ := newTestManager(t, backend)

	_, err := m.Login(ctx, "a@x.io", "secret")
	require.NoError(t, err)

	// The server rotates its accepted token; every held access token is
	// now rejected and all callers need the one refresh.
	backend.expireAccessToken()

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = api.CurrentUser(ctx, m)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, 1, backend.refreshCount(), "concurrent callers must share one refresh")
	assert.Equal(t, StateValid, m.State())
}

func TestSecondAuthorizationFailureIsTerminal(t *testing.T) {
	ctx := context.Background()
	backend := newAuthBackend()
	backend.nextAccessValid = false
	m, store, _ := newTestManager(t, backend)

	_, err := m.Login(ctx, "a@x.io", "secret")
	require.NoError(t, err)
	backend.expireAccessToken()

	_, err = api.CurrentUser(ctx, m)
	require.Error(t, err)
	assert.True(t, api.IsAuthorization(err), "got %v", err)
	assert.Equal(t, StateInvalid, m.State())
	assert.Equal(t, 1, backend.refreshCount(), "retry-once must not loop")

	_, err = store.Load(ctx)
	assert.True(t, errors.Is(err, credentials.ErrNoCredentials))
}

func TestDoWithoutTokenFailsFast(t *testing.T) {
	backend := newAuthBackend()
	m, _, _ := newTestManager(t, backend)

	_, err := api.CurrentUser(context.Background(), m)
	require.Error(t, err)
	assert.True(t, api.IsAuthorization(err))
	assert.Zero(t, backend.refreshCount())
}
