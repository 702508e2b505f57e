// Package credentials owns token persistence. Nothing outside the session
// manager should touch a Store directly.
package credentials

import (
	"context"
	"errors"
	"sync"

	"servifind/internal/models"
)

// ErrNoCredentials is returned by Load when no token pair is stored.
var ErrNoCredentials = errors.New("no stored credentials")

// Store persists the access/refresh token pair across process restarts.
// Save writes both tokens or neither; Clear removes both.
type Store interface {
	Load(ctx context.Context) (models.Credentials, error)
	Save(ctx context.Context, creds models.Credentials) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps credentials in memory only. Used in tests and as the
// fallback when no database path is configured.
type MemoryStore struct {
	mu    sync.Mutex
	creds models.Credentials
	set   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (models.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return models.Credentials{}, ErrNoCredentials
	}
	return s.creds, nil
}

func (s *MemoryStore) Save(_ context.Context, creds models.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.set = true
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = models.Credentials{}
	s.set = false
	return nil
}
