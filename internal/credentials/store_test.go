package credentials

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servifind/internal/models"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoCredentials))

	creds := models.Credentials{AccessToken: "at", RefreshToken: "rt"}
	require.NoError(t, store.Save(ctx, creds))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, creds, got)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoCredentials))
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "creds", "servifind.db")

	store, err := NewSQLiteStore(path, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoCredentials))

	creds := models.Credentials{AccessToken: "at1", RefreshToken: "rt1"}
	require.NoError(t, store.Save(ctx, creds))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, creds, got)

	// Save replaces both tokens in one step.
	next := models.Credentials{AccessToken: "at2", RefreshToken: "rt2"}
	require.NoError(t, store.Save(ctx, next))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoCredentials))
}

func TestSQLiteStorePersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "servifind.db")

	store, err := NewSQLiteStore(path, zerolog.Nop())
	require.NoError(t, err)
	creds := models.Credentials{AccessToken: "at", RefreshToken: "rt"}
	require.NoError(t, store.Save(ctx, creds))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, creds, got)
}
