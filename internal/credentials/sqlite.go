package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"servifind/internal/models"
)

// SQLiteStore persists the token pair in a single-row table so a Save is
// atomic: both tokens land in one statement or neither does.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (and if needed creates) the credential database.
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create credentials directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open credentials database: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS credentials (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create credentials table: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "credentials").Logger(),
	}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (models.Credentials, error) {
	var creds models.Credentials
	err := s.db.QueryRowContext(ctx,
		"SELECT access_token, refresh_token FROM credentials WHERE id = 1",
	).Scan(&creds.AccessToken, &creds.RefreshToken)
	if err == sql.ErrNoRows {
		return models.Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return models.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return creds, nil
}

func (s *SQLiteStore) Save(ctx context.Context, creds models.Credentials) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO credentials (id, access_token, refresh_token) VALUES (1, ?, ?)`,
		creds.AccessToken, creds.RefreshToken,
	)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	s.logger.Debug().Msg("credentials persisted")
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE id = 1"); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	s.logger.Debug().Msg("credentials cleared")
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
