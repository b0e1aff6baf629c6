// Package db provides an optional Postgres-backed token store for deployments
// that share one app token across replicas, plus connection and idempotent
// migration helpers.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/streampoll/twitchapi"
)

// DefaultSlot is the token slot used when Store.Slot is empty. One credential
// set per installation; there is no multi-tenant keying.
const DefaultSlot = "twitch"

// Connect opens a Postgres connection using DB_DSN or the provided dsn.
func Connect(dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		return nil, fmt.Errorf("no DSN provided and DB_DSN not set")
	}
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS app_tokens (
			slot TEXT PRIMARY KEY,
			access_token TEXT,
			expires_in INTEGER,
			token_type TEXT,
			obtained_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// Store persists the app token in the app_tokens table. It satisfies
// twitchapi.TokenStore. Concurrent writers from different processes may
// race; the last writer wins.
type Store struct {
	DB   *sql.DB
	Slot string
}

func (s *Store) slot() string {
	if s.Slot != "" {
		return s.Slot
	}
	return DefaultSlot
}

// Load returns the stored token, or (nil, nil) when the slot is empty.
func (s *Store) Load(ctx context.Context) (*twitchapi.Token, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT access_token, expires_in, token_type, obtained_at FROM app_tokens WHERE slot = $1`, s.slot())
	var tok twitchapi.Token
	var obtained time.Time
	err := row.Scan(&tok.AccessToken, &tok.ExpiresIn, &tok.TokenType, &obtained)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	tok.ObtainedAt = obtained
	return &tok, nil
}

// Save overwrites the slot wholesale.
func (s *Store) Save(ctx context.Context, tok *twitchapi.Token) error {
	q := `INSERT INTO app_tokens(slot, access_token, expires_in, token_type, obtained_at, updated_at)
		  VALUES($1,$2,$3,$4,$5,NOW())
		  ON CONFLICT(slot) DO UPDATE SET
		    access_token=EXCLUDED.access_token,
		    expires_in=EXCLUDED.expires_in,
		    token_type=EXCLUDED.token_type,
		    obtained_at=EXCLUDED.obtained_at,
		    updated_at=NOW()`
	_, err := s.DB.ExecContext(ctx, q, s.slot(), tok.AccessToken, tok.ExpiresIn, tok.TokenType, tok.ObtainedAt)
	return err
}
