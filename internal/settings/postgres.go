package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists the settings record as a single JSONB row.
// Unknown keys in the stored JSON are discarded on read because the record
// unmarshals into the typed Settings struct.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed settings store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the DDL for the settings table, applied by cmd/migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS reporter_settings (
	id INT PRIMARY KEY CHECK (id = 1),
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// GetAll loads the settings row and merges defaults into empty fields.
// A missing row is not an error: it reads as all-defaults.
func (p *PostgresStore) GetAll(ctx context.Context) (Settings, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT data FROM reporter_settings WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return withDefaults(Settings{}), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("loading settings: %w", err)
	}

	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing settings record: %w", err)
	}
	return withDefaults(s), nil
}

// Save replaces the settings record in one upsert.
func (p *PostgresStore) Save(ctx context.Context, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings record: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO reporter_settings (id, data, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET data = $1, updated_at = NOW()`,
		data)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
