package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

const schemaLockKey int64 = 2026101601

type PropertyRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPropertyRepository(db *sql.DB) *PropertyRepository {
	return &PropertyRepository{db: db, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *PropertyRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent api/kbctl startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS properties (
	property_id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	record JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_properties_id_lower ON properties(lower(property_id));
CREATE INDEX IF NOT EXISTS idx_properties_name_lower ON properties(lower(name));
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// FetchRecord resolves a subject by exact property id or name first and then
// by a partial match on name or city, as callers often say a name instead of
// an id.
func (r *PropertyRepository) FetchRecord(ctx context.Context, subjectID string) (*domain.Property, error) {
	subject := strings.TrimSpace(subjectID)
	if subject == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch property", errors.New("subject is empty"))
	}

	row := r.db.QueryRowContext(ctx, `
SELECT record, updated_at
FROM properties
WHERE lower(property_id) = lower($1) OR lower(name) = lower($1)
ORDER BY (lower(property_id) = lower($1)) DESC
LIMIT 1
`, subject)
	property, err := scanProperty(row)
	if err == nil {
		return property, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fetch property %q: %w", subject, err)
	}

	pattern := "%" + escapeLike(subject) + "%"
	row = r.db.QueryRowContext(ctx, `
SELECT record, updated_at
FROM properties
WHERE name ILIKE $1 ESCAPE '\' OR city ILIKE $1 ESCAPE '\'
ORDER BY length(name), property_id
LIMIT 1
`, pattern)
	property, err = scanProperty(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPropertyNotFound, "fetch property", fmt.Errorf("no property matches %q", subject))
		}
		return nil, fmt.Errorf("search property %q: %w", subject, err)
	}
	return property, nil
}

func (r *PropertyRepository) Upsert(ctx context.Context, property domain.Property) error {
	id := strings.TrimSpace(property.ID)
	if id == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upsert property", errors.New("property_id is required"))
	}
	property.ID = id
	property.UpdatedAt = r.now().UTC()

	record, err := json.Marshal(property)
	if err != nil {
		return fmt.Errorf("marshal property: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO properties (property_id, name, city, record, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (property_id) DO UPDATE
SET name = EXCLUDED.name, city = EXCLUDED.city, record = EXCLUDED.record, updated_at = EXCLUDED.updated_at
`, property.ID, property.Name, property.Location.City, record, property.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert property %q: %w", property.ID, err)
	}
	return nil
}

func scanProperty(row *sql.Row) (*domain.Property, error) {
	var (
		raw       []byte
		updatedAt time.Time
	)
	if err := row.Scan(&raw, &updatedAt); err != nil {
		return nil, err
	}
	var property domain.Property
	if err := json.Unmarshal(raw, &property); err != nil {
		return nil, fmt.Errorf("unmarshal property record: %w", err)
	}
	property.UpdatedAt = updatedAt
	return &property, nil
}

// escapeLike quotes LIKE wildcards so caller speech is matched literally.
func escapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}
