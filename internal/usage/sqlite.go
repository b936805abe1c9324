package usage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS usage (
	id         TEXT PRIMARY KEY,
	conv_key   TEXT NOT NULL,
	persona    TEXT NOT NULL DEFAULT '',
	provider   TEXT NOT NULL,
	model      TEXT NOT NULL,
	tokens     INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_key ON usage(conv_key);
CREATE INDEX IF NOT EXISTS idx_usage_created ON usage(created_at);
`

// timeLayout is fixed width so created_at sorts and compares as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteSink stores usage records in a SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create usage db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	// One writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure usage db: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create usage schema: %w", err)
	}
	log.Info().Str("path", path).Msg("🗄️  Usage database opened")
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, rec models.UsageRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage (id, conv_key, persona, provider, model, tokens, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Key), rec.Persona, string(rec.Provider), rec.Model,
		rec.Tokens, rec.LatencyMs, rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Load(ctx context.Context) ([]models.UsageRecord, error) {
	return s.query(ctx, "")
}

// ExpiredBefore returns the records created before cutoff, oldest first.
func (s *SQLiteSink) ExpiredBefore(ctx context.Context, cutoff time.Time) ([]models.UsageRecord, error) {
	return s.query(ctx, "WHERE created_at < ?", cutoff.UTC().Format(timeLayout))
}

// PurgeBefore deletes the records created before cutoff and returns how many
// were removed.
func (s *SQLiteSink) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("purge usage: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteSink) query(ctx context.Context, where string, args ...any) ([]models.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conv_key, persona, provider, model, tokens, latency_ms, created_at
		 FROM usage `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var out []models.UsageRecord
	for rows.Next() {
		var (
			rec       models.UsageRecord
			key, prov string
			created   string
		)
		if err := rows.Scan(&rec.ID, &key, &rec.Persona, &prov, &rec.Model, &rec.Tokens, &rec.LatencyMs, &created); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		rec.Key = models.ConversationKey(key)
		rec.Provider = models.Provider(prov)
		if t, err := time.Parse(timeLayout, created); err == nil {
			rec.CreatedAt = t
		} else if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
