//go:build sqlite
// +build sqlite

package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/journalehsan/UptimeWatcher/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("state.path is required for sqlite driver")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (Record, error) {
	if s == nil || s.db == nil {
		return Defaults(), ErrClosed
	}
	var (
		r          = Defaults()
		firstRaw   sql.NullString
		nextRaw    sql.NullString
		schemaVer  int
		deferred   int64
		lastUptime float64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT schema_version, first_threshold_crossed_at, total_deferred_seconds,
		        next_reminder_at, last_observed_uptime_seconds
		   FROM reminder_state WHERE id = 1`,
	).Scan(&schemaVer, &firstRaw, &deferred, &nextRaw, &lastUptime)
	if errors.Is(err, sql.ErrNoRows) {
		return Defaults(), nil
	}
	if err != nil {
		s.log.Warn("state row unreadable; starting fresh", logx.Any("err", err))
		return Defaults(), nil
	}

	r.SchemaVersion = schemaVer
	r.TotalDeferredSeconds = deferred
	r.LastObservedUptimeSeconds = lastUptime
	r.FirstThresholdCrossedAt = parseNullTime(firstRaw)
	r.NextReminderAt = parseNullTime(nextRaw)
	normalize(&r)
	return r, nil
}

func (s *sqliteStore) Save(ctx context.Context, r Record) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_state(id, schema_version, first_threshold_crossed_at,
		        total_deferred_seconds, next_reminder_at, last_observed_uptime_seconds)
		 VALUES(1,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		        schema_version=excluded.schema_version,
		        first_threshold_crossed_at=excluded.first_threshold_crossed_at,
		        total_deferred_seconds=excluded.total_deferred_seconds,
		        next_reminder_at=excluded.next_reminder_at,
		        last_observed_uptime_seconds=excluded.last_observed_uptime_seconds`,
		r.SchemaVersion, formatNullTime(r.FirstThresholdCrossedAt),
		r.TotalDeferredSeconds, formatNullTime(r.NextReminderAt),
		r.LastObservedUptimeSeconds,
	)
	return err
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
