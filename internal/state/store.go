package state

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "github.com/journalehsan/UptimeWatcher/pkg/logx"
)

var ErrClosed = errors.New("state store closed")

// Config configures the state backend.
//
// Driver values:
//   - "file" (or empty): JSON record with atomic replace
//   - "sqlite": single-row SQLite database (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store persists the reminder record.
//
// Load never fails over a missing or corrupt record: that case is logged and
// yields first-run defaults, so a damaged file can't take the daemon down.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, r Record) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown state driver: " + driver)
	}
}
