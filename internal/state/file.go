package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "github.com/journalehsan/UptimeWatcher/pkg/logx"
)

// fileStore keeps the record in one JSON file.
//
// Every Save rewrites the whole file via write-temp-then-rename, so a crash
// mid-write never leaves a half-written record behind and a concurrent reader
// only ever sees a complete one.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("state.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) Load(ctx context.Context) (Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Defaults(), ErrClosed
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("state record unreadable; starting fresh", logx.String("path", s.path), logx.Any("err", err))
		}
		return Defaults(), nil
	}

	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		s.log.Warn("state record corrupt; starting fresh", logx.String("path", s.path), logx.Any("err", err))
		return Defaults(), nil
	}
	normalize(&r)
	return r, nil
}

func (s *fileStore) Save(ctx context.Context, r Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// normalize clamps fields a hand-edited or older record may carry.
func normalize(r *Record) {
	if r.SchemaVersion <= 0 {
		r.SchemaVersion = SchemaVersion
	}
	if r.TotalDeferredSeconds < 0 {
		r.TotalDeferredSeconds = 0
	}
	if r.LastObservedUptimeSeconds < 0 {
		r.LastObservedUptimeSeconds = 0
	}
}
