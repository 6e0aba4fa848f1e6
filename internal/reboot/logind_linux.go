//go:build linux

package reboot

import (
	"context"

	"github.com/coreos/go-systemd/v22/login1"

	logx "github.com/journalehsan/UptimeWatcher/pkg/logx"
)

// logindExecutor restarts the host through systemd-logind over D-Bus. This is
// the polite path on Linux desktops: logind consults polkit instead of
// requiring the daemon to run privileged.
type logindExecutor struct {
	conn *login1.Conn
	log  logx.Logger
}

// newLogind reports ok=false when logind is unreachable (non-systemd host,
// no D-Bus); the caller then falls back to a plain command.
func newLogind(log logx.Logger) (Executor, bool) {
	conn, err := login1.New()
	if err != nil {
		log.Debug("logind unavailable; falling back to reboot command", logx.Any("err", err))
		return nil, false
	}
	return &logindExecutor{conn: conn, log: log}, true
}

func (e *logindExecutor) Reboot(ctx context.Context) error {
	e.log.Info("requesting reboot via logind")
	if err := e.conn.RebootWithContext(ctx, false); err != nil {
		return &FailedError{Err: err}
	}
	return nil
}
