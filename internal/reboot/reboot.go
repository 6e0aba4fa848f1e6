// Package reboot issues the platform restart once a user has confirmed it.
//
// The action is modeled as irreversible: on success the process does not
// observe further execution; on failure the error is surfaced and the caller
// must not retry on its own (a silently re-run privileged reboot command is
// worse than a visible failure).
package reboot

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	logx "github.com/journalehsan/UptimeWatcher/pkg/logx"
)

// FailedError wraps whatever went wrong invoking the platform restart.
type FailedError struct {
	Err error
}

func (e *FailedError) Error() string { return "reboot failed: " + e.Err.Error() }
func (e *FailedError) Unwrap() error { return e.Err }

// Executor restarts the host.
type Executor interface {
	Reboot(ctx context.Context) error
}

// New picks the restart mechanism for this host. An explicit command override
// always wins; otherwise Linux goes through logind (no sudo required inside a
// user session) and other platforms use their stock shutdown command.
//
// The mechanism is fixed at construction so a single confirmation never fans
// out into multiple restart attempts.
func New(command []string, log logx.Logger) (Executor, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if len(command) > 0 {
		return &commandExecutor{argv: append([]string(nil), command...), log: log}, nil
	}
	if ex, ok := newLogind(log); ok {
		return ex, nil
	}
	argv, err := defaultCommand()
	if err != nil {
		return nil, err
	}
	return &commandExecutor{argv: argv, log: log}, nil
}

func defaultCommand() ([]string, error) {
	switch runtime.GOOS {
	case "linux", "freebsd":
		return []string{"systemctl", "reboot"}, nil
	case "darwin":
		return []string{"shutdown", "-r", "now"}, nil
	case "windows":
		return []string{"shutdown", "/r", "/t", "0"}, nil
	default:
		return nil, fmt.Errorf("no reboot command for platform %s; set reboot.command", runtime.GOOS)
	}
}

type commandExecutor struct {
	argv []string
	log  logx.Logger
}

func (e *commandExecutor) Reboot(ctx context.Context) error {
	if len(e.argv) == 0 {
		return &FailedError{Err: errors.New("empty reboot command")}
	}
	// The command should return almost immediately; a reboot that hangs the
	// invoking shell is indistinguishable from failure.
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	e.log.Info("invoking reboot command", logx.String("cmd", strings.Join(e.argv, " ")))
	cmd := exec.CommandContext(cctx, e.argv[0], e.argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return &FailedError{Err: fmt.Errorf("%s: %s: %w", e.argv[0], msg, err)}
		}
		return &FailedError{Err: fmt.Errorf("%s: %w", e.argv[0], err)}
	}
	return nil
}
