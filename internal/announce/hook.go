package announce

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// hookRunner is swappable for tests.
type hookRunner interface {
	Run(ctx context.Context, command []string, timeout time.Duration, env []string) error
}

type execHook struct{}

func (execHook) Run(ctx context.Context, command []string, timeout time.Duration, env []string) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, command[0], command[1:]...)
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("hook %q: %w (%s)", command[0], err, detail)
		}
		return fmt.Errorf("hook %q: %w", command[0], err)
	}
	return nil
}
