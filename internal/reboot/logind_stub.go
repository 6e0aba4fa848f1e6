//go:build !linux

package reboot

import (
	logx "github.com/journalehsan/UptimeWatcher/pkg/logx"
)

func newLogind(log logx.Logger) (Executor, bool) {
	_ = log
	return nil, false
}
