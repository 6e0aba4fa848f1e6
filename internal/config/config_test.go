package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseJSONDefaults(t *testing.T) {
	p := writeFile(t, "config.json", `{"watcher": {}, "logging": {"level": "INFO", "console": true, "file": {"enabled": false, "path": ""}}}`)
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d, _ := cfg.Watcher.ThresholdDuration(); d != 24*time.Hour {
		t.Errorf("default threshold = %v", d)
	}
	if d, _ := cfg.Watcher.PollIntervalDuration(); d != 5*time.Minute {
		t.Errorf("default poll interval = %v", d)
	}
	if d, _ := cfg.Watcher.DecisionTimeoutDuration(); d != 15*time.Minute {
		t.Errorf("default decision timeout = %v", d)
	}
}

func TestParseYAML(t *testing.T) {
	p := writeFile(t, "config.yaml", `
watcher:
  threshold: 12h
  poll_interval: 1m
logging:
  level: DEBUG
  console: true
  file:
    enabled: false
    path: ""
announce:
  rate_per_min: 10
  hook:
    enabled: true
    command: ["notify-send", "UptimeWatcher"]
`)
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d, _ := cfg.Watcher.ThresholdDuration(); d != 12*time.Hour {
		t.Errorf("threshold = %v", d)
	}
	if !cfg.Announce.Hook.Enabled || len(cfg.Announce.Hook.Command) != 2 {
		t.Errorf("hook = %+v", cfg.Announce.Hook)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	p := writeFile(t, "config.json", `{"watcher": {"treshold": "24h"}, "logging": {"level": "INFO", "console": true, "file": {"enabled": false, "path": ""}}}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("typo field accepted")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad duration":      `{"watcher": {"threshold": "soon"}, "logging": {"level": "INFO", "console": true, "file": {"enabled": false, "path": ""}}}`,
		"bad driver":        `{"watcher": {}, "state": {"driver": "postgres"}, "logging": {"level": "INFO", "console": true, "file": {"enabled": false, "path": ""}}}`,
		"hook w/o command":  `{"watcher": {}, "announce": {"hook": {"enabled": true}}, "logging": {"level": "INFO", "console": true, "file": {"enabled": false, "path": ""}}}`,
		"telegram w/o chat": `{"watcher": {}, "announce": {"telegram": {"enabled": true, "token": "t", "chat_id": 0}}, "logging": {"level": "INFO", "console": true, "file": {"enabled": false, "path": ""}}}`,
		"trailing data":     `{"watcher": {}, "logging": {"level": "INFO", "console": true, "file": {"enabled": false, "path": ""}}} {}`,
	}
	for name, content := range cases {
		p := writeFile(t, "config.json", content)
		if _, err := NewManager(p).Parse(); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}
