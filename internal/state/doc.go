package state

// Package state persists the single reminder record across daemon restarts
// and across actual reboots.
//
// It currently supports:
//   - A JSON file record, rewritten atomically on every mutation (default)
//   - An optional single-row SQLite backend (build with -tags sqlite)
