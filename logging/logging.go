// Package logging configures the structured logger every runner
// component embeds, grounded on the teacher's log.Logger field
// pattern (op-acceptor/scheduler.go, executor.go) built on
// github.com/ethereum/go-ethereum/log.
package logging

import (
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/log"
)

// New builds the root logger for one Runner instance, tagged with its
// runID so every downstream log line carries it without repeating the
// key at each call site (spec §4.7).
func New(level, runID string) log.Logger {
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, parseLevel(level), true)
	return log.NewLogger(handler).New("runID", runID)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	case "crit":
		return log.LevelCrit
	default:
		return log.LevelInfo
	}
}
