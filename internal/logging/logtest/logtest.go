// Package logtest records zap output for assertions in tests.
package logtest

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// New returns a logger that records every entry at or above level.
func New(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// AssertLogged verifies a log at level containing message was logged.
func AssertLogged(tb testing.TB, logs *observer.ObservedLogs, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range logs.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return
		}
	}
	tb.Errorf("expected log at %v containing %q, logs: %+v", level, msgContains, logs.All())
}
