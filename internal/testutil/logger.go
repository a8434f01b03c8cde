// Package testutil holds helpers shared by package tests.
package testutil

import (
	"io"
	"log/slog"

	"github.com/dtroode/membership-server/internal/logger"
)

// MakeNoopLogger returns a logger that discards everything.
func MakeNoopLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, int(slog.LevelDebug), "text")
}
