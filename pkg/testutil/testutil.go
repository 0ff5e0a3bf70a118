// Package testutil provides testing utilities for the ntuple packages
package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/nebula-ntuple/pkg/logger"
)

// TestLogger installs a logger that writes to the test output as the global
// logger. The previous logger is restored when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	prev := logger.Get()
	l := zaptest.NewLogger(t)
	logger.Set(l)
	t.Cleanup(func() { logger.Set(prev) })
	return l
}

// TestContext creates a test context with a 30-second timeout that is
// cancelled when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
