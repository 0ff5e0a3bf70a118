package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitRejectsBadLevel(t *testing.T) {
	err := Init(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestWithContextAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	ctx := context.WithValue(context.Background(), ContainerKey, "out")
	ctx = context.WithValue(ctx, TreeKey, "Events")
	WithContext(ctx).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "out", fields["container"])
	assert.Equal(t, "Events", fields["tree"])
	assert.NotContains(t, fields, "job_id")
}

func TestGetBuildsDefault(t *testing.T) {
	Set(nil)
	assert.NotNil(t, Get())
}

func TestFieldHelpersAndNewContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	ctx := NewContext(context.Background(), JobIDKey, "skim-2024")
	ctx = NewContext(ctx, ContainerKey, "out")
	WithContext(ctx).Debug("bound", Tree("Events"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "skim-2024", fields["job_id"])
	assert.Equal(t, "out", fields["container"])
	assert.Equal(t, "Events", fields["tree"])
}
