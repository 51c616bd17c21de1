package log

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFilter(t *testing.T) {
	filter, err := WithFilter("debug:adapter.* info:*")
	require.NoError(t, err)
	var buf bytes.Buffer
	l := New(&buf, DebugLevel, filter)

	l.Named("adapter").Named("ws").Debug("adapter debug")
	l.Named("relay").Debug("relay debug")
	l.Named("relay").Info("relay info")
	require.NoError(t, l.Sync())

	out := buf.String()
	assert.Contains(t, out, "adapter debug")
	assert.NotContains(t, out, "relay debug")
	assert.Contains(t, out, "relay info")

	_, err = WithFilter("nolevel:*")
	assert.Error(t, err)
}

func TestLevel(t *testing.T) {
	var buf bytes.Buffer
	l := DevLogger(&buf, InfoLevel)
	l.Debug("hidden")
	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.Level())
	l.Debug("visible", String("key", "value"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "value")
}

func TestResetDefault(t *testing.T) {
	old := Default()
	defer ResetDefault(old)

	var buf bytes.Buffer
	ResetDefault(New(&buf, InfoLevel, WithCaller(true), AddCallerSkip(1)))
	Info("via package", Int("n", 1))
	require.NoError(t, Sync())
	out := buf.String()
	assert.Contains(t, out, "via package")
	assert.True(t, strings.Contains(out, "log/log_test.go"), "caller should be the test: %s", out)
}

func TestContext(t *testing.T) {
	assert.Same(t, Default(), GetFromContext(context.Background()))

	var buf bytes.Buffer
	l := New(&buf, InfoLevel)
	ctx := AddToContext(context.Background(), l)
	assert.Same(t, l, GetFromContext(ctx))
}
