package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesJSON(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "out.log")
	zl, err := NewLogger(WithLogLevel("warn"), WithOutputPaths(fn))
	require.NoError(t, err)

	zl.Sugar().Infof("dropped")
	zl.Sugar().Warnf("count=%d", 42)
	require.NoError(t, zl.Sync())

	b, err := os.ReadFile(fn)
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &rec), "exactly one json line: %s", b)
	assert.Equal(t, "warn", rec["level"])
	assert.Equal(t, "count=42", rec["msg"])
	assert.NotContains(t, rec, "caller")
}

func TestNewLoggerConsoleToManyOutputs(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")
	zl, err := NewLogger(WithEncoding("console"), WithOutputPaths(strings.Split(a+","+b, ",")...))
	require.NoError(t, err)

	zl.Sugar().Infof("count=%d", 42)
	require.NoError(t, zl.Sync())

	for _, fn := range []string{a, b} {
		out, err := os.ReadFile(fn)
		require.NoError(t, err)
		assert.Contains(t, string(out), "count=42")
		assert.False(t, json.Valid(out), "console encoding: %s", out)
	}
}

func TestNewLoggerRejectsBadOptions(t *testing.T) {
	_, err := NewLogger(WithLogLevel("chatty"))
	assert.Error(t, err)

	_, err = NewLogger(WithEncoding("xml"))
	assert.Error(t, err)
}

func TestMustPanics(t *testing.T) {
	assert.Panics(t, func() {
		Must(NewLogger(WithLogLevel("chatty")))
	})
}
