package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console output", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, l.Zerolog().GetLevel())
		assert.NoError(t, l.Close())
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "agent.log")
		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		z := l.Zerolog()
		z.Debug().Str("turn_id", "abc").Msg("stage complete")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"turn_id":"abc"`)
		assert.Contains(t, string(data), "stage complete")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		l, err := New(Config{Level: "chatty"})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, l.Zerolog().GetLevel())
	})
}

func TestRedactor(t *testing.T) {
	r := NewRedactor()
	tests := []struct{ in, want string }{
		{"key sk-abcdefghijklmnopqrstuvwx used", "key [REDACTED] used"},
		{"Authorization: Bearer abc.def-123", "Authorization: [REDACTED]"},
		{"Token 0123456789abcdef0123456789abcdef", "[REDACTED]"},
		{`{"xi-api-key":"secret"}`, `{"[REDACTED]"}`},
		{"nothing to hide here", "nothing to hide here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Redact(tt.in), tt.in)
	}
}

func TestRedactingWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactor().Wrap(&buf)
	msg := []byte("dial with Token 0123456789abcdef0123456789abcdef\n")

	n, err := w.Write(msg)
	require.NoError(t, err)
	assert.Equal(t, len(msg), n)
	assert.Equal(t, "dial with [REDACTED]\n", buf.String())
}
