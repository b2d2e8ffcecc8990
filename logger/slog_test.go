package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLevels(t *testing.T) {
	t.Setenv("ENV", "")
	var buf bytes.Buffer
	l := NewSlogWriter(&buf, WarnLevel, false)

	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("checksum mismatch", "port", "/dev/ttyS0")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "checksum mismatch", rec["msg"])
	assert.Equal(t, "/dev/ttyS0", rec["port"])
	assert.Contains(t, rec, "ts")

	assert.Equal(t, WarnLevel, l.Level())
	l.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, l.Level())
}

func TestSlogWithSharesLevel(t *testing.T) {
	t.Setenv("ENV", "")
	var buf bytes.Buffer
	parent := NewSlogWriter(&buf, ErrorLevel, false)
	child := parent.With("address", 5)

	child.Info("dropped")
	assert.Zero(t, buf.Len())

	parent.SetLevel(InfoLevel)
	child.Info("kept")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.EqualValues(t, 5, rec["address"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestMockLogger(t *testing.T) {
	m := NewMockLogger()
	m.On("Warn", "reply timeout", []any{"address", 3}).Once()
	m.Warn("reply timeout", "address", 3)
	m.AssertExpectations(t)
}
