package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logRecord struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer

	prev := Logger
	Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	defer func() { Logger = prev }()

	tests := []struct {
		name  string
		fn    func(msg string, args ...any)
		level string
	}{
		{name: "Info", fn: Info, level: "INFO"},
		{name: "Error", fn: Error, level: "ERROR"},
		{name: "Warn", fn: Warn, level: "WARN"},
		{name: "Debug", fn: Debug, level: "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.fn(tt.name + " message")

			var rec logRecord
			require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
			assert.Equal(t, tt.name+" message", rec.Msg)
			assert.Equal(t, tt.level, rec.Level)
		})
	}
}

func TestSetDebug(t *testing.T) {
	prev := Logger
	defer func() { Logger = prev }()

	var buf bytes.Buffer
	SetDebug(false, &buf)
	Debug("hidden")
	Error("hidden too")
	assert.Empty(t, buf.String())

	SetDebug(true, &buf)
	Debug("visible", "k", "v")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "k=v")
}

func TestDebugEnabled(t *testing.T) {
	tests := []struct {
		ccDebug string
		debug   string
		want    bool
	}{
		{"", "", false},
		{"1", "", true},
		{"", "true", true},
		{"0", "false", false},
		{"off", "yes", true},
	}
	for _, tt := range tests {
		t.Setenv("CC_DEBUG", tt.ccDebug)
		t.Setenv("DEBUG", tt.debug)
		assert.Equal(t, tt.want, DebugEnabled(), "CC_DEBUG=%q DEBUG=%q", tt.ccDebug, tt.debug)
	}
}

func TestSafeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://relay.example.com:6443/admin-next/api-stats?apiId=secret", "https://relay.example.com:6443/admin-next/api-stats"},
		{"http://example.com/path#frag", "http://example.com/path#frag"},
		{"https://user:pw@example.com/x?token=1", "https://example.com/x"},
		{"not a url", "[invalid-url]"},
		{"", "[invalid-url]"},
		{"://broken", "[invalid-url]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeURL(tt.in), tt.in)
	}
}
