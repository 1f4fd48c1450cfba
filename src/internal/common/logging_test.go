package common

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewSafeLoggerLevels(t *testing.T) {
	old, had := os.LookupEnv("LSPCLIENT_DEBUG")
	defer func() {
		if had {
			os.Setenv("LSPCLIENT_DEBUG", old)
		} else {
			os.Unsetenv("LSPCLIENT_DEBUG")
		}
	}()

	os.Unsetenv("LSPCLIENT_DEBUG")
	l := NewSafeLogger("TEST")
	assert.False(t, l.level.Enabled(zapcore.DebugLevel), "expected info level by default")

	os.Setenv("LSPCLIENT_DEBUG", "true")
	l2 := NewSafeLogger("TEST")
	assert.True(t, l2.level.Enabled(zapcore.DebugLevel), "expected debug level")
}

func TestSafeLoggerRespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewSafeLoggerWithCore("TEST", core)
	l.SetLevel(LogWarn)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warn("shown %d", 3)
	l.Error("shown %d", 4)

	require.Equal(t, 2, logs.Len())
	entries := logs.AllUntimed()
	assert.Equal(t, "shown 3", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "TEST", entries[0].LoggerName)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestSafeLoggerNamedSharesLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	parent := NewSafeLoggerWithCore("Client", core)
	child := parent.Named("abc")

	parent.SetLevel(LogError)
	child.Warn("dropped")
	child.Error("kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Client.abc", logs.All()[0].LoggerName)
	assert.Equal(t, "Client.abc", child.Prefix())
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LogDebug, true},
		{"INFO", LogInfo, true},
		{"", LogInfo, true},
		{"warning", LogWarn, true},
		{"error", LogError, true},
		{"loud", LogInfo, false},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if tt.ok {
			require.NoError(t, err, tt.in)
		} else {
			require.Error(t, err, tt.in)
		}
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSanitizeErrorForLogging(t *testing.T) {
	if SanitizeErrorForLogging(nil) != "" {
		t.Fatalf("nil should be empty")
	}
	long := strings.Repeat("x", 250)
	if got := SanitizeErrorForLogging(long); !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncation")
	}
	assert.Equal(t, "boom", SanitizeErrorForLogging(errors.New("boom")))
	assert.Equal(t, "a b", SanitizeErrorForLogging([]byte("a\nb")))
}
