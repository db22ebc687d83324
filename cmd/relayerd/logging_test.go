package relayerd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestEncodeEntry(t *testing.T) {
	enc := consoleEncoder{zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())}
	entry := zapcore.Entry{Level: zapcore.InfoLevel, Time: time.Unix(0, 0), Message: "foo\x1b[31mbar"}

	buf, err := enc.EncodeEntry(entry, []zapcore.Field{zap.String("k", "v\x00w")})
	require.NoError(t, err)
	defer buf.Free()
	out := buf.String()
	assert.Contains(t, out, "foo\x1A[31mbar")
	assert.NotContains(t, out, "\x1b")
	assert.NotContains(t, out, "\x00")
	// Newlines are whitespace and survive.
	assert.Equal(t, byte('\n'), out[len(out)-1])
}

func TestEncoderCloneKeepsScrubbing(t *testing.T) {
	enc := consoleEncoder{zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())}
	cloned, ok := enc.Clone().(consoleEncoder)
	require.True(t, ok)

	buf, err := cloned.EncodeEntry(zapcore.Entry{Message: "a\x07b"}, nil)
	require.NoError(t, err)
	defer buf.Free()
	assert.Contains(t, buf.String(), "a\x1Ab")
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("debug")
	assert.NoError(t, err)
	_, err = newLogger("loud")
	assert.Error(t, err)
}
