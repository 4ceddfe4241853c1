package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestZapLevel(t *testing.T) {
	assert.Equal(t, zapcore.FatalLevel, ZapLevel(Silent))
	assert.Equal(t, zapcore.ErrorLevel, ZapLevel(Error))
	assert.Equal(t, zapcore.WarnLevel, ZapLevel(Warn))
	assert.Equal(t, zapcore.InfoLevel, ZapLevel(Info))
}

func newBufferedZap(level LogLevel) (Interface, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(buf),
		zapcore.DebugLevel,
	)
	return NewZapLogger(zap.New(core), Config{LogLevel: level, SlowThreshold: 200 * time.Millisecond}), buf
}

func TestZapTraceError(t *testing.T) {
	l, buf := newBufferedZap(Error)

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "select users", 0
	}, errors.New("boom"))

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"op":"select users"`)
	assert.Contains(t, out, "descriptor executed")
}

func TestZapTraceInfo(t *testing.T) {
	l, buf := newBufferedZap(Info)

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "insert users", 1
	}, nil)

	assert.Contains(t, buf.String(), `"rows":1`)
}

func TestZapTraceSilent(t *testing.T) {
	l, buf := newBufferedZap(Silent)

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "select users", 0
	}, errors.New("boom"))

	assert.Empty(t, buf.String())
}

func TestZapInfoRespectsLevel(t *testing.T) {
	l, buf := newBufferedZap(Warn)

	l.Info(context.Background(), "quiet")
	assert.Empty(t, buf.String())

	l.Warn(context.Background(), "careful")
	assert.Contains(t, buf.String(), "careful")
}
