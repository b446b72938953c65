package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_FileOnly_NoStdout(t *testing.T) {
	console := captureStdout(t)

	var fileBuf bytes.Buffer
	m := NewSlogManager()
	require.NoError(t, m.Setup(&fileBuf, "info", Options{}))
	m.Logger().Info("hello file")

	assert.Contains(t, fileBuf.String(), "hello file", "log should appear in file")
	assert.Empty(t, console.String(), "nothing should be written to stdout when file is provided")
}

func TestSetup_NoFile_WritesToStdout(t *testing.T) {
	console := captureStdout(t)

	m := NewSlogManager()
	require.NoError(t, m.Setup(nil, "info", Options{}))
	m.Logger().Info("hello console")

	assert.Contains(t, console.String(), "hello console", "log should appear on stdout")
}

func TestSetup_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	require.NoError(t, m.Setup(&buf, "debug", Options{}))

	m.Logger().Debug("debug msg")
	m.Logger().Info("info msg")

	output := buf.String()
	assert.Contains(t, output, "debug msg")
	assert.Contains(t, output, "info msg")
}

func TestSetup_InfoLevel_FiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	require.NoError(t, m.Setup(&buf, "info", Options{}))

	m.Logger().Debug("should be filtered")
	m.Logger().Info("should appear")

	output := buf.String()
	assert.NotContains(t, output, "should be filtered")
	assert.Contains(t, output, "should appear")
}

func TestSetup_ReplacesLogger(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	m := NewSlogManager()

	require.NoError(t, m.Setup(&buf1, "info", Options{}))
	m.Logger().Info("first")

	require.NoError(t, m.Setup(&buf2, "info", Options{}))
	m.Logger().Info("second")

	assert.Contains(t, buf1.String(), "first")
	assert.NotContains(t, buf1.String(), "second", "old file should not receive new logs")
	assert.Contains(t, buf2.String(), "second")
}

func TestSetup_ContextProvider(t *testing.T) {
	var buf bytes.Buffer
	frame := 0
	m := NewSlogManager()
	require.NoError(t, m.Setup(&buf, "info", Options{
		Context: func() []slog.Attr {
			return []slog.Attr{slog.Int("frame", frame), slog.Bool("reduced", false)}
		},
	}))

	frame = 42
	m.Logger().Info("stamped")

	assert.Contains(t, buf.String(), "frame=42")
	assert.Contains(t, buf.String(), "reduced=false")
}

func TestSetup_ExtraHandlers(t *testing.T) {
	var file, extra bytes.Buffer
	m := NewSlogManager()
	require.NoError(t, m.Setup(&file, "info", Options{
		Extra: []slog.Handler{slog.NewJSONHandler(&extra, nil)},
	}))

	m.Logger().Info("both")
	assert.Contains(t, file.String(), "both")
	assert.Contains(t, extra.String(), `"msg":"both"`)
}

func TestSetup_Graylog(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	t.Cleanup(func() { m.Close() })

	// UDP dial does not need a listener
	require.NoError(t, m.Setup(&buf, "info", Options{GraylogAddress: "127.0.0.1:12201"}))
	assert.Contains(t, buf.String(), "graylog=true")
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	m := NewSlogManager()
	logger := m.Logger()
	assert.Equal(t, slog.Default(), logger)
}

func TestClose_NoGraylog(t *testing.T) {
	m := NewSlogManager()
	assert.NoError(t, m.Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestMultiHandler_FansOut(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelInfo})
	h2 := slog.NewTextHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelInfo})

	multi := NewMultiHandler(h1, h2)
	logger := slog.New(multi)
	logger.Info("fanned out")

	assert.Contains(t, buf1.String(), "fanned out")
	assert.Contains(t, buf2.String(), "fanned out")
}

func TestMultiHandler_FiltersNilHandlers(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, nil)

	multi := NewMultiHandler(nil, h, nil)
	require.Len(t, multi.handlers, 1)

	logger := slog.New(multi)
	logger.Info("works")
	assert.Contains(t, buf.String(), "works")
}

func TestMultiHandler_Enabled(t *testing.T) {
	infoHandler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})

	// Multi with only info handler: debug should be disabled
	infoOnly := NewMultiHandler(infoHandler)
	assert.False(t, infoOnly.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, infoOnly.Enabled(context.Background(), slog.LevelInfo))

	// Multi with both: debug should be enabled (any handler enables it)
	both := NewMultiHandler(infoHandler, debugHandler)
	assert.True(t, both.Enabled(context.Background(), slog.LevelDebug))
}

func TestMultiHandler_Empty(t *testing.T) {
	multi := NewMultiHandler()
	assert.False(t, multi.Enabled(context.Background(), slog.LevelInfo))
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	multi := NewMultiHandler(h)

	withAttrs := multi.WithAttrs([]slog.Attr{slog.String("component", "test")})
	logger := slog.New(withAttrs)
	logger.Info("with attrs")

	assert.Contains(t, buf.String(), "component=test")
}

func TestMultiHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	multi := NewMultiHandler(h)

	withGroup := multi.WithGroup("grp")
	logger := slog.New(withGroup)
	logger.Info("grouped", "key", "val")

	assert.Contains(t, buf.String(), "grp.key=val")
}

func TestMultiHandler_WithGroupEmpty(t *testing.T) {
	h := slog.NewTextHandler(&bytes.Buffer{}, nil)
	multi := NewMultiHandler(h)

	same := multi.WithGroup("")
	assert.Equal(t, multi, same, "empty group name should return same handler")
}

// errorHandler is a slog.Handler that always returns an error from Handle.
type errorHandler struct {
	slog.Handler
}

func (h *errorHandler) Handle(_ context.Context, _ slog.Record) error {
	return errors.New("handler error")
}

func (h *errorHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func TestMultiHandler_HandleError(t *testing.T) {
	var buf bytes.Buffer
	spy := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	// First handler errors, second (spy) should still receive the record.
	multi := NewMultiHandler(&errorHandler{}, spy)
	logger := slog.New(multi)
	logger.Info("should reach spy")

	assert.Contains(t, buf.String(), "should reach spy")

	err := multi.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "direct", 0))
	assert.EqualError(t, err, "handler error")
}

type fakeFrames struct {
	frame   uint64
	reduced bool
}

func (f *fakeFrames) Frame() uint64 { return f.frame }
func (f *fakeFrames) Reduced() bool { return f.reduced }

func TestEngineContext(t *testing.T) {
	var src *fakeFrames
	provider := EngineContext("abc", func() FrameSource {
		if src == nil {
			return nil
		}
		return src
	})

	attrs := provider()
	require.Len(t, attrs, 1)
	assert.Equal(t, "abc", attrs[0].Value.String())

	src = &fakeFrames{frame: 7, reduced: true}
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), provider))
	logger.Info("tick")

	assert.Contains(t, buf.String(), "session=abc")
	assert.Contains(t, buf.String(), "frame=7")
	assert.Contains(t, buf.String(), "reduced=true")
}

// captureStdout swaps the console writer for a buffer until the test ends.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = orig })
	return &buf
}
