package runner

import (
	"bytes"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	maxLogChars     = 20000
	truncatedSuffix = "\n... (truncated)\n"
)

// LogTap is a zap sink that copies log output into the active run's buffer
// and discards it otherwise. Install its Core on the root logger so agent
// logs land in the run record too.
type LogTap struct {
	mu     sync.Mutex
	active *logBuffer
}

func NewLogTap() *LogTap { return &LogTap{} }

func (t *LogTap) Write(p []byte) (int, error) {
	t.mu.Lock()
	b := t.active
	t.mu.Unlock()
	if b != nil {
		_, _ = b.Write(p)
	}
	return len(p), nil
}

func (t *LogTap) Sync() error { return nil }

// Core encodes entries at or above level for the tap.
func (t *LogTap) Core(level zapcore.LevelEnabler) zapcore.Core {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeCaller = nil
	enc.CallerKey = ""
	return zapcore.NewCore(zapcore.NewConsoleEncoder(enc), t, level)
}

func (t *LogTap) start() *logBuffer {
	b := &logBuffer{capBytes: maxLogChars*utf8.UTFMax + len(truncatedSuffix)}
	t.mu.Lock()
	t.active = b
	t.mu.Unlock()
	return b
}

func (t *LogTap) stop() {
	t.mu.Lock()
	t.active = nil
	t.mu.Unlock()
}

// logBuffer keeps a bounded prefix of everything written to it.
type logBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	capBytes int
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.capBytes - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return truncateLogs(b.buf.String(), maxLogChars)
}

// truncateLogs keeps the first max characters and marks the cut.
func truncateLogs(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + truncatedSuffix
		}
		n++
	}
	return s
}
