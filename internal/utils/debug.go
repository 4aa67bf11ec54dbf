package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	current  atomic.Pointer[zerolog.Logger]
	rotator  *lumberjack.Logger
	rotateMu sync.Mutex
)

func init() {
	nop := zerolog.Nop()
	current.Store(&nop)
}

// ConfigureDebug routes debug output to a size-rotated debug.log inside dir.
// maxSizeMB and maxBackups follow lumberjack semantics (0 keeps its defaults).
func ConfigureDebug(dir string, maxSizeMB, maxBackups int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	rotateMu.Lock()
	defer rotateMu.Unlock()

	if rotator != nil {
		_ = rotator.Close()
	}
	rotator = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "debug.log"),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
	SetLogOutput(rotator)
	return nil
}

// SetLogOutput sends structured debug logs to w.
func SetLogOutput(w io.Writer) {
	l := zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	current.Store(&l)
}

// DisableDebug discards all debug output and closes the log file.
func DisableDebug() {
	nop := zerolog.Nop()
	current.Store(&nop)

	rotateMu.Lock()
	defer rotateMu.Unlock()
	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}
}

// Debug writes a formatted message to the debug log
func Debug(format string, args ...any) {
	current.Load().Debug().Msgf(format, args...)
}

// Logger returns a logger tagged with the given component name.
func Logger(component string) zerolog.Logger {
	return current.Load().With().Str("component", component).Logger()
}
