// Package logger builds zap loggers writing JSON to stdout, stderr or a
// rotated file.
package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Plugin = zapcore.Core

func NewLogger(plugin zapcore.Core, options ...zap.Option) *zap.Logger {
	return zap.New(plugin, append(DefaultOption(), options...)...)
}

func NewPlugin(writer zapcore.WriteSyncer, enabler zapcore.LevelEnabler) Plugin {
	return zapcore.NewCore(DefaultEncoder(), writer, enabler)
}

func NewStdoutPlugin(enabler zapcore.LevelEnabler) Plugin {
	return NewPlugin(zapcore.Lock(zapcore.AddSync(os.Stdout)), enabler)
}

func NewStderrPlugin(enabler zapcore.LevelEnabler) Plugin {
	return NewPlugin(zapcore.Lock(zapcore.AddSync(os.Stderr)), enabler)
}

// NewFilePlugin writes to a rotated file. lumberjack does not expose Sync, so
// the returned closer must be closed before exit to flush the file.
func NewFilePlugin(filePath string, enabler zapcore.LevelEnabler) (Plugin, io.Closer) {
	var writer = DefaultLumberjackLogger()
	writer.Filename = filePath
	return NewPlugin(zapcore.AddSync(writer), enabler), writer
}

// ParseLevel maps "debug", "info", "warn", "error" to a zap level; anything
// else is info.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// New builds the process logger: the console stream named by output
// ("stdout", anything else is stderr), plus a rotated file when filePath is
// set. The returned closer is a no-op without a file.
func New(level, output, filePath string) (*zap.Logger, io.Closer) {
	lvl := ParseLevel(level)
	console := ConsolePlugin(output, lvl)
	if filePath == "" {
		return NewLogger(console), nopCloser{}
	}
	file, closer := NewFilePlugin(filePath, lvl)
	return NewLogger(zapcore.NewTee(console, file)), closer
}

func ConsolePlugin(output string, enabler zapcore.LevelEnabler) Plugin {
	if strings.EqualFold(strings.TrimSpace(output), "stdout") {
		return NewStdoutPlugin(enabler)
	}
	return NewStderrPlugin(enabler)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
