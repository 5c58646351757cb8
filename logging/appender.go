package logging

import (
	"os"
	"sync"

	"go.uber.org/zap/zapcore"
)

// Appender is an output for log entries.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed.
	Sync() error
}

// consoleAppender will write human readable lines to the given writer.
type consoleAppender struct {
	mu      sync.Mutex
	writer  zapcore.WriteSyncer
	encoder zapcore.Encoder
}

// NewStdoutAppender creates a new appender that prints to stdout.
func NewStdoutAppender() Appender {
	return NewWriterAppender(zapcore.Lock(os.Stdout))
}

// NewWriterAppender creates an appender that prints to the given writer.
func NewWriterAppender(writer zapcore.WriteSyncer) Appender {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z0700"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	return &consoleAppender{writer: writer, encoder: zapcore.NewConsoleEncoder(cfg)}
}

// Write outputs the log entry to the underlying writer.
func (appender *consoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	appender.mu.Lock()
	defer appender.mu.Unlock()
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()
	if _, err := appender.writer.Write(buf.Bytes()); err != nil {
		return err
	}
	if entry.Level > zapcore.ErrorLevel {
		return appender.writer.Sync()
	}
	return nil
}

// Sync flushes any buffered output.
func (appender *consoleAppender) Sync() error {
	return appender.writer.Sync()
}
