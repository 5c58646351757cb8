// Package logging contains the logging facilities of the motion pipeline.
// The execution path only logs from setup, feedhold transitions and fault
// branches, so the surface is deliberately small: every call is a message
// plus alternating key/value pairs, gated by a level check before any
// allocation happens.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is the structured, leveled logger handed to pipeline components.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	SetLevel(level Level)
	GetLevel() Level
	// Sublogger returns a logger named name under this one. Subloggers share
	// the parent's outputs but carry their own level.
	Sublogger(name string) Logger
	AddAppender(appender Appender)
}

// appenderSet is the output fan-out shared by a logger and its subloggers,
// so an appender added to any of them is seen by all.
type appenderSet struct {
	mu   sync.Mutex
	list []Appender
}

func (as *appenderSet) add(appender Appender) {
	as.mu.Lock()
	as.list = append(as.list, appender)
	as.mu.Unlock()
}

func (as *appenderSet) write(entry zapcore.Entry, fields []zapcore.Field) {
	as.mu.Lock()
	defer as.mu.Unlock()
	for _, appender := range as.list {
		// Appender failures have nowhere better to go than being dropped.
		_ = appender.Write(entry, fields)
	}
}

type logger struct {
	name  string
	level *AtomicLevel
	out   *appenderSet
}

// NewLogger returns a named logger writing Info+ entries to stdout.
func NewLogger(name string) Logger {
	return &logger{
		name:  name,
		level: NewAtomicLevelAt(INFO),
		out:   &appenderSet{list: []Appender{NewStdoutAppender()}},
	}
}

// NewTestLogger returns a Debug+ logger whose output goes through the test
// runner, so it is shown only for failing tests (or with -v).
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also captures entries in
// an in-memory observer for assertions.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	observerCore, observedLogs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	l := &logger{
		name:  tb.Name(),
		level: NewAtomicLevelAt(DEBUG),
		out:   &appenderSet{list: []Appender{newTestAppender(tb), observerCore}},
	}
	return l, observedLogs
}

func (l *logger) SetLevel(level Level) { l.level.Set(level) }
func (l *logger) GetLevel() Level      { return l.level.Get() }

func (l *logger) Sublogger(name string) Logger {
	if l.name != "" {
		name = l.name + "." + name
	}
	return &logger{
		name:  name,
		level: NewAtomicLevelAt(l.level.Get()),
		out:   l.out,
	}
}

func (l *logger) AddAppender(appender Appender) { l.out.add(appender) }

func (l *logger) Debugw(msg string, keysAndValues ...interface{}) {
	l.emit(DEBUG, msg, keysAndValues)
}

func (l *logger) Infow(msg string, keysAndValues ...interface{}) {
	l.emit(INFO, msg, keysAndValues)
}

func (l *logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.emit(WARN, msg, keysAndValues)
}

func (l *logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.emit(ERROR, msg, keysAndValues)
}

func (l *logger) emit(level Level, msg string, keysAndValues []interface{}) {
	if level < l.level.Get() {
		return
	}
	entry := zapcore.Entry{
		Time:       time.Now().UTC(),
		Level:      level.AsZap(),
		LoggerName: l.name,
		Message:    msg,
	}
	l.out.write(entry, pairFields(keysAndValues))
}

// pairFields turns alternating keys and values into zap fields. A dangling
// key is kept rather than dropped, with a marker value, so the mistake is
// visible in the output.
func pairFields(keysAndValues []interface{}) []zapcore.Field {
	if len(keysAndValues) == 0 {
		return nil
	}
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		} else {
			fields = append(fields, zap.String(key, "<missing value>"))
		}
	}
	return fields
}

// testAppender routes encoded entries through the test runner's log.
type testAppender struct {
	mu      sync.Mutex
	tb      testing.TB
	encoder zapcore.Encoder
}

func newTestAppender(tb testing.TB) Appender {
	cfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		LineEnding:     zapcore.DefaultLineEnding,
	}
	return &testAppender{tb: tb, encoder: zapcore.NewConsoleEncoder(cfg)}
}

func (a *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, err := a.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()
	a.tb.Log(strings.TrimSuffix(buf.String(), "\n"))
	return nil
}

func (a *testAppender) Sync() error { return nil }
