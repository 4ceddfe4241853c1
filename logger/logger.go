// Package logger defines arbor's logging boundary and adapters for the
// common structured logging backends. Trace receives a textual summary
// of the executed query descriptor rather than SQL; arbor never sees
// dialect SQL.
package logger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/arbor-orm/arbor/utils"
)

// ErrRecordNotFound is re-exported by the root package as
// ErrModelNotFound; it lives here so Trace implementations can filter
// it without an import cycle.
var ErrRecordNotFound = errors.New("model not found")

// LogLevel log level
type LogLevel int

const (
	// Silent silent log level
	Silent LogLevel = iota + 1
	// Error error log level
	Error
	// Warn warn log level
	Warn
	// Info info log level
	Info
)

// Config logger config
type Config struct {
	SlowThreshold             time.Duration
	LogLevel                  LogLevel
	IgnoreRecordNotFoundError bool
}

// Interface logger interface
type Interface interface {
	LogMode(LogLevel) Interface
	Info(ctx context.Context, msg string, data ...interface{})
	Warn(ctx context.Context, msg string, data ...interface{})
	Error(ctx context.Context, msg string, data ...interface{})
	Trace(ctx context.Context, begin time.Time, fc func() (op string, rowsAffected int64), err error)
}

// Writer log writer interface
type Writer interface {
	Printf(string, ...interface{})
}

var (
	// Discard logger will print any log to io.Discard
	Discard = New(log.New(discardWriter{}, "", log.LstdFlags), Config{LogLevel: Silent})
	// Default default logger
	Default = New(log.New(os.Stdout, "\r\n", log.LstdFlags), Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  Warn,
		IgnoreRecordNotFoundError: false,
	})
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// New initialize a writer-backed logger
func New(writer Writer, config Config) Interface {
	return &logWriter{Writer: writer, Config: config}
}

type logWriter struct {
	Writer
	Config
}

// LogMode log mode
func (l *logWriter) LogMode(level LogLevel) Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// Info print info
func (l *logWriter) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Info {
		l.Printf("[info] %s %s %v", utils.FileWithLineNum(), msg, data)
	}
}

// Warn print warn messages
func (l *logWriter) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Warn {
		l.Printf("[warn] %s %s %v", utils.FileWithLineNum(), msg, data)
	}
}

// Error print error messages
func (l *logWriter) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= Error {
		l.Printf("[error] %s %s %v", utils.FileWithLineNum(), msg, data)
	}
}

// Trace print executed descriptors with duration and row counts
func (l *logWriter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.LogLevel >= Error && (!l.IgnoreRecordNotFoundError || !errors.Is(err, ErrRecordNotFound)):
		op, rows := fc()
		l.Printf("%s %s [%.3fms] [rows:%v] %s", utils.FileWithLineNum(), err, float64(elapsed.Nanoseconds())/1e6, rows, op)
	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold && l.LogLevel >= Warn:
		op, rows := fc()
		slow := fmt.Sprintf("SLOW QUERY >= %v", l.SlowThreshold)
		l.Printf("%s %s [%.3fms] [rows:%v] %s", utils.FileWithLineNum(), slow, float64(elapsed.Nanoseconds())/1e6, rows, op)
	case l.LogLevel == Info:
		op, rows := fc()
		l.Printf("%s [%.3fms] [rows:%v] %s", utils.FileWithLineNum(), float64(elapsed.Nanoseconds())/1e6, rows, op)
	}
}
