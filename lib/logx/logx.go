package logx

import (
	"fmt"
	"io"
	"strings"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	NOTICE
	WARN
	ERROR
	CRITICAL
	LevelCount
)

var levelNames = [LevelCount]string{
	DEBUG:    "debug",
	INFO:     "info",
	NOTICE:   "notice",
	WARN:     "warn",
	ERROR:    "error",
	CRITICAL: "critical",
}

func (l Level) String() string {
	if l >= 0 && l < LevelCount {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel accepts level names as printed by String, case insensitive.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return WARN, nil
	}
	for i, n := range levelNames {
		if n == s {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// UnmarshalText lets levels be used directly in config structs.
func (l *Level) UnmarshalText(b []byte) (err error) {
	*l, err = ParseLevel(string(b))
	return
}

// LoggerX is shared sink; sections tell which component speaks.
type LoggerX interface {
	Level() Level
	LogPrintX(section string, lvl Level, v ...interface{})
	LogPrintlnX(section string, lvl Level, v ...interface{})
	LogPrintfX(section string, lvl Level, fmt string, v ...interface{})
	// LockWriteX starts multi-write entry; if it returns true,
	// Write calls append to it and Close ends it.
	LockWriteX(section string, lvl Level) bool
	io.WriteCloser
}

// Logger is LoggerX bound to one section.
type Logger interface {
	Level() Level
	LogPrint(lvl Level, v ...interface{})
	LogPrintln(lvl Level, v ...interface{})
	LogPrintf(lvl Level, fmt string, v ...interface{})
	LockWrite(lvl Level) bool
	io.WriteCloser
}

var _ Logger = LogToX{}

type LogToX struct {
	section string
	logx    LoggerX
}

func (l LogToX) Level() Level {
	return l.logx.Level()
}
func (l LogToX) LogPrint(lvl Level, v ...interface{}) {
	l.logx.LogPrintX(l.section, lvl, v...)
}
func (l LogToX) LogPrintln(lvl Level, v ...interface{}) {
	l.logx.LogPrintlnX(l.section, lvl, v...)
}
func (l LogToX) LogPrintf(lvl Level, fmt string, v ...interface{}) {
	l.logx.LogPrintfX(l.section, lvl, fmt, v...)
}
func (l LogToX) LockWrite(lvl Level) bool {
	return l.logx.LockWriteX(l.section, lvl)
}
func (l LogToX) Close() error {
	return l.logx.Close()
}
func (l LogToX) Write(b []byte) (int, error) {
	return l.logx.Write(b)
}
func NewLogToX(logx LoggerX, section string) LogToX {
	return LogToX{section: section, logx: logx}
}

var _ io.WriteCloser = nilLogWriter{}

type nilLogWriter struct{}

func (nilLogWriter) Close() error {
	return nil
}
func (nilLogWriter) Write(b []byte) (int, error) {
	return len(b), nil
}

// NewWriteToLog returns writer for one multi-write entry,
// or sink which drops everything if level is filtered out.
func NewWriteToLog(log Logger, lvl Level) io.WriteCloser {
	if log.LockWrite(lvl) {
		return log
	}
	return nilLogWriter{}
}

var _ LoggerX = NopLoggerX{}

// NopLoggerX discards everything. Handy for tests and library defaults.
type NopLoggerX struct{}

func (NopLoggerX) Level() Level { return LevelCount }

func (NopLoggerX) LogPrintX(string, Level, ...interface{}) {}

func (NopLoggerX) LogPrintlnX(string, Level, ...interface{}) {}

func (NopLoggerX) LogPrintfX(string, Level, string, ...interface{}) {}

func (NopLoggerX) LockWriteX(string, Level) bool { return false }

func (NopLoggerX) Write(b []byte) (int, error) { return len(b), nil }

func (NopLoggerX) Close() error { return nil }
