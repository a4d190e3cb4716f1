package filelogger

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"

	"cardmeter/lib/logx"
)

type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorOn
	ColorOff
)

func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ColorAuto, nil
	case "on", "always", "yes":
		return ColorOn, nil
	case "off", "never", "no":
		return ColorOff, nil
	}
	return 0, fmt.Errorf("unknown color mode %q", s)
}

type logLevels [logx.LevelCount][]byte

var levelstrings = [2]logLevels{
	// uncolored
	{
		logx.DEBUG:    []byte("   DEBUG"),
		logx.INFO:     []byte("    INFO"),
		logx.NOTICE:   []byte("  NOTICE"),
		logx.WARN:     []byte(" WARNING"),
		logx.ERROR:    []byte("   ERROR"),
		logx.CRITICAL: []byte("CRITICAL"),
	},
	// colored
	{
		logx.DEBUG:    []byte("\033[37m   DEBUG\033[0m"),
		logx.INFO:     []byte("\033[34m    INFO\033[0m"),
		logx.NOTICE:   []byte("\033[32m  NOTICE\033[0m"),
		logx.WARN:     []byte("\033[33m WARNING\033[0m"),
		logx.ERROR:    []byte("\033[31m   ERROR\033[0m"),
		logx.CRITICAL: []byte("\033[35mCRITICAL\033[0m"),
	},
}

var formatstrings = [2]string{
	" %s [%s] ",
	" %s [\033[36m%s\033[0m] ",
}

// prefixWriter puts entry prefix in front of every line of message,
// so that multi-line messages stay greppable.
type prefixWriter struct {
	out     *bufio.Writer
	prefix  bytes.Buffer
	midLine bool
}

// begin starts new entry; prefix is to be filled by caller.
func (pw *prefixWriter) begin() {
	pw.prefix.Reset()
	pw.midLine = false
}

func (pw *prefixWriter) Write(b []byte) (int, error) {
	n := len(b)
	for len(b) != 0 {
		if !pw.midLine {
			pw.out.Write(pw.prefix.Bytes())
			pw.midLine = true
		}
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			pw.out.Write(b)
			break
		}
		pw.out.Write(b[:i+1])
		b = b[i+1:]
		pw.midLine = false
	}
	return n, nil
}

// end terminates unfinished line and flushes.
func (pw *prefixWriter) end() error {
	if pw.midLine {
		pw.out.WriteByte('\n')
		pw.midLine = false
	}
	return pw.out.Flush()
}

type day struct {
	Y int
	M time.Month
	D int
}

var _ logx.LoggerX = (*FileLogger)(nil)

// FileLogger writes one line per entry: time, level, section, message.
// Multi-line messages get the prefix repeated on each line.
type FileLogger struct {
	w  prefixWriter
	d  day
	l  sync.Mutex
	t  uint // 1 if colored
	m  logx.Level
	c  io.Closer // owned output, if any
	tz *time.Location
}

var nowTime = time.Now

type fder interface {
	Fd() uintptr
}

func isTerminal(w io.Writer) (uintptr, bool) {
	f, ok := w.(fder)
	if !ok {
		return 0, false
	}
	fd := f.Fd()
	return fd, isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewFileLogger logs to w. With ColorAuto colors are used only if w is terminal.
func NewFileLogger(w io.Writer, logLevel logx.Level, c ColorMode) *FileLogger {
	l := &FileLogger{m: logLevel, tz: time.UTC}
	_, tty := isTerminal(w)
	switch {
	case c == ColorOn || (c == ColorAuto && tty):
		if f, ok := w.(*os.File); ok {
			// translates escapes on windows consoles
			w = colorable.NewColorable(f)
		}
		l.t = 1
		l.tz = time.Local
	}
	l.w.out = bufio.NewWriter(w)
	return l
}

// OpenFileLogger appends to file at path, creating it if needed.
func OpenFileLogger(path string, logLevel logx.Level) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	l := NewFileLogger(f, logLevel, ColorOff)
	l.c = f
	return l, nil
}

// Shutdown closes owned output file. Logger must not be used afterwards.
func (l *FileLogger) Shutdown() error {
	if l.c != nil {
		return l.c.Close()
	}
	return nil
}

func (l *FileLogger) Level() logx.Level {
	return l.m
}

func (l *FileLogger) writeTime(t time.Time) {
	var d day
	t = t.In(l.tz)
	d.Y, d.M, d.D = t.Date()
	h, m, s := t.Clock()
	if l.t != 0 {
		if l.d != d {
			l.d = d
			fmt.Fprintf(l.w.out, "\033[1mdate is %d-%02d-%02d\033[0m\n", d.Y, d.M, d.D)
		}
		fmt.Fprintf(&l.w.prefix, "%02d:%02d:%02d", h, m, s)
	} else {
		fmt.Fprintf(&l.w.prefix, "%d-%02d-%02d %02d:%02d:%02d", d.Y, d.M, d.D, h, m, s)
	}
}

func (l *FileLogger) prepareWrite(section string, lvl logx.Level) {
	l.w.begin()
	l.writeTime(nowTime())
	fmt.Fprintf(&l.w.prefix, formatstrings[l.t], levelstrings[l.t][lvl], section)
}

func (l *FileLogger) LogPrintX(section string, lvl logx.Level, v ...interface{}) {
	if l.m > lvl {
		return
	}

	l.l.Lock()
	defer l.l.Unlock()

	l.prepareWrite(section, lvl)
	fmt.Fprint(&l.w, v...)
	l.w.end()
}

func (l *FileLogger) LogPrintlnX(section string, lvl logx.Level, v ...interface{}) {
	if l.m > lvl {
		return
	}

	l.l.Lock()
	defer l.l.Unlock()

	l.prepareWrite(section, lvl)
	fmt.Fprintln(&l.w, v...)
	l.w.end()
}

func (l *FileLogger) LogPrintfX(section string, lvl logx.Level, fmts string, v ...interface{}) {
	if l.m > lvl {
		return
	}

	l.l.Lock()
	defer l.l.Unlock()

	l.prepareWrite(section, lvl)
	fmt.Fprintf(&l.w, fmts, v...)
	l.w.end()
}

// LockWriteX holds logger lock until Close if it returns true.
func (l *FileLogger) LockWriteX(section string, lvl logx.Level) bool {
	if l.m > lvl {
		return false
	}

	l.l.Lock()
	l.prepareWrite(section, lvl)
	return true
}

func (l *FileLogger) Close() error {
	err := l.w.end()
	l.l.Unlock()
	return err
}

func (l *FileLogger) Write(b []byte) (int, error) {
	return l.w.Write(b)
}
