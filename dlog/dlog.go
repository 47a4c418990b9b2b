// Package dlog implements the leveled, prefixed logger every component
// logs through (§4.9). It is grounded on the teacher's prefixLogger
// (delthas-soju/server.go), wrapping the standard log package rather
// than pulling in a third-party logging library, matching the
// teacher's own log.New(log.Writer(), "", log.LstdFlags) use.
package dlog

import (
	"io"
	"log"
	"os"
)

// Level gates whether Debugf calls are emitted.
type Level int

const (
	Info Level = iota
	Debug
)

// ParseLevel maps sys.log_level ("info"|"debug") to a Level, defaulting
// to Info for anything else.
func ParseLevel(s string) Level {
	if s == "debug" {
		return Debug
	}
	return Info
}

// Root is the process-wide base logger: stderr, optionally teed to a
// file under log_dir, shared by every prefixed child logger.
type Root struct {
	level  Level
	logger *log.Logger
	file   *os.File
}

// New builds a Root writing to stderr and, if logDir is non-empty, also
// to <logDir>/runtime.log, creating logDir if necessary. One log file
// is used per process lifetime, matching the original bot's Logger
// (dbot_tools.py) convention of not rotating mid-run.
func New(level Level, logDir string) (*Root, error) {
	w := io.Writer(os.Stderr)
	var f *os.File
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, err
		}
		var err error
		f, err = os.OpenFile(logDir+"/runtime.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w = io.MultiWriter(os.Stderr, f)
	}
	return &Root{
		level:  level,
		logger: log.New(w, "", log.LstdFlags),
		file:   f,
	}, nil
}

// Close closes the tee file, if one was opened.
func (r *Root) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// For returns a prefixed child logger for one subsystem, e.g.
// r.For("dispatch") logs lines as "dispatch: ...".
func (r *Root) For(subsystem string) *Logger {
	return &Logger{root: r, prefix: subsystem + ": "}
}

// Logger is a subsystem-prefixed view onto a Root. Its Printf method
// satisfies dispatch.Logger.
type Logger struct {
	root   *Root
	prefix string
}

// Printf always logs, regardless of level, matching the teacher's
// unconditional Printf.
func (l *Logger) Printf(format string, args ...interface{}) {
	if l == nil || l.root == nil {
		log.Printf(format, args...)
		return
	}
	l.root.logger.Printf(l.prefix+format, args...)
}

// Debugf only logs when sys.log_level is "debug".
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil || l.root == nil || l.root.level != Debug {
		return
	}
	l.root.logger.Printf(l.prefix+format, args...)
}
