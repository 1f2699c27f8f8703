// Package logx provides per-component prefixed loggers on top of the
// standard library logger, matching the bracketed-prefix convention
// used throughout the media core (e.g. "[relay] dropping datagram").
package logx

import (
	"log"
	"os"
)

// Logger is a thin wrapper around *log.Logger scoped to one component.
type Logger struct {
	l *log.Logger
}

// New returns a Logger that prefixes every line with "[component] ".
func New(component string) *Logger {
	return &Logger{l: log.New(os.Stderr, "["+component+"] ", log.LstdFlags)}
}

func (lg *Logger) Printf(format string, args ...any) {
	lg.l.Printf(format, args...)
}

func (lg *Logger) Println(args ...any) {
	lg.l.Println(args...)
}
