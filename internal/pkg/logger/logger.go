// Package logger provides the structured logging implementation behind the
// ports.Logger abstraction.
package logger

import (
	"io"
	"log"
	"os"
)

// StdLogger writes tagged lines through Go's log package. Warn and Error
// always emit: degradation warnings from the analysis pipeline must reach the
// operator even without TASKORA_DEBUG. Debug and Info are verbose-only.
type StdLogger struct {
	verbose bool
	out     *log.Logger
}

// NewStd creates a StdLogger writing to stderr.
func NewStd(verbose bool) *StdLogger {
	return newStd(verbose, os.Stderr)
}

func newStd(verbose bool, w io.Writer) *StdLogger {
	return &StdLogger{
		verbose: verbose,
		out:     log.New(w, "taskora-ai ", log.LstdFlags),
	}
}

func (l *StdLogger) Debug(msg string, fields map[string]interface{}) {
	if !l.verbose {
		return
	}
	l.out.Println("[DEBUG]", msg, fields)
}

func (l *StdLogger) Info(msg string, fields map[string]interface{}) {
	if !l.verbose {
		return
	}
	l.out.Println("[INFO]", msg, fields)
}

func (l *StdLogger) Warn(msg string, fields map[string]interface{}) {
	l.out.Println("[WARN]", msg, fields)
}

func (l *StdLogger) Error(msg string, err error, fields map[string]interface{}) {
	l.out.Println("[ERROR]", msg, err, fields)
}
