package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Logger provides leveled logging (info/warning/error) to stdout/stderr and,
// when a directory is configured, to one file per level.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	files      []*os.File
	mu         sync.Mutex
}

// New creates a Logger. An empty dir logs to the console only.
func New(dir string) (*Logger, error) {
	if dir == "" {
		return NewWithWriters(os.Stdout, os.Stderr), nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{}
	open := func(name string) (*os.File, error) {
		file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", name, err)
		}
		l.files = append(l.files, file)
		return file, nil
	}

	infoFile, err := open("info.log")
	if err != nil {
		return nil, err
	}
	warningFile, err := open("warning.log")
	if err != nil {
		l.Close()
		return nil, err
	}
	errorFile, err := open("error.log")
	if err != nil {
		l.Close()
		return nil, err
	}

	l.setup(io.MultiWriter(os.Stdout, infoFile),
		io.MultiWriter(os.Stdout, warningFile),
		io.MultiWriter(os.Stderr, errorFile))
	return l, nil
}

// NewWithWriters logs info and warnings to out and errors to errOut.
func NewWithWriters(out, errOut io.Writer) *Logger {
	l := &Logger{}
	l.setup(out, out, errOut)
	return l
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return NewWithWriters(io.Discard, io.Discard)
}

func (l *Logger) setup(info, warning, errOut io.Writer) {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	l.infoLog = log.New(info, "INFO    ", flags)
	l.warningLog = log.New(warning, "WARNING ", flags)
	l.errorLog = log.New(errOut, "ERROR   ", flags)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.output(l.infoLog, format, v...)
}

func (l *Logger) Warning(format string, v ...interface{}) {
	l.output(l.warningLog, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.output(l.errorLog, format, v...)
}

// Fatal logs at error level and exits with status 1.
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.output(l.errorLog, format, v...)
	l.Close()
	os.Exit(1)
}

func (l *Logger) output(dst *log.Logger, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// skip output and the exported level method
	dst.Output(3, fmt.Sprintf(format, v...))
}

// Close releases the log files.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.files {
		f.Close()
	}
	l.files = nil
}
