// logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"wsiserve/config"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}
var levelColors = [...]string{colorGray, colorReset, colorYellow, colorRed}

func (l LogLevel) String() string {
	if l < DEBUG || l > ERROR {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a case-insensitive level name to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// sink pairs a colored console logger with a plain file logger for one level.
type sink struct {
	console *log.Logger
	file    *log.Logger
}

type Logger struct {
	sinks    [ERROR + 1]sink
	file     *os.File
	minLevel LogLevel
}

var (
	defaultLogger *Logger
	once          sync.Once
	mu            sync.RWMutex
)

// ensureInitialized creates a console-only debug logger if none exists yet
func ensureInitialized() {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if defaultLogger == nil {
			defaultLogger = newLogger(os.Stdout, nil, nil, DEBUG)
		}
	})
}

func newLogger(console, fileOut io.Writer, file *os.File, level LogLevel) *Logger {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	l := &Logger{file: file, minLevel: level}
	for lvl := DEBUG; lvl <= ERROR; lvl++ {
		tag := fmt.Sprintf("[%-5s] ", levelNames[lvl])
		if console != nil {
			l.sinks[lvl].console = log.New(console, levelColors[lvl]+tag+colorReset, flags)
		}
		if fileOut != nil {
			l.sinks[lvl].file = log.New(fileOut, tag, flags)
		}
	}
	return l
}

// Init initializes the logger with optional file and console output.
// If filename is empty, logs only to console; if console is false, logs only to file.
func Init(filename string, console bool) error {
	return install(filename, console, DEBUG)
}

// Configure applies the logging section of the service configuration.
func Configure(cfg config.LoggingConfig) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	return install(cfg.File, cfg.Console, level)
}

func install(filename string, console bool, level LogLevel) error {
	var (
		file    *os.File
		fileOut io.Writer
		conOut  io.Writer
	)
	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		file, fileOut = f, f
	}
	if console {
		conOut = os.Stdout
	}
	if fileOut == nil && conOut == nil {
		return fmt.Errorf("no output destination specified")
	}

	once.Do(func() {}) // a later ensureInitialized must not replace this logger

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
	}
	defaultLogger = newLogger(conOut, fileOut, file, level)
	return nil
}

// SetOutput sends uncolored output to w only. Intended for tests and tooling.
func SetOutput(w io.Writer, level LogLevel) {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
	}
	defaultLogger = newLogger(nil, w, nil, level)
}

// SetLevel sets the minimum log level; messages below it are dropped.
func SetLevel(level LogLevel) {
	ensureInitialized()
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.minLevel = level
}

// Close closes the log file if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
		defaultLogger.file = nil
		for lvl := range defaultLogger.sinks {
			defaultLogger.sinks[lvl].file = nil
		}
	}
}

func output(level LogLevel, msg string) {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()

	l := defaultLogger
	if level < l.minLevel {
		return
	}
	s := l.sinks[level]
	if s.console != nil {
		s.console.Output(3, msg)
	}
	if s.file != nil {
		s.file.Output(3, msg)
	}
}

func Debug(v ...interface{}) { output(DEBUG, fmt.Sprint(v...)) }

func Debugf(format string, v ...interface{}) { output(DEBUG, fmt.Sprintf(format, v...)) }

func Info(v ...interface{}) { output(INFO, fmt.Sprint(v...)) }

func Infof(format string, v ...interface{}) { output(INFO, fmt.Sprintf(format, v...)) }

func Warn(v ...interface{}) { output(WARN, fmt.Sprint(v...)) }

func Warnf(format string, v ...interface{}) { output(WARN, fmt.Sprintf(format, v...)) }

func Error(v ...interface{}) { output(ERROR, fmt.Sprint(v...)) }

func Errorf(format string, v ...interface{}) { output(ERROR, fmt.Sprintf(format, v...)) }

// Fatal logs an error message and exits the program
func Fatal(v ...interface{}) {
	output(ERROR, fmt.Sprint(v...))
	os.Exit(1)
}

// Fatalf logs a formatted error message and exits the program
func Fatalf(format string, v ...interface{}) {
	output(ERROR, fmt.Sprintf(format, v...))
	os.Exit(1)
}
