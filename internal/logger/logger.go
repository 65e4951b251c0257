package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var (
	mu           sync.Mutex
	currentLevel = INFO
	std          = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "FATAL":
		return FATAL, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", s)
	}
}

// SetLevel sets the level by name. Unknown names fall back to INFO.
func SetLevel(level string) {
	l, _ := ParseLevel(level)
	mu.Lock()
	currentLevel = l
	mu.Unlock()
}

func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return currentLevel
}

// SetOutput redirects all log lines, mainly for tests.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

func enabled(level Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return currentLevel <= level
}

func output(level Level, format string, v ...interface{}) {
	if enabled(level) {
		std.Printf("[%s] %s", level, fmt.Sprintf(format, v...))
	}
}

func outputLn(level Level, v ...interface{}) {
	if enabled(level) {
		std.Printf("[%s] %s", level, fmt.Sprint(v...))
	}
}

func Debug(v ...interface{}) {
	outputLn(DEBUG, v...)
}

func Debugf(format string, v ...interface{}) {
	output(DEBUG, format, v...)
}

func Info(v ...interface{}) {
	outputLn(INFO, v...)
}

func Infof(format string, v ...interface{}) {
	output(INFO, format, v...)
}

func Warn(v ...interface{}) {
	outputLn(WARN, v...)
}

func Warnf(format string, v ...interface{}) {
	output(WARN, format, v...)
}

func Error(v ...interface{}) {
	outputLn(ERROR, v...)
}

func Errorf(format string, v ...interface{}) {
	output(ERROR, format, v...)
}

func Fatal(v ...interface{}) {
	std.Fatalf("[FATAL] %s", fmt.Sprint(v...))
}

func Fatalf(format string, v ...interface{}) {
	std.Fatalf("[FATAL] "+format, v...)
}
