package types

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

// NewRkeydLogger creates a new logger with the given name and level.
// The level is used to set the log level, defaulting to info.
// The log level can be overridden by setting the environment variable $NAME_DEBUG to any parseable value.
// If quiet is true, the logger will not log to the console.
func NewRkeydLogger(name, level string, quiet bool) RkeydLogger {
	var loggers []io.Writer
	var l zerolog.Level
	var fileLock *flock.Flock
	var logfile *os.File
	var err error

	// Prefer journald, fall back to a file under /var/log/rkeyd
	if isJournaldAvailable() {
		loggers = append(loggers, getJournaldWriter())
	} else {
		logName := fmt.Sprintf("%s.log", name)
		_ = os.MkdirAll("/var/log/rkeyd/", os.ModeDir|os.ModePerm)
		logFileName := filepath.Join("/var/log/rkeyd/", logName)

		logfile, err = os.OpenFile(logFileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			loggers = append(loggers, zerolog.ConsoleWriter{Out: logfile, TimeFormat: time.RFC3339, NoColor: true})
		}

		fileLock = flock.New(logFileName + ".lock")
	}

	if !quiet {
		loggers = append(loggers, zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.TimeFormat = time.RFC3339
		}))
	}

	// Parse the level, default to info
	l, err = zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}

	multi := zerolog.MultiLevelWriter(loggers...)

	// Set debug level if set on ENV
	debugFromEnv := os.Getenv(fmt.Sprintf("%s_DEBUG", strings.ToUpper(name))) != ""
	if debugFromEnv {
		l = zerolog.DebugLevel
	}
	// Set trace level if set on ENV
	traceFromEnv := os.Getenv(fmt.Sprintf("%s_TRACE", strings.ToUpper(name))) != ""
	if traceFromEnv {
		l = zerolog.TraceLevel
	}
	k := RkeydLogger{
		zerolog.New(multi).With().Timestamp().Logger().Level(l),
		fileLock,
		logfile,
		isJournaldAvailable(),
	}

	runtime.SetFinalizer(&k, func(k *RkeydLogger) {
		k.Cleanup()
	})

	return k
}

func (m *RkeydLogger) Cleanup() {
	if m.fileLock != nil {
		m.fileLock.Lock()
		defer m.fileLock.Unlock()
	}

	if m.logFile != nil {
		m.logFile.Close()
		m.logFile = nil
	}
	if m.fileLock != nil {
		m.fileLock.Unlock()
		m.fileLock = nil
	}
}

func NewBufferLogger(b *bytes.Buffer) RkeydLogger {
	return RkeydLogger{
		zerolog.New(b).With().Timestamp().Logger(),
		nil,
		nil,
		true,
	}
}

func NewNullLogger() RkeydLogger {
	return RkeydLogger{
		zerolog.New(io.Discard).With().Timestamp().Logger(),
		nil,
		nil,
		true,
	}
}

// RkeydLogger wraps zerolog with the file lock we need when several
// processes share the fallback logfile.
type RkeydLogger struct {
	zerolog.Logger
	fileLock *flock.Flock
	logFile  *os.File
	journald bool // Whether we are logging to journald, to avoid the file lock
}

func (m *RkeydLogger) SetLevel(level string) {
	l, _ := zerolog.ParseLevel(level)
	// This returns a full child logger so we need to overwrite the logger
	m.Logger = m.Logger.Level(l)
}

func (m RkeydLogger) GetLevel() zerolog.Level {
	return m.Logger.GetLevel()
}

func (m RkeydLogger) IsDebug() bool {
	return m.Logger.GetLevel() == zerolog.DebugLevel
}

// Printf-style helpers for call sites that don't need structured fields.

func (m RkeydLogger) Infof(tpl string, args ...interface{}) {
	if !m.journald && m.fileLock != nil {
		m.fileLock.Lock()
		defer m.fileLock.Unlock()
		// Add the pid to the log line so searching for it is easier
		tpl = fmt.Sprintf("[%v] ", os.Getpid()) + tpl
	}
	m.Logger.Info().Msg(fmt.Sprintf(tpl, args...))
}

func (m RkeydLogger) Warnf(tpl string, args ...interface{}) {
	if !m.journald && m.fileLock != nil {
		m.fileLock.Lock()
		defer m.fileLock.Unlock()
		tpl = fmt.Sprintf("[%v] ", os.Getpid()) + tpl
	}
	m.Logger.Warn().Msg(fmt.Sprintf(tpl, args...))
}

func (m RkeydLogger) Debugf(tpl string, args ...interface{}) {
	if !m.journald && m.fileLock != nil {
		m.fileLock.Lock()
		defer m.fileLock.Unlock()
		tpl = fmt.Sprintf("[%v] ", os.Getpid()) + tpl
	}
	m.Logger.Debug().Msg(fmt.Sprintf(tpl, args...))
}

func (m RkeydLogger) Errorf(tpl string, args ...interface{}) {
	if !m.journald && m.fileLock != nil {
		m.fileLock.Lock()
		defer m.fileLock.Unlock()
		tpl = fmt.Sprintf("[%v] ", os.Getpid()) + tpl
	}
	m.Logger.Error().Msg(fmt.Sprintf(tpl, args...))
}
