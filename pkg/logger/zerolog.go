package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

// LogBuild configures a zerolog-backed Logger.
type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

// LogData is a Logger backed by zerolog.
type LogData struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

var _ Logger = (*LogData)(nil)

func NewBuild() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

func (build *LogBuild) Level(level zerolog.Level) *LogBuild {
	build.level = level
	return build
}

// Make opens the configured destination. A path takes precedence over a
// buffer; with neither, logs go to stderr.
func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	writer := build.writer
	if writer == nil {
		writer = os.Stderr
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(writer).Level(build.level).With().Timestamp().Logger()
	return logData, nil
}

func (l *LogData) Error(msg string, args ...any) {
	l.event(l.Logger.Error(), msg, args)
}

func (l *LogData) Warn(msg string, args ...any) {
	l.event(l.Logger.Warn(), msg, args)
}

func (l *LogData) Info(msg string, args ...any) {
	l.event(l.Logger.Info(), msg, args)
}

func (l *LogData) Debug(msg string, args ...any) {
	l.event(l.Logger.Debug(), msg, args)
}

// Close releases the log file, if one was opened.
func (l *LogData) Close() error {
	if l.LogFile == nil {
		return nil
	}
	return l.LogFile.Close()
}

func (l *LogData) event(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	if len(args) > 0 {
		e = e.Fields(args)
	}
	e.Msg(msg)
}
