package logger

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	verbosityFlagName      = "verbosity"
	verbosityFlagShortName = "v"
	stdOutMaxLevel         = zapcore.InfoLevel
)

type Logger struct {
	logr.Logger
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New creates a logger writing status lines (info and more verbose) to stdout
// and errors to stderr
func New(name string) *Logger {
	return NewWithWriters(name, os.Stdout, os.Stderr)
}

// NewWithWriters is New with explicit sinks for the status and the error output
func NewWithWriters(name string, stdout, stderr io.Writer) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	atomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	// Status output is everything enabled up to info level, errors are split off to stderr
	statusLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return atomicLevel.Enabled(l) && l <= stdOutMaxLevel
	})
	errorLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return atomicLevel.Enabled(l) && l > stdOutMaxLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(stdout)), statusLevel),
		zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(stderr)), errorLevel),
	)
	zapLogger := zap.New(core)

	return &Logger{
		Logger:      zapr.NewLogger(zapLogger).WithName(name),
		atomicLevel: atomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}
}

func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

func (l *Logger) Flush() {
	l.flush()
}

// AddLevelFlag adds the verbosity flag to set the level of the status output
func (l *Logger) AddLevelFlag(fs *pflag.FlagSet) {
	levelVal := NewLevelFlagValue(func(level zapcore.Level) {
		l.SetLevel(level)
	})
	fs.VarP(&levelVal, verbosityFlagName, verbosityFlagShortName, "Logging verbosity level (e.g. -v=debug). Can be one of 'debug', 'info', or 'error', or any positive integer corresponding to increasing levels of debug verbosity.")
}
