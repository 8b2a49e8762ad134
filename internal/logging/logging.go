package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/alefaraci/GoRaster/internal/oops"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	zerolog.ErrorStackMarshaler = oops.ZerologStackMarshaler
	log.Logger = log.Output(NewConsoleWriter(os.Stderr))
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// NewConsoleWriter returns a human-readable writer for out. Colors are only
// used when out is a terminal.
func NewConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	noColor := true
	if f, ok := out.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    noColor,
		TimeFormat: time.TimeOnly,
	}
}

// SetLevel parses a level name such as "debug" or "warn" and applies it globally.
func SetLevel(level string) error {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return oops.New(err, "invalid log level %q", level)
	}
	zerolog.SetGlobalLevel(l)
	return nil
}

func GlobalLogger() *zerolog.Logger {
	return &log.Logger
}

func Debug() *zerolog.Event {
	return log.Debug().Timestamp().Stack()
}

func Info() *zerolog.Event {
	return log.Info().Timestamp().Stack()
}

func Error() *zerolog.Event {
	return log.Error().Timestamp().Stack()
}

func LogPanics(logger *zerolog.Logger) {
	if r := recover(); r != nil {
		LogPanicValue(logger, r, "recovered from panic")
	}
}

func LogPanicValue(logger *zerolog.Logger, val interface{}, msg string) {
	if logger == nil {
		logger = GlobalLogger()
	}

	if err, ok := val.(error); ok {
		l := logger.Error().Err(err)
		if _, ok := err.(*oops.Error); !ok {
			l = l.Interface(zerolog.ErrorStackFieldName, oops.Trace())
		}
		l.Msg(msg)
	} else {
		logger.Error().
			Interface("recovered", val).
			Interface(zerolog.ErrorStackFieldName, oops.Trace()).
			Msg(msg)
	}
}

type loggerKey struct{}

func AttachLoggerToContext(logger *zerolog.Logger, ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// ExtractLogger returns the logger attached to ctx, or the global logger.
func ExtractLogger(ctx context.Context) *zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zerolog.Logger); ok {
		return logger
	}
	return GlobalLogger()
}
