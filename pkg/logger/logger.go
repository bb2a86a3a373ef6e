package logger

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

var Log zerolog.Logger

func Init(env string, debug bool) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if env != "production" {
		Log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: false}).With().Timestamp().Logger()
	} else {
		Log = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

// Debug logs a debug message.
func Debug(msg string, keyValues ...interface{}) {
	withFields(Log.Debug(), msg, keyValues).Msg(msg)
}

// Info logs an info message.
func Info(msg string, keyValues ...interface{}) {
	// keyValues must come in pairs; a bad call still logs, flagged as a warning,
	// so nobody has to check errors on logging functions.
	if len(keyValues)%2 != 0 {
		Log.Warn().Caller().Interface("Unknown Key", keyValues).Msgf("%s ([Wrong logger.Info usage] Provided args to logger.Info must be a series of key/value pairs)", msg)
		return
	}
	withFields(Log.Info(), msg, keyValues).Msg(msg)
}

// Infof logs a formatted info message.
func Infof(format string, v ...interface{}) {
	Log.Info().Msgf(format, v...)
}

// Warn logs a warning message.
func Warn(msg string, keyValues ...interface{}) {
	withFields(Log.Warn(), msg, keyValues).Msg(msg)
}

// Error logs an error message.
func Error(msg string, err error, keyValues ...interface{}) {
	if len(keyValues)%2 != 0 {
		panic("keyValues must be a list of key/value pairs")
	}

	ctx := withFields(Log.Error(), msg, keyValues)
	ctx.Caller().Stack().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits the program.
func Fatal(msg string, err error) {
	Log.Fatal().Err(err).Msg(msg)
}

func withFields(ev *zerolog.Event, msg string, keyValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			Log.Warn().Interface("key", keyValues[i]).Msgf("%s (non-string log key)", msg)
			continue
		}
		ev = ev.Interface(key, keyValues[i+1])
	}
	return ev
}
