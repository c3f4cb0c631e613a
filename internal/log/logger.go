package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the console logger shared by every component. Debug output is
// enabled outside production.
func New(environment string) zerolog.Logger {
	return NewWithWriter(os.Stderr, environment)
}

func NewWithWriter(w io.Writer, environment string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    environment == "production",
	}

	level := zerolog.DebugLevel
	if environment == "production" {
		level = zerolog.WarnLevel
	}

	return zerolog.New(output).Level(level).With().
		Timestamp().
		Str("env", environment).
		Logger()
}
