package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide logger the pipeline commands install as
// the zerolog global. Output is JSON for log collection; APP_ENV=dev (or
// development) switches to the console writer for local runs.
func NewLogger(appEnv string) zerolog.Logger {
	if appEnv == "dev" || appEnv == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
