// Package logging builds the log/slog loggers used across endpointkit.
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelDebug,
//	    Format: logging.FormatJSON,
//	})
//	client := mockserver.New(url, mockserver.WithLogger(logger))
//
// Components take a *slog.Logger through an option and fall back to Nop()
// when none is given.
package logging
