// Package errors provides small helpers for error handling around cleanup.
package errors

import (
	"io"

	"github.com/rs/zerolog"
)

// DeferClose properly closes an io.Closer with logging.
// Use this in defer statements to avoid suppressing close errors.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// DeferRelease drops a reference with logging, for values such as opened
// images that are reference counted rather than closed.
func DeferRelease(logger zerolog.Logger, release func() error, msg string) {
	if release == nil {
		return
	}
	if err := release(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}
