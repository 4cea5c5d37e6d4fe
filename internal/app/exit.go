package app

import (
	"errors"

	"s2s-stream-client/internal/config"
	"s2s-stream-client/internal/service/coordinator"
)

// Process exit codes.
const (
	ExitOK                  = 0
	ExitFailure             = 1
	ExitUnsupportedEncoding = 255
)

// ExitCode maps the result of a run to the process exit status.
func ExitCode(report *coordinator.Report, err error) int {
	switch {
	case errors.Is(err, config.ErrNoInput):
		return ExitOK
	case errors.Is(err, config.ErrUnsupportedEncoding):
		return ExitUnsupportedEncoding
	case err != nil:
		return ExitFailure
	case report != nil && !report.Success():
		return ExitFailure
	default:
		return ExitOK
	}
}
