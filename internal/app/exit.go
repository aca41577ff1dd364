package app

import (
	"errors"

	"github.com/edupgarcia/bulk-processing/internal/config"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitConfig  = 1
	ExitRuntime = 2
)

// ExitCode maps an error ending the worker to the process exit status.
// Runtime failures, a dropped broker connection included, exit with
// ExitRuntime and are left to the supervisor to restart.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrMissingProjectID):
		return ExitConfig
	default:
		return ExitRuntime
	}
}
