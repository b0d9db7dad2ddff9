//go:build !windows

package lifecycle

import (
	"go.uber.org/zap/zapcore"

	ncerr "execgate/internal/errors"
)

// IsService is always false outside Windows.
func IsService() (bool, error) { return false, nil }

// RunService is only available on Windows.
func RunService(string, *Controller, func() error) error {
	return ncerr.ErrServiceUnsupported
}

// OpenEventLog is only available on Windows.
func OpenEventLog(string) (zapcore.Core, error) {
	return nil, ncerr.ErrServiceUnsupported
}
