//go:build windows

package process

import (
	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

func newLsofPortKiller(logger logging.Logger) (PortKiller, error) {
	return nil, errors.NewValidationError("lsof port lookup is not supported on windows", nil)
}

func newAutoPortKiller(logger logging.Logger) PortKiller {
	return NewNativePortKiller(logger)
}
