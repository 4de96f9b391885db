package process

import (
	"errors"
	"os"
)

// Terminator signals a whole process subtree rooted at a spawned child
type Terminator interface {
	Name() string
	// Terminate asks the subtree to exit
	Terminate(pid int) error
	// Kill ends the subtree unconditionally
	Kill(pid int) error
}

// IsPermissionDenied reports an EPERM/access denied signal failure
func IsPermissionDenied(err error) bool {
	return errors.Is(err, os.ErrPermission)
}

// IsBenignKillError reports failures that mean there was nothing left to kill
func IsBenignKillError(err error) bool {
	return IsNoSuchProcess(err) || IsPermissionDenied(err)
}

// SelectTerminator resolves a configured strategy name; empty or "auto"
// picks the platform default.
func SelectTerminator(name string) (Terminator, error) {
	if name == "" || name == "auto" {
		return NewTerminator(), nil
	}
	if t, ok := platformTerminator(name); ok {
		return t, nil
	}
	return nil, errors.New("unsupported terminator on this platform: " + name)
}
