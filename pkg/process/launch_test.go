package process

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/core-tools/hsu-launchpad/pkg/errors"
)

func TestBuildEnvironment(t *testing.T) {
	base := []string{"PATH=/usr/bin", "NODE_OPTIONS=--max-old-space-size=4096", "HOME=/home/dev", "BROKEN"}

	env := BuildEnvironment(base,
		map[string]string{"PORT": "4000"},
		map[string]string{"NODE_OPTIONS": "--inspect"},
	)

	assert.Equal(t, []string{
		"HOME=/home/dev",
		"NODE_OPTIONS=--max-old-space-size=4096 --inspect",
		"PATH=/usr/bin",
		"PORT=4000",
	}, env)
}

func TestBuildEnvironment_AppendToUnset(t *testing.T) {
	env := BuildEnvironment([]string{"PATH=/bin"}, nil, map[string]string{"NODE_OPTIONS": "--inspect"})
	assert.Contains(t, env, "NODE_OPTIONS=--inspect")
	assert.Contains(t, env, "PATH=/bin")
}

func TestValidateLaunchConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		config  LaunchConfig
		wantErr bool
	}{
		{name: "valid", config: LaunchConfig{Command: "echo hi", Directory: dir}},
		{name: "empty command", config: LaunchConfig{Command: "  ", Directory: dir}, wantErr: true},
		{name: "missing directory", config: LaunchConfig{Command: "echo hi"}, wantErr: true},
		{name: "nonexistent directory", config: LaunchConfig{Command: "echo hi", Directory: dir + "/nope"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLaunchConfig(tt.config)
			if tt.wantErr {
				assert.True(t, errors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExitStatus_Success(t *testing.T) {
	assert.True(t, ExitStatus{Code: 0}.Success())
	assert.False(t, ExitStatus{Code: 2}.Success())
	assert.False(t, ExitStatus{Code: -1, Signal: "SIGKILL"}.Success())
}

func TestExitStatus_Err(t *testing.T) {
	assert.NoError(t, ExitStatus{Code: 0}.Err())

	err := ExitStatus{Code: 2}.Err()
	assert.True(t, errors.IsRuntimeExitError(err))
	assert.Contains(t, err.Error(), "exited with code 2")

	err = ExitStatus{Code: -1, Signal: "SIGKILL"}.Err()
	assert.True(t, errors.IsRuntimeExitError(err))
	assert.Contains(t, err.Error(), "terminated by SIGKILL")
}
