package process

import (
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

// LaunchConfig describes one shell command to spawn
type LaunchConfig struct {
	Command   string
	Directory string
	// Shell overrides the platform shell (sh on POSIX, cmd.exe on Windows)
	Shell string
	// Environment values replace ambient ones
	Environment map[string]string
	// Append values are joined with a space onto the ambient value
	Append map[string]string
}

// Launched is a started child with its captured output streams
type Launched struct {
	Cmd    *exec.Cmd
	PID    int
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Launch spawns config.Command through the shell in its own process group
func Launch(config LaunchConfig, logger logging.Logger) (*Launched, error) {
	if err := ValidateLaunchConfig(config); err != nil {
		return nil, err
	}

	cmd := shellCommand(config.Shell, config.Command)
	cmd.Dir = config.Directory
	cmd.Env = BuildEnvironment(os.Environ(), config.Environment, config.Append)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewSpawnError("failed to create stdout pipe", err).WithContext("command", config.Command)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return nil, errors.NewSpawnError("failed to create stderr pipe", err).WithContext("command", config.Command)
	}

	logger.Debugf("Spawning shell command, dir: %s, args: %v", cmd.Dir, cmd.Args)

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, errors.NewSpawnError("failed to start the process", err).
			WithContext("command", config.Command).
			WithContext("directory", config.Directory)
	}

	logger.Infof("Spawned process, PID: %d, command: %s", cmd.Process.Pid, config.Command)

	return &Launched{
		Cmd:    cmd,
		PID:    cmd.Process.Pid,
		Stdout: stdout,
		Stderr: stderr,
	}, nil
}

// BuildEnvironment merges overlay values into base; base is never dropped.
func BuildEnvironment(base []string, set map[string]string, appendValues map[string]string) []string {
	env := make(map[string]string, len(base)+len(set))
	keys := make(map[string]string, len(base))
	for _, entry := range base {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env[normalizeEnvKey(key)] = value
		keys[normalizeEnvKey(key)] = key
	}

	for key, value := range set {
		norm := normalizeEnvKey(key)
		env[norm] = value
		if _, ok := keys[norm]; !ok {
			keys[norm] = key
		}
	}

	for key, value := range appendValues {
		norm := normalizeEnvKey(key)
		if existing := strings.TrimSpace(env[norm]); existing != "" {
			env[norm] = existing + " " + value
		} else {
			env[norm] = value
		}
		if _, ok := keys[norm]; !ok {
			keys[norm] = key
		}
	}

	sorted := make([]string, 0, len(env))
	for norm := range env {
		sorted = append(sorted, norm)
	}
	sort.Strings(sorted)

	result := make([]string, 0, len(sorted))
	for _, norm := range sorted {
		result = append(result, keys[norm]+"="+env[norm])
	}
	return result
}

// ValidateLaunchConfig checks the command and working directory before spawning
func ValidateLaunchConfig(config LaunchConfig) error {
	if strings.TrimSpace(config.Command) == "" {
		return errors.NewValidationError("command is empty", nil)
	}
	if config.Directory == "" {
		return errors.NewValidationError("directory is not set", nil)
	}
	info, err := os.Stat(config.Directory)
	if err != nil {
		return errors.NewValidationError("directory does not exist: "+config.Directory, err).WithContext("directory", config.Directory)
	}
	if !info.IsDir() {
		return errors.NewValidationError("path is not a directory: "+config.Directory, nil).WithContext("directory", config.Directory)
	}
	return nil
}
