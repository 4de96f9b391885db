package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
)

const (
	DefaultAppName          = "hsu-launchpad"
	DefaultRegistryFileName = "dev-launchpad-data.json"
	DefaultHistoryFileName  = "history.db"
)

// ProcessFileConfig selects where the launchpad keeps its data and daemon files
type ProcessFileConfig struct {
	// BaseDirectory overrides the OS-appropriate default
	BaseDirectory string

	ServiceContext ServiceContext

	AppName string
}

// ServiceContext defines how long the data is expected to live
type ServiceContext string

const (
	// UserService keeps data in the per-user application data directory
	UserService ServiceContext = "user"

	// SessionService keeps data in the login session runtime directory
	SessionService ServiceContext = "session"

	// DevelopmentService keeps data under the temp directory
	DevelopmentService ServiceContext = "development"
)

// ProcessFileManager resolves the registry, history, log and daemon file paths
type ProcessFileManager struct {
	config ProcessFileConfig
	logger logging.Logger
}

func NewProcessFileManager(config ProcessFileConfig, logger logging.Logger) *ProcessFileManager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &ProcessFileManager{
		config: config,
		logger: logger,
	}
}

// DataDirectory is the root of everything the launchpad writes
func (m *ProcessFileManager) DataDirectory() string {
	if m.config.BaseDirectory != "" {
		return m.config.BaseDirectory
	}

	switch m.config.ServiceContext {
	case SessionService:
		return filepath.Join(m.getSessionDirectory(), m.config.AppName)
	case DevelopmentService:
		return filepath.Join(os.TempDir(), m.config.AppName+"-dev")
	default:
		return filepath.Join(m.getUserDataDirectory(), m.config.AppName)
	}
}

func (m *ProcessFileManager) RegistryPath() string {
	return filepath.Join(m.DataDirectory(), DefaultRegistryFileName)
}

func (m *ProcessFileManager) HistoryPath() string {
	return filepath.Join(m.DataDirectory(), DefaultHistoryFileName)
}

func (m *ProcessFileManager) LogDirectory() string {
	return filepath.Join(m.DataDirectory(), "logs")
}

func (m *ProcessFileManager) GeneratePIDFilePath(name string) string {
	return filepath.Join(m.DataDirectory(), "run", name+".pid")
}

// GenerateAddressFilePath is where a daemon publishes its listen address
func (m *ProcessFileManager) GenerateAddressFilePath(name string) string {
	return strings.TrimSuffix(m.GeneratePIDFilePath(name), ".pid") + ".addr"
}

// WritePIDFile writes pid to the PID file of name
func (m *ProcessFileManager) WritePIDFile(name string, pid int) error {
	path := m.GeneratePIDFilePath(name)
	m.logger.Debugf("Writing PID file, name: %s, pid: %d, path: %s", name, pid, path)

	if err := EnsureDirectory(path); err != nil {
		m.logger.Errorf("PID file directory validation failed, name: %s, path: %s, error: %v", name, path, err)
		return err
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", path).WithContext("pid", pid)
	}

	m.logger.Infof("PID file written, name: %s, pid: %d, path: %s", name, pid, path)
	return nil
}

// ReadPIDFile returns the pid recorded for name
func (m *ProcessFileManager) ReadPIDFile(name string) (int, error) {
	path := m.GeneratePIDFilePath(name)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFoundError("PID file not found", err).WithContext("pid_file", path)
		}
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", path)
	}

	text := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(text)
	if err != nil || pid <= 0 {
		return 0, errors.NewValidationError("invalid PID in PID file", err).WithContext("pid_file", path).WithContext("content", text)
	}
	return pid, nil
}

func (m *ProcessFileManager) WriteAddressFile(name string, address string) error {
	path := m.GenerateAddressFilePath(name)
	if err := EnsureDirectory(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(address+"\n"), 0644); err != nil {
		return errors.NewIOError("failed to write address file", err).WithContext("address_file", path)
	}

	m.logger.Infof("Address file written, name: %s, address: %s, path: %s", name, address, path)
	return nil
}

func (m *ProcessFileManager) ReadAddressFile(name string) (string, error) {
	path := m.GenerateAddressFilePath(name)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFoundError("address file not found", err).WithContext("address_file", path)
		}
		return "", errors.NewIOError("failed to read address file", err).WithContext("address_file", path)
	}

	address := strings.TrimSpace(string(content))
	if address == "" {
		return "", errors.NewValidationError("address file is empty", nil).WithContext("address_file", path)
	}
	return address, nil
}

// RemoveDaemonFiles deletes the PID and address files of name, ignoring missing ones
func (m *ProcessFileManager) RemoveDaemonFiles(name string) error {
	collection := errors.NewErrorCollection()
	for _, path := range []string{m.GeneratePIDFilePath(name), m.GenerateAddressFilePath(name)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			collection.Add(errors.NewIOError("failed to remove daemon file", err).WithContext("path", path))
		}
	}
	return collection.ToError()
}

func (m *ProcessFileManager) getUserDataDirectory() string {
	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile != "" {
				localAppData = filepath.Join(userProfile, "AppData", "Local")
			} else {
				localAppData = "C:\\Users\\Default\\AppData\\Local"
			}
		}
		return localAppData

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return os.TempDir()
		}
		return filepath.Join(homeDir, "Library", "Application Support")

	default:
		if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
			return dataHome
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return os.TempDir()
		}
		return filepath.Join(homeDir, ".local", "share")
	}
}

func (m *ProcessFileManager) getSessionDirectory() string {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return os.TempDir()
	}

	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir
	}
	sessionDir := fmt.Sprintf("/run/user/%d", os.Getuid())
	if _, err := os.Stat(sessionDir); err == nil {
		return sessionDir
	}
	return os.TempDir()
}

// EnsureDirectory creates the parent directory of path and checks it is writable
func EnsureDirectory(path string) error {
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.NewIOError("failed to access directory", err).WithContext("directory", dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewIOError("failed to create directory", err).WithContext("directory", dir)
		}
	} else if !info.IsDir() {
		return errors.NewValidationError("path is not a directory", nil).WithContext("path", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		return errors.NewIOError("directory is not writable", err).WithContext("directory", dir)
	}
	file.Close()
	os.Remove(testFile)

	return nil
}

// ParseServiceContext accepts the configuration spelling of a context
func ParseServiceContext(value string) (ServiceContext, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "user":
		return UserService, nil
	case "session":
		return SessionService, nil
	case "development", "dev":
		return DevelopmentService, nil
	}
	return "", errors.NewValidationError("unknown service context", nil).WithContext("context", value)
}
