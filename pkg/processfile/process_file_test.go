package processfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-launchpad/pkg/errors"
)

// ProcessFileMockLogger is a simple mock implementation of Logger for testing
type ProcessFileMockLogger struct{}

func (m *ProcessFileMockLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (m *ProcessFileMockLogger) Debugf(format string, args ...interface{})               {}
func (m *ProcessFileMockLogger) Infof(format string, args ...interface{})                {}
func (m *ProcessFileMockLogger) Warnf(format string, args ...interface{})                {}
func (m *ProcessFileMockLogger) Errorf(format string, args ...interface{})               {}

func TestNewProcessFileManager_WithDefaults(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{}, &ProcessFileMockLogger{})

	assert.Equal(t, DefaultAppName, manager.config.AppName)
	assert.Equal(t, UserService, manager.config.ServiceContext)
	assert.Contains(t, manager.DataDirectory(), DefaultAppName)
}

func TestDataPaths_BaseDirectory(t *testing.T) {
	base := t.TempDir()
	manager := NewProcessFileManager(ProcessFileConfig{BaseDirectory: base}, nil)

	assert.Equal(t, base, manager.DataDirectory())
	assert.Equal(t, filepath.Join(base, "dev-launchpad-data.json"), manager.RegistryPath())
	assert.Equal(t, filepath.Join(base, "history.db"), manager.HistoryPath())
	assert.Equal(t, filepath.Join(base, "logs"), manager.LogDirectory())
	assert.Equal(t, filepath.Join(base, "run", "launchpadsrv.pid"), manager.GeneratePIDFilePath("launchpadsrv"))
	assert.Equal(t, filepath.Join(base, "run", "launchpadsrv.addr"), manager.GenerateAddressFilePath("launchpadsrv"))
}

func TestDataPaths_Contexts(t *testing.T) {
	dev := NewProcessFileManager(ProcessFileConfig{ServiceContext: DevelopmentService, AppName: "test-app"}, nil)
	assert.Equal(t, filepath.Join(os.TempDir(), "test-app-dev"), dev.DataDirectory())

	session := NewProcessFileManager(ProcessFileConfig{ServiceContext: SessionService, AppName: "test-app"}, nil)
	assert.True(t, strings.HasSuffix(session.DataDirectory(), "test-app"))

	user := NewProcessFileManager(ProcessFileConfig{ServiceContext: UserService, AppName: "test-app"}, nil)
	assert.True(t, strings.HasSuffix(user.DataDirectory(), "test-app"))
	assert.True(t, filepath.IsAbs(user.DataDirectory()))
}

func TestPIDFile_RoundTrip(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{BaseDirectory: t.TempDir()}, &ProcessFileMockLogger{})

	_, err := manager.ReadPIDFile("launchpadsrv")
	assert.True(t, errors.IsNotFoundError(err))

	require.NoError(t, manager.WritePIDFile("launchpadsrv", 4321))
	pid, err := manager.ReadPIDFile("launchpadsrv")
	require.NoError(t, err)
	assert.Equal(t, 4321, pid)
}

func TestPIDFile_Invalid(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{BaseDirectory: t.TempDir()}, nil)
	path := manager.GeneratePIDFilePath("launchpadsrv")
	require.NoError(t, EnsureDirectory(path))
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0644))

	_, err := manager.ReadPIDFile("launchpadsrv")
	assert.True(t, errors.IsValidationError(err))
}

func TestAddressFile(t *testing.T) {
	manager := NewProcessFileManager(ProcessFileConfig{BaseDirectory: t.TempDir()}, nil)

	_, err := manager.ReadAddressFile("launchpadsrv")
	assert.True(t, errors.IsNotFoundError(err))

	require.NoError(t, manager.WriteAddressFile("launchpadsrv", "127.0.0.1:7420"))
	address, err := manager.ReadAddressFile("launchpadsrv")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7420", address)

	require.NoError(t, manager.WritePIDFile("launchpadsrv", 1))
	require.NoError(t, manager.RemoveDaemonFiles("launchpadsrv"))
	require.NoError(t, manager.RemoveDaemonFiles("launchpadsrv"))
	_, err = manager.ReadAddressFile("launchpadsrv")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestEnsureDirectory(t *testing.T) {
	base := t.TempDir()
	nested := filepath.Join(base, "a", "b", "file.txt")
	require.NoError(t, EnsureDirectory(nested))

	info, err := os.Stat(filepath.Dir(nested))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	blocker := filepath.Join(base, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	err = EnsureDirectory(filepath.Join(blocker, "file.txt"))
	assert.True(t, errors.IsValidationError(err))
}

func TestParseServiceContext(t *testing.T) {
	for input, want := range map[string]ServiceContext{
		"":            UserService,
		"user":        UserService,
		"Session":     SessionService,
		"dev":         DevelopmentService,
		"development": DevelopmentService,
	} {
		got, err := ParseServiceContext(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseServiceContext("system")
	assert.True(t, errors.IsValidationError(err))
}
