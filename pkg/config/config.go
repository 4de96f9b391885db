package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/core-tools/hsu-launchpad/pkg/errors"
	"github.com/core-tools/hsu-launchpad/pkg/logging"
	"github.com/core-tools/hsu-launchpad/pkg/process"
	"github.com/core-tools/hsu-launchpad/pkg/sink"
)

// EnvPrefix marks environment overrides, e.g. LAUNCHPAD_SUPERVISOR__GRACE_PERIOD
const EnvPrefix = "LAUNCHPAD_"

// Config is the daemon configuration
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Data       DataConfig        `yaml:"data"`
	Registry   RegistryConfig    `yaml:"registry"`
	History    HistoryConfig     `yaml:"history"`
	Supervisor SupervisorConfig  `yaml:"supervisor"`
	Output     OutputConfig      `yaml:"output"`
	Log        logging.ZapConfig `yaml:"log"`
	Sentry     SentryConfig      `yaml:"sentry"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

// DataConfig selects where the registry, history and daemon files live
type DataConfig struct {
	Directory string `yaml:"directory"`
	// Context is user, session or development
	Context string `yaml:"context"`
}

type RegistryConfig struct {
	Path string `yaml:"path"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type SupervisorConfig struct {
	Shell           string        `yaml:"shell"`
	Terminator      string        `yaml:"terminator"`
	GracePeriod     time.Duration `yaml:"grace_period"`
	StartAllDelay   time.Duration `yaml:"start_all_delay"`
	PortLookup      string        `yaml:"port_lookup"`
	PortKillTimeout time.Duration `yaml:"port_kill_timeout"`
	DebugEnvVar     string        `yaml:"debug_env_var"`
	DebugFlag       string        `yaml:"debug_flag"`
}

type OutputConfig struct {
	Render           string `yaml:"render"`
	SubscriberBuffer int    `yaml:"subscriber_buffer"`
	// LogDirectory enables per-system output log files when set
	LogDirectory string `yaml:"log_directory"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// Defaults returns the flat default values keyed by koanf path
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.address":               "127.0.0.1:7420",
		"data.context":                 "user",
		"history.enabled":              true,
		"supervisor.terminator":        "auto",
		"supervisor.grace_period":      "3s",
		"supervisor.start_all_delay":   "300ms",
		"supervisor.port_lookup":       process.PortLookupAuto,
		"supervisor.port_kill_timeout": "10s",
		"supervisor.debug_env_var":     "NODE_OPTIONS",
		"supervisor.debug_flag":        "--inspect",
		"output.render":                sink.RenderRaw,
		"output.subscriber_buffer":     sink.DefaultSubscriberBuffer,
		"log.level":                    "info",
		"log.format":                   "console",
	}
}

// Load layers defaults, the optional file at path and LAUNCHPAD_ environment
// overrides, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, errors.NewInternalError("failed to load configuration defaults", err)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, errors.NewValidationError("failed to read configuration file", err).WithContext("filename", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", transformEnv), nil); err != nil {
		return nil, errors.NewValidationError("failed to read environment overrides", err)
	}

	var config Config
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, errors.NewValidationError("failed to decode configuration", err)
	}

	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAMLParser(), nil
	case ".json":
		return json.Parser(), nil
	}
	return nil, errors.NewValidationError("unsupported configuration file type", nil).WithContext("filename", path)
}

// transformEnv maps LAUNCHPAD_SUPERVISOR__GRACE_PERIOD to supervisor.grace_period
func transformEnv(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// ValidateConfig checks enumerations and ranges
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}
	if strings.TrimSpace(config.Server.Address) == "" {
		return errors.NewValidationError("server address is required", nil)
	}

	switch config.Data.Context {
	case "user", "session", "development":
	default:
		return errors.NewValidationError("invalid data context", nil).WithContext("context", config.Data.Context)
	}

	s := config.Supervisor
	switch s.PortLookup {
	case process.PortLookupAuto, process.PortLookupLsof, process.PortLookupNative:
	default:
		return errors.NewValidationError("invalid port lookup mode", nil).WithContext("port_lookup", s.PortLookup)
	}
	if s.GracePeriod <= 0 {
		return errors.NewValidationError("grace period must be positive", nil).WithContext("grace_period", s.GracePeriod)
	}
	if s.StartAllDelay < 0 {
		return errors.NewValidationError("start all delay cannot be negative", nil).WithContext("start_all_delay", s.StartAllDelay)
	}
	if s.PortKillTimeout <= 0 {
		return errors.NewValidationError("port kill timeout must be positive", nil).WithContext("port_kill_timeout", s.PortKillTimeout)
	}

	switch config.Output.Render {
	case sink.RenderRaw, sink.RenderHTML:
	default:
		return errors.NewValidationError("invalid output render mode", nil).WithContext("render", config.Output.Render)
	}
	if config.Output.SubscriberBuffer <= 0 {
		return errors.NewValidationError("subscriber buffer must be positive", nil).WithContext("subscriber_buffer", config.Output.SubscriberBuffer)
	}

	switch strings.ToLower(config.Log.Format) {
	case "", "console", "json":
	default:
		return errors.NewValidationError("invalid log format", nil).WithContext("format", config.Log.Format)
	}
	return nil
}
