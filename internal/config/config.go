package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dnws-project/dnws-go/pkg/logger"
)

const (
	DefaultPort            = 8080
	DefaultIdleWindow      = 20 * time.Millisecond
	DefaultMaxRequestBytes = 64 * 1024
	DefaultStoreDriver     = "inmemory"
	DefaultShutdownGrace   = 5 * time.Second
)

var (
	ErrInvalidPort   = errors.New("invalid port")
	ErrInvalidPlugin = errors.New("invalid plugin entry")
)

var envVarPattern = regexp.MustCompile(`\$\{env\.([A-Z0-9_]+)(:-([^}]+))?\}`)

// Load reads a JSON or YAML configuration file, applies environment
// overrides and defaults, then validates the result.
func Load(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	logger.Debugf("loaded config file: %s", path)
	return cfg, nil
}

// Parse decodes configuration content. JSON is accepted as a subset of YAML.
func Parse(data []byte) (*ServerConfig, error) {
	data = []byte(substituteEnvVars(string(data)))

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that cannot be defaulted. A Mode other than
// Thread or ThreadPool runs as Single.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	c.Mode = NormaliseMode(c.Mode)
	for i, p := range c.Plugins {
		if p.Class == "" {
			return fmt.Errorf("%w: plugin %d (path %q) has no Class", ErrInvalidPlugin, i, p.Path)
		}
	}
	return nil
}

// NormaliseMode maps any unrecognised mode to ModeSingle.
func NormaliseMode(mode Mode) Mode {
	switch mode {
	case ModeSingle, ModeThread, ModeThreadPool:
		return mode
	case "":
		return ModeSingle
	default:
		logger.Warnf("unknown mode %q, running as %s (expected %s, %s or %s)", mode, ModeSingle, ModeSingle, ModeThread, ModeThreadPool)
		return ModeSingle
	}
}

func applyDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DocumentRoot == "" {
		cfg.DocumentRoot = "."
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSingle
	}
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = Duration(DefaultIdleWindow)
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DefaultStoreDriver
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = Duration(DefaultShutdownGrace)
	}
}

// applyEnvOverrides lets deployments adjust the file without editing it.
func applyEnvOverrides(cfg *ServerConfig) {
	if v := os.Getenv("DNWS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		} else {
			logger.Warnf("ignoring invalid DNWS_PORT %q: %v", v, err)
		}
	}
	if v := os.Getenv("DNWS_DOCUMENT_ROOT"); v != "" {
		cfg.DocumentRoot = v
	}
	if v := os.Getenv("DNWS_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("DNWS_MAX_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxThreads = n
		} else {
			logger.Warnf("ignoring invalid DNWS_MAX_THREADS %q: %v", v, err)
		}
	}
	if v := os.Getenv("DNWS_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Store.RedisPassword = v
	}
	if v := os.Getenv("DNWS_DYNAMODB_TABLE"); v != "" {
		cfg.Store.DynamoDBTable = v
	}
}

// substituteEnvVars replaces ${env.VAR} and ${env.VAR:-default} with environment variable values
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		envVar := groups[1]
		defaultValue := groups[3]
		if value, exists := os.LookupEnv(envVar); exists {
			return value
		}
		return defaultValue
	})
}
