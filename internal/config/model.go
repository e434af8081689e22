package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects the concurrency strategy used by the server.
type Mode string

const (
	ModeSingle     Mode = "Single"
	ModeThread     Mode = "Thread"
	ModeThreadPool Mode = "ThreadPool"
)

// PluginConfig binds a route prefix to a plugin implementation.
type PluginConfig struct {
	Path           string `yaml:"Path"`
	Class          string `yaml:"Class"`
	Preprocessing  Flag   `yaml:"Preprocessing"`
	Postprocessing Flag   `yaml:"Postprocessing"`
}

// StoreConfig selects and configures the key/value backend available to plugins.
type StoreConfig struct {
	Driver        string   `yaml:"Driver"`
	KeyPrefix     string   `yaml:"KeyPrefix"`
	RedisAddr     string   `yaml:"RedisAddr"`
	RedisPassword string   `yaml:"RedisPassword"`
	RedisDB       int      `yaml:"RedisDB"`
	RedisExpiry   Duration `yaml:"RedisExpiry"`
	DynamoDBTable string   `yaml:"DynamoDBTable"`
	AWSRegion     string   `yaml:"AWSRegion"`
}

// ServerConfig is the application-wide configuration, loaded once at startup.
type ServerConfig struct {
	Port         int            `yaml:"Port"`
	DocumentRoot string         `yaml:"DocumentRoot"`
	Mode         Mode           `yaml:"Mode"`
	MaxThreads   int            `yaml:"MaxThreads"`
	Plugins      []PluginConfig `yaml:"Plugins"`

	// Zero means no timeout: a silent client holds its worker indefinitely.
	ReadTimeout  Duration `yaml:"ReadTimeout"`
	WriteTimeout Duration `yaml:"WriteTimeout"`

	// IdleWindow bounds each read after the first one. The request ends
	// once no more bytes arrive within the window.
	IdleWindow      Duration `yaml:"IdleWindow"`
	MaxRequestBytes int      `yaml:"MaxRequestBytes"`

	// ShutdownGrace is how long in-flight connections may run after shutdown
	// starts before they are closed.
	ShutdownGrace Duration `yaml:"ShutdownGrace"`

	Store StoreConfig `yaml:"Store"`
}

// Flag is a boolean that also accepts the strings "true" and "false" in any case.
type Flag bool

func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a boolean", node.Line)
	}
	switch strings.ToLower(strings.TrimSpace(node.Value)) {
	case "true":
		*f = true
	case "false", "":
		*f = false
	default:
		return fmt.Errorf("line %d: invalid boolean %q", node.Line, node.Value)
	}
	return nil
}

// Duration accepts Go duration strings ("250ms", "5s") or a plain integer of milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a duration", node.Line)
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
