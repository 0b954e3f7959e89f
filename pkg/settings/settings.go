// Package settings manages the ifbridge daemon and client settings file.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Defaults
const (
	DefaultModel       = "goldstone-interfaces"
	DefaultRedisAddr   = "127.0.0.1:6379"
	DefaultRedisDB     = 4
	DefaultSSHPort     = 22
	DefaultLogLevel    = "info"
	DefaultSettingsDir = "/etc/ifbridge"
)

// Settings holds persistent daemon and client preferences. Zero values mean
// "use the default"; the getters apply them.
type Settings struct {
	// Model is the schema module to serve
	Model string `json:"model,omitempty"`

	// SchemaFile overrides the built-in schema registry
	SchemaFile string `json:"schema_file,omitempty"`

	// RedisAddr is the management data store address (host:port)
	RedisAddr string `json:"redis_addr,omitempty"`

	// RedisDB is the Redis database number; nil selects DefaultRedisDB
	RedisDB *int `json:"redis_db,omitempty"`

	// Netns selects the network namespace to serve, by name or path
	Netns string `json:"netns,omitempty"`

	// SSHHost, when set, reaches RedisAddr through an SSH tunnel to this host
	SSHHost string `json:"ssh_host,omitempty"`
	SSHUser string `json:"ssh_user,omitempty"`
	SSHPass string `json:"ssh_pass,omitempty"`
	SSHPort int    `json:"ssh_port,omitempty"`

	// MetricsAddr is the listen address of the Prometheus endpoint; empty disables it
	MetricsAddr string `json:"metrics_addr,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
	LogJSON  bool   `json:"log_json,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	if path := os.Getenv("IFBRIDGE_SETTINGS"); path != "" {
		return path
	}
	return filepath.Join(DefaultSettingsDir, "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path. A missing file yields empty
// settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// may hold an SSH password
	return os.WriteFile(path, data, 0600)
}

// GetModel returns the schema module (with fallback)
func (s *Settings) GetModel() string {
	if s.Model != "" {
		return s.Model
	}
	return DefaultModel
}

// GetRedisAddr returns the data store address (with fallback)
func (s *Settings) GetRedisAddr() string {
	if s.RedisAddr != "" {
		return s.RedisAddr
	}
	return DefaultRedisAddr
}

// GetRedisDB returns the Redis database (with fallback)
func (s *Settings) GetRedisDB() int {
	if s.RedisDB != nil {
		return *s.RedisDB
	}
	return DefaultRedisDB
}

// SetRedisDB sets the Redis database
func (s *Settings) SetRedisDB(db int) {
	s.RedisDB = &db
}

// GetSSHPort returns the SSH port (with fallback)
func (s *Settings) GetSSHPort() int {
	if s.SSHPort != 0 {
		return s.SSHPort
	}
	return DefaultSSHPort
}

// GetLogLevel returns the log level (with fallback)
func (s *Settings) GetLogLevel() string {
	if s.LogLevel != "" {
		return s.LogLevel
	}
	return DefaultLogLevel
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
