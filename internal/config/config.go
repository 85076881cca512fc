package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override file settings,
// e.g. OTADL_HTTP_BIND_ADDR for http.bind_addr.
const EnvPrefix = "OTADL"

// Config represents the entire application configuration
type Config struct {
	Download    DownloadConfig    `mapstructure:"download"`
	Network     NetworkConfig     `mapstructure:"network"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// DownloadConfig contains transfer executor settings
type DownloadConfig struct {
	RootDir         string `mapstructure:"root_dir"`
	MaxRetries      int    `mapstructure:"max_retries"`
	MaxRedirects    int    `mapstructure:"max_redirects"`
	RetryMinSeconds int    `mapstructure:"retry_min_seconds"`
	RetryMaxSeconds int    `mapstructure:"retry_max_seconds"`
	BufferSizeKB    int    `mapstructure:"buffer_size_kb"`
	ReadRetryLimit  int    `mapstructure:"read_retry_limit"`
	ReadRetryDelay  string `mapstructure:"read_retry_delay"`
	ConnectTimeout  string `mapstructure:"connect_timeout"`
	UserAgent       string `mapstructure:"user_agent"`
	VerifyChecksum  bool   `mapstructure:"verify_checksum"`
	StrictSizeCheck bool   `mapstructure:"strict_size_check"`
	WakeLockPath    string `mapstructure:"wake_lock_path"`
	WakeUnlockPath  string `mapstructure:"wake_unlock_path"`
}

// NetworkConfig contains network policy defaults and connectivity probing
type NetworkConfig struct {
	WifiOnly           bool     `mapstructure:"wifi_only"`
	MobileMaxBytes     int64    `mapstructure:"mobile_max_bytes"`
	WifiInterfaces     []string `mapstructure:"wifi_interfaces"`
	EthernetInterfaces []string `mapstructure:"ethernet_interfaces"`
	CellularInterfaces []string `mapstructure:"cellular_interfaces"`
	PollInterval       string   `mapstructure:"poll_interval"`
}

// QueueConfig contains queue manager settings
type QueueConfig struct {
	ProgressNotifyInterval string `mapstructure:"progress_notify_interval"`
	PersistInterval        string `mapstructure:"persist_interval"`
	IdleTimeout            string `mapstructure:"idle_timeout"`
	SaveTimeout            string `mapstructure:"save_timeout"`
}

// MaintenanceConfig contains background job settings
type MaintenanceConfig struct {
	RetryCheckInterval string `mapstructure:"retry_check_interval"`
	PruneInterval      string `mapstructure:"prune_interval"`
	Retention          string `mapstructure:"retention"`
	OrphanInterval     string `mapstructure:"orphan_interval"`
	OrphanAge          string `mapstructure:"orphan_age"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr     string `mapstructure:"bind_addr"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("download.root_dir", "/var/lib/otadl/downloads")
	v.SetDefault("download.max_retries", 5)
	v.SetDefault("download.max_redirects", 5)
	v.SetDefault("download.retry_min_seconds", 30)
	v.SetDefault("download.retry_max_seconds", 24*60*60)
	v.SetDefault("download.buffer_size_kb", 4)
	v.SetDefault("download.read_retry_limit", 5)
	v.SetDefault("download.read_retry_delay", "1s")
	v.SetDefault("download.connect_timeout", "30s")
	v.SetDefault("download.user_agent", "otadl/1.0")
	v.SetDefault("download.verify_checksum", true)
	v.SetDefault("download.strict_size_check", false)
	v.SetDefault("download.wake_lock_path", "/sys/power/wake_lock")
	v.SetDefault("download.wake_unlock_path", "/sys/power/wake_unlock")
	v.SetDefault("network.wifi_only", false)
	v.SetDefault("network.mobile_max_bytes", 0)
	v.SetDefault("network.poll_interval", "10s")
	v.SetDefault("queue.progress_notify_interval", "500ms")
	v.SetDefault("queue.persist_interval", "100ms")
	v.SetDefault("queue.idle_timeout", "60s")
	v.SetDefault("queue.save_timeout", "5s")
	v.SetDefault("maintenance.retry_check_interval", "10s")
	v.SetDefault("maintenance.prune_interval", "1h")
	v.SetDefault("maintenance.retention", "168h")
	v.SetDefault("maintenance.orphan_interval", "6h")
	v.SetDefault("maintenance.orphan_age", "24h")
	v.SetDefault("http.bind_addr", "127.0.0.1:8080")
	v.SetDefault("http.username", "")
	v.SetDefault("http.password", "")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("database.path", "/var/lib/otadl/otadl.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "otadl")
}

// Load loads configuration from the specified file path. An empty path
// uses defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Download.RootDir == "" {
		return fmt.Errorf("download.root_dir is required")
	}
	if c.Download.MaxRetries < 1 {
		return fmt.Errorf("download.max_retries must be positive")
	}
	if c.Download.MaxRedirects < 1 {
		return fmt.Errorf("download.max_redirects must be positive")
	}
	if c.Download.RetryMinSeconds < 1 || c.Download.RetryMaxSeconds < c.Download.RetryMinSeconds {
		return fmt.Errorf("download.retry_min_seconds must be positive and not above download.retry_max_seconds")
	}
	if c.Network.MobileMaxBytes < 0 {
		return fmt.Errorf("network.mobile_max_bytes must not be negative")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	durations := map[string]string{
		"download.read_retry_delay":        c.Download.ReadRetryDelay,
		"download.connect_timeout":         c.Download.ConnectTimeout,
		"network.poll_interval":            c.Network.PollInterval,
		"queue.progress_notify_interval":   c.Queue.ProgressNotifyInterval,
		"queue.persist_interval":           c.Queue.PersistInterval,
		"queue.idle_timeout":               c.Queue.IdleTimeout,
		"queue.save_timeout":               c.Queue.SaveTimeout,
		"maintenance.retry_check_interval": c.Maintenance.RetryCheckInterval,
		"maintenance.prune_interval":       c.Maintenance.PruneInterval,
		"maintenance.retention":            c.Maintenance.Retention,
		"maintenance.orphan_interval":      c.Maintenance.OrphanInterval,
		"maintenance.orphan_age":           c.Maintenance.OrphanAge,
		"http.read_timeout":                c.HTTP.ReadTimeout,
		"http.write_timeout":               c.HTTP.WriteTimeout,
		"http.idle_timeout":                c.HTTP.IdleTimeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		} else if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// DatabaseInsideRoot reports whether the database file lives under the
// download root, where orphan cleanup must be told to keep it.
func (c *Config) DatabaseInsideRoot() bool {
	rel, err := filepath.Rel(filepath.Clean(c.Download.RootDir), filepath.Clean(c.Database.Path))
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func parseOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d == 0 {
		return def
	}
	return d
}

// GetBufferSize returns the copy buffer size in bytes
func (c *DownloadConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 4 * 1024
	}
	return c.BufferSizeKB * 1024
}

// GetReadRetryDelay returns the read retry delay as time.Duration
func (c *DownloadConfig) GetReadRetryDelay() time.Duration {
	return parseOr(c.ReadRetryDelay, time.Second)
}

// GetConnectTimeout returns the connect timeout as time.Duration
func (c *DownloadConfig) GetConnectTimeout() time.Duration {
	return parseOr(c.ConnectTimeout, 30*time.Second)
}

// GetPollInterval returns the connectivity poll interval as time.Duration
func (c *NetworkConfig) GetPollInterval() time.Duration {
	return parseOr(c.PollInterval, 10*time.Second)
}

// GetProgressNotifyInterval returns the progress event throttle as time.Duration
func (c *QueueConfig) GetProgressNotifyInterval() time.Duration {
	return parseOr(c.ProgressNotifyInterval, 500*time.Millisecond)
}

// GetPersistInterval returns the progress persistence throttle as time.Duration
func (c *QueueConfig) GetPersistInterval() time.Duration {
	return parseOr(c.PersistInterval, 100*time.Millisecond)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *QueueConfig) GetIdleTimeout() time.Duration {
	return parseOr(c.IdleTimeout, 60*time.Second)
}

// GetSaveTimeout returns the snapshot write timeout as time.Duration
func (c *QueueConfig) GetSaveTimeout() time.Duration {
	return parseOr(c.SaveTimeout, 5*time.Second)
}

// GetRetryCheckInterval returns the retry check interval as time.Duration
func (c *MaintenanceConfig) GetRetryCheckInterval() time.Duration {
	return parseOr(c.RetryCheckInterval, 10*time.Second)
}

// GetPruneInterval returns the prune interval as time.Duration
func (c *MaintenanceConfig) GetPruneInterval() time.Duration {
	return parseOr(c.PruneInterval, time.Hour)
}

// GetRetention returns how long finished transfers are kept. Zero keeps them forever.
func (c *MaintenanceConfig) GetRetention() time.Duration {
	d, _ := time.ParseDuration(c.Retention)
	return d
}

// GetOrphanInterval returns the orphan sweep interval as time.Duration
func (c *MaintenanceConfig) GetOrphanInterval() time.Duration {
	return parseOr(c.OrphanInterval, 6*time.Hour)
}

// GetOrphanAge returns the minimum age of an orphan before removal
func (c *MaintenanceConfig) GetOrphanAge() time.Duration {
	return parseOr(c.OrphanAge, 24*time.Hour)
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return parseOr(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return parseOr(c.WriteTimeout, 30*time.Second)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return parseOr(c.IdleTimeout, 60*time.Second)
}
