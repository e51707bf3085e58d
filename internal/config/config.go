package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/loykin/crashwatch/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. CRASHWATCH_NOTIFY_TOKEN.
const EnvPrefix = "CRASHWATCH"

// Config represents the top-level TOML structure.
type Config struct {
	EnvFiles []string       `toml:"env_files" mapstructure:"env_files"`
	Monitor  MonitorConfig  `toml:"monitor" mapstructure:"monitor"`
	Registry RegistryConfig `toml:"registry" mapstructure:"registry"`
	Runtime  RuntimeConfig  `toml:"runtime" mapstructure:"runtime"`
	Notify   NotifyConfig   `toml:"notify" mapstructure:"notify"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Log      LogConfig      `toml:"log" mapstructure:"log"`
}

type MonitorConfig struct {
	Interval        time.Duration `toml:"interval" mapstructure:"interval" validate:"gt=0"`
	Workers         int           `toml:"workers" mapstructure:"workers" validate:"gte=1,lte=256"`
	WorkloadTimeout time.Duration `toml:"workload_timeout" mapstructure:"workload_timeout" validate:"gt=0"`
}

type RegistryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn" validate:"required"`
}

type RuntimeConfig struct {
	Driver      string        `toml:"driver" mapstructure:"driver" validate:"oneof=cli docker"`
	Binary      string        `toml:"binary" mapstructure:"binary" validate:"required_if=Driver cli"`
	Host        string        `toml:"host" mapstructure:"host"`
	Timeout     time.Duration `toml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	LogTail     int           `toml:"log_tail" mapstructure:"log_tail" validate:"gte=0"`
	ArtifactDir string        `toml:"artifact_dir" mapstructure:"artifact_dir"`
}

type NotifyConfig struct {
	Type          string        `toml:"type" mapstructure:"type" validate:"oneof=telegram webhook log"`
	Recipient     string        `toml:"recipient" mapstructure:"recipient" validate:"required_if=Type telegram"`
	Token         string        `toml:"token" mapstructure:"token" validate:"required_if=Type telegram"`
	URL           string        `toml:"url" mapstructure:"url" validate:"required_if=Type webhook,omitempty,url"`
	Retries       int           `toml:"retries" mapstructure:"retries" validate:"gte=0,lte=20"`
	RetryInterval time.Duration `toml:"retry_interval" mapstructure:"retry_interval" validate:"gt=0"`
	Timeout       time.Duration `toml:"timeout" mapstructure:"timeout" validate:"gt=0"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen" validate:"required_if=Enabled true"`
}

type ServerConfig struct {
	Enabled       bool   `toml:"enabled" mapstructure:"enabled"`
	Listen        string `toml:"listen" mapstructure:"listen" validate:"required_if=Enabled true"`
	BasePath      string `toml:"base_path" mapstructure:"base_path"`
	CertFile      string `toml:"cert_file" mapstructure:"cert_file" validate:"required_with=KeyFile"`
	KeyFile       string `toml:"key_file" mapstructure:"key_file" validate:"required_with=CertFile"`
	// "1.2" or "1.3"
	TLSMinVersion string `toml:"tls_min_version" mapstructure:"tls_min_version" validate:"omitempty,oneof=1.2 1.3"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `toml:"format" mapstructure:"format" validate:"oneof=text json"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Logger converts the [log] section into a logger.Config.
func (l LogConfig) Logger() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{Level: l.Level, Format: l.Format, Color: l.Color, TimeStamps: true},
		File: logger.FileConfig{
			Path:       l.File,
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   l.Compress,
		},
	}
}

var defaults = map[string]any{
	"env_files":                []string{},
	"monitor.interval":         "10s",
	"monitor.workers":          1,
	"monitor.workload_timeout": "60s",
	"registry.dsn":             "containers.txt",
	"runtime.driver":           "cli",
	"runtime.binary":           "docker",
	"runtime.host":             "",
	"runtime.timeout":          "15s",
	"runtime.log_tail":         0,
	"runtime.artifact_dir":     "",
	"notify.type":              "log",
	"notify.recipient":         "",
	"notify.token":             "",
	"notify.url":               "",
	"notify.retries":           3,
	"notify.retry_interval":    "1s",
	"notify.timeout":           "30s",
	"history.dsn":              "",
	"metrics.enabled":          false,
	"metrics.listen":           ":9090",
	"server.enabled":           true,
	"server.listen":            "127.0.0.1:8080",
	"server.base_path":         "/api",
	"server.cert_file":         "",
	"server.key_file":          "",
	"server.tls_min_version":   "1.2",
	"log.level":                "info",
	"log.format":               "text",
	"log.color":                false,
	"log.file":                 "",
	"log.max_size_mb":          logger.DefaultMaxSizeMB,
	"log.max_backups":          logger.DefaultMaxBackups,
	"log.max_age_days":         logger.DefaultMaxAgeDays,
	"log.compress":             false,
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) { return Load("") }

// Load reads the TOML file at path (optional), loads its env_files into the
// process environment, applies CRASHWATCH_* overrides and validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	// env files can feed overrides, so they load before unmarshal
	if err := loadEnvFiles(v.GetStringSlice("env_files"), filepath.Dir(path)); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.Server.BasePath = normalizeBasePath(c.Server.BasePath)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// loadEnvFiles loads dotenv files without overriding variables already set.
// Relative paths resolve against the config file directory.
func loadEnvFiles(files []string, baseDir string) error {
	for _, f := range files {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !filepath.IsAbs(f) && baseDir != "" {
			f = filepath.Join(baseDir, f)
		}
		if err := godotenv.Load(filepath.Clean(f)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	return "/" + strings.Trim(p, "/")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and returns a readable error listing
// every offending key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.ActualTag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
