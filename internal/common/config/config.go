package config

import (
	"os"
	"regexp"
	"time"

	"github.com/amoylab/webconsole/pkg/helper"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// ConsoleConfig represents the web console configuration
	ConsoleConfig struct {
		Port    int           `yaml:"port"`
		Prefix  string        `yaml:"prefix"` // path prefix of the console, e.g. /console
		Name    string        `yaml:"name"`   // owner name of the connections of this console
		PID     string        `yaml:"pid"`
		Logger  LoggerConfig  `yaml:"logger"`
		Session SessionConfig `yaml:"session"`
		Storage StorageConfig `yaml:"storage"`
		Auth    AuthConfig    `yaml:"auth"`
		I18n    I18nConfig    `yaml:"i18n"`
		Theme   ThemeConfig   `yaml:"theme"`
		Layout  LayoutConfig  `yaml:"layout"`
		Metrics MetricsConfig `yaml:"metrics"`
		Tracing TracingConfig `yaml:"tracing"`
	}

	// SessionConfig controls the lifecycle of connections and user sessions
	SessionConfig struct {
		Timeout       time.Duration `yaml:"timeout"`        // expiry of an unrefreshed connection
		MaxPending    int           `yaml:"max_pending"`    // max queued notifications per connection
		SweepInterval time.Duration `yaml:"sweep_interval"` // background purge interval
		UserIdle      time.Duration `yaml:"user_idle"`      // idle time after which a user session is dropped
		Cookie        string        `yaml:"cookie"`         // name of the user session cookie
		PingInterval  time.Duration `yaml:"ping_interval"`  // websocket ping interval
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps, e.g., "UTC", default is local
		TimeFormat string `yaml:"time_format"` // time format for log timestamps, default is "2006-01-02 15:04:05"
	}

	// AuthConfig defines how the current user is determined
	AuthConfig struct {
		Type string    `yaml:"type"` // anonymous or jwt
		JWT  JWTConfig `yaml:"jwt"`
	}

	JWTConfig struct {
		SecretKey string `yaml:"secret_key"`
		Header    string `yaml:"header"` // request header carrying the bearer token
		Cookie    string `yaml:"cookie"` // cookie carrying the token, checked after the header
	}

	// I18nConfig represents the internationalization configuration
	I18nConfig struct {
		Default   string   `yaml:"default"`
		Supported []string `yaml:"supported"`
		Path      string   `yaml:"path"` // optional directory with additional translation files
	}

	ThemeConfig struct {
		Default string `yaml:"default"`
		Dir     string `yaml:"dir"` // directory with one sub directory per theme
	}

	LayoutConfig struct {
		QueryTimeout time.Duration `yaml:"query_timeout"`
	}

	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Path      string    `yaml:"path"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	TracingConfig struct {
		Enabled     bool              `yaml:"enabled"`
		ServiceName string            `yaml:"service_name"`
		Endpoint    string            `yaml:"endpoint"`     // e.g. localhost:4317 or http://localhost:4318
		Protocol    string            `yaml:"protocol"`     // grpc or http
		Insecure    bool              `yaml:"insecure"`     // allow insecure connection
		SamplerRate float64           `yaml:"sampler_rate"` // 0.0~1.0
		Environment string            `yaml:"environment"`  // env tag: dev/staging/prod
		Headers     map[string]string `yaml:"headers"`
	}
)

const (
	DefaultPort          = 8080
	DefaultPrefix        = "/console"
	DefaultName          = "webconsole"
	DefaultTimeout       = 5 * time.Minute
	DefaultMaxPending    = 1024
	DefaultSweepInterval = time.Minute
	DefaultUserIdle      = 24 * time.Hour
	DefaultCookie        = "webconsole_session"
	DefaultPingInterval  = 30 * time.Second
	DefaultQueryTimeout  = 5 * time.Second
	DefaultTheme         = "base"
	DefaultLocale        = "en"
	DefaultPID           = "webconsole.pid"
)

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig(filename string) (*ConsoleConfig, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	cfg, err := Parse(data)
	return cfg, cfgPath, err
}

// Parse resolves environment placeholders in data, unmarshals it, applies
// defaults and validates the result.
func Parse(data []byte) (*ConsoleConfig, error) {
	data = resolveEnv(data)
	var cfg ConsoleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every unset field with its default.
func (c *ConsoleConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.PID == "" {
		c.PID = DefaultPID
	}
	if c.Session.Timeout <= 0 {
		c.Session.Timeout = DefaultTimeout
	}
	if c.Session.MaxPending <= 0 {
		c.Session.MaxPending = DefaultMaxPending
	}
	if c.Session.SweepInterval <= 0 {
		c.Session.SweepInterval = DefaultSweepInterval
	}
	if c.Session.UserIdle <= 0 {
		c.Session.UserIdle = DefaultUserIdle
	}
	if c.Session.Cookie == "" {
		c.Session.Cookie = DefaultCookie
	}
	if c.Session.PingInterval <= 0 {
		c.Session.PingInterval = DefaultPingInterval
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Auth.Type == "" {
		c.Auth.Type = "anonymous"
	}
	if c.Auth.JWT.Header == "" {
		c.Auth.JWT.Header = "Authorization"
	}
	if c.I18n.Default == "" {
		c.I18n.Default = DefaultLocale
	}
	if len(c.I18n.Supported) == 0 {
		c.I18n.Supported = []string{c.I18n.Default}
	}
	if c.Theme.Default == "" {
		c.Theme.Default = DefaultTheme
	}
	if c.Layout.QueryTimeout <= 0 {
		c.Layout.QueryTimeout = DefaultQueryTimeout
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "webconsole"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.Name
	}
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
