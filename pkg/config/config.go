// Package config loads the ping service configuration from an optional
// file, the environment and command line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

// EnvPrefix prefixes every environment variable, e.g. PING_AUDIENCE.
const EnvPrefix = "PING"

// Caller authentication modes.
const (
	AuthModeAccess = "access"
	AuthModeGoogle = "google"
)

// DefaultConfigObject is the object read from ConfigBucket.
const DefaultConfigObject = "config.json"

// Config is the service configuration.
type Config struct {
	// Listen is the server address. Defaults to ":$PORT" or ":8080".
	Listen string `mapstructure:"listen"`
	Port   string `mapstructure:"port"`

	// ConfigLocation is the endpoint document: a file path or
	// gs://bucket/object. Derived from ConfigBucket when empty.
	ConfigLocation string `mapstructure:"config_location"`
	ConfigBucket   string `mapstructure:"config_bucket"`
	ConfigObject   string `mapstructure:"config_object"`

	// AuthMode selects the caller authenticator.
	AuthMode string `mapstructure:"auth_mode"`
	// Audience is the audience callers' tokens must carry.
	Audience string `mapstructure:"audience"`
	// TeamDomain is the Access team domain, used as issuer and key set
	// origin in access mode.
	TeamDomain string `mapstructure:"team_domain"`

	KeySetTTL          time.Duration `mapstructure:"keyset_ttl"`
	KeySetCapacity     int           `mapstructure:"keyset_capacity"`
	KeySetFetchTimeout time.Duration `mapstructure:"keyset_fetch_timeout"`

	SelfAudience       string `mapstructure:"self_audience"`
	FederationAudience string `mapstructure:"federation_audience"`

	AWSRoleARN         string        `mapstructure:"aws_role_arn"`
	AWSSessionName     string        `mapstructure:"aws_session_name"`
	AWSRegion          string        `mapstructure:"aws_region"`
	AWSSessionDuration time.Duration `mapstructure:"aws_session_duration"`

	GoogleCredentialsFile string `mapstructure:"google_credentials_file"`

	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`

	LogVerbosity int `mapstructure:"log_verbosity"`
}

var defaults = map[string]interface{}{
	"listen":                  "",
	"port":                    "",
	"config_location":         "",
	"config_bucket":           "",
	"config_object":           DefaultConfigObject,
	"auth_mode":               AuthModeAccess,
	"audience":                "",
	"team_domain":             "",
	"keyset_ttl":              time.Hour,
	"keyset_capacity":         1,
	"keyset_fetch_timeout":    10 * time.Second,
	"self_audience":           cloudauth.DefaultSelfAudience,
	"federation_audience":     cloudauth.DefaultFederationAudience,
	"aws_role_arn":            "",
	"aws_session_name":        "ping-service-session",
	"aws_region":              "us-east-1",
	"aws_session_duration":    time.Duration(0),
	"google_credentials_file": "",
	"probe_timeout":           30 * time.Second,
	"max_body_bytes":          4096,
	"log_verbosity":           0,
}

// New returns a viper instance with defaults and environment bindings.
// PORT and CONFIG_BUCKET are also honored without the prefix.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("port", EnvPrefix+"_PORT", "PORT")
	_ = v.BindEnv("config_bucket", EnvPrefix+"_CONFIG_BUCKET", "CONFIG_BUCKET")
	return v
}

// Load reads path, when set, into v and decodes the result. The returned
// config has defaults applied and is validated.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills values derived from other settings.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		port := c.Port
		if port == "" {
			port = "8080"
		}
		c.Listen = ":" + port
	}
	if c.ConfigObject == "" {
		c.ConfigObject = DefaultConfigObject
	}
	if c.ConfigLocation == "" && c.ConfigBucket != "" {
		c.ConfigLocation = "gs://" + c.ConfigBucket + "/" + c.ConfigObject
	}
	c.TeamDomain = strings.TrimRight(c.TeamDomain, "/")
	c.AuthMode = strings.ToLower(c.AuthMode)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(key, msg string) error {
		return cloudauth.ErrValidation(fmt.Sprintf("%s: %s", key, msg)).
			WithOperation("load_config").
			WithDetail("key", key)
	}

	switch c.AuthMode {
	case AuthModeAccess:
		if c.TeamDomain == "" {
			return invalid("team_domain", "required in access mode")
		}
		if !strings.HasPrefix(c.TeamDomain, "https://") {
			return invalid("team_domain", "must be an https URL")
		}
	case AuthModeGoogle:
	default:
		return invalid("auth_mode", fmt.Sprintf("unknown mode %q", c.AuthMode))
	}

	if c.Audience == "" {
		return invalid("audience", "required")
	}
	if c.ConfigLocation == "" {
		return invalid("config_location", "set config_location or config_bucket")
	}
	if c.AWSRoleARN == "" {
		return invalid("aws_role_arn", "required")
	}
	if c.SelfAudience == "" || c.FederationAudience == "" {
		return invalid("self_audience", "token audiences must not be empty")
	}
	if c.KeySetTTL <= 0 {
		return invalid("keyset_ttl", "must be positive")
	}
	if c.KeySetCapacity <= 0 {
		return invalid("keyset_capacity", "must be positive")
	}
	if c.KeySetFetchTimeout <= 0 {
		return invalid("keyset_fetch_timeout", "must be positive")
	}
	if c.ProbeTimeout <= 0 {
		return invalid("probe_timeout", "must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return invalid("max_body_bytes", "must be positive")
	}
	if c.AWSSessionDuration != 0 && (c.AWSSessionDuration < 15*time.Minute || c.AWSSessionDuration > 12*time.Hour) {
		return invalid("aws_session_duration", "must be between 15m and 12h")
	}
	return nil
}
