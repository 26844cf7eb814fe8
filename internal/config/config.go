// Package config loads the bench configuration from a file, the environment
// and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"octapulse/internal/core"
	"octapulse/internal/phase"
	"octapulse/internal/report"
)

// ErrNotFound is returned when no configuration file could be located.
var ErrNotFound = errors.New("config file not found")

// EnvPrefix is prepended to every environment override, e.g.
// OCTAPULSE_TOTAL_REQ.
const EnvPrefix = "OCTAPULSE"

// SecretEnv is also accepted for the upload secret so the bench can share
// the target server's environment.
const SecretEnv = "AVATAR_SECURITY_UPLOAD_SECRET"

// Config is the root configuration structure.
type Config struct {
	BaseURL      string            `mapstructure:"base_url" validate:"required,url"`
	TotalReq     int               `mapstructure:"total_req" validate:"gt=0"`
	Worker       int               `mapstructure:"worker" validate:"gt=0"`
	UploadSecret string            `mapstructure:"upload_secret"`
	Warmup       int               `mapstructure:"warmup" validate:"gte=0"`
	RateLimit    int               `mapstructure:"rate_limit" validate:"gte=0"`
	Timeout      time.Duration     `mapstructure:"timeout" validate:"gte=0"`
	Phases       []PhaseConfig     `mapstructure:"phases" validate:"dive"`
	Thresholds   report.Thresholds `mapstructure:"thresholds"`
	Log          LogConfig         `mapstructure:"log"`
	Metrics      MetricsConfig     `mapstructure:"metrics"`
	Database     DatabaseConfig    `mapstructure:"database"`

	// Source is the file the configuration was read from.
	Source string `mapstructure:"-"`
}

// PhaseConfig is one entry of the phase plan.
type PhaseConfig struct {
	Name      string `mapstructure:"name"`
	Kind      string `mapstructure:"kind" validate:"required,oneof=read write get"`
	Path      string `mapstructure:"path" validate:"required_if=Kind get"`
	Requests  int    `mapstructure:"requests" validate:"gte=0"`
	ImageSize int    `mapstructure:"image_size" validate:"gte=0,lte=4096"`
	Data      string `mapstructure:"data"`
	DataMode  string `mapstructure:"data_mode" validate:"omitempty,oneof=sequential random"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
	Color  bool   `mapstructure:"color"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads the configuration. With an empty path it looks for bench.yaml
// or bench.json in the working directory and two levels up.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("bench")
		v.AddConfigPath(".")
		v.AddConfigPath("../..")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("upload_secret", EnvPrefix+"_UPLOAD_SECRET", SecretEnv)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:9980")
	v.SetDefault("total_req", 1000)
	v.SetDefault("worker", 50)
	v.SetDefault("upload_secret", "")
	v.SetDefault("warmup", 0)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.color", true)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("database.path", "")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if rate := c.Thresholds.FailureRate; rate != "" {
		if _, err := report.ParsePercentage(rate); err != nil {
			return fmt.Errorf("invalid config: thresholds.failure_rate: %w", err)
		}
	}

	for _, s := range c.PhaseSpecs() {
		if s.Kind == phase.KindWrite && c.UploadSecret == "" {
			return fmt.Errorf("invalid config: phase %q uploads but upload_secret is empty (set it or %s)", s.Name, SecretEnv)
		}
	}
	return nil
}

// RunConfig returns the harness configuration shared by every phase.
func (c *Config) RunConfig() core.RunConfig {
	return core.RunConfig{
		Target:        c.BaseURL,
		TotalRequests: c.TotalReq,
		Concurrency:   c.Worker,
		Secret:        c.UploadSecret,
		Warmup:        c.Warmup,
		RatePerSec:    c.RateLimit,
	}
}

// PhaseSpecs returns the configured phase plan, or the default read then
// write plan when none is configured. Data files are resolved against the
// directory of the config file.
func (c *Config) PhaseSpecs() []phase.Spec {
	if len(c.Phases) == 0 {
		return phase.DefaultSpecs()
	}
	specs := make([]phase.Spec, 0, len(c.Phases))
	for _, p := range c.Phases {
		name := p.Name
		if name == "" {
			name = p.Kind
		}
		dataPath := p.Data
		if dataPath != "" && !filepath.IsAbs(dataPath) && c.Source != "" {
			dataPath = filepath.Join(filepath.Dir(c.Source), dataPath)
		}
		specs = append(specs, phase.Spec{
			Name:      name,
			Kind:      p.Kind,
			Path:      p.Path,
			Requests:  p.Requests,
			ImageSize: p.ImageSize,
			Data:      dataPath,
			DataMode:  p.DataMode,
		})
	}
	return specs
}
