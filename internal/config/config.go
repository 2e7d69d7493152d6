package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every config key to form its environment variable.
const EnvPrefix = "LOGT"

// DefaultTimeFormat is the layout of absolute timestamps.
const DefaultTimeFormat = "2006-01-02 15:04:05.000000 -07:00"

// ColorMode selects when annotations are coloured.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ParseColorMode parses auto, always or never.
func ParseColorMode(s string) (ColorMode, error) {
	switch mode := ColorMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case ColorAuto, ColorAlways, ColorNever:
		return mode, nil
	case "":
		return ColorAuto, nil
	default:
		return "", fmt.Errorf("invalid color mode %q (want auto, always or never)", s)
	}
}

// Enabled reports whether output written to w should be coloured. In auto
// mode only terminals get colour.
func (m ColorMode) Enabled(w io.Writer) bool {
	switch m {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Format is the annotation policy. It is read once at startup and not
// changed afterwards.
type Format struct {
	Relative   bool      `mapstructure:"relative" yaml:"relative"`
	ShowStream bool      `mapstructure:"show_stream" yaml:"show_stream"`
	UTC        bool      `mapstructure:"utc" yaml:"utc"`
	TimeFormat string    `mapstructure:"time_format" yaml:"time_format"`
	Color      ColorMode `mapstructure:"color" yaml:"color"`
}

// Config is the complete runtime configuration.
type Config struct {
	Format `mapstructure:",squash" yaml:",inline"`

	// Lossy replaces invalid UTF-8 instead of reporting an error line.
	Lossy bool `mapstructure:"lossy" yaml:"lossy"`

	// Buffer is the capacity of the merge channel. 0 selects the default.
	Buffer int `mapstructure:"buffer" yaml:"buffer"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Format: Format{
			TimeFormat: DefaultTimeFormat,
			Color:      ColorAuto,
		},
	}
}

// Validate checks values that the type system does not.
func (c Config) Validate() error {
	if _, err := ParseColorMode(string(c.Color)); err != nil {
		return err
	}
	if c.Buffer < 0 {
		return fmt.Errorf("buffer must not be negative, got %d", c.Buffer)
	}
	if strings.TrimSpace(c.TimeFormat) == "" {
		return errors.New("time_format must not be empty")
	}
	return nil
}

// flagKeys maps config keys to the command-line flags that override them.
var flagKeys = map[string]string{
	"relative":    "relative",
	"show_stream": "show-stream",
	"utc":         "utc",
	"time_format": "time-format",
	"color":       "color",
	"lossy":       "lossy",
	"buffer":      "buffer",
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	v.SetDefault("relative", cfg.Relative)
	v.SetDefault("show_stream", cfg.ShowStream)
	v.SetDefault("utc", cfg.UTC)
	v.SetDefault("time_format", cfg.TimeFormat)
	v.SetDefault("color", string(cfg.Color))
	v.SetDefault("lossy", cfg.Lossy)
	v.SetDefault("buffer", cfg.Buffer)
	return v
}

// BindFlags lets the flags in flags override their config keys. Flags that
// do not exist in flags are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// DefaultPath returns the config file looked up when no path is given, or
// an empty string if there is no user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "logt", "config.yaml")
}

// Load reads the configuration. Precedence is flags, environment, config
// file, defaults. An explicit path must exist. The default path is optional.
func Load(v *viper.Viper, path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
			if explicit || !missing {
				return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	mode, err := ParseColorMode(string(cfg.Color))
	if err != nil {
		return Config{}, err
	}
	cfg.Color = mode

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML in the config file format.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}
