package avload

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config controls where libraries are searched for and how loading logs.
//
// Priority: environment > config file > defaults.
type Config struct {
	// SearchPaths are directories tried before the executable, module root
	// and system directories.
	SearchPaths []string `mapstructure:"search_paths"`
	// LibPath is a path-list (":"-separated on unix) of extra search
	// directories, normally set through AVLOAD_LIB_PATH. It is prepended to
	// SearchPaths.
	LibPath string `mapstructure:"lib_path"`
	// Paths pins a module to one file, keyed by module name ("avutil", ...).
	Paths map[string]string `mapstructure:"paths"`
	// StrictVersions makes an untested version combination block loading.
	StrictVersions bool `mapstructure:"strict_versions"`
	// NativeLogLevel is the level passed to av_log_set_level
	// (trace, debug, info, warn, error, fatal, panic, quiet).
	NativeLogLevel string `mapstructure:"native_log_level"`

	Log LogConfig `mapstructure:"log"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Paths:          map[string]string{},
		NativeLogLevel: "warn",
		Log:            DefaultLogConfig(),
	}
}

// SetDefaults registers Config defaults on v.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("search_paths", d.SearchPaths)
	v.SetDefault("lib_path", "")
	v.SetDefault("strict_versions", d.StrictVersions)
	v.SetDefault("native_log_level", d.NativeLogLevel)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// BindEnv binds the AVLOAD_* environment variables on v.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("AVLOAD")
	v.AutomaticEnv()

	binds := map[string]string{
		"lib_path":         "AVLOAD_LIB_PATH",
		"strict_versions":  "AVLOAD_STRICT_VERSIONS",
		"native_log_level": "AVLOAD_NATIVE_LOG_LEVEL",
		"log.level":        "AVLOAD_LOG_LEVEL",
		"log.format":       "AVLOAD_LOG_FORMAT",
	}
	for _, m := range Modules() {
		binds["paths."+m.String()] = "AVLOAD_" + strings.ToUpper(m.String()) + "_PATH"
	}
	for key, env := range binds {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

// ConfigFromViper decodes a Config from v.
func ConfigFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Paths == nil {
		cfg.Paths = map[string]string{}
	}
	if cfg.LibPath != "" {
		cfg.SearchPaths = append(filepath.SplitList(cfg.LibPath), cfg.SearchPaths...)
	}
	return cfg, nil
}

// ConfigFromEnv builds a Config from defaults and AVLOAD_* variables.
func ConfigFromEnv() (Config, error) {
	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return Config{}, err
	}
	return ConfigFromViper(v)
}

// LoadConfigFile reads a config file (any format viper supports) and applies
// environment overrides.
func LoadConfigFile(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return Config{}, err
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ConfigFromViper(v)
}
