package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "IM"

// flagBindings maps command-line overrides onto configuration keys.
var flagBindings = map[string]string{
	"http-addr":    "http.addr",
	"log-level":    "log.level",
	"database-dsn": "database.dsn",
	"grpc-addr":    "grpc.addr",
}

// LoadConfig resolves the configuration from, in decreasing precedence:
// command-line flags, IM_* environment variables (a local .env file included),
// the optional config file and the built-in defaults.
func LoadConfig(args []string) (*Config, error) {
	// .env is a development convenience; its absence is not an error.
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	configFile := fs.String("config_file", "", "Path to the configuration file")
	fs.String("http-addr", "", "HTTP listen address")
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.String("database-dsn", "", "Database DSN")
	fs.String("grpc-addr", "", "gRPC ops listen address")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", *configFile, err)
		}
	}

	for name, key := range flagBindings {
		// Only explicitly set flags override lower layers.
		if f := fs.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
			}
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.source = v
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags of every section.
func Validate(cfg *Config) error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("config: invalid fields: %s", strings.Join(fields, ", "))
	}
	return fmt.Errorf("config: %w", err)
}

// Watch reloads the config file on change and hands the new, validated
// configuration to fn. Invalid revisions are reported through onErr and skipped.
// It is a no-op when no config file was given.
func (c *Config) Watch(fn func(*Config), onErr func(error)) {
	if c.source == nil || c.source.ConfigFileUsed() == "" {
		return
	}

	c.source.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(c.source)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(next)
	})
	c.source.WatchConfig()
}
