package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Monitor   MonitorConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address   string
	StaticDir string `mapstructure:"staticDir"`
}

type TransportConfig struct {
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	KeepAlive    time.Duration `mapstructure:"keepAlive"`
	SendBuffer   int           `mapstructure:"sendBuffer"`
}

type MonitorConfig struct {
	Interval    time.Duration
	ReportEvery int `mapstructure:"reportEvery"`
	StaleAfter  int `mapstructure:"staleAfter"`
}

type LogConfig struct {
	Level  string
	Format string
}

// SetDefaults registers every key with its default so env vars and flags
// can override keys that no config file mentions.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.staticDir", "")
	v.SetDefault("transport.readTimeout", "60s")
	v.SetDefault("transport.writeTimeout", "10s")
	v.SetDefault("transport.keepAlive", "54s")
	v.SetDefault("transport.sendBuffer", 256)
	v.SetDefault("monitor.interval", "200ms")
	v.SetDefault("monitor.reportEvery", 10)
	v.SetDefault("monitor.staleAfter", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults, the config file lookup and the
// KEYRELAY_ environment prefix in place. fileName is a path to a file or, when
// it has no extension, a config name searched for in the working directory.
// A bare name only matches files with a known extension (keyrelay.yaml,
// keyrelay.toml, ...), never an extensionless file such as the binary itself.
func New(fileName string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if strings.Contains(fileName, ".") {
		v.SetConfigFile(fileName)
	} else {
		v.SetConfigName(fileName)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("KEYRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file if there is one and unmarshals the result.
func Load(logger *slog.Logger, v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		logger.Warn("Config file not found; relying on defaults, env vars and flags")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Transport = cfg.Transport.WithDefaults()
	return &cfg, nil
}

// WithDefaults fills zero durations and sizes with the built-in defaults.
func (t TransportConfig) WithDefaults() TransportConfig {
	if t.ReadTimeout <= 0 {
		t.ReadTimeout = 60 * time.Second
	}
	if t.WriteTimeout <= 0 {
		t.WriteTimeout = 10 * time.Second
	}
	if t.KeepAlive <= 0 {
		t.KeepAlive = 54 * time.Second
	}
	if t.SendBuffer <= 0 {
		t.SendBuffer = 256
	}
	return t
}
