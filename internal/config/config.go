package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "WATCHSYNC"

type Reconnect struct {
	BaseDelay     time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	CapDelay      time.Duration `mapstructure:"cap_delay" validate:"gtefield=BaseDelay"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"gt=0"`
	TerminalCodes []int         `mapstructure:"terminal_codes" validate:"dive,gte=1000,lte=4999"`
}

type Outbound struct {
	Capacity       int           `mapstructure:"capacity" validate:"gt=0"`
	RateLimit      int           `mapstructure:"rate_limit" validate:"gt=0"`
	RateWindow     time.Duration `mapstructure:"rate_window" validate:"gt=0"`
	RateDelay      time.Duration `mapstructure:"rate_delay" validate:"gt=0"`
	MaxBinaryBytes int           `mapstructure:"max_binary_bytes" validate:"gt=0"`
}

type Transport struct {
	ReadLimit        int64         `mapstructure:"read_limit" validate:"gt=0"`
	PingPeriod       time.Duration `mapstructure:"ping_period" validate:"gt=0"`
	WriteWait        time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gt=0"`
}

type Playback struct {
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew" validate:"gt=0"`
	MaxLatency   time.Duration `mapstructure:"max_latency" validate:"gt=0"`
}

type Config struct {
	Endpoint      string    `mapstructure:"endpoint" validate:"required,url"`
	Token         string    `mapstructure:"token" validate:"required"`
	SessionID     string    `mapstructure:"session_id"`
	RoomID        string    `mapstructure:"room_id"`
	CreateSession bool      `mapstructure:"create_session"`
	UserID        int64     `mapstructure:"user_id" validate:"gt=0"`
	Username      string    `mapstructure:"username" validate:"max=36"`
	Listen        string    `mapstructure:"listen" validate:"required"`
	LogLevel      string    `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	APIBase       string    `mapstructure:"api_base" validate:"omitempty,url"`
	UpdatesBuffer int       `mapstructure:"updates_buffer" validate:"gt=0"`
	Reconnect     Reconnect `mapstructure:"reconnect"`
	Outbound      Outbound  `mapstructure:"outbound"`
	Transport     Transport `mapstructure:"transport"`
	Playback      Playback  `mapstructure:"playback"`
}

// New returns a viper instance with defaults and WATCHSYNC_* env binding.
// Callers may bind flags on it before passing it to LoadFrom.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("endpoint", "")
	v.SetDefault("token", "")
	v.SetDefault("session_id", "")
	v.SetDefault("room_id", "")
	v.SetDefault("create_session", false)
	v.SetDefault("user_id", 0)
	v.SetDefault("username", "")
	v.SetDefault("listen", "127.0.0.1:8787")
	v.SetDefault("log_level", "info")
	v.SetDefault("api_base", "")
	v.SetDefault("updates_buffer", 256)

	v.SetDefault("reconnect.base_delay", "1s")
	v.SetDefault("reconnect.cap_delay", "10s")
	v.SetDefault("reconnect.max_attempts", 5)
	v.SetDefault("reconnect.terminal_codes", []int{4001, 4003, 4004, 4010})

	v.SetDefault("outbound.capacity", 200)
	v.SetDefault("outbound.rate_limit", 30)
	v.SetDefault("outbound.rate_window", "1s")
	v.SetDefault("outbound.rate_delay", "50ms")
	v.SetDefault("outbound.max_binary_bytes", 5<<20)

	v.SetDefault("transport.read_limit", 8<<20)
	v.SetDefault("transport.ping_period", "54s")
	v.SetDefault("transport.write_wait", "5s")
	v.SetDefault("transport.handshake_timeout", "10s")

	v.SetDefault("playback.max_clock_skew", "5s")
	v.SetDefault("playback.max_latency", "1m")
	return v
}

// Load reads path, or config/config.<CONFIG_ENV>.yaml when path is empty.
func Load(path string) (*Config, error) {
	return LoadFrom(New(), path)
}

func LoadFrom(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
