package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	TransportNative  = "native"
	TransportBrowser = "browser"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Call      CallConfig      `mapstructure:"call"`
	Transport TransportConfig `mapstructure:"transport"`
	Store     StoreConfig     `mapstructure:"store"`

	v *viper.Viper
}

type CallConfig struct {
	MaxParticipants   int           `mapstructure:"max_participants"`
	SpeakingThreshold int           `mapstructure:"speaking_threshold"`
	VolumeInterval    time.Duration `mapstructure:"volume_interval"`
	JoinTimeout       time.Duration `mapstructure:"join_timeout"`
	LeaveTimeout      time.Duration `mapstructure:"leave_timeout"`
	// JoinRateLimit join requests per client within JoinRateWindow.
	JoinRateLimit  int           `mapstructure:"join_rate_limit"`
	JoinRateWindow time.Duration `mapstructure:"join_rate_window"`
}

type TransportConfig struct {
	Kind           string   `mapstructure:"kind"`
	SignalURL      string   `mapstructure:"signal_url"`
	Token          string   `mapstructure:"token"`
	ICEServers     []string `mapstructure:"ice_servers"`
	VideoMaxWidth  int      `mapstructure:"video_max_width"`
	VideoMaxHeight int      `mapstructure:"video_max_height"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("transport", cfg.Transport.Kind).
		Msg("config ready")
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "huddle-dev-secret")

	v.SetDefault("call.max_participants", 4)
	v.SetDefault("call.speaking_threshold", 10)
	v.SetDefault("call.volume_interval", "400ms")
	v.SetDefault("call.join_timeout", "30s")
	v.SetDefault("call.leave_timeout", "5s")
	v.SetDefault("call.join_rate_limit", 5)
	v.SetDefault("call.join_rate_window", "10s")

	v.SetDefault("transport.kind", TransportNative)
	v.SetDefault("transport.signal_url", "ws://localhost:8081/api/ws/signal")
	v.SetDefault("transport.token", "")
	v.SetDefault("transport.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("transport.video_max_width", 640)
	v.SetDefault("transport.video_max_height", 480)

	v.SetDefault("store.path", "./data/huddle.db")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.v = v
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.Transport.Kind {
	case TransportNative, TransportBrowser:
	default:
		errs = append(errs, fmt.Errorf("transport.kind %q: want %s or %s", c.Transport.Kind, TransportNative, TransportBrowser))
	}
	if c.Call.MaxParticipants < 2 {
		errs = append(errs, fmt.Errorf("call.max_participants %d: want at least 2", c.Call.MaxParticipants))
	}
	if c.Call.SpeakingThreshold < 0 || c.Call.SpeakingThreshold > 100 {
		errs = append(errs, fmt.Errorf("call.speaking_threshold %d: want 0..100", c.Call.SpeakingThreshold))
	}
	if c.Call.JoinTimeout < 0 || c.Call.LeaveTimeout < 0 {
		errs = append(errs, errors.New("call timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

// Watch re-reads the file on change and hands every valid result to fn.
// Invalid edits are logged and skipped.
func (c *Config) Watch(fn func(*Config)) {
	v := c.v
	if v == nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
			return
		}
		next, err := decode(v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("config reload rejected")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		fn(next)
	})
	v.WatchConfig()
}
