package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Registry struct {
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Address  string `yaml:"address"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"`
		} `yaml:"redis"`
	} `yaml:"registry"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		PortRange struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
		GatheringTimeout time.Duration `yaml:"gathering_timeout"`
		ChannelLabel     string        `yaml:"channel_label"`
	} `yaml:"webrtc"`

	Session struct {
		QualityInterval   time.Duration `yaml:"quality_interval"`
		SyncSettleDelay   time.Duration `yaml:"sync_settle_delay"`
		SyncRetryAttempts int           `yaml:"sync_retry_attempts"`
		SyncRetryDelay    time.Duration `yaml:"sync_retry_delay"`
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		TypingIdleTimeout time.Duration `yaml:"typing_idle_timeout"`
	} `yaml:"session"`

	Presence struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		Lease             time.Duration `yaml:"lease"`
		DeviceName        string        `yaml:"device_name"`
	} `yaml:"presence"`

	Identity struct {
		// Account is the stable local account identifier the Duo ID is bound
		// to. It survives ID changes.
		Account string `yaml:"account"`
	} `yaml:"identity"`

	Control struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
	} `yaml:"control"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		MessageBurst      int     `yaml:"message_burst"`
	} `yaml:"rate_limiting"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Registry.Redis.Enabled {
		if c.Registry.Redis.Address == "" {
			return fmt.Errorf("registry.redis.address must not be empty when redis is enabled")
		}
		if c.Registry.Redis.PoolSize <= 0 {
			return fmt.Errorf("registry.redis.pool_size must be > 0 when redis is enabled")
		}
	}

	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}
	if c.WebRTC.GatheringTimeout <= 0 {
		return fmt.Errorf("webrtc.gathering_timeout must be > 0")
	}
	if c.WebRTC.ChannelLabel == "" {
		return fmt.Errorf("webrtc.channel_label must not be empty")
	}

	if c.Session.QualityInterval <= 0 {
		return fmt.Errorf("session.quality_interval must be > 0")
	}
	if c.Session.SyncSettleDelay < 0 {
		return fmt.Errorf("session.sync_settle_delay must be >= 0")
	}
	if c.Session.SyncRetryAttempts <= 0 {
		return fmt.Errorf("session.sync_retry_attempts must be > 0")
	}
	if c.Session.SyncRetryDelay <= 0 {
		return fmt.Errorf("session.sync_retry_delay must be > 0")
	}
	if c.Session.HeartbeatInterval <= 0 {
		return fmt.Errorf("session.heartbeat_interval must be > 0")
	}
	if c.Session.TypingIdleTimeout <= 0 {
		return fmt.Errorf("session.typing_idle_timeout must be > 0")
	}

	if c.Presence.HeartbeatInterval <= 0 {
		return fmt.Errorf("presence.heartbeat_interval must be > 0")
	}
	if c.Presence.Lease <= c.Presence.HeartbeatInterval {
		return fmt.Errorf("presence.lease must be > presence.heartbeat_interval")
	}

	if c.Control.Address == "" {
		return fmt.Errorf("control.address must not be empty")
	}
	if c.Control.ReadTimeout <= 0 {
		return fmt.Errorf("control.read_timeout must be > 0")
	}
	if c.Control.WriteTimeout <= 0 {
		return fmt.Errorf("control.write_timeout must be > 0")
	}
	if c.Control.ShutdownTimeout <= 0 {
		return fmt.Errorf("control.shutdown_timeout must be > 0")
	}
	if c.Control.PingInterval <= 0 {
		return fmt.Errorf("control.ping_interval must be > 0")
	}
	if c.Control.PongTimeout <= c.Control.PingInterval {
		return fmt.Errorf("control.pong_timeout must be > control.ping_interval")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.MessageBurst <= 0 {
			return fmt.Errorf("rate_limiting.message_burst must be > 0 when rate limiting is enabled")
		}
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}

	if c.Tracing.Enabled && c.Tracing.JaegerURL == "" {
		return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Registry.Redis.Enabled = false
	cfg.Registry.Redis.Address = "localhost:6379"
	cfg.Registry.Redis.DB = 0
	cfg.Registry.Redis.PoolSize = 10

	cfg.WebRTC.GatheringTimeout = 5 * time.Second
	cfg.WebRTC.ChannelLabel = "duo-data"

	cfg.Session.QualityInterval = 3 * time.Second
	cfg.Session.SyncSettleDelay = 1 * time.Second
	cfg.Session.SyncRetryAttempts = 3
	cfg.Session.SyncRetryDelay = 2 * time.Second
	cfg.Session.HeartbeatInterval = 10 * time.Second
	cfg.Session.TypingIdleTimeout = 3 * time.Second

	cfg.Presence.HeartbeatInterval = 5 * time.Second
	cfg.Presence.Lease = 15 * time.Second
	cfg.Presence.DeviceName = hostnameOrDefault()

	cfg.Identity.Account = "local:" + hostnameOrDefault()

	cfg.Control.Address = ":8750"
	cfg.Control.ReadTimeout = 30 * time.Second
	cfg.Control.WriteTimeout = 30 * time.Second
	cfg.Control.ShutdownTimeout = 15 * time.Second
	cfg.Control.PingInterval = 30 * time.Second
	cfg.Control.PongTimeout = 60 * time.Second

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 24 * time.Hour

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 50
	cfg.RateLimiting.Burst = 100
	cfg.RateLimiting.MessagesPerSecond = 20
	cfg.RateLimiting.MessageBurst = 40

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("DUOSYNC_REDIS_ADDRESS"); addr != "" {
		c.Registry.Redis.Address = addr
		c.Registry.Redis.Enabled = true
	}
	if addr := os.Getenv("DUOSYNC_CONTROL_ADDRESS"); addr != "" {
		c.Control.Address = addr
	}
	if level := os.Getenv("DUOSYNC_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("DUOSYNC_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if name := os.Getenv("DUOSYNC_DEVICE_NAME"); name != "" {
		c.Presence.DeviceName = name
	}
	if account := os.Getenv("DUOSYNC_ACCOUNT"); account != "" {
		c.Identity.Account = account
	}
}

func hostnameOrDefault() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "duosync-device"
	}
	return name
}
