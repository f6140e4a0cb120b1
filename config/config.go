package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/kurir/core/dispatch"
	"github.com/kilianp07/kurir/core/metrics"
	"github.com/kilianp07/kurir/core/quota"
	"github.com/kilianp07/kurir/infra/cache"
	"github.com/kilianp07/kurir/infra/monitoring"
	"github.com/kilianp07/kurir/infra/store"
)

type Config struct {
	Channels []ChannelConfig   `json:"channels"`
	Quota    quota.Limits      `json:"quota"`
	Delivery DeliveryConfig    `json:"delivery"`
	Abuse    AbuseConfig       `json:"abuse"`
	Cooldown CooldownConfig    `json:"cooldown"`
	Dispatch dispatch.Config   `json:"dispatch"`
	Chatbot  ChatbotConfig     `json:"chatbot"`
	Channel  PoolConfig        `json:"channel"`
	Dedup    DedupConfig       `json:"dedup"`
	Redis    cache.RedisConfig `json:"redis"`
	Store    store.Config      `json:"store"`
	Events   EventsConfig      `json:"events"`
	Metrics  metrics.Config    `json:"metrics"`
	HTTP     HTTPConfig        `json:"http"`
	Sentry   monitoring.Config `json:"sentry"`
	LogLevel string            `json:"log_level"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides; K_A__B sets a.b.
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section left empty.
func (c *Config) SetDefaults() {
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.Name == "" {
			ch.Name = ch.ID
		}
		if ch.SessionPath == "" {
			ch.SessionPath = filepath.Join("sessions", ch.ID+".db")
		}
	}
	if c.Quota == (quota.Limits{}) {
		c.Quota = quota.DefaultLimits
	}
	c.Delivery.SetDefaults()
	c.Abuse.SetDefaults()
	c.Cooldown.SetDefaults()
	c.Dispatch.SetDefaults()
	c.Chatbot.SetDefaults()
	c.Channel.SetDefaults()
	c.Dedup.SetDefaults()
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = cache.DefaultPrefix
	}
	c.Store.SetDefaults()
	c.HTTP.SetDefaults()
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c Config) Validate() error {
	ids := map[string]bool{}
	for _, ch := range c.Channels {
		if ch.ID == "" {
			return fmt.Errorf("channels: id is required")
		}
		if ids[ch.ID] {
			return fmt.Errorf("channels: duplicate id %q", ch.ID)
		}
		ids[ch.ID] = true
	}
	if c.Quota.PerMinute < 1 || c.Quota.PerHour < c.Quota.PerMinute || c.Quota.PerDay < c.Quota.PerHour {
		return fmt.Errorf("quota: need 1 <= per_minute <= per_hour <= per_day")
	}
	validators := []interface{ Validate() error }{
		c.Delivery,
		c.Abuse,
		c.Dispatch,
		c.Chatbot,
		c.Dedup,
		c.Store,
		c.Sentry,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if c.Dedup.Backend == DedupRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for the redis dedup backend")
	}
	return nil
}

// EnabledChannels returns the channels to register, in declaration order.
func (c Config) EnabledChannels() []ChannelConfig {
	var out []ChannelConfig
	for _, ch := range c.Channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}
