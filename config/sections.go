package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/kurir/core/abuse"
	"github.com/kilianp07/kurir/core/channel"
	"github.com/kilianp07/kurir/core/chatbot"
	"github.com/kilianp07/kurir/core/conversation"
	"github.com/kilianp07/kurir/core/cooldown"
	"github.com/kilianp07/kurir/core/dedup"
	"github.com/kilianp07/kurir/core/delivery"
	"github.com/kilianp07/kurir/core/factory"
	"github.com/kilianp07/kurir/core/model"
	"github.com/kilianp07/kurir/core/quota"
)

// ChannelConfig declares one WhatsApp account.
type ChannelConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SessionPath string `json:"session_path"`
	Enabled     bool   `json:"enabled"`
}

// PoolConfig tunes connection handling for the channel pool.
type PoolConfig struct {
	ReconnectSeconds int `json:"reconnect_seconds"`
	InitDelayMS      int `json:"init_delay_ms"`
}

func (c *PoolConfig) SetDefaults() {
	if c.ReconnectSeconds == 0 {
		c.ReconnectSeconds = 10
	}
	if c.InitDelayMS == 0 {
		c.InitDelayMS = 3000
	}
}

// Channel converts the section into the pool configuration.
func (c PoolConfig) Channel(q quota.Limits) channel.Config {
	return channel.Config{
		Quota:          q,
		ReconnectDelay: time.Duration(c.ReconnectSeconds) * time.Second,
		InitDelay:      time.Duration(c.InitDelayMS) * time.Millisecond,
	}
}

// DeliveryConfig paces outbound sends.
type DeliveryConfig struct {
	MinDelayMS int `json:"min_delay_ms"`
	MaxDelayMS int `json:"max_delay_ms"`
	TypingMS   int `json:"typing_ms"`
	RetryMS    int `json:"retry_ms"`
}

func (c *DeliveryConfig) SetDefaults() {
	def := delivery.DefaultConfig()
	if c.MinDelayMS == 0 {
		c.MinDelayMS = int(def.MinDelay.Milliseconds())
	}
	if c.MaxDelayMS == 0 {
		c.MaxDelayMS = int(def.MaxDelay.Milliseconds())
	}
	if c.TypingMS == 0 {
		c.TypingMS = int(def.TypingTime.Milliseconds())
	}
	if c.RetryMS == 0 {
		c.RetryMS = int(def.RetryDelay.Milliseconds())
	}
}

func (c DeliveryConfig) Validate() error {
	if c.MinDelayMS < 0 || c.MaxDelayMS < c.MinDelayMS {
		return fmt.Errorf("delivery: need 0 <= min_delay_ms <= max_delay_ms")
	}
	if c.TypingMS < 0 || c.RetryMS <= 0 {
		return fmt.Errorf("delivery: typing_ms must be >= 0 and retry_ms > 0")
	}
	return nil
}

// Queue converts the section into the delivery queue configuration.
func (c DeliveryConfig) Queue() delivery.Config {
	return delivery.Config{
		MinDelay:   time.Duration(c.MinDelayMS) * time.Millisecond,
		MaxDelay:   time.Duration(c.MaxDelayMS) * time.Millisecond,
		TypingTime: time.Duration(c.TypingMS) * time.Millisecond,
		RetryDelay: time.Duration(c.RetryMS) * time.Millisecond,
	}
}

// AbuseConfig configures burst detection.
type AbuseConfig struct {
	WindowSeconds  int `json:"window_seconds"`
	BurstThreshold int `json:"burst_threshold"`
	Strikes        int `json:"strikes"`
	BlockSeconds   int `json:"block_seconds"`
	RingSize       int `json:"ring_size"`
}

func (c *AbuseConfig) SetDefaults() {
	def := abuse.DefaultConfig()
	if c.WindowSeconds == 0 {
		c.WindowSeconds = int(def.Window / time.Second)
	}
	if c.BurstThreshold == 0 {
		c.BurstThreshold = def.BurstThreshold
	}
	if c.Strikes == 0 {
		c.Strikes = def.MaxStrikes
	}
	if c.BlockSeconds == 0 {
		c.BlockSeconds = int(def.BlockFor / time.Second)
	}
	if c.RingSize == 0 {
		c.RingSize = def.RingSize
	}
}

func (c AbuseConfig) Validate() error {
	if c.WindowSeconds <= 0 || c.BlockSeconds <= 0 {
		return fmt.Errorf("abuse: window_seconds and block_seconds must be > 0")
	}
	if c.BurstThreshold < 1 || c.Strikes < 1 {
		return fmt.Errorf("abuse: burst_threshold and strikes must be >= 1")
	}
	if c.RingSize < c.BurstThreshold {
		return fmt.Errorf("abuse.ring_size must be >= burst_threshold")
	}
	return nil
}

// Detector converts the section into the detector configuration.
func (c AbuseConfig) Detector() abuse.Config {
	return abuse.Config{
		Window:         time.Duration(c.WindowSeconds) * time.Second,
		BurstThreshold: c.BurstThreshold,
		MaxStrikes:     c.Strikes,
		BlockFor:       time.Duration(c.BlockSeconds) * time.Second,
		RingSize:       c.RingSize,
	}
}

// CooldownConfig holds the reply and order cooldowns.
type CooldownConfig struct {
	ReplySeconds int `json:"reply_seconds"`
	OrderSeconds int `json:"order_seconds"`
}

func (c *CooldownConfig) SetDefaults() {
	if c.ReplySeconds == 0 {
		c.ReplySeconds = int(cooldown.DefaultReply / time.Second)
	}
	if c.OrderSeconds == 0 {
		c.OrderSeconds = int(cooldown.DefaultOrder / time.Second)
	}
}

func (c CooldownConfig) Reply() time.Duration { return time.Duration(c.ReplySeconds) * time.Second }
func (c CooldownConfig) Order() time.Duration { return time.Duration(c.OrderSeconds) * time.Second }

// ChatbotConfig controls the conversational layer.
type ChatbotConfig struct {
	Services []chatbot.Service `json:"services"`
	// NotifyTransit also announces picked_up and on_delivery to customers.
	NotifyTransit bool `json:"notify_transit"`
	// IdleHours drops conversations untouched for that long.
	IdleHours int `json:"idle_hours"`
}

func (c *ChatbotConfig) SetDefaults() {
	if len(c.Services) == 0 {
		c.Services = append([]chatbot.Service(nil), chatbot.DefaultServices...)
	}
	if c.IdleHours == 0 {
		c.IdleHours = int(conversation.DefaultIdleTTL / time.Hour)
	}
}

func (c ChatbotConfig) Validate() error {
	seen := map[string]bool{}
	for _, s := range c.Services {
		if s.Code == "" || (s.Type != model.ServiceFood && s.Type != model.ServiceRide) {
			return fmt.Errorf("chatbot.services: invalid entry %+v", s)
		}
		if seen[s.Code] {
			return fmt.Errorf("chatbot.services: duplicate code %q", s.Code)
		}
		seen[s.Code] = true
	}
	return nil
}

// IdleTTL is the conversation retention.
func (c ChatbotConfig) IdleTTL() time.Duration { return time.Duration(c.IdleHours) * time.Hour }

// Dedup backends.
const (
	DedupMemory = "memory"
	DedupRedis  = "redis"
)

// DedupConfig selects where seen message ids are kept.
type DedupConfig struct {
	Backend    string `json:"backend"`
	TTLSeconds int    `json:"ttl_seconds"`
}

func (c *DedupConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = DedupMemory
	}
	if c.TTLSeconds == 0 {
		c.TTLSeconds = int(dedup.DefaultTTL / time.Second)
	}
}

func (c DedupConfig) Validate() error {
	switch c.Backend {
	case DedupMemory, DedupRedis:
	default:
		return fmt.Errorf("dedup.backend %q is not supported", c.Backend)
	}
	if c.TTLSeconds <= 0 {
		return fmt.Errorf("dedup.ttl_seconds must be > 0")
	}
	return nil
}

func (c DedupConfig) TTL() time.Duration { return time.Duration(c.TTLSeconds) * time.Second }

// EventsConfig lists the external event sinks.
type EventsConfig struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
}

// HTTPConfig configures the admin API.
type HTTPConfig struct {
	Address string `json:"address"`
	// Token, when set, is required as a bearer token on every route but health.
	Token string `json:"token"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":3000"
	}
}
