package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/kurir/core/chatbot"
	"github.com/kilianp07/kurir/core/quota"
	"github.com/kilianp07/kurir/infra/cache"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `channels:
  - id: bot1
    name: "Bot 1"
    session_path: "/tmp/bot1.db"
    enabled: true
  - id: bot2
    enabled: false
quota:
  per_minute: 5
  per_hour: 50
  per_day: 500
delivery:
  min_delay_ms: 1000
  max_delay_ms: 2000
abuse:
  strikes: 3
cooldown:
  reply_seconds: 10
dispatch:
  capacity: 2
  order_prefix: "KUR"
chatbot:
  notify_transit: true
  services:
    - code: "1"
      type: "food"
      label: "Food"
dedup:
  backend: redis
redis:
  addr: "localhost:6379"
store:
  driver: memory
events:
  sinks:
    - type: "nop"
http:
  address: ":8080"
  token: "secret"
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"channels", len(cfg.Channels), 2},
		{"channel.name", cfg.Channels[0].Name, "Bot 1"},
		{"channel.session_path default", cfg.Channels[1].SessionPath, filepath.Join("sessions", "bot2.db")},
		{"channel.name default", cfg.Channels[1].Name, "bot2"},
		{"enabled", len(cfg.EnabledChannels()), 1},
		{"quota", cfg.Quota, quota.Limits{PerMinute: 5, PerHour: 50, PerDay: 500}},
		{"delivery.min", cfg.Delivery.Queue().MinDelay, time.Second},
		{"delivery.typing default", cfg.Delivery.Queue().TypingTime, 2 * time.Second},
		{"abuse.strikes", cfg.Abuse.Detector().MaxStrikes, 3},
		{"abuse.block default", cfg.Abuse.Detector().BlockFor, 180 * time.Second},
		{"cooldown.reply", cfg.Cooldown.Reply(), 10 * time.Second},
		{"cooldown.order default", cfg.Cooldown.Order(), 30 * time.Second},
		{"dispatch.capacity", cfg.Dispatch.Capacity, 2},
		{"dispatch.prefix", cfg.Dispatch.OrderPrefix, "KUR"},
		{"dispatch.country default", cfg.Dispatch.CountryCode, "62"},
		{"chatbot.transit", cfg.Chatbot.NotifyTransit, true},
		{"chatbot.services", len(cfg.Chatbot.Services), 1},
		{"dedup.backend", cfg.Dedup.Backend, DedupRedis},
		{"dedup.ttl default", cfg.Dedup.TTL(), 5 * time.Minute},
		{"redis.addr", cfg.Redis.Addr, "localhost:6379"},
		{"store.driver", cfg.Store.Driver, "memory"},
		{"events.sinks", len(cfg.Events.Sinks) == 1 && cfg.Events.Sinks[0].Type == "nop", true},
		{"http.address", cfg.HTTP.Address, ":8080"},
		{"http.token", cfg.HTTP.Token, "secret"},
		{"log_level", cfg.LogLevel, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadDefaultsJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"channels":[{"id":"bot1","enabled":true}]}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Quota != quota.DefaultLimits {
		t.Errorf("quota default: %+v", cfg.Quota)
	}
	if len(cfg.Chatbot.Services) != len(chatbot.DefaultServices) {
		t.Errorf("services default: %+v", cfg.Chatbot.Services)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "kurir.db" {
		t.Errorf("store default: %+v", cfg.Store)
	}
	if cfg.HTTP.Address != ":3000" {
		t.Errorf("http default: %s", cfg.HTTP.Address)
	}
	if got := cfg.Channel.Channel(cfg.Quota).ReconnectDelay; got != 10*time.Second {
		t.Errorf("reconnect default: %v", got)
	}
	if cfg.Redis.Prefix != cache.DefaultPrefix {
		t.Errorf("redis prefix default: %s", cfg.Redis.Prefix)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", "delivery:\n  min_delay_ms: 1000\n")
	t.Setenv("K_DELIVERY__MIN_DELAY_MS", "500")
	t.Setenv("K_HTTP__TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Delivery.MinDelayMS != 500 {
		t.Errorf("min_delay_ms: %d", cfg.Delivery.MinDelayMS)
	}
	if cfg.HTTP.Token != "from-env" {
		t.Errorf("token: %q", cfg.HTTP.Token)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
		want string
	}{
		{"format", "config.toml", "", "unsupported config format"},
		{"duplicate channel", "c.yaml", "channels:\n  - id: a\n  - id: a\n", "duplicate id"},
		{"missing channel id", "c.yaml", "channels:\n  - name: x\n", "id is required"},
		{"delay order", "c.yaml", "delivery:\n  min_delay_ms: 5000\n  max_delay_ms: 1000\n", "min_delay_ms"},
		{"quota order", "c.yaml", "quota:\n  per_minute: 10\n  per_hour: 5\n  per_day: 100\n", "quota"},
		{"dedup backend", "c.yaml", "dedup:\n  backend: disk\n", "dedup.backend"},
		{"redis addr", "c.yaml", "dedup:\n  backend: redis\n", "redis.addr"},
		{"service type", "c.yaml", "chatbot:\n  services:\n    - code: \"1\"\n      type: boat\n", "chatbot.services"},
		{"store driver", "c.yaml", "store:\n  driver: mongo\n", "store.driver"},
		{"sentry rate", "c.yaml", "sentry:\n  traces_sample_rate: 2\n", "sample"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
