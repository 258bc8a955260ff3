package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Feed   FeedConfig   `yaml:"feed"`
	Push   PushConfig   `yaml:"push"`
	Cache  CacheConfig  `yaml:"cache"`
	Store  StoreConfig  `yaml:"store"`
	Digest DigestConfig `yaml:"digest"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type FeedConfig struct {
	URL        string `yaml:"url"`
	ClientName string `yaml:"client_name"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

type PushConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Token     string `yaml:"token"`
	ChatID    string `yaml:"chat_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type CacheConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StoreConfig struct {
	Sqlite SqliteConfig `yaml:"sqlite"`
}

type SqliteConfig struct {
	Path string `yaml:"path"`
}

type DigestConfig struct {
	Symbols         []SymbolConfig `yaml:"symbols"`
	IntervalSec     int            `yaml:"interval_sec"`
	YesterdayTTLSec int            `yaml:"yesterday_ttl_sec"`
}

type SymbolConfig struct {
	Symbol string  `yaml:"symbol"`
	Title  string  `yaml:"title"`
	Unit   string  `yaml:"unit"`
	Factor float64 `yaml:"factor"`
}

func Load(path string) (*Config, error) {
	cfg := Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info"},
		Feed: FeedConfig{
			URL:        "wss://wss.nobitex.ir/connection/websocket",
			ClientName: "go",
			TimeoutMs:  10000,
		},
		Push: PushConfig{
			Telegram: TelegramConfig{TimeoutMs: 5000},
		},
		Cache: CacheConfig{
			Redis: RedisConfig{Addr: "localhost:6379"},
		},
		Store: StoreConfig{
			Sqlite: SqliteConfig{Path: "data/app.db"},
		},
		Digest: DigestConfig{
			Symbols: []SymbolConfig{
				{Symbol: "USDTIRT", Title: "تتر", Unit: "تومن", Factor: 0.1},
				{Symbol: "BTCIRT", Title: "بیتکوین", Unit: "تومن", Factor: 0.1},
				{Symbol: "BTCUSDT", Title: "بیتکوین", Unit: "دلار", Factor: 1},
				{Symbol: "ETHIRT", Title: "اتریوم", Unit: "تومن", Factor: 0.1},
				{Symbol: "ETHUSDT", Title: "اتریوم", Unit: "دلار", Factor: 1},
			},
			IntervalSec:     3600,
			YesterdayTTLSec: 86400,
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file means run on the built-in defaults.
			if err := applyEnvOverrides(&cfg); err != nil {
				return nil, err
			}
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid PORT: %q", v)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Push.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Push.Telegram.ChatID = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	return nil
}
