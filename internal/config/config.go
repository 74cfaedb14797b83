package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Geo        GeoConfig        `yaml:"geo"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	Automation AutomationConfig `yaml:"automation"`
	Chat       ChatConfig       `yaml:"chat"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	MetricsPort int    `yaml:"metrics_port"`
}

// UpstreamConfig describes the OpenAI-compatible completion provider.
type UpstreamConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	BackoffStep    time.Duration `yaml:"backoff_step"`
	MaxIdleConns   int           `yaml:"max_idle_conns"`
}

type GeoConfig struct {
	LookupURL string        `yaml:"lookup_url"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type RateLimitConfig struct {
	TurnsPerMinute int `yaml:"turns_per_minute"`
}

type AutomationConfig struct {
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

type ChatConfig struct {
	MaxMessages     int `yaml:"max_messages"`
	MaxContentBytes int `yaml:"max_content_bytes"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "persona",
			User:            "persona",
			MaxOpenConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
			QueryTimeout:    5 * time.Second,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			MetricsPort: 9090,
		},
		Upstream: UpstreamConfig{
			BaseURL:        "https://openrouter.ai/api/v1",
			AttemptTimeout: 25 * time.Second,
			BackoffBase:    250 * time.Millisecond,
			BackoffStep:    200 * time.Millisecond,
			MaxIdleConns:   100,
		},
		Geo: GeoConfig{
			LookupURL: "https://ipapi.co/%s/json/",
			Timeout:   1200 * time.Millisecond,
			CacheTTL:  6 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			TurnsPerMinute: 30,
		},
		Automation: AutomationConfig{
			ConfirmTimeout: 10 * time.Second,
		},
		Chat: ChatConfig{
			MaxMessages:     64,
			MaxContentBytes: 32 * 1024,
		},
	}
}
