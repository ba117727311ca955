package config

import (
	"time"

	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port                string `mapstructure:"port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	Development         bool   `mapstructure:"development"`
}

type MongoCfg struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type JwtCfg struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type ChatCfg struct {
	RateLimitMessages   int `mapstructure:"rate_limit_messages"`
	RateLimitWindowSecs int `mapstructure:"rate_limit_window_seconds"`
	MaxMessageLength    int `mapstructure:"max_message_length"`
	SendBufferSize      int `mapstructure:"send_buffer_size"`
	ReadLimitBytes      int `mapstructure:"read_limit_bytes"`
	PingIntervalSeconds int `mapstructure:"ping_interval_seconds"`
}

type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type NatsCfg struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Server ServerCfg `mapstructure:"server"`
	Mongo  MongoCfg  `mapstructure:"mongo"`
	Redis  RedisCfg  `mapstructure:"redis"`
	JWT    JwtCfg    `mapstructure:"jwt"`
	Chat   ChatCfg   `mapstructure:"chat"`
	Kafka  KafkaCfg  `mapstructure:"kafka"`
	Nats   NatsCfg   `mapstructure:"nats"`
	// Derived
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RateLimitWindow time.Duration
	PingInterval    time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("APP")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config usable without a config file (tests, local runs).
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8086"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Mongo.URI == "" {
		cfg.Mongo.URI = "mongodb://localhost:27017"
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "propertyhub"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "chat"
	}
	if cfg.JWT.PublicKeyPath == "" {
		cfg.JWT.PublicKeyPath = "./keys/jwt_pub.pem"
	}
	if cfg.Chat.RateLimitMessages == 0 {
		cfg.Chat.RateLimitMessages = 10
	}
	if cfg.Chat.RateLimitWindowSecs == 0 {
		cfg.Chat.RateLimitWindowSecs = 60
	}
	if cfg.Chat.MaxMessageLength == 0 {
		cfg.Chat.MaxMessageLength = 5000
	}
	if cfg.Chat.SendBufferSize == 0 {
		cfg.Chat.SendBufferSize = 256
	}
	if cfg.Chat.ReadLimitBytes == 0 {
		cfg.Chat.ReadLimitBytes = 64 * 1024
	}
	if cfg.Chat.PingIntervalSeconds == 0 {
		cfg.Chat.PingIntervalSeconds = 30
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "chat.message.sent"
	}
	cfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	cfg.RateLimitWindow = time.Duration(cfg.Chat.RateLimitWindowSecs) * time.Second
	cfg.PingInterval = time.Duration(cfg.Chat.PingIntervalSeconds) * time.Second
}
