package main

import (
	"fmt"
	"os"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge/execution"
	"codejudge/internal/submit/repository"
	"codejudge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 40 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	// AllowOrigins feeds CORS; empty allows none cross-origin.
	AllowOrigins []string `yaml:"allowOrigins"`
	SecureCookie bool     `yaml:"secureCookie"`
}

// TimeoutConfig bounds each external call made while judging.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Cache   time.Duration `yaml:"cache"`
	Judge   time.Duration `yaml:"judge"`
	MQ      time.Duration `yaml:"mq"`
	Storage time.Duration `yaml:"storage"`
}

// SubmitConfig holds submission pipeline settings.
type SubmitConfig struct {
	Cooldown           time.Duration `yaml:"cooldown"`
	PollInterval       time.Duration `yaml:"pollInterval"`
	MaxPollAttempts    int           `yaml:"maxPollAttempts"`
	MaxCodeBytes       int           `yaml:"maxCodeBytes"`
	ListLimit          int           `yaml:"listLimit"`
	ResultTopic        string        `yaml:"resultTopic"`
	TestCaseCacheTTL   time.Duration `yaml:"testCaseCacheTTL"`
	TestCaseEmptyTTL   time.Duration `yaml:"testCaseEmptyTTL"`
	SubmissionCacheTTL time.Duration `yaml:"submissionCacheTTL"`
	SubmissionEmptyTTL time.Duration `yaml:"submissionEmptyTTL"`
	Timeouts           TimeoutConfig `yaml:"timeouts"`
}

// AuthConfig holds token verification and revocation settings.
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwtSecret"`
	JWTIssuer         string        `yaml:"jwtIssuer"`
	AccessTokenTTL    time.Duration `yaml:"accessTokenTTL"`
	LocalCacheSize    int           `yaml:"localCacheSize"`
	LocalCacheTTL     time.Duration `yaml:"localCacheTTL"`
	RevocationTimeout time.Duration `yaml:"revocationTimeout"`
}

// AppConfig holds judge-api configuration.
type AppConfig struct {
	Server   ServerConfig           `yaml:"server"`
	Logger   logger.Config          `yaml:"logger"`
	Database db.MySQLConfig         `yaml:"database"`
	Redis    cache.RedisConfig      `yaml:"redis"`
	Kafka    mq.KafkaConfig         `yaml:"kafka"`
	MinIO    storage.MinIOConfig    `yaml:"minio"`
	Judge0   execution.Judge0Config `yaml:"judge0"`
	Submit   SubmitConfig           `yaml:"submit"`
	Auth     AuthConfig             `yaml:"auth"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	cfg := AppConfig{Redis: *cache.DefaultRedisConfig()}
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Judge0.BaseURL == "" {
		return nil, fmt.Errorf("judge0 baseURL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth jwtSecret is required")
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Judge0.RequestTimeout == 0 {
		cfg.Judge0.RequestTimeout = 10 * time.Second
	}

	if cfg.Submit.Cooldown == 0 {
		cfg.Submit.Cooldown = 10 * time.Second
	}
	if cfg.Submit.PollInterval == 0 {
		cfg.Submit.PollInterval = time.Second
	}
	if cfg.Submit.MaxPollAttempts == 0 {
		cfg.Submit.MaxPollAttempts = 30
	}
	if cfg.Submit.MaxCodeBytes == 0 {
		cfg.Submit.MaxCodeBytes = 64 * 1024
	}
	if cfg.Submit.ListLimit == 0 {
		cfg.Submit.ListLimit = 50
	}
	if cfg.Submit.ResultTopic == "" {
		cfg.Submit.ResultTopic = repository.DefaultResultTopic
	}
	if cfg.Submit.TestCaseCacheTTL == 0 {
		cfg.Submit.TestCaseCacheTTL = 30 * time.Minute
	}
	if cfg.Submit.TestCaseEmptyTTL == 0 {
		cfg.Submit.TestCaseEmptyTTL = 5 * time.Minute
	}
	if cfg.Submit.SubmissionCacheTTL == 0 {
		cfg.Submit.SubmissionCacheTTL = 30 * time.Minute
	}
	if cfg.Submit.SubmissionEmptyTTL == 0 {
		cfg.Submit.SubmissionEmptyTTL = 5 * time.Minute
	}
	if cfg.Submit.Timeouts.DB == 0 {
		cfg.Submit.Timeouts.DB = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Cache == 0 {
		cfg.Submit.Timeouts.Cache = time.Second
	}
	if cfg.Submit.Timeouts.Judge == 0 {
		cfg.Submit.Timeouts.Judge = 10 * time.Second
	}
	if cfg.Submit.Timeouts.MQ == 0 {
		cfg.Submit.Timeouts.MQ = 3 * time.Second
	}
	if cfg.Submit.Timeouts.Storage == 0 {
		cfg.Submit.Timeouts.Storage = 5 * time.Second
	}

	if cfg.Auth.JWTIssuer == "" {
		cfg.Auth.JWTIssuer = "codejudge"
	}
	if cfg.Auth.AccessTokenTTL == 0 {
		cfg.Auth.AccessTokenTTL = time.Hour
	}
	if cfg.Auth.LocalCacheSize == 0 {
		cfg.Auth.LocalCacheSize = 10000
	}
	if cfg.Auth.LocalCacheTTL == 0 {
		cfg.Auth.LocalCacheTTL = time.Minute
	}
	if cfg.Auth.RevocationTimeout == 0 {
		cfg.Auth.RevocationTimeout = cfg.Submit.Timeouts.Cache
	}

	return &cfg, nil
}
