package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Dispatch     DispatchConfig
	Generation   GenerationConfig
	Minimax      ProviderConfig
	Midjourney   ProviderConfig
	SpeedPainter ProviderConfig
	Storage      StorageConfig
	R2           R2Config
	GCS          GCSConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	Gateway      GatewayConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type DatabaseConfig struct {
	Driver       string // postgres | sqlite
	DSN          string
	MaxOpenConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DispatchConfig struct {
	Mode        string // asynq | inline
	Queue       string
	Concurrency int
}

type GenerationConfig struct {
	AudioPollInterval     time.Duration
	ImagePollInterval     time.Duration
	AnimationPollInterval time.Duration
	MaxWait               time.Duration
	HeartbeatInterval     time.Duration
	StaleAfter            time.Duration
	ReapInterval          time.Duration
	MaxPollErrors         int
	SnapshotPollInterval  time.Duration
	DefaultVoiceID        string
	DefaultBotType        string
}

// ProviderConfig is shared by all generation providers. An empty APIKey
// switches the provider to mock mode.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func (p ProviderConfig) Enabled() bool {
	return p.APIKey != ""
}

type StorageConfig struct {
	Driver string // r2 | gcs | memory
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type GCSConfig struct {
	Bucket          string
	PublicURL       string
	CredentialsFile string
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	GeneratePerHour  int
	AnimationPerHour int
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("DATABASE_DSN")
	readSecret("REDIS_PASSWORD")
	readSecret("MINIMAX_API_KEY")
	readSecret("MIDJOURNEY_API_KEY")
	readSecret("SPEEDPAINTER_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("JWT_SECRET")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	bindEnv(v)
	setDefaults(v)

	// Config file is optional
	_ = v.ReadInConfig()

	cfg := build(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.dsn", "DATABASE_DSN")
	_ = v.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.auto_migrate", "DATABASE_AUTO_MIGRATE")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("dispatch.mode", "DISPATCH_MODE")
	_ = v.BindEnv("dispatch.queue", "DISPATCH_QUEUE")
	_ = v.BindEnv("dispatch.concurrency", "DISPATCH_CONCURRENCY")
	_ = v.BindEnv("generation.audio_poll_interval", "AUDIO_POLL_INTERVAL")
	_ = v.BindEnv("generation.image_poll_interval", "IMAGE_POLL_INTERVAL")
	_ = v.BindEnv("generation.animation_poll_interval", "ANIMATION_POLL_INTERVAL")
	_ = v.BindEnv("generation.max_wait", "GENERATION_MAX_WAIT")
	_ = v.BindEnv("generation.heartbeat_interval", "GENERATION_HEARTBEAT_INTERVAL")
	_ = v.BindEnv("generation.stale_after", "GENERATION_STALE_AFTER")
	_ = v.BindEnv("generation.reap_interval", "GENERATION_REAP_INTERVAL")
	_ = v.BindEnv("generation.max_poll_errors", "GENERATION_MAX_POLL_ERRORS")
	_ = v.BindEnv("generation.snapshot_poll_interval", "SNAPSHOT_POLL_INTERVAL")
	_ = v.BindEnv("generation.default_voice_id", "DEFAULT_VOICE_ID")
	_ = v.BindEnv("generation.default_bot_type", "DEFAULT_BOT_TYPE")
	_ = v.BindEnv("minimax.api_key", "MINIMAX_API_KEY")
	_ = v.BindEnv("minimax.base_url", "MINIMAX_BASE_URL")
	_ = v.BindEnv("midjourney.api_key", "MIDJOURNEY_API_KEY")
	_ = v.BindEnv("midjourney.base_url", "MIDJOURNEY_BASE_URL")
	_ = v.BindEnv("speedpainter.api_key", "SPEEDPAINTER_API_KEY")
	_ = v.BindEnv("speedpainter.base_url", "SPEEDPAINTER_BASE_URL")
	_ = v.BindEnv("storage.driver", "STORAGE_DRIVER")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("gcs.bucket", "GCS_BUCKET")
	_ = v.BindEnv("gcs.public_url", "GCS_PUBLIC_URL")
	_ = v.BindEnv("gcs.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:assets.db?_busy_timeout=5000")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("dispatch.mode", "asynq")
	v.SetDefault("dispatch.queue", "assets")
	v.SetDefault("dispatch.concurrency", 10)

	v.SetDefault("generation.audio_poll_interval", "3s")
	v.SetDefault("generation.image_poll_interval", "5s")
	v.SetDefault("generation.animation_poll_interval", "3s")
	v.SetDefault("generation.max_wait", "30m")
	v.SetDefault("generation.heartbeat_interval", "30s")
	v.SetDefault("generation.stale_after", "45m")
	v.SetDefault("generation.reap_interval", "1m")
	v.SetDefault("generation.max_poll_errors", 3)
	v.SetDefault("generation.snapshot_poll_interval", "3s")
	v.SetDefault("generation.default_voice_id", "English_Persuasive_Man")
	v.SetDefault("generation.default_bot_type", "MID_JOURNEY")

	// Provider defaults
	v.SetDefault("minimax.base_url", "https://api.302.ai")
	v.SetDefault("minimax.timeout", "60s")
	v.SetDefault("midjourney.base_url", "https://api.302.ai")
	v.SetDefault("midjourney.timeout", "60s")
	v.SetDefault("speedpainter.base_url", "https://api.a1d.ai")
	v.SetDefault("speedpainter.timeout", "60s")

	v.SetDefault("storage.driver", "memory")

	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("ratelimit.generate_per_hour", 30)
	v.SetDefault("ratelimit.animation_per_hour", 60)
	v.SetDefault("gateway.enabled", false)
}

func build(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(v.GetString("database.driver")),
			DSN:          v.GetString("database.dsn"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			AutoMigrate:  v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Dispatch: DispatchConfig{
			Mode:        strings.ToLower(v.GetString("dispatch.mode")),
			Queue:       v.GetString("dispatch.queue"),
			Concurrency: v.GetInt("dispatch.concurrency"),
		},
		Generation: GenerationConfig{
			AudioPollInterval:     v.GetDuration("generation.audio_poll_interval"),
			ImagePollInterval:     v.GetDuration("generation.image_poll_interval"),
			AnimationPollInterval: v.GetDuration("generation.animation_poll_interval"),
			MaxWait:               v.GetDuration("generation.max_wait"),
			HeartbeatInterval:     v.GetDuration("generation.heartbeat_interval"),
			StaleAfter:            v.GetDuration("generation.stale_after"),
			ReapInterval:          v.GetDuration("generation.reap_interval"),
			MaxPollErrors:         v.GetInt("generation.max_poll_errors"),
			SnapshotPollInterval:  v.GetDuration("generation.snapshot_poll_interval"),
			DefaultVoiceID:        v.GetString("generation.default_voice_id"),
			DefaultBotType:        v.GetString("generation.default_bot_type"),
		},
		Minimax:      providerConfig(v, "minimax"),
		Midjourney:   providerConfig(v, "midjourney"),
		SpeedPainter: providerConfig(v, "speedpainter"),
		Storage: StorageConfig{
			Driver: strings.ToLower(v.GetString("storage.driver")),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		GCS: GCSConfig{
			Bucket:          v.GetString("gcs.bucket"),
			PublicURL:       v.GetString("gcs.public_url"),
			CredentialsFile: v.GetString("gcs.credentials_file"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour:  v.GetInt("ratelimit.generate_per_hour"),
			AnimationPerHour: v.GetInt("ratelimit.animation_per_hour"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
	}
}

func providerConfig(v *viper.Viper, name string) ProviderConfig {
	return ProviderConfig{
		APIKey:  v.GetString(name + ".api_key"),
		BaseURL: strings.TrimRight(v.GetString(name+".base_url"), "/"),
		Timeout: v.GetDuration(name + ".timeout"),
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	switch c.Dispatch.Mode {
	case "asynq", "inline":
	default:
		return fmt.Errorf("config: unknown dispatch mode %q", c.Dispatch.Mode)
	}
	switch c.Storage.Driver {
	case "r2", "gcs", "memory":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	g := c.Generation
	if g.AudioPollInterval <= 0 || g.ImagePollInterval <= 0 || g.AnimationPollInterval <= 0 {
		return fmt.Errorf("config: poll intervals must be positive")
	}
	if g.MaxWait <= 0 {
		return fmt.Errorf("config: generation.max_wait must be positive")
	}
	if g.StaleAfter <= g.MaxWait {
		return fmt.Errorf("config: generation.stale_after (%s) must exceed generation.max_wait (%s)", g.StaleAfter, g.MaxWait)
	}
	if g.MaxPollErrors < 1 {
		return fmt.Errorf("config: generation.max_poll_errors must be at least 1")
	}
	if c.Storage.Driver == "gcs" && c.GCS.Bucket == "" {
		return fmt.Errorf("config: gcs.bucket is required for the gcs storage driver")
	}
	return nil
}
