package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	SignedURLTTL   time.Duration

	OpenAIAPIKey string
	VisionModel  string
	TextModel    string

	PipelineMaxRetries  int
	PipelineWorkerCount int
	UploadTimeout       time.Duration
	ModelTimeout        time.Duration

	StatsCacheTTL time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PAPERGRADE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "PaperGrade API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("minio.bucket", "papergrade-images")
	v.SetDefault("minio.use_ssl", true)
	v.SetDefault("signed_url_ttl", "8760h")
	v.SetDefault("ai.vision_model", "gpt-4o")
	v.SetDefault("ai.text_model", "gpt-4o")
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.worker_count", 4)
	v.SetDefault("upload_timeout", "30s")
	v.SetDefault("model_timeout", "90s")
	v.SetDefault("stats.cache_ttl", "5m")

	signedTTL, err := time.ParseDuration(v.GetString("signed_url_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid signed url ttl: %w", err)
	}

	uploadTimeout, err := time.ParseDuration(v.GetString("upload_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid upload timeout: %w", err)
	}

	modelTimeout, err := time.ParseDuration(v.GetString("model_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid model timeout: %w", err)
	}

	statsTTL, err := time.ParseDuration(v.GetString("stats.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid stats cache ttl: %w", err)
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		MinioEndpoint:       v.GetString("minio.endpoint"),
		MinioAccessKey:      v.GetString("minio.access_key"),
		MinioSecretKey:      v.GetString("minio.secret_key"),
		MinioBucket:         v.GetString("minio.bucket"),
		MinioUseSSL:         v.GetBool("minio.use_ssl"),
		SignedURLTTL:        signedTTL,
		OpenAIAPIKey:        v.GetString("openai_api_key"),
		VisionModel:         v.GetString("ai.vision_model"),
		TextModel:           v.GetString("ai.text_model"),
		PipelineMaxRetries:  v.GetInt("pipeline.max_retries"),
		PipelineWorkerCount: v.GetInt("pipeline.worker_count"),
		UploadTimeout:       uploadTimeout,
		ModelTimeout:        modelTimeout,
		StatsCacheTTL:       statsTTL,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("openai api key must be provided")
	}

	if cfg.PipelineMaxRetries < 0 {
		cfg.PipelineMaxRetries = 0
	}

	if cfg.PipelineWorkerCount <= 0 {
		cfg.PipelineWorkerCount = 4
	}

	return cfg, nil
}
