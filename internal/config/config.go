package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	GitHubToken string

	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIMaxTokens   int
	OpenAITemperature float64
	AIFileDelay       time.Duration
	AnalysisTimeout   time.Duration
	AnalysisRetries   uint64

	FetchTimeout time.Duration
	FetchRetries uint64

	StatsCacheTTL time.Duration
	FailedWindow  time.Duration
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
	v.SetEnvPrefix("KELASKU")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Kelasku API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("openai.temperature", 0.2)
	v.SetDefault("ai.file_delay", "500ms")
	v.SetDefault("analysis.timeout", "2m")
	v.SetDefault("analysis.retries", 3)
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("stats.cache_ttl", "5m")
	v.SetDefault("failed.window", "24h")

	fileDelay, err := parseDuration(v, "ai.file_delay", 500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}

	analysisTimeout, err := parseDuration(v, "analysis.timeout", 2*time.Minute)
	if err != nil {
		return Config{}, err
	}

	fetchTimeout, err := parseDuration(v, "fetch.timeout", 30*time.Second)
	if err != nil {
		return Config{}, err
	}

	cacheTTL, err := parseDuration(v, "stats.cache_ttl", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}

	failedWindow, err := parseDuration(v, "failed.window", 24*time.Hour)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		DatabaseURL:       v.GetString("database.url"),
		RedisURL:          v.GetString("redis.url"),
		NATSURL:           v.GetString("nats.url"),
		JWTSecret:         v.GetString("jwt.secret"),
		GitHubToken:       v.GetString("github.token"),
		OpenAIAPIKey:      v.GetString("openai.api_key"),
		OpenAIModel:       v.GetString("openai.model"),
		OpenAIMaxTokens:   v.GetInt("openai.max_tokens"),
		OpenAITemperature: v.GetFloat64("openai.temperature"),
		AIFileDelay:       fileDelay,
		AnalysisTimeout:   analysisTimeout,
		AnalysisRetries:   v.GetUint64("analysis.retries"),
		FetchTimeout:      fetchTimeout,
		FetchRetries:      v.GetUint64("fetch.retries"),
		StatsCacheTTL:     cacheTTL,
		FailedWindow:      failedWindow,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.OpenAIMaxTokens <= 0 {
		cfg.OpenAIMaxTokens = 1024
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}
