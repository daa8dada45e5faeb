package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// Токен для межсервисной авторизации HTTP API.
	ServiceToken string `envconfig:"SERVICE_TOKEN"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQP struct {
		URL string `envconfig:"AMQP_URL"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Companion struct {
		WebhookURL string        `envconfig:"COMPANION_WEBHOOK_URL"`
		Timeout    time.Duration `envconfig:"COMPANION_WEBHOOK_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Queues struct {
		Nudges string `envconfig:"NUDGE_QUEUE_KEY" default:"nudge_jobs"`
	} `envconfig:""`

	Sweep struct {
		Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	} `envconfig:""`

	Worker struct {
		MaxAttempts int `envconfig:"WORKER_MAX_ATTEMPTS" default:"5"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
