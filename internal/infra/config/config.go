package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	Slack struct {
		SigningSecret string `envconfig:"SLACK_SIGNING_SECRET"`
		BotToken      string `envconfig:"SLACK_BOT_TOKEN"`
		BaseURL       string `envconfig:"SLACK_API_BASE_URL"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Renderer struct {
		BaseURL string        `envconfig:"RENDERER_BASE_URL"`
		Timeout time.Duration `envconfig:"RENDERER_TIMEOUT" default:"30s"`
	} `envconfig:""`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Limits struct {
		PromptBudget  int           `envconfig:"PROMPT_BUDGET_CHARS" default:"12000"`
		MaxMessages   int           `envconfig:"PROMPT_MAX_MESSAGES" default:"50"`
		DedupTTL      time.Duration `envconfig:"DEDUP_TTL" default:"15m"`
		RetentionDays int           `envconfig:"MESSAGE_RETENTION_DAYS" default:"90"`
	} `envconfig:""`

	Queues struct {
		Render string `envconfig:"RENDER_QUEUE_KEY" default:"render_jobs"`
	} `envconfig:""`

	Schedule struct {
		EODSpec string `envconfig:"EOD_CRON" default:"0 18 * * 1-5"`
		EOWSpec string `envconfig:"EOW_CRON" default:"0 17 * * 5"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения. Файл .env подхватывается, если есть.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
