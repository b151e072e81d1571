package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL string

	// WhatsApp gateway
	WhatsAppAPIBaseURL   string
	WhatsAppAPIToken     string
	WhatsAppWebhookToken string
	WhatsAppSendTimeout  time.Duration
	WhatsAppSendDelayMS  int

	AdminJWTSecret     string
	CronToken          string
	CORSAllowedOrigins []string

	RedisAddr         string
	RedisPassword     string
	RedisTLS          bool
	ProcessedEventTTL time.Duration

	// Scheduled-send dispatcher
	SchedulerBatchSize    int
	SchedulerInterval     time.Duration
	SchedulerClaimTimeout time.Duration

	// Scheduler lambda trigger
	UpstreamBaseURL string
	UpstreamTimeout time.Duration

	// Chat assistant
	AssistantEnabled         bool
	AssistantPrimaryProvider string
	AssistantSystemPrompt    string
	AssistantHistoryLimit    int
	UseMemoryQueue           bool
	AssistantQueueURL        string
	WorkerCount              int
	GeminiAPIKey             string
	GeminiModelID            string
	BedrockModelID           string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	MediaArchiveBucket string

	// Operator alert email
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	SESFromEmail       string
	OperatorAlertEmail string
}

const defaultAssistantPrompt = "Você é a assistente virtual da secretaria da escola. " +
	"Responda em português, de forma breve e cordial, dúvidas sobre matrículas, horários e mensalidades. " +
	"Quando não souber a resposta, diga que a equipe entrará em contato."

// Load reads configuration from environment variables. A .env file in the
// working directory, when present, seeds variables that are not already set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		WhatsAppAPIBaseURL:   strings.TrimRight(getEnv("WHATSAPP_API_BASE_URL", ""), "/"),
		WhatsAppAPIToken:     getEnv("WHATSAPP_API_TOKEN", ""),
		WhatsAppWebhookToken: getEnv("WHATSAPP_WEBHOOK_TOKEN", ""),
		WhatsAppSendTimeout:  getEnvAsDuration("WHATSAPP_SEND_TIMEOUT", 10*time.Second),
		WhatsAppSendDelayMS:  getEnvAsInt("WHATSAPP_SEND_DELAY_MS", 1200),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CronToken:          getEnv("CRON_TOKEN", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisTLS:          getEnvAsBool("REDIS_TLS", false),
		ProcessedEventTTL: getEnvAsDuration("PROCESSED_EVENT_TTL", 24*time.Hour),

		SchedulerBatchSize:    getEnvAsInt("SCHEDULER_BATCH_SIZE", 20),
		SchedulerInterval:     getEnvAsDuration("SCHEDULER_INTERVAL", time.Minute),
		SchedulerClaimTimeout: getEnvAsDuration("SCHEDULER_CLAIM_TIMEOUT", 10*time.Minute),

		UpstreamBaseURL: strings.TrimRight(getEnv("UPSTREAM_BASE_URL", ""), "/"),
		UpstreamTimeout: getEnvAsDuration("UPSTREAM_TIMEOUT", 50*time.Second),

		AssistantEnabled:         getEnvAsBool("ASSISTANT_ENABLED", false),
		AssistantPrimaryProvider: strings.ToLower(strings.TrimSpace(getEnv("ASSISTANT_PRIMARY_PROVIDER", "gemini"))),
		AssistantSystemPrompt:    getEnv("ASSISTANT_SYSTEM_PROMPT", defaultAssistantPrompt),
		AssistantHistoryLimit:    getEnvAsInt("ASSISTANT_HISTORY_LIMIT", 12),
		UseMemoryQueue:           getEnvAsBool("USE_MEMORY_QUEUE", true),
		AssistantQueueURL:        getEnv("ASSISTANT_QUEUE_URL", ""),
		WorkerCount:              getEnvAsInt("WORKER_COUNT", 2),
		GeminiAPIKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:            getEnv("GEMINI_MODEL_ID", "gemini-1.5-flash"),
		BedrockModelID:           getEnv("BEDROCK_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "sa-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		MediaArchiveBucket: getEnv("MEDIA_ARCHIVE_BUCKET", ""),

		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Secretaria"),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),
		OperatorAlertEmail: getEnv("OPERATOR_ALERT_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
