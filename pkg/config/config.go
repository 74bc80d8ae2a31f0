package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Queue    QueueConfig
	Storage  StorageConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type QueueConfig struct {
	Region        string
	InboundURL    string
	DeadLetterURL string
	OutboundURL   string
	WaitTime      time.Duration
	// VisibilityTimeout of the inbound queue; the dedup retention window
	// must cover at least one redelivery cycle.
	VisibilityTimeout time.Duration
}

type StorageConfig struct {
	Region   string
	Bucket   string
	Endpoint string // non-empty for S3-compatible stores in development
}

type OCRConfig struct {
	Provider string // "textract"
	Region   string
	Timeout  time.Duration
}

type LLMConfig struct {
	Provider      string // "gemini" or "gigachat"
	GeminiAPIKey  string
	GeminiModel   string
	GigaChatKey   string
	GigaChatScope string
	Timeout       time.Duration
}

type PipelineConfig struct {
	Workers         int
	InitialStrategy string
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	AlbumWindow     time.Duration
	DedupWindow     time.Duration
	DedupCapacity   int
	MaxReceipts     int     // per-user record cap
	TolerancePct    float64 // total reconciliation tolerance, relative percent
	ToleranceFloor  float64 // absolute tolerance floor in currency units
	MinConfidence   float64
	MaxDateAge      time.Duration
	UserIDSalt      string
	MaxImageDim     int
	PreprocessLevel string // "fast", "balanced" or "quality"
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "receiptflow"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Queue: QueueConfig{
			Region:            getEnv("AWS_REGION", "eu-central-1"),
			InboundURL:        getEnv("SQS_INBOUND_URL", ""),
			DeadLetterURL:     getEnv("SQS_DEAD_LETTER_URL", ""),
			OutboundURL:       getEnv("SQS_OUTBOUND_URL", ""),
			WaitTime:          getEnvDuration("SQS_WAIT_TIME", 20*time.Second),
			VisibilityTimeout: getEnvDuration("SQS_VISIBILITY_TIMEOUT", 5*time.Minute),
		},
		Storage: StorageConfig{
			Region:   getEnv("AWS_REGION", "eu-central-1"),
			Bucket:   getEnv("S3_BUCKET", "receiptflow-images"),
			Endpoint: getEnv("S3_ENDPOINT", ""),
		},
		OCR: OCRConfig{
			Provider: getEnv("OCR_PROVIDER", "textract"),
			Region:   getEnv("AWS_REGION", "eu-central-1"),
			Timeout:  getEnvDuration("OCR_TIMEOUT", 45*time.Second),
		},
		LLM: LLMConfig{
			Provider:      getEnv("LLM_PROVIDER", "gemini"),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			GigaChatKey:   getEnv("GIGACHAT_API_KEY", ""),
			GigaChatScope: getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			Timeout:       getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:         getEnvInt("PIPELINE_WORKERS", 8),
			InitialStrategy: getEnv("INITIAL_STRATEGY", "llm_direct"),
			MaxRetries:      getEnvInt("MAX_RETRIES", 3),
			BackoffBase:     getEnvDuration("BACKOFF_BASE", time.Second),
			BackoffMax:      getEnvDuration("BACKOFF_MAX", 8*time.Second),
			AlbumWindow:     getEnvDuration("ALBUM_WINDOW", 3*time.Second),
			DedupWindow:     getEnvDuration("DEDUP_WINDOW", 10*time.Minute),
			DedupCapacity:   getEnvInt("DEDUP_CAPACITY", 4096),
			MaxReceipts:     getEnvInt("MAX_RECEIPTS_PER_USER", 100),
			TolerancePct:    getEnvFloat("RECONCILE_TOLERANCE_PCT", 2.5),
			ToleranceFloor:  getEnvFloat("RECONCILE_TOLERANCE_FLOOR", 0.10),
			MinConfidence:   getEnvFloat("MIN_CONFIDENCE", 0.5),
			MaxDateAge:      getEnvDuration("MAX_RECEIPT_AGE", 180*24*time.Hour),
			UserIDSalt:      getEnv("USER_ID_SALT", "receiptflow-default-salt-change-in-production"),
			MaxImageDim:     getEnvInt("MAX_IMAGE_DIMENSION", 2000),
			PreprocessLevel: getEnv("PREPROCESS_LEVEL", "balanced"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
