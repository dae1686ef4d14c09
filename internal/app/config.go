package app

import (
	"strings"
	"time"

	"github.com/nikola1125/ashila-backend/internal/notification/email"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverMongo    = "mongo"
)

const (
	CommitModeAuto          = "auto"
	CommitModeTransactional = "transactional"
	CommitModeBestEffort    = "best-effort"
)

// Config описывает настройки запуска сервиса.
// Списки (брокеры Kafka, CORS origins) хранятся строкой через запятую,
// чтобы Config оставался сравнимым значением.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	MongoURI            string
	MongoDatabase       string

	CommitMode      string
	ShippingCost    int64
	RestockOnCancel bool

	JWTSecret      string
	JWTExpiry      time.Duration
	AllowedOrigins string

	SMTP          email.Config
	KafkaBrokers  string
	NotifyWorkers int
	NotifyQueue   int
}

// DefaultConfig возвращает конфигурацию для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		MongoURI:            "mongodb://localhost:27017",
		MongoDatabase:       "storefront",
		CommitMode:          CommitModeAuto,
		ShippingCost:        300,
		RestockOnCancel:     true,
		JWTExpiry:           24 * time.Hour,
		SMTP:                email.Config{Port: 587},
		NotifyWorkers:       2,
		NotifyQueue:         128,
	}
}

// splitList разбирает список через запятую, пропуская пустые элементы.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
