package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/nikola1125/ashila-backend/internal/app"
	"github.com/nikola1125/ashila-backend/internal/version"
)

const (
	envHTTPAddr            = "OMS_HTTP_ADDR"
	envGRPCAddr            = "OMS_GRPC_ADDR"
	envMetricsAddr         = "OMS_METRICS_ADDR"
	envStorageDriver       = "OMS_STORAGE_DRIVER"
	envPostgresDSN         = "OMS_POSTGRES_DSN"
	envPostgresAutoMigrate = "OMS_POSTGRES_AUTO_MIGRATE"
	envMongoURI            = "OMS_MONGO_URI"
	envMongoDatabase       = "OMS_MONGO_DATABASE"
	envCommitMode          = "OMS_COMMIT_MODE"
	envShippingCost        = "OMS_SHIPPING_COST"
	envRestockOnCancel     = "OMS_RESTOCK_ON_CANCEL"
	envJWTSecret           = "OMS_JWT_SECRET"
	envJWTExpiry           = "OMS_JWT_EXPIRY"
	envAllowedOrigins      = "OMS_ALLOWED_ORIGINS"
	envSMTPHost            = "OMS_SMTP_HOST"
	envSMTPPort            = "OMS_SMTP_PORT"
	envSMTPUser            = "OMS_SMTP_USER"
	envSMTPPassword        = "OMS_SMTP_PASSWORD"
	envSMTPFrom            = "OMS_SMTP_FROM"
	envSMTPSSL             = "OMS_SMTP_SSL"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envNotifyWorkers       = "OMS_NOTIFY_WORKERS"
	envNotifyQueue         = "OMS_NOTIFY_QUEUE"
	envLogLevel            = "OMS_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if strings.TrimSpace(level) == "" {
		return nil
	}
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return err
	}
	log.SetLevel(parsed)
	return nil
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не роняют старт: поле остаётся по умолчанию, а в warnings попадает причина.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envMongoURI, &cfg.MongoURI)
	str(envMongoDatabase, &cfg.MongoDatabase)
	str(envCommitMode, &cfg.CommitMode)
	cfg.CommitMode = strings.ToLower(cfg.CommitMode)
	boolean(envRestockOnCancel, &cfg.RestockOnCancel)

	shipping := int(cfg.ShippingCost)
	integer(envShippingCost, &shipping, func(v int) bool { return v >= 0 }, "must be >= 0")
	cfg.ShippingCost = int64(shipping)

	str(envJWTSecret, &cfg.JWTSecret)
	if v, ok := lookup(envJWTExpiry); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
		if err != nil {
			warn(envJWTExpiry, v, err)
		} else {
			cfg.JWTExpiry = parsed
		}
	}
	str(envAllowedOrigins, &cfg.AllowedOrigins)

	str(envSMTPHost, &cfg.SMTP.Host)
	integer(envSMTPPort, &cfg.SMTP.Port, func(v int) bool { return v > 0 && v <= 65535 }, "must be a tcp port")
	str(envSMTPUser, &cfg.SMTP.User)
	if v, ok := lookup(envSMTPPassword); ok {
		cfg.SMTP.Password = v
	}
	str(envSMTPFrom, &cfg.SMTP.From)
	boolean(envSMTPSSL, &cfg.SMTP.SSL)

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	integer(envNotifyWorkers, &cfg.NotifyWorkers, func(v int) bool { return v > 0 }, "must be > 0")
	integer(envNotifyQueue, &cfg.NotifyQueue, func(v int) bool { return v > 0 }, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	envFileErr := godotenv.Load()

	levelErr := setupLogger(os.Getenv(envLogLevel))
	if levelErr != nil {
		log.WithError(levelErr).Warn("invalid log level, using info")
	}
	if envFileErr != nil && !errors.Is(envFileErr, os.ErrNotExist) {
		log.WithError(envFileErr).Warn("failed to load .env file")
	}
	gin.SetMode(gin.ReleaseMode)

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"commit_mode":    cfg.CommitMode,
		"version":        version.String(),
	}).Info("запускаем storefront order service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront order service остановлен")
}
