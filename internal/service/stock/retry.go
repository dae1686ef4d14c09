package stock

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

// RetryConfig конфигурация повторов при конфликте версий заказа.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// RetryOnVersionConflict повторяет fn с exponential backoff, пока она возвращает ErrOrderVersionConflict.
// Каждая попытка обязана заново прочитать заказ.
func RetryOnVersionConflict(ctx context.Context, cfg RetryConfig, logger *log.Entry, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	delay := cfg.InitialDelay

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !domain.IsVersionConflict(err) || attempt >= cfg.MaxAttempts {
			return err
		}

		logger.WithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("version conflict detected, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
