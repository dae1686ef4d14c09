package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/nikola1125/ashila-backend/internal/messaging/kafka"
	"github.com/nikola1125/ashila-backend/internal/notification/email"
	"github.com/nikola1125/ashila-backend/internal/service/notify"
)

// initNotifySinks собирает получателей уведомлений о подтверждении.
// Ошибки конфигурации отдельного канала не мешают старту: канал просто отключается.
func initNotifySinks(cfg Config, logger *log.Entry) ([]notify.Sink, *kafka.Producer) {
	var sinks []notify.Sink

	if cfg.SMTP.Enabled() {
		sender, err := email.NewSender(cfg.SMTP, logger.WithField("component", "email"))
		if err != nil {
			logger.WithError(err).Warn("failed to create email sender, continuing without email notifications")
		} else {
			sinks = append(sinks, notify.Sink{Name: "email", Notifier: sender})
			logger.WithField("smtp_host", cfg.SMTP.Host).Info("email notifications enabled")
		}
	}

	producer := initKafkaProducer(splitList(cfg.KafkaBrokers), logger)
	if producer != nil {
		sinks = append(sinks, notify.Sink{Name: "kafka", Notifier: kafka.NewOrderEventNotifier(producer)})
	}

	if len(sinks) == 0 {
		logger.Info("no notification sinks configured, confirmations are not announced")
	}
	return sinks, producer
}

func initKafkaProducer(brokers []string, logger *log.Entry) *kafka.Producer {
	if len(brokers) == 0 {
		return nil
	}
	producer, err := kafka.NewProducer(brokers, logger.WithField("component", "kafka"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}
	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer
}

func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
