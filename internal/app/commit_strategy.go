package app

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/nikola1125/ashila-backend/internal/domain"
	"github.com/nikola1125/ashila-backend/internal/service/stock"
)

// newCommitStrategy выбирает стратегию коммита остатков по режиму из конфигурации.
func newCommitStrategy(mode string, tx domain.Transactor, logger *log.Entry) (stock.CommitStrategy, error) {
	logger = logger.WithField("component", "stock-commit")

	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", CommitModeAuto:
		return stock.NewAdaptiveCommit(tx, logger), nil
	case CommitModeTransactional:
		return stock.NewTransactionalCommit(tx), nil
	case CommitModeBestEffort:
		logger.Warn("stock commits configured in best-effort mode, partial decrements are compensated without a transaction")
		return stock.NewBestEffortCommit(logger), nil
	default:
		return nil, fmt.Errorf("unsupported commit mode %q", mode)
	}
}
