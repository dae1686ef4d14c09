package stock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

// CommitMode — режим, в котором фактически выполнился коммит.
type CommitMode string

const (
	ModeTransactional CommitMode = "transactional"
	ModeBestEffort    CommitMode = "best-effort"
)

// UnitOfWork — шаги коммита. comp собирает компенсации, в транзакционном режиме он nil-safe no-op.
type UnitOfWork func(ctx context.Context, comp *Compensator) error

// CommitStrategy решает, как применить UnitOfWork к хранилищу.
type CommitStrategy interface {
	Mode() CommitMode
	Run(ctx context.Context, work UnitOfWork) error
}

// Compensator копит обратные операции для best-effort режима.
type Compensator struct {
	mu    sync.Mutex
	steps []func(ctx context.Context) error
}

// Add регистрирует компенсацию. На nil-получателе ничего не делает.
func (c *Compensator) Add(step func(ctx context.Context) error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.steps = append(c.steps, step)
	c.mu.Unlock()
}

// Len — число накопленных компенсаций.
func (c *Compensator) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.steps)
}

// unwind выполняет компенсации в обратном порядке и возвращает число неудачных.
func (c *Compensator) unwind(ctx context.Context, logger *log.Entry) int {
	c.mu.Lock()
	steps := c.steps
	c.steps = nil
	c.mu.Unlock()

	failed := 0
	for i := len(steps) - 1; i >= 0; i-- {
		if err := steps[i](ctx); err != nil {
			failed++
			logger.WithError(err).Error("compensation step failed, stock may be inconsistent")
		}
	}
	return failed
}

// TransactionalCommit выполняет работу в транзакции хранилища.
type TransactionalCommit struct {
	tx domain.Transactor
}

func NewTransactionalCommit(tx domain.Transactor) *TransactionalCommit {
	return &TransactionalCommit{tx: tx}
}

func (s *TransactionalCommit) Mode() CommitMode { return ModeTransactional }

func (s *TransactionalCommit) Run(ctx context.Context, work UnitOfWork) error {
	return s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		return work(txCtx, nil)
	})
}

// BestEffortCommit выполняет шаги без транзакции и при ошибке откатывает
// уже применённые списания компенсациями. Падение процесса посреди коммита
// может оставить часть списаний применёнными.
type BestEffortCommit struct {
	logger   *log.Entry
	onUnwind func(compensated int)
}

func NewBestEffortCommit(logger *log.Entry) *BestEffortCommit {
	if logger == nil {
		logger = log.New().WithField("component", "stock-commit")
	}
	return &BestEffortCommit{logger: logger}
}

func (s *BestEffortCommit) Mode() CommitMode { return ModeBestEffort }

func (s *BestEffortCommit) Run(ctx context.Context, work UnitOfWork) error {
	comp := &Compensator{}
	err := work(ctx, comp)
	if err == nil {
		return nil
	}
	pending := comp.Len()
	if pending == 0 {
		return err
	}
	// Компенсации не должны зависеть от отмены исходного запроса.
	failed := comp.unwind(context.WithoutCancel(ctx), s.logger)
	s.logger.WithError(err).WithFields(log.Fields{
		"compensated": pending - failed,
		"failed":      failed,
	}).Warn("best-effort commit failed, applied decrements reverted")
	if s.onUnwind != nil {
		s.onUnwind(pending - failed)
	}
	return err
}

// AdaptiveCommit пробует транзакцию и при первом ErrTransactionsUnsupported
// навсегда переключается на best-effort, громко сообщая об этом в лог.
type AdaptiveCommit struct {
	primary    *TransactionalCommit
	fallback   *BestEffortCommit
	degraded   atomic.Bool
	logger     *log.Entry
	onDegraded func()
}

func NewAdaptiveCommit(tx domain.Transactor, logger *log.Entry) *AdaptiveCommit {
	if logger == nil {
		logger = log.New().WithField("component", "stock-commit")
	}
	return &AdaptiveCommit{
		primary:  NewTransactionalCommit(tx),
		fallback: NewBestEffortCommit(logger),
		logger:   logger,
	}
}

func (s *AdaptiveCommit) Mode() CommitMode {
	if s.degraded.Load() {
		return ModeBestEffort
	}
	return ModeTransactional
}

// Degraded сообщает, что транзакции недоступны и коммиты идут в best-effort.
func (s *AdaptiveCommit) Degraded() bool {
	return s.degraded.Load()
}

func (s *AdaptiveCommit) Run(ctx context.Context, work UnitOfWork) error {
	if s.degraded.Load() {
		return s.fallback.Run(ctx, work)
	}

	err := s.primary.Run(ctx, work)
	if !errors.Is(err, domain.ErrTransactionsUnsupported) {
		return err
	}

	if s.degraded.CompareAndSwap(false, true) {
		s.logger.WithError(err).Warn("store does not support transactions, switching stock commits to best-effort mode")
		if s.onDegraded != nil {
			s.onDegraded()
		}
	}
	return s.fallback.Run(ctx, work)
}

var (
	_ CommitStrategy = (*TransactionalCommit)(nil)
	_ CommitStrategy = (*BestEffortCommit)(nil)
	_ CommitStrategy = (*AdaptiveCommit)(nil)
)
