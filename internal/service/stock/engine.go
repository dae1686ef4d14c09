package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nikola1125/ashila-backend/internal/domain"
	"github.com/nikola1125/ashila-backend/internal/metrics"
)

// Engine проверяет наличие товаров и списывает остатки при подтверждении заказа.
type Engine struct {
	catalog  domain.CatalogRepository
	orders   domain.OrderRepository
	strategy CommitStrategy
	logger   *log.Entry
	metrics  *metrics.StockMetrics
	retry    RetryConfig
	locks    *orderLocks
}

// Option настраивает Engine.
type Option func(*Engine)

func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetrics(m *metrics.StockMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithRetry(cfg RetryConfig) Option {
	return func(e *Engine) {
		e.retry = cfg
	}
}

// NewEngine собирает движок поверх каталога, заказов и стратегии коммита.
func NewEngine(catalog domain.CatalogRepository, orders domain.OrderRepository, strategy CommitStrategy, opts ...Option) *Engine {
	e := &Engine{
		catalog:  catalog,
		orders:   orders,
		strategy: strategy,
		logger:   log.New().WithField("component", "stock-engine"),
		retry:    DefaultRetryConfig(),
		locks:    newOrderLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.instrumentStrategy()
	return e
}

func (e *Engine) instrumentStrategy() {
	if e.metrics == nil {
		return
	}
	onUnwind := func(n int) {
		for i := 0; i < n; i++ {
			e.metrics.RecordCompensation()
		}
	}
	switch s := e.strategy.(type) {
	case *BestEffortCommit:
		s.onUnwind = onUnwind
		e.metrics.SetDegraded(true)
	case *AdaptiveCommit:
		s.fallback.onUnwind = onUnwind
		s.onDegraded = func() { e.metrics.SetDegraded(true) }
	}
}

// Mode возвращает текущий режим коммита.
func (e *Engine) Mode() CommitMode {
	return e.strategy.Mode()
}

// AvailabilityResult — итог проверки наличия.
type AvailabilityResult struct {
	Shortfalls []domain.Shortfall
}

// OK — всех позиций хватает.
func (r AvailabilityResult) OK() bool {
	return len(r.Shortfalls) == 0
}

// Err возвращает *domain.ShortfallError или nil.
func (r AvailabilityResult) Err() error {
	if r.OK() {
		return nil
	}
	return &domain.ShortfallError{Shortfalls: r.Shortfalls}
}

// CheckAvailability проверяет все позиции параллельно и ничего не меняет.
// Несуществующий товар или размер считается нулевым остатком.
// Ошибка возвращается только при сбое хранилища.
func (e *Engine) CheckAvailability(ctx context.Context, items []domain.StockRequest) (AvailabilityResult, error) {
	shortfalls := make([]*domain.Shortfall, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			shortfall, err := e.checkItem(gctx, item)
			if err != nil {
				return err
			}
			shortfalls[i] = shortfall
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.recordCheck("error")
		return AvailabilityResult{}, fmt.Errorf("check availability: %w", err)
	}

	var result AvailabilityResult
	for _, s := range shortfalls {
		if s != nil {
			result.Shortfalls = append(result.Shortfalls, *s)
		}
	}
	if result.OK() {
		e.recordCheck("ok")
	} else {
		e.recordCheck("shortfall")
	}
	return result, nil
}

func (e *Engine) checkItem(ctx context.Context, item domain.StockRequest) (*domain.Shortfall, error) {
	available := 0
	name := item.ItemName

	loc, err := e.ResolveStockLocation(ctx, item.ProductID, item.SelectedSize)
	switch {
	case err == nil:
		available = loc.Available
		if name == "" {
			name = loc.ItemName
		}
	case domain.IsNotFound(err):
	default:
		return nil, fmt.Errorf("resolve %s: %w", item.ProductID, err)
	}

	if item.Quantity <= available {
		return nil, nil
	}
	return &domain.Shortfall{
		ProductID:         item.ProductID,
		ItemName:          name,
		SelectedSize:      item.SelectedSize,
		RequestedQuantity: item.Quantity,
		AvailableStock:    available,
	}, nil
}

// Transition строит новую версию заказа из только что перечитанной.
type Transition func(current domain.Order) (domain.Order, error)

// CommitResult — итог коммита.
type CommitResult struct {
	Order domain.Order
	// NoOp — заказ уже был в целевом состоянии, остатки не трогались и заказ не сохранялся.
	NoOp bool
	Mode CommitMode
}

// CommitReservation списывает остатки всех позиций и переводит заказ в confirmed
// одним блоком работы. Если заказ уже подтверждён, ничего не списывает.
// Сбой любого условного списания отменяет весь коммит с *domain.ConflictError.
//
// Статус сохраняется последним: пока списания не применены, заказ остаётся pending.
// Проигравший по версии коммит откатывает свои списания и на повторе видит confirmed.
func (e *Engine) CommitReservation(ctx context.Context, orderID string, transition Transition) (CommitResult, error) {
	started := time.Now()
	logger := e.logger.WithField("order_id", orderID)

	unlock := e.locks.lock(orderID)
	defer unlock()

	var result CommitResult
	err := RetryOnVersionConflict(ctx, e.retry, logger, func() error {
		return e.strategy.Run(ctx, func(ctx context.Context, comp *Compensator) error {
			result = CommitResult{}

			current, err := e.orders.Get(ctx, orderID)
			if err != nil {
				return err
			}
			if current.Status == domain.OrderStatusConfirmed {
				result = CommitResult{Order: current, NoOp: true}
				return nil
			}

			next, err := transition(current)
			if err != nil {
				return err
			}
			if next.Status != domain.OrderStatusConfirmed {
				return fmt.Errorf("%w: commit requires %s target, got %s", domain.ErrInvalidTransition, domain.OrderStatusConfirmed, next.Status)
			}

			for _, item := range current.Items {
				if err := e.decrementItem(ctx, item, comp); err != nil {
					return err
				}
			}
			if err := e.orders.Save(ctx, next); err != nil {
				return err
			}

			next.Version = current.Version + 1
			result.Order = next
			return nil
		})
	})

	if err != nil && errors.Is(err, domain.ErrStockConflict) {
		// Списание могло проиграть коммиту того же заказа из другого процесса.
		if current, getErr := e.orders.Get(ctx, orderID); getErr == nil && current.Status == domain.OrderStatusConfirmed {
			result, err = CommitResult{Order: current, NoOp: true}, nil
		}
	}

	result.Mode = e.strategy.Mode()
	outcome := commitOutcome(result, err)
	if e.metrics != nil {
		e.metrics.RecordCommit(string(result.Mode), outcome, time.Since(started))
	}

	entry := logger.WithFields(log.Fields{"mode": result.Mode, "outcome": outcome})
	switch {
	case err != nil && errors.Is(err, domain.ErrStockConflict):
		entry.WithError(err).Warn("stock commit rejected")
	case err != nil:
		entry.WithError(err).Error("stock commit failed")
	case result.NoOp:
		entry.Info("order already confirmed, stock untouched")
	default:
		entry.Info("stock committed")
	}

	if err != nil {
		return CommitResult{Mode: result.Mode}, err
	}
	return result, nil
}

// claim сохраняет next с проверкой версии и регистрирует возврат к current.
func (e *Engine) claim(ctx context.Context, current, next domain.Order, comp *Compensator) error {
	if err := e.orders.Save(ctx, next); err != nil {
		return err
	}
	comp.Add(func(ctx context.Context) error {
		restored := current.Clone()
		restored.Version = current.Version + 1
		return e.orders.Save(ctx, restored)
	})
	return nil
}

func (e *Engine) decrementItem(ctx context.Context, item domain.LineItem, comp *Compensator) error {
	loc, err := e.ResolveStockLocation(ctx, item.ProductID, item.SelectedSize)
	if err != nil {
		if domain.IsNotFound(err) {
			return conflictFor(item, 0)
		}
		return fmt.Errorf("resolve stock for %s: %w", item.ProductID, err)
	}

	ok, err := e.catalog.DecrementStock(ctx, loc, item.Quantity)
	if err != nil {
		return fmt.Errorf("decrement stock for %s: %w", item.ProductID, err)
	}
	if !ok {
		return conflictFor(item, e.availableAt(ctx, item))
	}

	qty := item.Quantity
	comp.Add(func(ctx context.Context) error {
		restored, err := e.catalog.IncrementStock(ctx, loc, qty)
		if err != nil {
			return err
		}
		if !restored {
			return fmt.Errorf("stock location %s/%s disappeared before compensation", loc.ProductID, loc.Size)
		}
		return nil
	})
	return nil
}

// availableAt перечитывает остаток для сообщения об ошибке.
func (e *Engine) availableAt(ctx context.Context, item domain.LineItem) int {
	loc, err := e.ResolveStockLocation(ctx, item.ProductID, item.SelectedSize)
	if err != nil {
		return 0
	}
	return loc.Available
}

func conflictFor(item domain.LineItem, available int) *domain.ConflictError {
	return &domain.ConflictError{
		ProductID:    item.ProductID,
		ItemName:     item.ItemName,
		SelectedSize: item.SelectedSize,
		Requested:    item.Quantity,
		Available:    available,
	}
}

// ReleaseReservation применяет transition и, если перечитанный заказ был confirmed,
// а новый статус cancelled, возвращает остатки позиций на склад.
// Позиции, чей товар или размер исчез, пропускаются с предупреждением.
func (e *Engine) ReleaseReservation(ctx context.Context, orderID string, transition Transition) (CommitResult, error) {
	logger := e.logger.WithField("order_id", orderID)

	unlock := e.locks.lock(orderID)
	defer unlock()

	var result CommitResult
	err := RetryOnVersionConflict(ctx, e.retry, logger, func() error {
		return e.strategy.Run(ctx, func(ctx context.Context, comp *Compensator) error {
			result = CommitResult{}

			current, err := e.orders.Get(ctx, orderID)
			if err != nil {
				return err
			}
			next, err := transition(current)
			if err != nil {
				return err
			}

			if err := e.claim(ctx, current, next, comp); err != nil {
				return err
			}
			restock := current.Status == domain.OrderStatusConfirmed && next.Status == domain.OrderStatusCancelled
			if restock {
				for _, item := range current.Items {
					if err := e.incrementItem(ctx, item, comp, logger); err != nil {
						return err
					}
				}
			}

			next.Version = current.Version + 1
			result = CommitResult{Order: next, NoOp: !restock}
			return nil
		})
	})

	result.Mode = e.strategy.Mode()
	if err != nil {
		logger.WithError(err).Error("stock release failed")
		return CommitResult{Mode: result.Mode}, err
	}
	if !result.NoOp {
		logger.WithField("mode", result.Mode).Info("stock released")
	}
	return result, nil
}

func (e *Engine) incrementItem(ctx context.Context, item domain.LineItem, comp *Compensator, logger *log.Entry) error {
	entry := logger.WithFields(log.Fields{"product_id": item.ProductID, "size": item.SelectedSize})

	loc, err := e.ResolveStockLocation(ctx, item.ProductID, item.SelectedSize)
	if err != nil {
		if domain.IsNotFound(err) {
			entry.Warn("restock skipped, product no longer exists")
			return nil
		}
		return fmt.Errorf("resolve stock for %s: %w", item.ProductID, err)
	}

	ok, err := e.catalog.IncrementStock(ctx, loc, item.Quantity)
	if err != nil {
		return fmt.Errorf("restock %s: %w", item.ProductID, err)
	}
	if !ok {
		entry.Warn("restock skipped, stock location changed")
		return nil
	}

	qty := item.Quantity
	comp.Add(func(ctx context.Context) error {
		_, err := e.catalog.DecrementStock(ctx, loc, qty)
		return err
	})
	return nil
}

func (e *Engine) recordCheck(outcome string) {
	if e.metrics != nil {
		e.metrics.RecordAvailabilityCheck(outcome)
	}
}

func commitOutcome(result CommitResult, err error) string {
	switch {
	case err == nil && result.NoOp:
		return "noop"
	case err == nil:
		return "committed"
	case errors.Is(err, domain.ErrStockConflict):
		return "conflict"
	case domain.IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}
