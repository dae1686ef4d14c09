package memory

import (
	"context"
	"sync"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

// Store — in-memory каталог и заказы для локальной разработки и тестов.
// Записи сериализуются writeMu; транзакция держит его целиком и откатывается по журналу.
type Store struct {
	writeMu sync.Mutex

	mu           sync.RWMutex
	products     map[string]domain.Product
	orders       map[string]domain.Order
	orderNumbers map[string]string

	txSupported bool
}

// Option настраивает Store.
type Option func(*Store)

// WithoutTransactions имитирует standalone-деплой без multi-document транзакций.
func WithoutTransactions() Option {
	return func(s *Store) {
		s.txSupported = false
	}
}

// NewStore создаёт пустое хранилище.
func NewStore(opts ...Option) *Store {
	s := &Store{
		products:     make(map[string]domain.Product),
		orders:       make(map[string]domain.Order),
		orderNumbers: make(map[string]string),
		txSupported:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type txKey struct{}

type memTx struct {
	undo []func()
}

// WithinTransaction выполняет fn под эксклюзивной блокировкой записи и откатывает изменения при ошибке.
// Вложенные вызовы переиспользуют внешнюю транзакцию.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.txSupported {
		return domain.ErrTransactionsUnsupported
	}
	if _, ok := ctx.Value(txKey{}).(*memTx); ok {
		return fn(ctx)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx := &memTx{}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Ping нужен health-чекеру; in-memory хранилище доступно всегда.
func (s *Store) Ping(context.Context) error {
	return nil
}

// beginWrite берёт блокировку записи вне транзакции. Внутри транзакции она уже взята.
func (s *Store) beginWrite(ctx context.Context) (*memTx, func()) {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok {
		return tx, func() {}
	}
	s.writeMu.Lock()
	return nil, s.writeMu.Unlock
}

// record добавляет шаг отката. Вызывается под s.mu.
func (tx *memTx) record(fn func()) {
	if tx != nil {
		tx.undo = append(tx.undo, fn)
	}
}

var _ domain.Transactor = (*Store)(nil)
