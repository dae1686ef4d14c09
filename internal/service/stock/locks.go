package stock

import "sync"

// orderLocks сериализует коммиты одного заказа внутри процесса.
// Между процессами порядок по-прежнему держит проверка версии заказа.
type orderLocks struct {
	mu    sync.Mutex
	locks map[string]*orderLock
}

type orderLock struct {
	sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[string]*orderLock)}
}

// lock захватывает блокировку заказа и возвращает функцию освобождения.
func (l *orderLocks) lock(orderID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[orderID]
	if !ok {
		entry = &orderLock{}
		l.locks[orderID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, orderID)
		}
		l.mu.Unlock()
	}
}
