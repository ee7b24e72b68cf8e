package trader

import "sync"

// txLocks сериализует переходы статуса по одной сделке: опрос ордеров,
// автоответчик и сопоставитель платежей могут тянуть одну сделку
// одновременно из разных циклов. Замок живёт только пока удерживается,
// таблица не растёт с числом сделок.
type txLocks struct {
	mu      sync.Mutex
	entries map[int64]*txLockEntry
}

type txLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newTxLocks() *txLocks {
	return &txLocks{entries: make(map[int64]*txLockEntry)}
}

// Lock захватывает замок сделки и возвращает функцию освобождения.
// Вызовы по разным сделкам не блокируют друг друга.
func (l *txLocks) Lock(transactionID int64) func() {
	l.mu.Lock()
	entry, ok := l.entries[transactionID]
	if !ok {
		entry = &txLockEntry{}
		l.entries[transactionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, transactionID)
		}
		l.mu.Unlock()
	}
}

// size возвращает число удерживаемых замков (для тестов)
func (l *txLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
