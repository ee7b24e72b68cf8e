package matching

import (
	"errors"
	"sync"
	"time"

	"p2pdesk/internal/models"
)

// ErrQueueFull возвращается при переполнении очереди повторов.
var ErrQueueFull = errors.New("requeue queue is full")

// DefaultQueueCapacity - ёмкость очереди по умолчанию.
const DefaultQueueCapacity = 1024

// QueuedEvidence - свидетельство, ожидающее повторного прохода.
type QueuedEvidence struct {
	Evidence   *models.PaymentEvidence
	Attempt    int // номер СЛЕДУЮЩЕГО прохода
	EnqueuedAt time.Time
}

// Queue - очередь отложенных свидетельств. Свидетельство попадает сюда,
// когда проход не нашёл кандидатов (политика requeue) или не смог применить
// найденное совпадение; движок разгребает очередь отдельным тикером.
// Очередь живёт в памяти: свидетельство без кандидатов за несколько минут
// либо сопоставится, либо протухнет по TTL, переживать рестарт ему незачем.
type Queue struct {
	mu       sync.Mutex
	items    []QueuedEvidence
	capacity int
}

// NewQueue создает очередь повторов. capacity <= 0 означает ёмкость по умолчанию.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{capacity: capacity}
}

// Push ставит свидетельство в очередь на следующий проход.
func (q *Queue) Push(evidence *models.PaymentEvidence, nextAttempt int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	q.items = append(q.items, QueuedEvidence{
		Evidence:   evidence,
		Attempt:    nextAttempt,
		EnqueuedAt: time.Now(),
	})
	return nil
}

// Drain забирает все отложенные свидетельства в порядке постановки.
// Непристроенные элементы вызывающий ставит обратно через Push.
func (q *Queue) Drain() []QueuedEvidence {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// Len возвращает размер очереди.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot возвращает копию очереди для статусной панели.
func (q *Queue) Snapshot() []QueuedEvidence {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]QueuedEvidence, len(q.items))
	copy(items, q.items)
	return items
}
