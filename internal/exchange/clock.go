package exchange

import (
	"context"
	"sync"
	"time"
)

// TimeSource отдаёт текущее время площадки
type TimeSource interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// ClockSync хранит поправку локальных часов к часам площадки. Подпись
// запроса валидна только в пределах recv_window, поэтому timestamp в
// заголовках всегда строится через ClockSync, а не через time.Now.
//
// Экземпляр один на аккаунт и используется из нескольких горутин:
// все поля под мьютексом. При конкурирующих обновлениях побеждает
// последняя запись.
type ClockSync struct {
	mu       sync.Mutex
	offset   time.Duration // серверное время минус локальное
	syncedAt time.Time     // локальный момент последней синхронизации
}

// NewClockSync создаёт поправку с нулевым смещением
func NewClockSync() *ClockSync {
	return &ClockSync{}
}

// Now возвращает локальное время с поправкой площадки
func (c *ClockSync) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

// NowMillis возвращает скорректированный timestamp в миллисекундах
func (c *ClockSync) NowMillis() int64 {
	return c.Now().UnixMilli()
}

// Offset возвращает текущее смещение
func (c *ClockSync) Offset() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Update пересчитывает смещение по свежему серверному времени
func (c *ClockSync) Update(serverTime time.Time) {
	now := time.Now()
	c.mu.Lock()
	c.offset = serverTime.Sub(now)
	c.syncedAt = now
	c.mu.Unlock()
}

// Sync запрашивает время площадки и обновляет смещение
func (c *ClockSync) Sync(ctx context.Context, src TimeSource) error {
	serverTime, err := src.ServerTime(ctx)
	if err != nil {
		return err
	}
	c.Update(serverTime)
	return nil
}

// SyncIfStale синхронизируется, только если с прошлой синхронизации прошло
// не меньше minAge. Гасит шторм повторных синхронизаций, когда несколько
// горутин одновременно получили отказ по рассинхрону: первая обновит
// смещение, остальные уйдут ни с чем и просто повторят запрос.
func (c *ClockSync) SyncIfStale(ctx context.Context, src TimeSource, minAge time.Duration) (bool, error) {
	c.mu.Lock()
	fresh := !c.syncedAt.IsZero() && time.Since(c.syncedAt) < minAge
	c.mu.Unlock()
	if fresh {
		return false, nil
	}
	if err := c.Sync(ctx, src); err != nil {
		return false, err
	}
	return true, nil
}

// SyncedAt возвращает локальный момент последней синхронизации
func (c *ClockSync) SyncedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncedAt
}
