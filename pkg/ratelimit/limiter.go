package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter - Token Bucket rate limiter для контроля частоты запросов к P2P API
//
// Алгоритм Token Bucket:
// - Ведро наполняется токенами с постоянной скоростью (rate токенов/сек)
// - Максимальная ёмкость ведра = burst (позволяет короткие всплески)
// - Каждый запрос потребляет 1 токен
// - Если токенов нет, запрос ждёт или отклоняется
//
// Преимущества:
// - Позволяет burst запросов (цикл опроса делает несколько вызовов подряд)
// - Сглаживает нагрузку при постоянном потоке
// - Защищает аккаунт от бана за превышение лимитов биржи
//
// Использование:
//
//	limiter := NewRateLimiter(5, 10)  // 5 req/sec, burst 10
//	err := limiter.Wait(ctx)          // блокирующее ожидание
//	if limiter.Allow() { ... }        // неблокирующая проверка
type RateLimiter struct {
	rate       float64   // токенов в секунду
	burst      float64   // максимальная ёмкость (burst capacity)
	tokens     float64   // текущее количество токенов
	lastRefill time.Time // время последнего пополнения
	mu         sync.Mutex
}

// NewRateLimiter создаёт новый rate limiter
//
// Параметры:
//   - rate: количество запросов в секунду (например, 5 для 5 req/sec)
//   - burst: максимальный burst (обычно 1.5-2x от rate)
//
// P2P API бирж заметно строже спотовых: лимит считается на аккаунт,
// и за превышение аккаунт получает временный бан. Типичный безопасный
// лимит - 5 req/sec с burst 10.
func NewRateLimiter(rate, burst float64) *RateLimiter {
	if rate <= 0 {
		rate = 5 // дефолт 5 req/sec
	}
	if burst <= 0 {
		burst = rate * 2 // дефолт burst = 2x rate
	}
	if burst < rate {
		burst = rate
	}

	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     burst, // начинаем с полным ведром
		lastRefill: time.Now(),
	}
}

// refill пополняет токены на основе прошедшего времени
// ВАЖНО: вызывается под lock'ом
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()

	// Добавляем токены пропорционально прошедшему времени
	rl.tokens += elapsed * rl.rate

	// Не превышаем burst capacity
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}

	rl.lastRefill = now
}

// Wait блокирует до получения токена или отмены контекста
//
// Возвращает:
//   - nil: токен получен, можно выполнять запрос
//   - ctx.Err(): контекст отменён (timeout или cancel)
//
// Пример:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	if err := limiter.Wait(ctx); err != nil {
//	    return err // timeout
//	}
//	// выполняем запрос к бирже
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		rl.refill()

		if rl.tokens >= 1 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}

		// Вычисляем время ожидания до следующего токена
		waitTime := time.Duration((1 - rl.tokens) / rl.rate * float64(time.Second))
		rl.mu.Unlock()

		// Ждём с возможностью отмены
		select {
		case <-time.After(waitTime):
			// Повторяем попытку получить токен
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Allow проверяет доступность токена без блокировки
//
// Возвращает:
//   - true: токен получен, можно выполнять запрос
//   - false: нет токенов, запрос нужно отложить
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}

	return false
}

// Tokens возвращает текущее количество доступных токенов
// Полезно для мониторинга и отладки
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// Rate возвращает скорость пополнения токенов (токенов/сек)
func (rl *RateLimiter) Rate() float64 {
	return rl.rate
}

// Burst возвращает максимальную ёмкость (burst capacity)
func (rl *RateLimiter) Burst() float64 {
	return rl.burst
}

// SetRate изменяет скорость пополнения токенов
// Потокобезопасно
func (rl *RateLimiter) SetRate(rate float64) {
	if rate <= 0 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill() // фиксируем текущие токены перед изменением rate
	rl.rate = rate
}

// SetBurst изменяет максимальную ёмкость
// Потокобезопасно
func (rl *RateLimiter) SetBurst(burst float64) {
	if burst <= 0 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.burst = burst
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
}

// ============================================================
// KeyedLimiter - независимые лимиты по ключу
// ============================================================

// KeyedLimiter ведёт отдельное ведро токенов на каждый ключ.
//
// Лимит P2P API биржи считается отдельно на каждый аккаунт, поэтому
// пул аккаунтов использует KeyedLimiter с ключом = ID аккаунта:
// ожидание одного аккаунта не тормозит запросы остальных.
type KeyedLimiter struct {
	rate     float64
	burst    float64
	limiters map[string]*RateLimiter
	mu       sync.RWMutex
}

// NewKeyedLimiter создаёт KeyedLimiter с едиными rate/burst для всех ключей
func NewKeyedLimiter(rate, burst float64) *KeyedLimiter {
	return &KeyedLimiter{
		rate:     rate,
		burst:    burst,
		limiters: make(map[string]*RateLimiter),
	}
}

// get возвращает limiter ключа, лениво создавая его
func (kl *KeyedLimiter) get(key string) *RateLimiter {
	kl.mu.RLock()
	limiter, ok := kl.limiters[key]
	kl.mu.RUnlock()
	if ok {
		return limiter
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()
	if limiter, ok = kl.limiters[key]; ok {
		return limiter
	}
	limiter = NewRateLimiter(kl.rate, kl.burst)
	kl.limiters[key] = limiter
	return limiter
}

// Wait ожидает токен для указанного ключа
func (kl *KeyedLimiter) Wait(ctx context.Context, key string) error {
	return kl.get(key).Wait(ctx)
}

// Allow проверяет доступность токена для ключа без блокировки
func (kl *KeyedLimiter) Allow(key string) bool {
	return kl.get(key).Allow()
}

// Forget удаляет ведро ключа (аккаунт деактивирован)
func (kl *KeyedLimiter) Forget(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	delete(kl.limiters, key)
}

// SetRate изменяет rate для всех существующих и будущих вёдер
func (kl *KeyedLimiter) SetRate(rate float64) {
	if rate <= 0 {
		return
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()

	kl.rate = rate
	for _, limiter := range kl.limiters {
		limiter.SetRate(rate)
	}
}
