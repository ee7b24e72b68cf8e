package pool

import (
	"strconv"
	"sync"
	"time"

	"p2pdesk/internal/exchange"
	"p2pdesk/internal/models"
)

// Session - живой аккаунт пула. Ключи уже расшифрованы и спрятаны внутри
// клиента, поправка часов у каждого аккаунта своя: аккаунты ходят через
// разные прокси и видят разную сетевую задержку.
type Session struct {
	Account *models.ExchangeAccount
	Client  exchange.Client
	Clock   *exchange.ClockSync

	mu         sync.Mutex
	lastPollAt time.Time
	lastError  string
}

// Key возвращает ключ аккаунта для rate limiter
func (s *Session) Key() string {
	return strconv.FormatInt(s.Account.ID, 10)
}

// MarkPolled отмечает успешный опрос и сбрасывает последнюю ошибку
func (s *Session) MarkPolled() {
	s.mu.Lock()
	s.lastPollAt = time.Now()
	s.lastError = ""
	s.mu.Unlock()
}

// SetLastError запоминает последнюю ошибку аккаунта для снимка состояния
func (s *Session) SetLastError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

// Runtime возвращает снимок состояния аккаунта для операторского API
func (s *Session) Runtime() models.AccountRuntime {
	s.mu.Lock()
	lastPoll := s.lastPollAt
	lastErr := s.lastError
	s.mu.Unlock()

	rt := models.AccountRuntime{
		AccountID:    s.Account.ID,
		Label:        s.Account.Label,
		Active:       true,
		ActiveAds:    s.Account.ActiveAds,
		MaxActiveAds: s.Account.MaxActiveAds,
		ClockOffset:  s.Clock.Offset().Milliseconds(),
		LastError:    lastErr,
	}
	if !lastPoll.IsZero() {
		rt.LastPollAt = &lastPoll
	}
	return rt
}
