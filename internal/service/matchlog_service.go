package service

import (
	"context"
	"time"

	"p2pdesk/internal/models"
)

// MatchLogService предоставляет доступ к журналу сопоставления платежей.
// Журнал пишет движок, сервис только читает: каждая запись - один проход
// сопоставителя по одному свидетельству платежа.
type MatchLogService struct {
	matchLogRepo MatchLogRepositoryInterface
}

// NewMatchLogService создает новый экземпляр MatchLogService.
func NewMatchLogService(matchLogRepo MatchLogRepositoryInterface) *MatchLogService {
	return &MatchLogService{matchLogRepo: matchLogRepo}
}

// GetEntries возвращает записи журнала, опционально по действию
// (matched, unmatched, ambiguous, blacklisted, requeued).
func (s *MatchLogService) GetEntries(ctx context.Context, action string, limit int) ([]*models.MatchLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	var (
		entries []*models.MatchLogEntry
		err     error
	)
	if action == "" {
		entries, err = s.matchLogRepo.GetRecent(ctx, limit)
	} else {
		entries, err = s.matchLogRepo.GetByAction(ctx, action, limit)
	}
	if err != nil {
		return nil, err
	}

	if entries == nil {
		entries = []*models.MatchLogEntry{}
	}

	return entries, nil
}

// GetByEvidence возвращает историю обработки одного свидетельства:
// все проходы сопоставителя, включая повторные после requeue.
func (s *MatchLogService) GetByEvidence(ctx context.Context, evidenceID string) ([]*models.MatchLogEntry, error) {
	entries, err := s.matchLogRepo.GetByEvidence(ctx, evidenceID)
	if err != nil {
		return nil, err
	}

	if entries == nil {
		entries = []*models.MatchLogEntry{}
	}

	return entries, nil
}

// GetStats возвращает сводку журнала за последние hours часов.
func (s *MatchLogService) GetStats(ctx context.Context, hours int) (*models.MatchStats, error) {
	if hours <= 0 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	return s.matchLogRepo.Stats(ctx, since)
}
