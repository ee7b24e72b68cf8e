package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"p2pdesk/internal/models"
)

func TestPayoutService_CreatePayout(t *testing.T) {
	tests := []struct {
		name       string
		req        *CreatePayoutRequest
		wantErr    error
		wantWallet string
	}{
		{
			name: "успешная регистрация",
			req: &CreatePayoutRequest{
				Amount:   decimal.NewFromInt(5000),
				Currency: "rub",
				Wallet:   "4111 1111 1111 1111",
				Bank:     "Сбербанк",
			},
			wantWallet: "4111111111111111",
		},
		{
			name: "нулевая сумма",
			req: &CreatePayoutRequest{
				Amount:   decimal.Zero,
				Currency: "RUB",
				Wallet:   "4111111111111111",
			},
			wantErr: ErrInvalidPayoutAmount,
		},
		{
			name: "отрицательная сумма",
			req: &CreatePayoutRequest{
				Amount:   decimal.NewFromInt(-100),
				Currency: "RUB",
				Wallet:   "4111111111111111",
			},
			wantErr: ErrInvalidPayoutAmount,
		},
		{
			name: "невалидная валюта",
			req: &CreatePayoutRequest{
				Amount:   decimal.NewFromInt(100),
				Currency: "р",
				Wallet:   "4111111111111111",
			},
			wantErr: errors.New("invalid fiat"),
		},
		{
			name: "невалидный кошелёк",
			req: &CreatePayoutRequest{
				Amount:   decimal.NewFromInt(100),
				Currency: "RUB",
				Wallet:   "abc",
			},
			wantErr: errors.New("invalid wallet"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := NewMockPayoutRepository()
			svc := NewPayoutService(mockRepo)

			payout, err := svc.CreatePayout(context.Background(), tt.req)

			if tt.wantErr != nil {
				if err == nil {
					t.Errorf("expected error %v, got nil", tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if payout.ID == "" {
				t.Error("expected assigned UUID")
			}
			if payout.Status != models.PayoutStatusOpen {
				t.Errorf("expected status open, got %s", payout.Status)
			}
			if payout.Currency != "RUB" {
				t.Errorf("currency must be normalized, got %s", payout.Currency)
			}
			if payout.Wallet != tt.wantWallet {
				t.Errorf("expected wallet %s, got %s", tt.wantWallet, payout.Wallet)
			}
		})
	}
}

func TestPayoutService_GetPayouts(t *testing.T) {
	mockRepo := NewMockPayoutRepository()
	mockRepo.payouts["p-1"] = &models.Payout{ID: "p-1", Status: models.PayoutStatusOpen}
	mockRepo.payouts["p-2"] = &models.Payout{ID: "p-2", Status: models.PayoutStatusSettled}

	svc := NewPayoutService(mockRepo)

	all, err := svc.GetPayouts(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 payouts, got %d", len(all))
	}

	open, err := svc.GetPayouts(context.Background(), models.PayoutStatusOpen, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(open) != 1 || open[0].ID != "p-1" {
		t.Errorf("expected only open payout, got %v", open)
	}

	settled, err := svc.GetPayouts(context.Background(), models.PayoutStatusBlacklisted, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settled == nil {
		t.Fatal("expected empty slice, got nil")
	}
}

func TestPayoutService_DeletePayout(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		setup   func(*MockPayoutRepository)
		wantErr error
	}{
		{
			name: "удаление открытой выплаты",
			id:   "p-1",
			setup: func(m *MockPayoutRepository) {
				m.payouts["p-1"] = &models.Payout{ID: "p-1", Status: models.PayoutStatusOpen}
			},
		},
		{
			name:    "выплата не найдена",
			id:      "p-missing",
			wantErr: ErrPayoutNotFound,
		},
		{
			name: "привязанная выплата не удаляется",
			id:   "p-1",
			setup: func(m *MockPayoutRepository) {
				m.payouts["p-1"] = &models.Payout{ID: "p-1", Status: models.PayoutStatusLinked}
			},
			wantErr: ErrPayoutNotOpen,
		},
		{
			name: "закрытая выплата не удаляется",
			id:   "p-1",
			setup: func(m *MockPayoutRepository) {
				m.payouts["p-1"] = &models.Payout{ID: "p-1", Status: models.PayoutStatusSettled}
			},
			wantErr: ErrPayoutNotOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := NewMockPayoutRepository()
			if tt.setup != nil {
				tt.setup(mockRepo)
			}

			svc := NewPayoutService(mockRepo)
			err := svc.DeletePayout(context.Background(), tt.id)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			if _, exists := mockRepo.payouts[tt.id]; exists {
				t.Error("payout must be removed")
			}
		})
	}
}

func TestPayoutService_GetPayoutCounts(t *testing.T) {
	mockRepo := NewMockPayoutRepository()
	mockRepo.payouts["p-1"] = &models.Payout{ID: "p-1", Status: models.PayoutStatusOpen}
	mockRepo.payouts["p-2"] = &models.Payout{ID: "p-2", Status: models.PayoutStatusOpen}
	mockRepo.payouts["p-3"] = &models.Payout{ID: "p-3", Status: models.PayoutStatusBlacklisted}

	svc := NewPayoutService(mockRepo)

	counts, err := svc.GetPayoutCounts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if counts[models.PayoutStatusOpen] != 2 {
		t.Errorf("expected 2 open, got %d", counts[models.PayoutStatusOpen])
	}
	if counts[models.PayoutStatusBlacklisted] != 1 {
		t.Errorf("expected 1 blacklisted, got %d", counts[models.PayoutStatusBlacklisted])
	}
	if counts[models.PayoutStatusSettled] != 0 {
		t.Errorf("expected 0 settled, got %d", counts[models.PayoutStatusSettled])
	}
}
