package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"p2pdesk/internal/models"
)

// ============================================================
// AdvertisementRepository Tests
// ============================================================

func adColumns() []string {
	return []string{"id", "external_id", "account_id", "payout_id", "side", "asset", "fiat", "price_mode", "price", "premium", "quantity", "min_amount", "max_amount", "payment_methods", "remark", "status", "created_at", "updated_at"}
}

func TestAdvertisementRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO advertisements`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	repo := NewAdvertisementRepository(db)
	payoutID := "p-1"
	ad := &models.Advertisement{
		ExternalID:     "item-100",
		AccountID:      1,
		PayoutID:       &payoutID,
		Side:           models.AdSideSell,
		Asset:          "USDT",
		Fiat:           "RUB",
		PriceMode:      models.PriceModeFixed,
		Price:          decimal.RequireFromString("97.50"),
		Quantity:       decimal.RequireFromString("51.28"),
		MinAmount:      decimal.RequireFromString("5000"),
		MaxAmount:      decimal.RequireFromString("5000"),
		PaymentMethods: []string{"SBP", "Tinkoff"},
		Status:         models.AdStatusOnline,
	}

	if err := repo.Create(context.Background(), ad); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ad.ID != 1 {
		t.Errorf("expected ID=1, got %d", ad.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAdvertisementRepositoryGetByExternalID(t *testing.T) {
	tests := []struct {
		name        string
		externalID  string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name:       "success",
			externalID: "item-100",
			mockSetup: func(mock sqlmock.Sqlmock) {
				now := time.Now()
				rows := sqlmock.NewRows(adColumns()).
					AddRow(1, "item-100", int64(1), "p-1", "sell", "USDT", "RUB", "fixed", "97.50", "0", "51.28", "5000", "5000", "{SBP,Tinkoff}", "только СБП", "online", now, now)
				mock.ExpectQuery(`SELECT .+ FROM advertisements WHERE external_id = \$1`).
					WithArgs("item-100").
					WillReturnRows(rows)
			},
			expectError: nil,
		},
		{
			name:       "not found",
			externalID: "missing",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM advertisements WHERE external_id = \$1`).
					WithArgs("missing").
					WillReturnError(sql.ErrNoRows)
			},
			expectError: ErrAdvertisementNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewAdvertisementRepository(db)
			ad, err := repo.GetByExternalID(context.Background(), tt.externalID)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(ad.PaymentMethods) != 2 {
					t.Errorf("payment_methods not scanned: %v", ad.PaymentMethods)
				}
				if ad.PayoutID == nil || *ad.PayoutID != "p-1" {
					t.Errorf("payout_id not scanned: %v", ad.PayoutID)
				}
				if !ad.Price.Equal(decimal.RequireFromString("97.50")) {
					t.Errorf("price not scanned: %s", ad.Price)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestAdvertisementRepositoryGetLive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(adColumns()).
		AddRow(1, "item-100", int64(1), nil, "sell", "USDT", "RUB", "fixed", "97.50", "0", "51.28", "5000", "5000", "{SBP}", "", "online", now, now).
		AddRow(2, "item-101", int64(2), nil, "sell", "USDT", "RUB", "float", "0", "1.5", "30", "3000", "3000", "{Tinkoff}", "", "offline", now, now)
	mock.ExpectQuery(`SELECT .+ FROM advertisements WHERE status IN`).
		WithArgs(models.AdStatusOnline, models.AdStatusOffline).
		WillReturnRows(rows)

	repo := NewAdvertisementRepository(db)
	ads, err := repo.GetLive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ads) != 2 {
		t.Fatalf("expected 2 ads, got %d", len(ads))
	}
	if ads[1].PriceMode != models.PriceModeFloat {
		t.Errorf("expected float price mode, got %s", ads[1].PriceMode)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAdvertisementRepositoryUpdatePrice(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE advertisements`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAdvertisementRepository(db)
	if err := repo.UpdatePrice(context.Background(), 1, decimal.RequireFromString("98.10")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAdvertisementRepositorySetStatus(t *testing.T) {
	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE advertisements`).
					WithArgs(models.AdStatusOffline, sqlmock.AnyArg(), int64(1)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			expectError: nil,
		},
		{
			name: "not found",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE advertisements`).
					WithArgs(models.AdStatusOffline, sqlmock.AnyArg(), int64(1)).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			expectError: ErrAdvertisementNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewAdvertisementRepository(db)
			err = repo.SetStatus(context.Background(), 1, models.AdStatusOffline)

			if !errors.Is(err, tt.expectError) {
				t.Errorf("expected %v, got %v", tt.expectError, err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestAdvertisementRepositoryCountLiveByAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WithArgs(int64(1), models.AdStatusOnline, models.AdStatusOffline).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	repo := NewAdvertisementRepository(db)
	count, err := repo.CountLiveByAccount(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count=2, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
