package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"p2pdesk/internal/models"
)

// ============================================================
// TemplateRepository Tests
// ============================================================

func TestTemplateRepositoryCreateGroup(t *testing.T) {
	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO response_groups`).
					WithArgs("оплата", true, sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
			},
			expectError: nil,
		},
		{
			name: "duplicate name",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO response_groups`).
					WithArgs("оплата", true, sqlmock.AnyArg()).
					WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "response_groups_name_key"`))
			},
			expectError: ErrGroupExists,
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

			repo := NewTemplateRepository(db)
			group := &models.ResponseGroup{Name: "оплата", Active: true}
			err = repo.CreateGroup(context.Background(), group)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if group.ID != 1 {
					t.Errorf("expected ID=1, got %d", group.ID)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestTemplateRepositoryCreateTemplate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	nextStatus := models.TxStatusPaymentReceived
	mock.ExpectQuery(`INSERT INTO chat_templates`).
		WithArgs(int64(1), "оплатил,перевел,отправил", "Спасибо, проверяем платеж", 10, &nextStatus, true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	repo := NewTemplateRepository(db)
	tpl := &models.ChatTemplate{
		GroupID:    1,
		Keywords:   "оплатил,перевел,отправил",
		Reply:      "Спасибо, проверяем платеж",
		Priority:   10,
		NextStatus: &nextStatus,
		Active:     true,
	}

	if err := repo.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tpl.ID != 7 {
		t.Errorf("expected ID=7, got %d", tpl.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTemplateRepositoryGetActiveTemplates(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	// Порядок сопоставления зашит в запрос: приоритет по убыванию, потом ID
	rows := sqlmock.NewRows([]string{"id", "group_id", "keywords", "reply", "priority", "next_status", "active", "created_at"}).
		AddRow(2, int64(1), "оплатил,перевел", "Спасибо, проверяем платеж", 10, "payment_received", true, now).
		AddRow(1, int64(1), "реквизиты,куда платить", "Реквизиты в объявлении", 5, nil, true, now)
	mock.ExpectQuery(`SELECT .+ FROM chat_templates t\s+JOIN response_groups g ON g.id = t.group_id`).
		WillReturnRows(rows)

	repo := NewTemplateRepository(db)
	templates, err := repo.GetActiveTemplates(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(templates) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(templates))
	}
	if templates[0].Priority != 10 {
		t.Errorf("expected priority 10 first, got %d", templates[0].Priority)
	}
	if templates[0].NextStatus == nil || *templates[0].NextStatus != "payment_received" {
		t.Errorf("next_status not scanned: %v", templates[0].NextStatus)
	}
	if templates[1].NextStatus != nil {
		t.Errorf("expected nil next_status, got %v", *templates[1].NextStatus)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTemplateRepositorySetGroupActive(t *testing.T) {
	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE response_groups SET active`).
					WithArgs(false, int64(1)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			expectError: nil,
		},
		{
			name: "not found",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE response_groups SET active`).
					WithArgs(false, int64(1)).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			expectError: ErrGroupNotFound,
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

			repo := NewTemplateRepository(db)
			err = repo.SetGroupActive(context.Background(), 1, false)

			if !errors.Is(err, tt.expectError) {
				t.Errorf("expected %v, got %v", tt.expectError, err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestTemplateRepositoryDeleteTemplate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM chat_templates`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewTemplateRepository(db)
	if err := repo.DeleteTemplate(context.Background(), 7); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTemplateRepositoryUpdateTemplate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE chat_templates`).
		WithArgs("оплатил", "Проверяем", 8, (*string)(nil), true, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewTemplateRepository(db)
	tpl := &models.ChatTemplate{
		ID:       7,
		Keywords: "оплатил",
		Reply:    "Проверяем",
		Priority: 8,
		Active:   true,
	}
	if err := repo.UpdateTemplate(context.Background(), tpl); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
