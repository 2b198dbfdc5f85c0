package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
	"github.com/codewithrichardb/ecommerce-backend/pkg/database"
	apperrors "github.com/codewithrichardb/ecommerce-backend/pkg/errors"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func setupEmailRepo(t *testing.T) (*RecoveryEmailRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewRecoveryEmailRepository(mock)
	return repo, mock
}

func sampleEmail() *domain.RecoveryEmail {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.RecoveryEmail{
		ID:           "email-001",
		CartID:       "cart-001",
		EmailType:    domain.EmailTypeFirstReminder,
		Status:       domain.EmailStatusPending,
		ScheduledFor: now.Add(1 * time.Hour),
		Subject:      "Did you forget something? Your cart is waiting!",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func emailColumnNames() []string {
	return []string{
		"id", "cart_id", "email_type", "status", "scheduled_for", "sent_at",
		"opened_at", "clicked_at", "subject", "coupon_code", "discount_value",
		"created_at", "updated_at",
	}
}

func emailRow(e *domain.RecoveryEmail) *pgxmock.Rows {
	return pgxmock.NewRows(emailColumnNames()).
		AddRow(
			e.ID, e.CartID, e.EmailType, e.Status, e.ScheduledFor, e.SentAt,
			e.OpenedAt, e.ClickedAt, e.Subject, e.CouponCode, e.DiscountValue,
			e.CreatedAt, e.UpdatedAt,
		)
}

// ---------------------------------------------------------------------------
// Create / GetByID
// ---------------------------------------------------------------------------

func TestRecoveryEmailRepository_Create_Success(t *testing.T) {
	repo, mock := setupEmailRepo(t)
	defer mock.Close()

	e := sampleEmail()

	mock.ExpectExec("INSERT INTO recovery_emails").
		WithArgs(
			e.ID, e.CartID, e.EmailType, e.Status, e.ScheduledFor, e.SentAt,
			e.OpenedAt, e.ClickedAt, e.Subject, e.CouponCode, e.DiscountValue,
			e.CreatedAt, e.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveryEmailRepository_GetByID_Success(t *testing.T) {
	repo, mock := setupEmailRepo(t)
	defer mock.Close()

	e := sampleEmail()

	mock.ExpectQuery("SELECT .+ FROM recovery_emails WHERE id").
		WithArgs(e.ID).
		WillReturnRows(emailRow(e))

	result, err := repo.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, result.ID)
	assert.Equal(t, e.CartID, result.CartID)
	assert.Equal(t, domain.EmailTypeFirstReminder, result.EmailType)
	assert.Equal(t, domain.EmailStatusPending, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveryEmailRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupEmailRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM recovery_emails WHERE id").
		WithArgs("nonexistent-id").
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByID(context.Background(), "nonexistent-id")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// ListDue
// ---------------------------------------------------------------------------

func TestRecoveryEmailRepository_ListDue(t *testing.T) {
	repo, mock := setupEmailRepo(t)
	defer mock.Close()

	e := sampleEmail()
	now := e.ScheduledFor.Add(time.Minute)

	mock.ExpectQuery("SELECT .+ FROM recovery_emails").
		WithArgs(now, 50).
		WillReturnRows(emailRow(e))

	emails, err := repo.ListDue(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, e.ID, emails[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveryEmailRepository_ListDue_Empty(t *testing.T) {
	repo, mock := setupEmailRepo(t)
	defer mock.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM recovery_emails").
		WithArgs(now, 50).
		WillReturnRows(pgxmock.NewRows(emailColumnNames()))

	emails, err := repo.ListDue(context.Background(), now, 50)
	require.NoError(t, err)
	assert.NotNil(t, emails)
	assert.Empty(t, emails)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// ClaimSending
// ---------------------------------------------------------------------------

func TestRecoveryEmailRepository_ClaimSending_Success(t *testing.T) {
	repo, mock := setupEmailRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE recovery_emails").
		WithArgs("email-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.ClaimSending(context.Background(), "email-001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveryEmailRepository_ClaimSending_AlreadyClaimed(t *testing.T) {
	repo, mock := setupEmailRepo(t)
	defer mock.Close()

	// Another sweep won the claim; the pending guard matches no rows.
	mock.ExpectExec("UPDATE recovery_emails").
		WithArgs("email-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.ClaimSending(context.Background(), "email-001")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Status transitions
// ---------------------------------------------------------------------------

func TestRecoveryEmailRepository_MarkSent(t *testing.T) {
	repo, mock := setupEmailRepo(t)
	defer mock.Close()

	at := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE recovery_emails").
		WithArgs(at, "email-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.MarkSent(context.Background(), "email-001", at)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveryEmailRepository_MarkFailed(t *testing.T) {
	repo, mock := setupEmailRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE recovery_emails").
		WithArgs("email-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.MarkFailed(context.Background(), "email-001")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveryEmailRepository_MarkOpened(t *testing.T) {
	repo, mock := setupEmailRepo(t)
	defer mock.Close()

	at := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE recovery_emails").
		WithArgs(at, "email-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.MarkOpened(context.Background(), "email-001", at)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveryEmailRepository_MarkClicked_NotFound(t *testing.T) {
	repo, mock := setupEmailRepo(t)
	defer mock.Close()

	at := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE recovery_emails").
		WithArgs(at, "nonexistent-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.MarkClicked(context.Background(), "nonexistent-id", at)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
