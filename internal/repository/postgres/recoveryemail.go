package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
	"github.com/codewithrichardb/ecommerce-backend/pkg/database"
	apperrors "github.com/codewithrichardb/ecommerce-backend/pkg/errors"
)

const recoveryEmailColumns = `id, cart_id, email_type, status, scheduled_for,
		   sent_at, opened_at, clicked_at, subject, coupon_code, discount_value,
		   created_at, updated_at`

// RecoveryEmailRepository implements repository.RecoveryEmailRepository using PostgreSQL.
type RecoveryEmailRepository struct {
	pool database.DBTX
}

// NewRecoveryEmailRepository creates a new PostgreSQL-backed recovery email repository.
func NewRecoveryEmailRepository(pool database.DBTX) *RecoveryEmailRepository {
	return &RecoveryEmailRepository{pool: pool}
}

// Create inserts a new scheduled reminder.
func (r *RecoveryEmailRepository) Create(ctx context.Context, e *domain.RecoveryEmail) error {
	query := `
		INSERT INTO recovery_emails (
			id, cart_id, email_type, status, scheduled_for, sent_at, opened_at,
			clicked_at, subject, coupon_code, discount_value, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.CartID,
		e.EmailType,
		e.Status,
		e.ScheduledFor,
		e.SentAt,
		e.OpenedAt,
		e.ClickedAt,
		e.Subject,
		e.CouponCode,
		e.DiscountValue,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recovery email: %w", err)
	}

	return nil
}

// GetByID retrieves a reminder by its ID.
func (r *RecoveryEmailRepository) GetByID(ctx context.Context, id string) (*domain.RecoveryEmail, error) {
	query := fmt.Sprintf(`SELECT %s FROM recovery_emails WHERE id = $1`, recoveryEmailColumns)

	e, err := r.scanEmail(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}

	return e, nil
}

// ListDue returns pending reminders whose scheduled_for has passed and whose
// cart is still active, oldest first.
func (r *RecoveryEmailRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.RecoveryEmail, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM recovery_emails
		WHERE status = 'pending'
		  AND scheduled_for <= $1
		  AND EXISTS (
			SELECT 1 FROM abandoned_carts c
			WHERE c.id = recovery_emails.cart_id AND c.status = 'active'
		  )
		ORDER BY scheduled_for ASC
		LIMIT $2`, recoveryEmailColumns)

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due recovery emails: %w", err)
	}
	defer rows.Close()

	var emails []domain.RecoveryEmail
	for rows.Next() {
		e, err := r.scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recovery email rows: %w", err)
	}

	if emails == nil {
		emails = []domain.RecoveryEmail{}
	}

	return emails, nil
}

// ClaimSending transitions a reminder from pending to sending. The status
// guard makes the claim a compare-and-set so concurrent sweeps cannot both
// dispatch the same reminder.
func (r *RecoveryEmailRepository) ClaimSending(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE recovery_emails
		SET status = 'sending', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("claim recovery email: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// MarkSent transitions a claimed reminder to sent.
func (r *RecoveryEmailRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE recovery_emails
		SET status = 'sent', sent_at = $1, updated_at = $1
		WHERE id = $2`

	ct, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("mark recovery email sent: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("recovery email", id)
	}

	return nil
}

// MarkFailed transitions a claimed reminder to failed.
func (r *RecoveryEmailRepository) MarkFailed(ctx context.Context, id string) error {
	query := `
		UPDATE recovery_emails
		SET status = 'failed', updated_at = NOW()
		WHERE id = $1`

	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark recovery email failed: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("recovery email", id)
	}

	return nil
}

// MarkOpened advances the reminder to opened. opened_at is stamped only on
// the first call; repeat calls leave the row unchanged apart from updated_at.
func (r *RecoveryEmailRepository) MarkOpened(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE recovery_emails
		SET status = CASE WHEN status IN ('sent', 'opened') THEN 'opened' ELSE status END,
		    opened_at = COALESCE(opened_at, $1),
		    updated_at = $1
		WHERE id = $2`

	ct, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("mark recovery email opened: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("recovery email", id)
	}

	return nil
}

// MarkClicked advances the reminder to clicked. clicked_at is stamped only
// on the first call.
func (r *RecoveryEmailRepository) MarkClicked(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE recovery_emails
		SET status = CASE WHEN status IN ('sent', 'opened', 'clicked') THEN 'clicked' ELSE status END,
		    clicked_at = COALESCE(clicked_at, $1),
		    updated_at = $1
		WHERE id = $2`

	ct, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("mark recovery email clicked: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("recovery email", id)
	}

	return nil
}

// scanEmail scans a single recovery email from a row or rows cursor.
func (r *RecoveryEmailRepository) scanEmail(row pgx.Row) (*domain.RecoveryEmail, error) {
	var e domain.RecoveryEmail

	err := row.Scan(
		&e.ID,
		&e.CartID,
		&e.EmailType,
		&e.Status,
		&e.ScheduledFor,
		&e.SentAt,
		&e.OpenedAt,
		&e.ClickedAt,
		&e.Subject,
		&e.CouponCode,
		&e.DiscountValue,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan recovery email: %w", err)
	}

	return &e, nil
}
