package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
	"github.com/codewithrichardb/ecommerce-backend/internal/repository"
	"github.com/codewithrichardb/ecommerce-backend/pkg/database"
	apperrors "github.com/codewithrichardb/ecommerce-backend/pkg/errors"
)

const cartColumns = `id, user_id, email, items, subtotal, discount_amount, total,
		   coupon_code, status, recovery_token, recovery_url, expires_at,
		   recovered_at, last_email_sent_at, emails_sent, emails_opened,
		   emails_clicked, metadata, created_at, updated_at`

// AbandonedCartRepository implements repository.AbandonedCartRepository using PostgreSQL.
type AbandonedCartRepository struct {
	pool database.DBTX
}

// NewAbandonedCartRepository creates a new PostgreSQL-backed abandoned cart repository.
func NewAbandonedCartRepository(pool database.DBTX) *AbandonedCartRepository {
	return &AbandonedCartRepository{pool: pool}
}

// Create inserts a new abandoned cart.
func (r *AbandonedCartRepository) Create(ctx context.Context, c *domain.AbandonedCart) error {
	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("marshal cart items: %w", err)
	}
	metadataJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal cart metadata: %w", err)
	}

	query := `
		INSERT INTO abandoned_carts (
			id, user_id, email, items, subtotal, discount_amount, total,
			coupon_code, status, recovery_token, recovery_url, expires_at,
			recovered_at, last_email_sent_at, emails_sent, emails_opened,
			emails_clicked, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err = r.pool.Exec(ctx, query,
		c.ID,
		c.UserID,
		c.Email,
		itemsJSON,
		c.Subtotal,
		c.DiscountAmount,
		c.Total,
		c.CouponCode,
		c.Status,
		c.RecoveryToken,
		c.RecoveryURL,
		c.ExpiresAt,
		c.RecoveredAt,
		c.LastEmailSentAt,
		c.EmailsSent,
		c.EmailsOpened,
		c.EmailsClicked,
		metadataJSON,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("abandoned cart", "recovery_token", c.RecoveryToken)
		}
		return fmt.Errorf("insert abandoned cart: %w", err)
	}

	return nil
}

// GetByID retrieves a cart by its ID.
func (r *AbandonedCartRepository) GetByID(ctx context.Context, id string) (*domain.AbandonedCart, error) {
	query := fmt.Sprintf(`SELECT %s FROM abandoned_carts WHERE id = $1`, cartColumns)
	return r.scanCart(ctx, query, id)
}

// GetByToken retrieves a cart by its recovery token.
func (r *AbandonedCartRepository) GetByToken(ctx context.Context, token string) (*domain.AbandonedCart, error) {
	query := fmt.Sprintf(`SELECT %s FROM abandoned_carts WHERE recovery_token = $1`, cartColumns)
	return r.scanCart(ctx, query, token)
}

// GetActiveByEmail retrieves the active cart for an email, if any.
func (r *AbandonedCartRepository) GetActiveByEmail(ctx context.Context, email string) (*domain.AbandonedCart, error) {
	query := fmt.Sprintf(`SELECT %s FROM abandoned_carts WHERE email = $1 AND status = 'active'`, cartColumns)
	return r.scanCart(ctx, query, email)
}

// Update modifies an existing cart.
func (r *AbandonedCartRepository) Update(ctx context.Context, c *domain.AbandonedCart) error {
	itemsJSON, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("marshal cart items: %w", err)
	}
	metadataJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal cart metadata: %w", err)
	}

	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE abandoned_carts
		SET user_id = $1, items = $2, subtotal = $3, discount_amount = $4,
		    total = $5, coupon_code = $6, status = $7, expires_at = $8,
		    recovered_at = $9, last_email_sent_at = $10, emails_sent = $11,
		    emails_opened = $12, emails_clicked = $13, metadata = $14,
		    updated_at = $15
		WHERE id = $16`

	ct, err := r.pool.Exec(ctx, query,
		c.UserID,
		itemsJSON,
		c.Subtotal,
		c.DiscountAmount,
		c.Total,
		c.CouponCode,
		c.Status,
		c.ExpiresAt,
		c.RecoveredAt,
		c.LastEmailSentAt,
		c.EmailsSent,
		c.EmailsOpened,
		c.EmailsClicked,
		metadataJSON,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update abandoned cart: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("abandoned cart", c.ID)
	}

	return nil
}

// MarkRecovered transitions an active cart to recovered. The status guard in
// the WHERE clause makes redemption at most once under concurrent requests.
func (r *AbandonedCartRepository) MarkRecovered(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE abandoned_carts
		SET status = 'recovered', recovered_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'active'`

	ct, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("mark cart recovered: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// MarkConvertedByEmail transitions any active cart for the email to converted.
func (r *AbandonedCartRepository) MarkConvertedByEmail(ctx context.Context, email string, at time.Time) (int, error) {
	query := `
		UPDATE abandoned_carts
		SET status = 'converted', updated_at = $1
		WHERE email = $2 AND status = 'active'`

	ct, err := r.pool.Exec(ctx, query, at, email)
	if err != nil {
		return 0, fmt.Errorf("mark carts converted: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// ExpireStale transitions active carts past their expiry to expired.
func (r *AbandonedCartRepository) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE abandoned_carts
		SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND expires_at < $1`

	ct, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale carts: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// IncrementOpened atomically increments the cart's emails_opened counter.
func (r *AbandonedCartRepository) IncrementOpened(ctx context.Context, id string) error {
	query := `UPDATE abandoned_carts SET emails_opened = emails_opened + 1, updated_at = NOW() WHERE id = $1`

	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment emails_opened: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("abandoned cart", id)
	}

	return nil
}

// IncrementClicked atomically increments the cart's emails_clicked counter.
func (r *AbandonedCartRepository) IncrementClicked(ctx context.Context, id string) error {
	query := `UPDATE abandoned_carts SET emails_clicked = emails_clicked + 1, updated_at = NOW() WHERE id = $1`

	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment emails_clicked: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("abandoned cart", id)
	}

	return nil
}

// Stats returns aggregate abandonment and recovery statistics.
func (r *AbandonedCartRepository) Stats(ctx context.Context) (*repository.CartStats, error) {
	query := `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'active'),
			count(*) FILTER (WHERE status = 'recovered'),
			count(*) FILTER (WHERE status = 'expired'),
			count(*) FILTER (WHERE status = 'converted'),
			COALESCE(sum(total), 0),
			COALESCE(sum(total) FILTER (WHERE status IN ('recovered', 'converted')), 0),
			COALESCE(sum(emails_sent), 0),
			COALESCE(sum(emails_opened), 0),
			COALESCE(sum(emails_clicked), 0)
		FROM abandoned_carts`

	var stats repository.CartStats
	err := r.pool.QueryRow(ctx, query).Scan(
		&stats.TotalCarts,
		&stats.ActiveCarts,
		&stats.RecoveredCarts,
		&stats.ExpiredCarts,
		&stats.ConvertedCarts,
		&stats.TotalValue,
		&stats.RecoveredValue,
		&stats.EmailsSent,
		&stats.EmailsOpened,
		&stats.EmailsClicked,
	)
	if err != nil {
		return nil, fmt.Errorf("abandoned cart stats: %w", err)
	}

	topProducts, err := r.topProducts(ctx, 10)
	if err != nil {
		return nil, err
	}
	stats.TopProducts = topProducts

	return &stats, nil
}

// topProducts returns the products that appear most often in abandoned carts.
func (r *AbandonedCartRepository) topProducts(ctx context.Context, limit int) ([]repository.ProductCount, error) {
	query := `
		SELECT item->>'product_id', item->>'product_name', count(*)
		FROM abandoned_carts, jsonb_array_elements(items) AS item
		GROUP BY 1, 2
		ORDER BY count(*) DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("top abandoned products: %w", err)
	}
	defer rows.Close()

	products := []repository.ProductCount{}
	for rows.Next() {
		var p repository.ProductCount
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.Count); err != nil {
			return nil, fmt.Errorf("scan product count: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product counts: %w", err)
	}

	return products, nil
}

// scanCart executes a query expected to return a single cart row.
func (r *AbandonedCartRepository) scanCart(ctx context.Context, query string, args ...any) (*domain.AbandonedCart, error) {
	var (
		c            domain.AbandonedCart
		itemsJSON    []byte
		metadataJSON []byte
	)

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&c.ID,
		&c.UserID,
		&c.Email,
		&itemsJSON,
		&c.Subtotal,
		&c.DiscountAmount,
		&c.Total,
		&c.CouponCode,
		&c.Status,
		&c.RecoveryToken,
		&c.RecoveryURL,
		&c.ExpiresAt,
		&c.RecoveredAt,
		&c.LastEmailSentAt,
		&c.EmailsSent,
		&c.EmailsOpened,
		&c.EmailsClicked,
		&metadataJSON,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan abandoned cart: %w", err)
	}

	if itemsJSON != nil {
		if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
			return nil, fmt.Errorf("unmarshal cart items: %w", err)
		}
	}
	if c.Items == nil {
		c.Items = []domain.CartItem{}
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal cart metadata: %w", err)
		}
	}

	return &c, nil
}
