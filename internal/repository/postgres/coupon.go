package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
	"github.com/codewithrichardb/ecommerce-backend/internal/repository"
	"github.com/codewithrichardb/ecommerce-backend/pkg/database"
	apperrors "github.com/codewithrichardb/ecommerce-backend/pkg/errors"
)

const couponColumns = `id, code, description, discount_type, discount_value,
		   min_order_value, max_discount_amount, start_date, end_date, status,
		   usage_limit, usage_count, individual_use_only, exclude_sale_items,
		   scope, product_ids, category_ids, customer_ids, buy_x_get_y,
		   created_at, updated_at`

// CouponRepository implements repository.CouponRepository using PostgreSQL.
type CouponRepository struct {
	pool database.DBTX
}

// NewCouponRepository creates a new PostgreSQL-backed coupon repository.
func NewCouponRepository(pool database.DBTX) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// Create inserts a new coupon into the database.
func (r *CouponRepository) Create(ctx context.Context, c *domain.Coupon) error {
	productsJSON, categoriesJSON, customersJSON, buyXGetYJSON, err := marshalCouponLists(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO coupons (
			id, code, description, discount_type, discount_value,
			min_order_value, max_discount_amount, start_date, end_date, status,
			usage_limit, usage_count, individual_use_only, exclude_sale_items,
			scope, product_ids, category_ids, customer_ids, buy_x_get_y,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	_, err = r.pool.Exec(ctx, query,
		c.ID,
		c.Code,
		c.Description,
		c.DiscountType,
		c.DiscountValue,
		c.MinOrderValue,
		c.MaxDiscountAmount,
		c.StartDate,
		c.EndDate,
		c.Status,
		c.UsageLimit,
		c.UsageCount,
		c.IndividualUseOnly,
		c.ExcludeSaleItems,
		c.Scope,
		productsJSON,
		categoriesJSON,
		customersJSON,
		buyXGetYJSON,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("coupon", "code", c.Code)
		}
		return fmt.Errorf("insert coupon: %w", err)
	}

	return nil
}

// GetByID retrieves a coupon by its ID.
func (r *CouponRepository) GetByID(ctx context.Context, id string) (*domain.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons WHERE id = $1`, couponColumns)
	return r.scanCoupon(ctx, query, id)
}

// GetByCode retrieves a coupon by its code.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := fmt.Sprintf(`SELECT %s FROM coupons WHERE code = $1`, couponColumns)
	return r.scanCoupon(ctx, query, code)
}

// List returns coupons matching the given filter with the total count.
func (r *CouponRepository) List(ctx context.Context, filter repository.CouponFilter) ([]domain.Coupon, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.DiscountType != nil {
		conditions = append(conditions, fmt.Sprintf("discount_type = $%d", argIndex))
		args = append(args, *filter.DiscountType)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM coupons
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		couponColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var (
		coupons    []domain.Coupon
		totalCount int
	)

	for rows.Next() {
		c, err := scanCouponRow(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		coupons = append(coupons, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate coupon rows: %w", err)
	}

	if coupons == nil {
		coupons = []domain.Coupon{}
	}

	return coupons, totalCount, nil
}

// Update modifies an existing coupon in the database.
func (r *CouponRepository) Update(ctx context.Context, c *domain.Coupon) error {
	productsJSON, categoriesJSON, customersJSON, buyXGetYJSON, err := marshalCouponLists(c)
	if err != nil {
		return err
	}

	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE coupons
		SET code = $1, description = $2, discount_type = $3, discount_value = $4,
		    min_order_value = $5, max_discount_amount = $6, start_date = $7,
		    end_date = $8, status = $9, usage_limit = $10,
		    individual_use_only = $11, exclude_sale_items = $12, scope = $13,
		    product_ids = $14, category_ids = $15, customer_ids = $16,
		    buy_x_get_y = $17, updated_at = $18
		WHERE id = $19`

	ct, err := r.pool.Exec(ctx, query,
		c.Code,
		c.Description,
		c.DiscountType,
		c.DiscountValue,
		c.MinOrderValue,
		c.MaxDiscountAmount,
		c.StartDate,
		c.EndDate,
		c.Status,
		c.UsageLimit,
		c.IndividualUseOnly,
		c.ExcludeSaleItems,
		c.Scope,
		productsJSON,
		categoriesJSON,
		customersJSON,
		buyXGetYJSON,
		c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("coupon", "code", c.Code)
		}
		return fmt.Errorf("update coupon: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("coupon", c.ID)
	}

	return nil
}

// Delete removes a coupon by its ID.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("coupon", id)
	}

	return nil
}

// IncrementUsage atomically increments the usage_count of a coupon. The
// increment happens in SQL so concurrent redemptions never lose updates.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id string) error {
	query := `
		UPDATE coupons
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1`

	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("coupon", id)
	}

	return nil
}

// RecordUsage appends a redemption to the usage ledger.
func (r *CouponRepository) RecordUsage(ctx context.Context, usage *domain.CouponUsage) error {
	query := `
		INSERT INTO coupon_usages (id, coupon_id, coupon_code, user_id, order_id, discount_amount, used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		usage.ID,
		usage.CouponID,
		usage.CouponCode,
		usage.UserID,
		usage.OrderID,
		usage.DiscountAmount,
		usage.UsedAt,
	)
	if err != nil {
		return fmt.Errorf("record coupon usage: %w", err)
	}

	return nil
}

// CountUsagesByUser returns how many times the given user redeemed the coupon.
func (r *CouponRepository) CountUsagesByUser(ctx context.Context, couponID, userID string) (int, error) {
	query := `SELECT count(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`

	var count int
	if err := r.pool.QueryRow(ctx, query, couponID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count coupon usages: %w", err)
	}

	return count, nil
}

// Stats returns aggregate redemption statistics.
func (r *CouponRepository) Stats(ctx context.Context) (*repository.CouponStats, error) {
	query := `
		SELECT
			(SELECT count(*) FROM coupons),
			(SELECT count(*) FROM coupons WHERE status = 'active'),
			(SELECT count(*) FROM coupon_usages),
			(SELECT COALESCE(sum(discount_amount), 0) FROM coupon_usages)`

	var stats repository.CouponStats
	err := r.pool.QueryRow(ctx, query).Scan(
		&stats.TotalCoupons,
		&stats.ActiveCoupons,
		&stats.TotalRedemptions,
		&stats.TotalDiscountGiven,
	)
	if err != nil {
		return nil, fmt.Errorf("coupon stats: %w", err)
	}

	return &stats, nil
}

// scanCoupon executes a query expected to return a single coupon row.
func (r *CouponRepository) scanCoupon(ctx context.Context, query string, args ...any) (*domain.Coupon, error) {
	row := r.pool.QueryRow(ctx, query, args...)
	c, err := scanCouponFrom(row.Scan, nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// scanCouponRow scans one row from a List query that carries a trailing
// total_count column.
func scanCouponRow(rows pgx.Rows, totalCount *int) (*domain.Coupon, error) {
	return scanCouponFrom(rows.Scan, totalCount)
}

func scanCouponFrom(scan func(dest ...any) error, totalCount *int) (*domain.Coupon, error) {
	var (
		c              domain.Coupon
		productsJSON   []byte
		categoriesJSON []byte
		customersJSON  []byte
		buyXGetYJSON   []byte
	)

	dest := []any{
		&c.ID,
		&c.Code,
		&c.Description,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MinOrderValue,
		&c.MaxDiscountAmount,
		&c.StartDate,
		&c.EndDate,
		&c.Status,
		&c.UsageLimit,
		&c.UsageCount,
		&c.IndividualUseOnly,
		&c.ExcludeSaleItems,
		&c.Scope,
		&productsJSON,
		&categoriesJSON,
		&customersJSON,
		&buyXGetYJSON,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	if totalCount != nil {
		dest = append(dest, totalCount)
	}

	if err := scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan coupon: %w", err)
	}

	if productsJSON != nil {
		if err := json.Unmarshal(productsJSON, &c.ProductIDs); err != nil {
			return nil, fmt.Errorf("unmarshal product_ids: %w", err)
		}
	}
	if categoriesJSON != nil {
		if err := json.Unmarshal(categoriesJSON, &c.CategoryIDs); err != nil {
			return nil, fmt.Errorf("unmarshal category_ids: %w", err)
		}
	}
	if customersJSON != nil {
		if err := json.Unmarshal(customersJSON, &c.CustomerIDs); err != nil {
			return nil, fmt.Errorf("unmarshal customer_ids: %w", err)
		}
	}
	if buyXGetYJSON != nil {
		if err := json.Unmarshal(buyXGetYJSON, &c.BuyXGetY); err != nil {
			return nil, fmt.Errorf("unmarshal buy_x_get_y: %w", err)
		}
	}

	return &c, nil
}

func marshalCouponLists(c *domain.Coupon) (products, categories, customers, buyXGetY []byte, err error) {
	products, err = json.Marshal(c.ProductIDs)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal product_ids: %w", err)
	}
	categories, err = json.Marshal(c.CategoryIDs)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal category_ids: %w", err)
	}
	customers, err = json.Marshal(c.CustomerIDs)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal customer_ids: %w", err)
	}
	if c.BuyXGetY != nil {
		buyXGetY, err = json.Marshal(c.BuyXGetY)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal buy_x_get_y: %w", err)
		}
	}
	return products, categories, customers, buyXGetY, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
