package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TimeBucket agrupa conteos y montos por periodo.
type TimeBucket struct {
	Period  time.Time `json:"period"`
	Count   int64     `json:"count"`
	Revenue int64     `json:"revenue"`
}

// ProductSales acumula unidades vendidas por producto.
type ProductSales struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Units     int64  `json:"units"`
}

// Totals resume los contadores del dashboard.
type Totals struct {
	Users         int64 `json:"users"`
	Products      int64 `json:"products"`
	Orders        int64 `json:"orders"`
	PendingOrders int64 `json:"pending_orders"`
	Revenue       int64 `json:"revenue"`
}

// AnalyticsRepository define las consultas de agregación de solo lectura.
type AnalyticsRepository interface {
	Totals(ctx context.Context) (Totals, error)
	SalesByPeriod(ctx context.Context, trunc string, since time.Time) ([]TimeBucket, error)
	SignupsByPeriod(ctx context.Context, trunc string, since time.Time) ([]TimeBucket, error)
	TopProducts(ctx context.Context, since time.Time, limit int) ([]ProductSales, error)
}

// PgAnalyticsRepository implementa AnalyticsRepository usando pgxpool.
type PgAnalyticsRepository struct {
	pool *pgxpool.Pool
}

func NewPgAnalyticsRepository(pool *pgxpool.Pool) *PgAnalyticsRepository {
	return &PgAnalyticsRepository{pool: pool}
}

func (r *PgAnalyticsRepository) Totals(ctx context.Context) (Totals, error) {
	const query = `
		SELECT
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM products WHERE active = true),
			(SELECT count(*) FROM orders),
			(SELECT count(*) FROM orders WHERE status = 'pending'),
			(SELECT coalesce(sum(total), 0) FROM orders WHERE status <> 'cancelled')
	`
	var t Totals
	err := r.pool.QueryRow(ctx, query).Scan(
		&t.Users,
		&t.Products,
		&t.Orders,
		&t.PendingOrders,
		&t.Revenue,
	)
	return t, err
}

func (r *PgAnalyticsRepository) SalesByPeriod(ctx context.Context, trunc string, since time.Time) ([]TimeBucket, error) {
	const query = `
		SELECT date_trunc($1, created_at) AS period, count(*), coalesce(sum(total), 0)
		FROM orders
		WHERE created_at >= $2 AND status <> 'cancelled'
		GROUP BY period
		ORDER BY period ASC
	`
	return r.scanBuckets(ctx, query, trunc, since)
}

func (r *PgAnalyticsRepository) SignupsByPeriod(ctx context.Context, trunc string, since time.Time) ([]TimeBucket, error) {
	const query = `
		SELECT date_trunc($1, created_at) AS period, count(*), 0
		FROM users
		WHERE created_at >= $2
		GROUP BY period
		ORDER BY period ASC
	`
	return r.scanBuckets(ctx, query, trunc, since)
}

func (r *PgAnalyticsRepository) TopProducts(ctx context.Context, since time.Time, limit int) ([]ProductSales, error) {
	// Los items viven como snapshot JSONB dentro de la orden.
	const query = `
		SELECT item->>'product_id', item->>'name', sum((item->>'quantity')::bigint) AS units
		FROM orders, jsonb_array_elements(items) AS item
		WHERE created_at >= $1 AND status <> 'cancelled'
		GROUP BY 1, 2
		ORDER BY units DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []ProductSales
	for rows.Next() {
		var s ProductSales
		if err := rows.Scan(&s.ProductID, &s.Name, &s.Units); err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

func (r *PgAnalyticsRepository) scanBuckets(ctx context.Context, query string, args ...any) ([]TimeBucket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []TimeBucket
	for rows.Next() {
		var b TimeBucket
		if err := rows.Scan(&b.Period, &b.Count, &b.Revenue); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
