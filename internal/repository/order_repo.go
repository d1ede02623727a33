package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
)

// OrderRepository define el contrato de persistencia para órdenes.
//
// UpdateStatusIf cambia el estado solo si el estado actual coincide con from;
// false indica que otra petición lo cambió primero.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int, error)
	List(ctx context.Context, status string, limit, offset int) ([]domain.Order, int, error)
	UpdateStatusIf(ctx context.Context, id, from, to string) (bool, error)
}

// PgOrderRepository implementa OrderRepository usando pgxpool.
// Items y dirección se guardan como snapshots JSONB.
type PgOrderRepository struct {
	pool *pgxpool.Pool
}

func NewPgOrderRepository(pool *pgxpool.Pool) *PgOrderRepository {
	return &PgOrderRepository{pool: pool}
}

const orderColumns = `id, user_id, items, total, status, shipping_address, created_at, updated_at`

func (r *PgOrderRepository) Create(ctx context.Context, order domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		order.ID,
		order.UserID,
		items,
		order.Total,
		order.Status,
		address,
		order.CreatedAt,
		order.UpdatedAt,
	)
	return err
}

func (r *PgOrderRepository) GetByID(ctx context.Context, id string) (domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	var (
		o       domain.Order
		items   []byte
		address []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.UserID,
		&items,
		&o.Total,
		&o.Status,
		&address,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *PgOrderRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int, error) {
	return r.list(ctx, " WHERE user_id = $1", []any{userID}, limit, offset)
}

func (r *PgOrderRepository) List(ctx context.Context, status string, limit, offset int) ([]domain.Order, int, error) {
	if status == "" {
		return r.list(ctx, "", nil, limit, offset)
	}
	return r.list(ctx, " WHERE status = $1", []any{status}, limit, offset)
}

func (r *PgOrderRepository) UpdateStatusIf(ctx context.Context, id, from, to string) (bool, error) {
	const query = `
		UPDATE orders
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgOrderRepository) list(ctx context.Context, where string, args []any, limit, offset int) ([]domain.Order, int, error) {
	countQuery := `SELECT count(*) FROM orders` + where
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(
		`SELECT %s FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2,
	)
	rows, err := r.pool.Query(ctx, listQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var (
			o       domain.Order
			items   []byte
			address []byte
		)
		if err := rows.Scan(
			&o.ID,
			&o.UserID,
			&items,
			&o.Total,
			&o.Status,
			&address,
			&o.CreatedAt,
			&o.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}
