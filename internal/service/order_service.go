package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// OrderService coordina colocación y transiciones de estado de órdenes.
type OrderService struct {
	logger   *zap.Logger
	orders   repository.OrderRepository
	products repository.ProductRepository
}

func NewOrderService(logger *zap.Logger, orders repository.OrderRepository, products repository.ProductRepository) *OrderService {
	return &OrderService{
		logger:   logger,
		orders:   orders,
		products: products,
	}
}

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrNotOrderOwner      = errors.New("order belongs to another account")
	ErrEmptyOrder         = errors.New("order has no items")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrOutOfStock         = errors.New("insufficient stock")
	ErrInvalidTransition  = errors.New("status transition not allowed")
	ErrInvalidStatus      = errors.New("unknown order status")
)

type OrderItemInput struct {
	ProductID string
	Quantity  int
}

type PlaceOrderInput struct {
	Items           []OrderItemInput
	ShippingAddress domain.Address
}

// Place crea una orden en estado pending con un snapshot de nombre y precio
// de cada producto. El descuento de stock es un UPDATE condicional por
// producto; si uno falla, se repone lo ya descontado.
func (s *OrderService) Place(ctx context.Context, userID string, input PlaceOrderInput) (domain.Order, error) {
	if len(input.Items) == 0 {
		return domain.Order{}, ErrEmptyOrder
	}
	if err := validateAddress(input.ShippingAddress); err != nil {
		return domain.Order{}, err
	}

	var (
		items []domain.OrderItem
		total int64
	)
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			s.rollbackStock(ctx, items)
			return domain.Order{}, ErrInvalidQuantity
		}
		product, err := s.products.GetByID(ctx, item.ProductID)
		if err != nil {
			s.rollbackStock(ctx, items)
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.Order{}, fmt.Errorf("%w: %s", ErrProductUnavailable, item.ProductID)
			}
			return domain.Order{}, err
		}
		if !product.Active {
			s.rollbackStock(ctx, items)
			return domain.Order{}, fmt.Errorf("%w: %s", ErrProductUnavailable, product.Name)
		}

		ok, err := s.products.DecrementStock(ctx, product.ID, item.Quantity)
		if err != nil {
			s.rollbackStock(ctx, items)
			return domain.Order{}, err
		}
		if !ok {
			s.rollbackStock(ctx, items)
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOutOfStock, product.Name)
		}

		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
		})
		total += product.Price * int64(item.Quantity)
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Items:           items,
		Total:           total,
		Status:          domain.OrderPending,
		ShippingAddress: input.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		s.rollbackStock(ctx, items)
		return domain.Order{}, err
	}
	return order, nil
}

// Get devuelve una orden visible para el solicitante: el dueño o un admin.
func (s *OrderService) Get(ctx context.Context, orderID, requesterID string, isAdmin bool) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	if !isAdmin && order.UserID != requesterID {
		return domain.Order{}, ErrNotOrderOwner
	}
	return order, nil
}

// Cancel cancela una orden del dueño. Solo pending y confirmed son
// cancelables; el rechazo cita el estado actual. El cambio de estado es un
// UPDATE condicional sobre el estado leído, y el stock se repone al éxito.
func (s *OrderService) Cancel(ctx context.Context, orderID, requesterID string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	if order.UserID != requesterID {
		return domain.Order{}, ErrNotOrderOwner
	}
	if order.Status != domain.OrderPending && order.Status != domain.OrderConfirmed {
		return domain.Order{}, fmt.Errorf("%w: order is %s", ErrInvalidTransition, order.Status)
	}

	ok, err := s.orders.UpdateStatusIf(ctx, order.ID, order.Status, domain.OrderCancelled)
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		// Otra petición movió la orden primero; reportamos el estado fresco.
		fresh, err := s.orders.GetByID(ctx, order.ID)
		if err != nil {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("%w: order is %s", ErrInvalidTransition, fresh.Status)
	}

	s.restoreStock(ctx, order.Items)
	order.Status = domain.OrderCancelled
	return order, nil
}

// AdminUpdateStatus aplica cualquier transición sin restricción. El cambio es
// un UPDATE condicional sobre el estado leído; si otra petición lo movió
// primero, se reintenta desde el estado fresco. Llegar a cancelled ya estando
// en cancelled es un no-op, así el stock del snapshot se repone una sola vez
// por más escritores concurrentes que apunten al mismo estado.
func (s *OrderService) AdminUpdateStatus(ctx context.Context, orderID, status string) (domain.Order, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !domain.ValidOrderStatus(status) {
		return domain.Order{}, ErrInvalidStatus
	}

	for attempt := 0; attempt < 3; attempt++ {
		order, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.Order{}, ErrOrderNotFound
			}
			return domain.Order{}, err
		}
		if order.Status == status {
			return order, nil
		}

		ok, err := s.orders.UpdateStatusIf(ctx, order.ID, order.Status, status)
		if err != nil {
			return domain.Order{}, err
		}
		if !ok {
			continue
		}
		if status == domain.OrderCancelled {
			s.restoreStock(ctx, order.Items)
		}
		order.Status = status
		return order, nil
	}
	return domain.Order{}, fmt.Errorf("%w: order status changed concurrently", ErrInvalidTransition)
}

// ListForUser lista las órdenes del dueño con paginación.
func (s *OrderService) ListForUser(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int, error) {
	return s.orders.ListByUser(ctx, userID, limit, offset)
}

// ListAll lista órdenes sin scope, con filtro opcional por estado.
func (s *OrderService) ListAll(ctx context.Context, status string, limit, offset int) ([]domain.Order, int, error) {
	if status != "" && !domain.ValidOrderStatus(status) {
		return nil, 0, ErrInvalidStatus
	}
	return s.orders.List(ctx, status, limit, offset)
}

func (s *OrderService) rollbackStock(ctx context.Context, items []domain.OrderItem) {
	s.restoreStock(ctx, items)
}

func (s *OrderService) restoreStock(ctx context.Context, items []domain.OrderItem) {
	for _, item := range items {
		if err := s.products.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil && s.logger != nil {
			s.logger.Error("restore stock failed",
				zap.Error(err),
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
			)
		}
	}
}

func validateAddress(addr domain.Address) error {
	if strings.TrimSpace(addr.Line1) == "" ||
		strings.TrimSpace(addr.City) == "" ||
		strings.TrimSpace(addr.PostalCode) == "" ||
		strings.TrimSpace(addr.Country) == "" {
		return errors.New("incomplete shipping address")
	}
	return nil
}
