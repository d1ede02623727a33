package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

type mockProductRepo struct {
	mu       sync.Mutex
	products map[string]domain.Product
}

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{products: make(map[string]domain.Product)}
}

func (m *mockProductRepo) Create(_ context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = product
	return nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return domain.Product{}, pgx.ErrNoRows
	}
	return product, nil
}

func (m *mockProductRepo) Update(_ context.Context, product domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = product
	return nil
}

func (m *mockProductRepo) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return pgx.ErrNoRows
	}
	product.Active = active
	m.products[id] = product
	return nil
}

func (m *mockProductRepo) List(_ context.Context, _ domain.ProductFilter, _ int, _ int) ([]domain.Product, int, error) {
	return nil, 0, nil
}

func (m *mockProductRepo) DecrementStock(_ context.Context, id string, qty int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok || !product.Active || product.Stock < qty {
		return false, nil
	}
	product.Stock -= qty
	m.products[id] = product
	return true, nil
}

func (m *mockProductRepo) RestoreStock(_ context.Context, id string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return pgx.ErrNoRows
	}
	product.Stock += qty
	m.products[id] = product
	return nil
}

type mockOrderRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[string]domain.Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return domain.Order{}, pgx.ErrNoRows
	}
	return order, nil
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string, _ int, _ int) ([]domain.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []domain.Order
	for _, order := range m.orders {
		if order.UserID == userID {
			orders = append(orders, order)
		}
	}
	return orders, len(orders), nil
}

func (m *mockOrderRepo) List(_ context.Context, status string, _ int, _ int) ([]domain.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []domain.Order
	for _, order := range m.orders {
		if status == "" || order.Status == status {
			orders = append(orders, order)
		}
	}
	return orders, len(orders), nil
}

func (m *mockOrderRepo) UpdateStatusIf(_ context.Context, id, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	m.orders[id] = order
	return true, nil
}

// setStatus fija el estado directamente, solo para preparar escenarios.
func (m *mockOrderRepo) setStatus(id, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return pgx.ErrNoRows
	}
	order.Status = to
	m.orders[id] = order
	return nil
}

func testAddress() domain.Address {
	return domain.Address{
		Line1:      "12 Market St",
		City:       "Pune",
		PostalCode: "411001",
		Country:    "IN",
	}
}

func seedProduct(t *testing.T, repo *mockProductRepo, id string, price int64, stock int, active bool) {
	t.Helper()
	now := time.Now().UTC()
	if err := repo.Create(context.Background(), domain.Product{
		ID: id, Name: "Product " + id, Price: price, Stock: stock, Active: active,
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed product failed: %v", err)
	}
}

func TestOrderServicePlace_SnapshotAndStock(t *testing.T) {
	products := newMockProductRepo()
	orders := newMockOrderRepo()
	svc := NewOrderService(zap.NewNop(), orders, products)

	seedProduct(t, products, "p1", 1500, 10, true)
	seedProduct(t, products, "p2", 700, 5, true)

	order, err := svc.Place(context.Background(), "u1", PlaceOrderInput{
		Items: []OrderItemInput{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 3},
		},
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if order.Status != domain.OrderPending {
		t.Fatalf("expected pending order, got %s", order.Status)
	}
	if order.Total != 2*1500+3*700 {
		t.Fatalf("unexpected total: %d", order.Total)
	}
	if len(order.Items) != 2 || order.Items[0].Name == "" || order.Items[0].UnitPrice != 1500 {
		t.Fatalf("expected item snapshot, got %+v", order.Items)
	}

	p1, _ := products.GetByID(context.Background(), "p1")
	p2, _ := products.GetByID(context.Background(), "p2")
	if p1.Stock != 8 || p2.Stock != 2 {
		t.Fatalf("expected stock decremented, got %d and %d", p1.Stock, p2.Stock)
	}
}

func TestOrderServicePlace_OutOfStockRollsBack(t *testing.T) {
	products := newMockProductRepo()
	orders := newMockOrderRepo()
	svc := NewOrderService(zap.NewNop(), orders, products)

	seedProduct(t, products, "p1", 1500, 10, true)
	seedProduct(t, products, "p2", 700, 1, true)

	_, err := svc.Place(context.Background(), "u1", PlaceOrderInput{
		Items: []OrderItemInput{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 5},
		},
		ShippingAddress: testAddress(),
	})
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}

	// El stock ya descontado del primer producto se repone.
	p1, _ := products.GetByID(context.Background(), "p1")
	if p1.Stock != 10 {
		t.Fatalf("expected stock restored on rollback, got %d", p1.Stock)
	}
	if len(orders.orders) != 0 {
		t.Fatalf("expected no order persisted")
	}
}

func TestOrderServicePlace_Validation(t *testing.T) {
	products := newMockProductRepo()
	orders := newMockOrderRepo()
	svc := NewOrderService(zap.NewNop(), orders, products)

	seedProduct(t, products, "inactive", 100, 10, false)

	if _, err := svc.Place(context.Background(), "u1", PlaceOrderInput{ShippingAddress: testAddress()}); !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("expected ErrEmptyOrder, got %v", err)
	}
	_, err := svc.Place(context.Background(), "u1", PlaceOrderInput{
		Items:           []OrderItemInput{{ProductID: "missing", Quantity: 1}},
		ShippingAddress: testAddress(),
	})
	if !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable for unknown product, got %v", err)
	}
	_, err = svc.Place(context.Background(), "u1", PlaceOrderInput{
		Items:           []OrderItemInput{{ProductID: "inactive", Quantity: 1}},
		ShippingAddress: testAddress(),
	})
	if !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable for inactive product, got %v", err)
	}
	_, err = svc.Place(context.Background(), "u1", PlaceOrderInput{
		Items:           []OrderItemInput{{ProductID: "inactive", Quantity: 0}},
		ShippingAddress: testAddress(),
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestOrderServiceCancel_ConfirmedThenRejectSecond(t *testing.T) {
	products := newMockProductRepo()
	orders := newMockOrderRepo()
	svc := NewOrderService(zap.NewNop(), orders, products)

	seedProduct(t, products, "p1", 1500, 8, true)
	placed, err := svc.Place(context.Background(), "u1", PlaceOrderInput{
		Items:           []OrderItemInput{{ProductID: "p1", Quantity: 2}},
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if err := orders.setStatus(placed.ID, domain.OrderConfirmed); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	cancelled, err := svc.Cancel(context.Background(), placed.ID, "u1")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.OrderCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	p1, _ := products.GetByID(context.Background(), "p1")
	if p1.Stock != 8 {
		t.Fatalf("expected stock restored after cancel, got %d", p1.Stock)
	}

	// Segundo intento: rechazo citando el estado actual.
	_, err = svc.Cancel(context.Background(), placed.ID, "u1")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if !strings.Contains(err.Error(), domain.OrderCancelled) {
		t.Fatalf("expected message to cite current status, got %q", err.Error())
	}
}

func TestOrderServiceCancel_Guards(t *testing.T) {
	products := newMockProductRepo()
	orders := newMockOrderRepo()
	svc := NewOrderService(zap.NewNop(), orders, products)

	seedProduct(t, products, "p1", 1500, 8, true)
	placed, err := svc.Place(context.Background(), "u1", PlaceOrderInput{
		Items:           []OrderItemInput{{ProductID: "p1", Quantity: 1}},
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}

	if _, err := svc.Cancel(context.Background(), placed.ID, "intruder"); !errors.Is(err, ErrNotOrderOwner) {
		t.Fatalf("expected ErrNotOrderOwner, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), "missing", "u1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	// Una orden ya enviada no es cancelable por el dueño.
	if err := orders.setStatus(placed.ID, domain.OrderShipped); err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	_, err = svc.Cancel(context.Background(), placed.ID, "u1")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if !strings.Contains(err.Error(), domain.OrderShipped) {
		t.Fatalf("expected message to cite shipped status, got %q", err.Error())
	}
}

func TestOrderServiceAdminUpdateStatus(t *testing.T) {
	products := newMockProductRepo()
	orders := newMockOrderRepo()
	svc := NewOrderService(zap.NewNop(), orders, products)

	seedProduct(t, products, "p1", 1500, 8, true)
	placed, err := svc.Place(context.Background(), "u1", PlaceOrderInput{
		Items:           []OrderItemInput{{ProductID: "p1", Quantity: 2}},
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}

	// El admin puede aplicar transiciones sin restricción, incluso hacia atrás.
	for _, status := range []string{domain.OrderShipped, domain.OrderConfirmed, domain.OrderDelivered} {
		order, err := svc.AdminUpdateStatus(context.Background(), placed.ID, status)
		if err != nil {
			t.Fatalf("admin update to %s failed: %v", status, err)
		}
		if order.Status != status {
			t.Fatalf("expected %s, got %s", status, order.Status)
		}
	}

	if _, err := svc.AdminUpdateStatus(context.Background(), placed.ID, "teleported"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	// Entrar a cancelled repone stock.
	if _, err := svc.AdminUpdateStatus(context.Background(), placed.ID, domain.OrderCancelled); err != nil {
		t.Fatalf("admin cancel failed: %v", err)
	}
	p1, _ := products.GetByID(context.Background(), "p1")
	if p1.Stock != 8 {
		t.Fatalf("expected stock restored, got %d", p1.Stock)
	}
}

func TestOrderServiceAdminUpdateStatus_ConcurrentCancelRestoresOnce(t *testing.T) {
	products := newMockProductRepo()
	orders := newMockOrderRepo()
	svc := NewOrderService(zap.NewNop(), orders, products)

	seedProduct(t, products, "p1", 1500, 8, true)
	placed, err := svc.Place(context.Background(), "u1", PlaceOrderInput{
		Items:           []OrderItemInput{{ProductID: "p1", Quantity: 3}},
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}

	// Varios admins cancelan a la vez: solo la transición ganadora repone el
	// stock; para el resto, llegar a cancelled estando cancelled es un no-op.
	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AdminUpdateStatus(context.Background(), placed.ID, domain.OrderCancelled); err != nil {
				t.Errorf("concurrent admin cancel failed: %v", err)
			}
		}()
	}
	wg.Wait()

	p1, _ := products.GetByID(context.Background(), "p1")
	if p1.Stock != 8 {
		t.Fatalf("expected stock restored exactly once, got %d", p1.Stock)
	}
	stored, _ := orders.GetByID(context.Background(), placed.ID)
	if stored.Status != domain.OrderCancelled {
		t.Fatalf("expected cancelled order, got %s", stored.Status)
	}
}

func TestOrderServiceGet_Scoping(t *testing.T) {
	products := newMockProductRepo()
	orders := newMockOrderRepo()
	svc := NewOrderService(zap.NewNop(), orders, products)

	seedProduct(t, products, "p1", 1500, 8, true)
	placed, err := svc.Place(context.Background(), "u1", PlaceOrderInput{
		Items:           []OrderItemInput{{ProductID: "p1", Quantity: 1}},
		ShippingAddress: testAddress(),
	})
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}

	if _, err := svc.Get(context.Background(), placed.ID, "u1", false); err != nil {
		t.Fatalf("owner get failed: %v", err)
	}
	if _, err := svc.Get(context.Background(), placed.ID, "u2", false); !errors.Is(err, ErrNotOrderOwner) {
		t.Fatalf("expected ErrNotOrderOwner, got %v", err)
	}
	if _, err := svc.Get(context.Background(), placed.ID, "admin", true); err != nil {
		t.Fatalf("admin get failed: %v", err)
	}
}
