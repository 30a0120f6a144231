package shop

import (
	"context"
	"fmt"
	"strings"
)

// Store defines storefront persistence operations.
type Store interface {
	CreateProduct(ctx context.Context, p Product) (Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context, limit int) ([]Product, error)
	UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, c Category) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)

	CreateOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrdersForUser(ctx context.Context, userID string, limit int) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, id, status string) (Order, error)

	CreatePayment(ctx context.Context, p Payment) (Payment, error)
	GetPayment(ctx context.Context, id string) (Payment, error)
	UpdatePaymentStatus(ctx context.Context, id, status string) (Payment, error)
}

// ProductUpdate is a partial product mutation; nil fields are untouched.
type ProductUpdate struct {
	Name        *string
	Description *string
	Price       *int64
	Inventory   *int
	Status      *string
}

// Service validates storefront operations and delegates persistence.
type Service struct {
	store Store
}

// NewService constructs the storefront service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	return &Service{store: store}, nil
}

func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	if p.SKU == "" || p.Name == "" {
		return Product{}, fmt.Errorf("%w: sku and name are required", ErrInvalidInput)
	}
	if p.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if p.Inventory < 0 {
		return Product{}, fmt.Errorf("%w: inventory must not be negative", ErrInvalidInput)
	}
	if p.Status == "" {
		p.Status = ProductStatusDraft
	}
	return s.store.CreateProduct(ctx, p)
}

func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	if strings.TrimSpace(id) == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	return s.store.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListProducts(ctx, limit)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (Product, error) {
	if strings.TrimSpace(id) == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if upd.Price != nil && *upd.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if upd.Inventory != nil && *upd.Inventory < 0 {
		return Product{}, fmt.Errorf("%w: inventory must not be negative", ErrInvalidInput)
	}
	return s.store.UpdateProduct(ctx, id, upd)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	return s.store.DeleteProduct(ctx, id)
}

func (s *Service) CreateCategory(ctx context.Context, c Category) (Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}
	return s.store.CreateCategory(ctx, c)
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *Service) CreateOrder(ctx context.Context, userID string, items []OrderItem) (Order, error) {
	if strings.TrimSpace(userID) == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if len(items) == 0 {
		return Order{}, fmt.Errorf("%w: order needs at least one item", ErrInvalidInput)
	}
	// Unit prices come from the catalog, never from the caller.
	var total int64
	for i, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: invalid order item", ErrInvalidInput)
		}
		product, err := s.store.GetProduct(ctx, item.ProductID)
		if err != nil {
			return Order{}, err
		}
		items[i].UnitPrice = product.Price
		total += product.Price * int64(item.Quantity)
	}
	return s.store.CreateOrder(ctx, Order{
		UserID:      userID,
		Status:      OrderStatusPending,
		TotalAmount: total,
		Items:       items,
	})
}

func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	if strings.TrimSpace(id) == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	return s.store.GetOrder(ctx, id)
}

func (s *Service) ListOrdersForUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListOrdersForUser(ctx, userID, limit)
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id, status string) (Order, error) {
	status = strings.TrimSpace(strings.ToLower(status))
	if !ValidOrderStatus(status) {
		return Order{}, fmt.Errorf("%w: unknown order status %s", ErrInvalidInput, status)
	}
	return s.store.UpdateOrderStatus(ctx, id, status)
}

func (s *Service) ProcessPayment(ctx context.Context, orderID, method string, amount int64) (Payment, error) {
	if strings.TrimSpace(orderID) == "" {
		return Payment{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if amount <= 0 {
		return Payment{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if method != PaymentMethodCreditCard && method != PaymentMethodCash {
		return Payment{}, fmt.Errorf("%w: unknown payment method %s", ErrInvalidInput, method)
	}
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return Payment{}, err
	}
	return s.store.CreatePayment(ctx, Payment{
		OrderID: orderID,
		Amount:  amount,
		Method:  method,
		Status:  PaymentStatusSuccess,
	})
}

func (s *Service) GetPayment(ctx context.Context, id string) (Payment, error) {
	if strings.TrimSpace(id) == "" {
		return Payment{}, fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}
	return s.store.GetPayment(ctx, id)
}

func (s *Service) RefundPayment(ctx context.Context, paymentID string) (Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return Payment{}, fmt.Errorf("%w: payment id is required", ErrInvalidInput)
	}
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	if payment.Status != PaymentStatusSuccess {
		return Payment{}, ErrNotRefundable
	}
	return s.store.UpdatePaymentStatus(ctx, paymentID, PaymentStatusRefunded)
}
