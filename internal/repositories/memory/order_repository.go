package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/repositories"
)

// OrderRepository keeps orders in insertion order so full scans are deterministic.
type OrderRepository struct {
	mu    sync.Mutex
	ids   []string
	items map[string]domain.Order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs an empty repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{items: make(map[string]domain.Order)}
}

func (r *OrderRepository) Insert(_ context.Context, order domain.Order) error {
	if order.ID == "" {
		return conflict("orders.insert", "order id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[order.ID]; exists {
		return conflict("orders.insert", fmt.Sprintf("%s already exists", order.ID))
	}
	r.ids = append(r.ids, order.ID)
	r.items[order.ID] = order
	return nil
}

func (r *OrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.items[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", orderID)
	}
	return order, nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, orderID string, expected, next domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.items[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.updateStatus", orderID)
	}
	if order.Status != expected {
		return domain.Order{}, conflict("orders.updateStatus", fmt.Sprintf("status is %s, expected %s", order.Status, expected))
	}
	order.Status = next
	order.UpdatedAt = updatedAt
	r.items[orderID] = order
	return order, nil
}

func (r *OrderRepository) ListAll(context.Context) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	orders := make([]domain.Order, 0, len(r.ids))
	for _, id := range r.ids {
		orders = append(orders, r.items[id])
	}
	return orders, nil
}

func (r *OrderRepository) List(_ context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.mu.Lock()
	orders := make([]domain.Order, 0)
	for _, id := range r.ids {
		order := r.items[id]
		if filter.BuyerID != "" && order.BuyerID != filter.BuyerID {
			continue
		}
		if filter.FarmerID != "" && order.FarmerID != filter.FarmerID {
			continue
		}
		orders = append(orders, order)
	}
	r.mu.Unlock()

	sort.SliceStable(orders, func(i, j int) bool { return orders[i].OrderDate.After(orders[j].OrderDate) })
	if filter.Limit > 0 && len(orders) > filter.Limit {
		orders = orders[:filter.Limit]
	}
	return orders, nil
}

func (r *OrderRepository) Delete(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[orderID]; !ok {
		return notFound("orders.delete", orderID)
	}
	delete(r.items, orderID)
	r.ids = slices.DeleteFunc(r.ids, func(id string) bool { return id == orderID })
	return nil
}
