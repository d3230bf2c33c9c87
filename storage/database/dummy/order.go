package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/reliefbridge/core/order"
)

type orderRepository struct {
	db *orderTable
}

var _ order.Repository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(db *DB) order.Repository {
	return &orderRepository{db: db.order}
}

func (repo *orderRepository) CreateOrder(ctx context.Context, ord order.Order) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.table[ord.ID] = &ord
	return nil
}

func (repo *orderRepository) GetOrder(ctx context.Context, id string) (order.Order, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ord, ok := repo.db.table[id]; ok {
		return *ord, nil
	}
	return order.Order{}, order.ErrNotFound
}

func (repo *orderRepository) QueryOrdersByVendor(ctx context.Context, vendorID string) ([]order.Order, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var orders []order.Order
	for _, ord := range repo.db.table {
		if ord.VendorID == vendorID {
			orders = append(orders, *ord)
		}
	}
	// newest first
	sort.Slice(orders, func(i, j int) bool { return orders[i].OrderDate.After(orders[j].OrderDate) })
	return orders, nil
}

func (repo *orderRepository) UpdateOrder(ctx context.Context, ord order.Order) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[ord.ID]; !ok {
		return order.ErrNotFound
	}
	repo.db.table[ord.ID] = &ord
	return nil
}
