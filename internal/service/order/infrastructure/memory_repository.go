package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderhub/internal/service/order/domain"
)

// MemoryOrderRepository 是进程内的 OrderRepository 实现，用于本地运行和测试。
// 存取都使用深拷贝，调用方拿到的订单与存储互不影响。
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	// customerID -> idempotencyKey -> orderID
	keys map[string]map[string]string
	now  func() time.Time
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: map[string]*domain.Order{},
		keys:   map[string]map[string]string{},
		now:    storeNow,
	}
}

func (r *MemoryOrderRepository) Save(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if order.ID == "" {
		if order.IdempotencyKey != "" {
			if _, dup := r.keys[order.CustomerID][order.IdempotencyKey]; dup {
				return nil, domain.ErrDuplicateIdempotencyKey
			}
		}
		order.ID = uuid.NewString()
		order.CreatedAt = now
		order.UpdatedAt = now
		order.Version = 1
		r.orders[order.ID] = order.Clone()
		if order.IdempotencyKey != "" {
			if r.keys[order.CustomerID] == nil {
				r.keys[order.CustomerID] = map[string]string{}
			}
			r.keys[order.CustomerID][order.IdempotencyKey] = order.ID
		}
		return order, nil
	}

	stored, ok := r.orders[order.ID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if stored.Version != order.Version {
		return nil, domain.ErrOrderConflict
	}
	// 只有 status/deleted 可变
	stored.Status = order.Status
	stored.Deleted = order.Deleted
	stored.UpdatedAt = now
	stored.Version++

	order.UpdatedAt = now
	order.Version = stored.Version
	return order, nil
}

func (r *MemoryOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r *MemoryOrderRepository) FindByIDForCustomer(ctx context.Context, id, customerID string) (*domain.Order, error) {
	o, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.OwnedBy(customerID) {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

func (r *MemoryOrderRepository) FindByIdempotencyKey(ctx context.Context, customerID, key string) (*domain.Order, error) {
	r.mu.RLock()
	id, ok := r.keys[customerID][key]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *MemoryOrderRepository) ListByCustomer(ctx context.Context, customerID string, filter domain.ListFilter) ([]*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []*domain.Order
	for _, o := range r.orders {
		if !o.OwnedBy(customerID) {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		out = append(out, o.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*domain.Order{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	if out == nil {
		out = []*domain.Order{}
	}
	return out, nil
}
