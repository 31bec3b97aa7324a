package infrastructure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderhub/internal/service/order/domain"
)

// stepClock 每次调用前进 1 秒，让 createdAt 可区分
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestOrder(t *testing.T, customerID, key string) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder(customerID, []domain.OrderItem{
		{ProductID: "P1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		{ProductID: "P2", Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")},
	}, key)
	require.NoError(t, err)
	return o
}

func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) domain.OrderRepository) {
	ctx := context.Background()

	t.Run("first save assigns identity", func(t *testing.T) {
		repo := newRepo(t)
		o := newTestOrder(t, "cust-1", "")

		saved, err := repo.Save(ctx, o)
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
		assert.False(t, saved.CreatedAt.IsZero())
		assert.Equal(t, int64(1), saved.Version)

		found, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, "cust-1", found.CustomerID)
		assert.Equal(t, domain.StatePending, found.Status)
		assert.True(t, found.TotalAmount().Equal(decimal.NewFromInt(25)))
		require.Len(t, found.Items(), 2)
		assert.Equal(t, "P1", found.Items()[0].ProductID)
		assert.Equal(t, "P2", found.Items()[1].ProductID)
		assert.True(t, saved.CreatedAt.Equal(found.CreatedAt))
	})

	t.Run("update uses optimistic version", func(t *testing.T) {
		repo := newRepo(t)
		saved, err := repo.Save(ctx, newTestOrder(t, "cust-1", ""))
		require.NoError(t, err)

		first, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		stale, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)

		require.NoError(t, first.TransitionTo(domain.StateConfirmed))
		updated, err := repo.Save(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated.Version)

		require.NoError(t, stale.TransitionTo(domain.StateCancelled))
		_, err = repo.Save(ctx, stale)
		assert.ErrorIs(t, err, domain.ErrOrderConflict)

		found, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StateConfirmed, found.Status)

		ghost := newTestOrder(t, "cust-1", "")
		ghost.ID = "does-not-exist"
		ghost.Version = 1
		_, err = repo.Save(ctx, ghost)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("customer reads hide foreign and deleted orders", func(t *testing.T) {
		repo := newRepo(t)
		saved, err := repo.Save(ctx, newTestOrder(t, "cust-1", ""))
		require.NoError(t, err)

		_, err = repo.FindByIDForCustomer(ctx, saved.ID, "cust-2")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)

		mine, err := repo.FindByIDForCustomer(ctx, saved.ID, "cust-1")
		require.NoError(t, err)

		mine.MarkAsDeleted()
		_, err = repo.Save(ctx, mine)
		require.NoError(t, err)

		_, err = repo.FindByIDForCustomer(ctx, saved.ID, "cust-1")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)

		audit, err := repo.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.True(t, audit.Deleted)
	})

	t.Run("list orders newest first with filter and paging", func(t *testing.T) {
		repo := newRepo(t)
		var ids []string
		for i := 0; i < 4; i++ {
			saved, err := repo.Save(ctx, newTestOrder(t, "cust-1", ""))
			require.NoError(t, err)
			ids = append(ids, saved.ID)
		}
		_, err := repo.Save(ctx, newTestOrder(t, "cust-2", ""))
		require.NoError(t, err)

		// ids[1] 确认, ids[3] 删除
		o1, err := repo.FindByID(ctx, ids[1])
		require.NoError(t, err)
		require.NoError(t, o1.TransitionTo(domain.StateConfirmed))
		_, err = repo.Save(ctx, o1)
		require.NoError(t, err)

		o3, err := repo.FindByID(ctx, ids[3])
		require.NoError(t, err)
		o3.MarkAsDeleted()
		_, err = repo.Save(ctx, o3)
		require.NoError(t, err)

		all, err := repo.ListByCustomer(ctx, "cust-1", domain.ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{ids[2], ids[1], ids[0]}, orderIDs(all))

		pending := domain.StatePending
		filtered, err := repo.ListByCustomer(ctx, "cust-1", domain.ListFilter{Status: &pending})
		require.NoError(t, err)
		assert.Equal(t, []string{ids[2], ids[0]}, orderIDs(filtered))

		page, err := repo.ListByCustomer(ctx, "cust-1", domain.ListFilter{Offset: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{ids[1]}, orderIDs(page))

		none, err := repo.ListByCustomer(ctx, "cust-9", domain.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("idempotency key is unique per customer", func(t *testing.T) {
		repo := newRepo(t)
		first, err := repo.Save(ctx, newTestOrder(t, "cust-1", "key-1"))
		require.NoError(t, err)

		_, err = repo.Save(ctx, newTestOrder(t, "cust-1", "key-1"))
		assert.ErrorIs(t, err, domain.ErrDuplicateIdempotencyKey)

		_, err = repo.Save(ctx, newTestOrder(t, "cust-2", "key-1"))
		assert.NoError(t, err)

		// 没有幂等键的订单互不冲突
		_, err = repo.Save(ctx, newTestOrder(t, "cust-1", ""))
		require.NoError(t, err)
		_, err = repo.Save(ctx, newTestOrder(t, "cust-1", ""))
		require.NoError(t, err)

		found, err := repo.FindByIdempotencyKey(ctx, "cust-1", "key-1")
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)
		assert.Equal(t, "key-1", found.IdempotencyKey)

		_, err = repo.FindByIdempotencyKey(ctx, "cust-1", "key-2")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func orderIDs(orders []*domain.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}
