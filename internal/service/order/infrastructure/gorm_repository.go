package infrastructure

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"orderhub/internal/service/order/domain"
)

// mysqlDuplicateEntry 是 MySQL 的唯一键冲突错误码
const mysqlDuplicateEntry = 1062

// GormOrderRepository 是 OrderRepository 的 GORM 实现
type GormOrderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormOrderRepository 创建一个新的 GORM 仓储实例
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db, now: storeNow}
}

// storeNow 截断到毫秒，与 gorm mysql 默认的 DATETIME(3) 精度一致
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Save 首次保存插入订单与订单行；之后只更新可变字段，并用 version 做乐观锁
func (r *GormOrderRepository) Save(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		return r.insert(ctx, order)
	}
	return r.update(ctx, order)
}

func (r *GormOrderRepository) insert(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	now := r.now()
	model := FromDomainOrder(order)
	model.ID = uuid.NewString()
	model.CreatedAt = now
	model.UpdatedAt = now
	model.Version = 1
	for i := range model.Items {
		model.Items[i].OrderID = model.ID
	}

	// 订单与订单行在同一事务中写入
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			return nil, domain.ErrDuplicateIdempotencyKey
		}
		return nil, pkgerrors.Wrap(err, "insert order")
	}

	order.ID = model.ID
	order.CreatedAt = now
	order.UpdatedAt = now
	order.Version = 1
	return order, nil
}

func (r *GormOrderRepository) update(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	now := r.now()
	updateData := map[string]interface{}{
		"status":     string(order.Status),
		"deleted":    order.Deleted,
		"updated_at": now,
		"version":    gorm.Expr("version + 1"),
	}
	res := r.db.WithContext(ctx).Model(&OrderModel{}).
		Where("id = ? AND version = ?", order.ID, order.Version).
		Updates(updateData)
	if res.Error != nil {
		return nil, pkgerrors.Wrapf(res.Error, "update order %s", order.ID)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&OrderModel{}).Where("id = ?", order.ID).Count(&count).Error; err != nil {
			return nil, pkgerrors.Wrapf(err, "check order %s", order.ID)
		}
		if count == 0 {
			return nil, domain.ErrOrderNotFound
		}
		return nil, domain.ErrOrderConflict
	}

	order.Version++
	order.UpdatedAt = now
	return order, nil
}

// FindByID 审计读取, 包含已软删除的订单
func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *GormOrderRepository) FindByIDForCustomer(ctx context.Context, id, customerID string) (*domain.Order, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).
		Where("id = ? AND customer_id = ? AND deleted = ?", id, customerID, false))
}

func (r *GormOrderRepository) FindByIdempotencyKey(ctx context.Context, customerID, key string) (*domain.Order, error) {
	return r.findOne(ctx, r.db.WithContext(ctx).
		Where("customer_id = ? AND idempotency_key = ?", customerID, key))
}

func (r *GormOrderRepository) findOne(_ context.Context, query *gorm.DB) (*domain.Order, error) {
	var model OrderModel
	err := query.Preload("Items").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, pkgerrors.Wrap(err, "find order")
	}
	return ToDomainOrder(&model), nil
}

// ListByCustomer 走 (customer_id, status) 索引
func (r *GormOrderRepository) ListByCustomer(ctx context.Context, customerID string, filter domain.ListFilter) ([]*domain.Order, error) {
	query := r.db.WithContext(ctx).
		Where("customer_id = ? AND deleted = ?", customerID, false)
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	query = query.Order("created_at DESC").Order("id ASC")
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var models []OrderModel
	if err := query.Preload("Items").Find(&models).Error; err != nil {
		return nil, pkgerrors.Wrapf(err, "list orders of %s", customerID)
	}

	orders := make([]*domain.Order, 0, len(models))
	for i := range models {
		orders = append(orders, ToDomainOrder(&models[i]))
	}
	return orders, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
