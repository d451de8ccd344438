package mysql

import (
	"context"
	"errors"

	"order-manager/internal/domain"
	"order-manager/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type orderRepo struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewOrderRepository(db *gorm.DB, logger *zap.Logger) repository.OrderRepository {
	return &orderRepo{db: db, logger: logger}
}

func (r *orderRepo) Transaction(ctx context.Context, fn func(tx repository.OrderRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&orderRepo{db: tx, logger: r.logger})
	})
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

// LockCart inserts a cart keyed by the user unless one already exists and then
// reads it back with a row lock, so racing callers converge on one cart.
func (r *orderRepo) LockCart(ctx context.Context, userID uint64) (*domain.Order, error) {
	db := r.db.WithContext(ctx)

	cart := domain.NewCart(userID)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(cart).Error; err != nil {
		r.logger.Error("cart upsert failed", zap.Uint64("user_id", userID), zap.Error(err))
		return nil, err
	}

	var o domain.Order
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Lines", orderedLines).
		Where("cart_key = ?", userID).
		Take(&o).Error
	if err != nil {
		r.logger.Error("cart lock failed", zap.Uint64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) LockByID(ctx context.Context, id uint64) (*domain.Order, error) {
	var o domain.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Lines", orderedLines).
		First(&o, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("LockByID failed", zap.Uint64("order_id", id), zap.Error(err))
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) Save(ctx context.Context, order *domain.Order) error {
	db := r.db.WithContext(ctx)

	err := db.Model(order).Omit(clause.Associations).Updates(map[string]any{
		"status":      order.Status,
		"total_price": order.TotalPrice,
		"cart_key":    order.CartKey,
	}).Error
	if err != nil {
		r.logger.Error("order update failed", zap.Uint64("order_id", order.ID), zap.Error(err))
		return err
	}

	stale := db.Where("order_id = ?", order.ID)
	if keep := order.ProductIDs(); len(keep) > 0 {
		stale = stale.Where("product_id NOT IN ?", keep)
	}
	if err := stale.Delete(&domain.OrderLine{}).Error; err != nil {
		r.logger.Error("order line delete failed", zap.Uint64("order_id", order.ID), zap.Error(err))
		return err
	}

	if len(order.Lines) == 0 {
		return nil
	}
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
	}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&order.Lines).Error
	if err != nil {
		r.logger.Error("order line upsert failed", zap.Uint64("order_id", order.ID), zap.Error(err))
		return err
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	var o domain.Order
	if err := r.db.WithContext(ctx).Preload("Lines", orderedLines).First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("FindByID failed", zap.Uint64("order_id", id), zap.Error(err))
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) FindCart(ctx context.Context, userID uint64) (*domain.Order, error) {
	var o domain.Order
	err := r.db.WithContext(ctx).
		Preload("Lines", orderedLines).
		Where("user_id = ? AND status = ?", userID, domain.StatusCart).
		Take(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("FindCart failed", zap.Uint64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) FindByUser(ctx context.Context, userID uint64, status domain.OrderStatus) ([]domain.Order, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var out []domain.Order
	if err := q.Preload("Lines", orderedLines).Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		r.logger.Error("FindByUser failed", zap.Uint64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return out, nil
}
