package repository

import (
	"context"

	"order-manager/internal/domain"
)

// OrderRepository persists orders and their lines. Lookups return (nil, nil)
// when nothing matches.
type OrderRepository interface {
	// Transaction runs fn against a repository bound to one transaction,
	// committing when fn returns nil and rolling back otherwise.
	Transaction(ctx context.Context, fn func(tx OrderRepository) error) error

	// LockCart finds or creates the user's cart and locks it for the
	// rest of the transaction.
	LockCart(ctx context.Context, userID uint64) (*domain.Order, error)
	LockByID(ctx context.Context, id uint64) (*domain.Order, error)

	// Save writes status, total and the exact line set of order.
	Save(ctx context.Context, order *domain.Order) error

	FindByID(ctx context.Context, id uint64) (*domain.Order, error)
	FindCart(ctx context.Context, userID uint64) (*domain.Order, error)
	// FindByUser lists the user's orders newest first; an empty status
	// matches every status.
	FindByUser(ctx context.Context, userID uint64, status domain.OrderStatus) ([]domain.Order, error)
}
