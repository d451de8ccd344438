// Package memory is an in-process OrderRepository for local runs and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"order-manager/internal/domain"
	"order-manager/internal/repository"
)

var errNestedTransaction = errors.New("memory: nested transaction")

type state struct {
	orders    map[uint64]*domain.Order
	nextOrder uint64
	nextLine  uint64
}

func (s *state) clone() *state {
	c := &state{
		orders:    make(map[uint64]*domain.Order, len(s.orders)),
		nextOrder: s.nextOrder,
		nextLine:  s.nextLine,
	}
	for id, o := range s.orders {
		c.orders[id] = copyOrder(o)
	}
	return c
}

// OrderRepository keeps orders in a map guarded by one mutex. A transaction
// holds the mutex for its whole duration and works on a copy of the state,
// which replaces the live state only on commit.
type OrderRepository struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		data: &state{orders: map[uint64]*domain.Order{}},
		now:  time.Now,
	}
}

var _ repository.OrderRepository = (*OrderRepository)(nil)

type txRepo struct {
	parent *OrderRepository
	data   *state
}

func (r *OrderRepository) Transaction(ctx context.Context, fn func(tx repository.OrderRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &txRepo{parent: r, data: r.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.data = tx.data
	return nil
}

func (r *OrderRepository) view(fn func(s *state) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.data)
}

// Outside a transaction every call is its own short transaction.
func (r *OrderRepository) autocommit(ctx context.Context, fn func(tx *txRepo) error) error {
	return r.Transaction(ctx, func(tx repository.OrderRepository) error {
		return fn(tx.(*txRepo))
	})
}

func (r *OrderRepository) LockCart(ctx context.Context, userID uint64) (*domain.Order, error) {
	var out *domain.Order
	err := r.autocommit(ctx, func(tx *txRepo) error {
		var err error
		out, err = tx.LockCart(ctx, userID)
		return err
	})
	return out, err
}

func (r *OrderRepository) LockByID(ctx context.Context, id uint64) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	return r.autocommit(ctx, func(tx *txRepo) error {
		return tx.Save(ctx, order)
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	var out *domain.Order
	err := r.view(func(s *state) error {
		out = s.findByID(id)
		return nil
	})
	return out, err
}

func (r *OrderRepository) FindCart(ctx context.Context, userID uint64) (*domain.Order, error) {
	var out *domain.Order
	err := r.view(func(s *state) error {
		out = s.findCart(userID)
		return nil
	})
	return out, err
}

func (r *OrderRepository) FindByUser(ctx context.Context, userID uint64, status domain.OrderStatus) ([]domain.Order, error) {
	var out []domain.Order
	err := r.view(func(s *state) error {
		out = s.findByUser(userID, status)
		return nil
	})
	return out, err
}

func (t *txRepo) Transaction(ctx context.Context, fn func(tx repository.OrderRepository) error) error {
	return errNestedTransaction
}

func (t *txRepo) LockCart(ctx context.Context, userID uint64) (*domain.Order, error) {
	if cart := t.data.findCart(userID); cart != nil {
		return cart, nil
	}
	now := t.parent.now()
	t.data.nextOrder++
	cart := domain.NewCart(userID)
	cart.ID = t.data.nextOrder
	cart.CreatedAt = now
	cart.UpdatedAt = now
	t.data.orders[cart.ID] = cart
	return copyOrder(cart), nil
}

func (t *txRepo) LockByID(ctx context.Context, id uint64) (*domain.Order, error) {
	return t.data.findByID(id), nil
}

func (t *txRepo) Save(ctx context.Context, order *domain.Order) error {
	stored, ok := t.data.orders[order.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if order.CartKey != nil {
		if other := t.data.findCart(*order.CartKey); other != nil && other.ID != order.ID {
			return errors.New("memory: duplicate cart for user")
		}
	}

	now := t.parent.now()
	existing := make(map[uint64]domain.OrderLine, len(stored.Lines))
	for _, l := range stored.Lines {
		existing[l.ProductID] = l
	}
	for i := range order.Lines {
		l := &order.Lines[i]
		l.OrderID = order.ID
		if prev, ok := existing[l.ProductID]; ok {
			l.ID = prev.ID
			l.CreatedAt = prev.CreatedAt
		} else {
			t.data.nextLine++
			l.ID = t.data.nextLine
			l.CreatedAt = now
		}
		l.UpdatedAt = now
	}
	order.UpdatedAt = now
	order.CreatedAt = stored.CreatedAt

	t.data.orders[order.ID] = copyOrder(order)
	return nil
}

func (t *txRepo) FindByID(ctx context.Context, id uint64) (*domain.Order, error) {
	return t.data.findByID(id), nil
}

func (t *txRepo) FindCart(ctx context.Context, userID uint64) (*domain.Order, error) {
	return t.data.findCart(userID), nil
}

func (t *txRepo) FindByUser(ctx context.Context, userID uint64, status domain.OrderStatus) ([]domain.Order, error) {
	return t.data.findByUser(userID, status), nil
}

func (s *state) findByID(id uint64) *domain.Order {
	if o, ok := s.orders[id]; ok {
		return copyOrder(o)
	}
	return nil
}

func (s *state) findCart(userID uint64) *domain.Order {
	for _, o := range s.orders {
		if o.UserID == userID && o.IsCart() {
			return copyOrder(o)
		}
	}
	return nil
}

func (s *state) findByUser(userID uint64, status domain.OrderStatus) []domain.Order {
	out := []domain.Order{}
	for _, o := range s.orders {
		if o.UserID != userID || (status != "" && o.Status != status) {
			continue
		}
		out = append(out, *copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	if o.CartKey != nil {
		key := *o.CartKey
		c.CartKey = &key
	}
	c.Lines = make([]domain.OrderLine, len(o.Lines))
	copy(c.Lines, o.Lines)
	return &c
}
