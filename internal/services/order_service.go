package services

import (
	"context"
	"fmt"
	"time"

	"order-manager/internal/domain"
	"order-manager/internal/infra"
	rabbit "order-manager/internal/infra/rabbitmq"
	"order-manager/internal/metrics"
	"order-manager/internal/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrOrderNotFound = fmt.Errorf("order %w", domain.ErrNotFound)

// maxPriceLookups bounds concurrent catalog calls while repricing one order.
const maxPriceLookups = 4

var tracer = otel.Tracer("order-manager/services")

type OrderService struct {
	repo      repository.OrderRepository
	prices    infra.PriceProvider
	publisher rabbit.PublisherInterface
	policy    domain.TransitionPolicy
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*OrderService)

func WithTransitionPolicy(p domain.TransitionPolicy) Option {
	return func(s *OrderService) { s.policy = p }
}

func NewOrderService(r repository.OrderRepository, p infra.PriceProvider, pub rabbit.PublisherInterface, logger *zap.Logger, opts ...Option) *OrderService {
	s := &OrderService{
		repo:      r,
		prices:    p,
		publisher: pub,
		policy:    domain.AnyTransition{},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrAppend adds quantity of productID to the user's cart, creating the
// cart when the user has none.
func (s *OrderService) CreateOrAppend(ctx context.Context, userID, productID uint64, quantity int64) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.CreateOrAppend", trace.WithAttributes(
		attribute.Int64("user_id", int64(userID)),
		attribute.Int64("product_id", int64(productID)),
		attribute.Int64("quantity", quantity),
	))
	defer span.End()

	if userID == 0 {
		return nil, fail(span, fmt.Errorf("%w: user is required", domain.ErrInvalidArgument))
	}
	if err := domain.ValidateLine(productID, quantity); err != nil {
		return nil, fail(span, err)
	}

	var order *domain.Order
	err := s.repo.Transaction(ctx, func(tx repository.OrderRepository) error {
		cart, err := tx.LockCart(ctx, userID)
		if err != nil {
			return err
		}
		if err := cart.AddLine(productID, quantity); err != nil {
			return err
		}
		if err := s.reprice(ctx, cart); err != nil {
			return err
		}
		if err := tx.Save(ctx, cart); err != nil {
			return err
		}
		order = cart
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.Int64("order_id", int64(order.ID)))
	s.logger.Info("cart updated",
		zap.Uint64("order_id", order.ID),
		zap.Uint64("user_id", userID),
		zap.Uint64("product_id", productID),
		zap.Int64("quantity", quantity),
		zap.Int64("total_price", order.TotalPrice),
	)
	metrics.RecordCartMutation("create_or_append")
	s.publish(ctx, domain.EventCartUpdated, order)
	return order, nil
}

func (s *OrderService) AddLine(ctx context.Context, orderID, productID uint64, quantity int64) (*domain.Order, error) {
	if err := domain.ValidateLine(productID, quantity); err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_line", orderID, func(o *domain.Order) error {
		return o.AddLine(productID, quantity)
	})
}

// RemoveLine deletes the product's line. Removing a product that is not on
// the order succeeds and leaves the lines as they were.
func (s *OrderService) RemoveLine(ctx context.Context, orderID, productID uint64) (*domain.Order, error) {
	if productID == 0 {
		return nil, fmt.Errorf("%w: productId is required", domain.ErrInvalidArgument)
	}
	return s.mutate(ctx, "remove_line", orderID, func(o *domain.Order) error {
		o.RemoveLine(productID)
		return nil
	})
}

func (s *OrderService) RecomputeTotal(ctx context.Context, orderID uint64) (*domain.Order, error) {
	return s.mutate(ctx, "recompute_total", orderID, func(*domain.Order) error { return nil })
}

// mutate applies fn to the locked order and reprices it, all in one transaction.
func (s *OrderService) mutate(ctx context.Context, op string, orderID uint64, fn func(*domain.Order) error) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService."+op, trace.WithAttributes(
		attribute.Int64("order_id", int64(orderID)),
	))
	defer span.End()

	var order *domain.Order
	err := s.repo.Transaction(ctx, func(tx repository.OrderRepository) error {
		o, err := tx.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return ErrOrderNotFound
		}
		if err := fn(o); err != nil {
			return err
		}
		if err := s.reprice(ctx, o); err != nil {
			return err
		}
		if err := tx.Save(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	s.logger.Info("order lines updated",
		zap.String("op", op),
		zap.Uint64("order_id", order.ID),
		zap.Int("lines", len(order.Lines)),
		zap.Int64("total_price", order.TotalPrice),
	)
	metrics.RecordCartMutation(op)
	s.publish(ctx, domain.EventCartUpdated, order)
	return order, nil
}

// AdvanceStatus sets the order status from an external status name. A missing
// order is reported before an unknown status name.
func (s *OrderService) AdvanceStatus(ctx context.Context, orderID uint64, name string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.AdvanceStatus", trace.WithAttributes(
		attribute.Int64("order_id", int64(orderID)),
		attribute.String("status", name),
	))
	defer span.End()

	var (
		order *domain.Order
		from  domain.OrderStatus
	)
	err := s.repo.Transaction(ctx, func(tx repository.OrderRepository) error {
		o, err := tx.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return ErrOrderNotFound
		}
		target, err := domain.ParseStatus(name)
		if err != nil {
			return err
		}
		from = o.Status
		if err := o.SetStatus(target, s.policy); err != nil {
			return err
		}
		if err := tx.Save(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	s.logger.Info("order status changed",
		zap.Uint64("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)),
	)
	metrics.RecordStatusChange(string(order.Status))
	s.publish(ctx, domain.EventStatusChanged, order)
	return order, nil
}

func (s *OrderService) GetOrderById(ctx context.Context, id uint64) (*domain.Order, error) {
	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// GetCart returns the user's cart, or nil when the user has none.
func (s *OrderService) GetCart(ctx context.Context, userID uint64) (*domain.Order, error) {
	return s.repo.FindCart(ctx, userID)
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID uint64) ([]domain.Order, error) {
	return s.repo.FindByUser(ctx, userID, "")
}

func (s *OrderService) ListDeliveredOrders(ctx context.Context, userID uint64) ([]domain.Order, error) {
	return s.repo.FindByUser(ctx, userID, domain.StatusDelivered)
}

func (s *OrderService) reprice(ctx context.Context, o *domain.Order) error {
	ids := o.ProductIDs()
	found := make([]int64, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPriceLookups)
	for i, id := range ids {
		g.Go(func() error {
			price, err := s.prices.UnitPrice(gctx, id)
			if err != nil {
				return fmt.Errorf("price of product %d: %w", id, err)
			}
			found[i] = price
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	prices := make(map[uint64]int64, len(ids))
	for i, id := range ids {
		prices[id] = found[i]
	}
	return o.RecomputeTotal(prices)
}

func (s *OrderService) publish(ctx context.Context, pattern string, o *domain.Order) {
	if err := s.publisher.Publish(ctx, pattern, domain.NewOrderEvent(o, s.now())); err != nil {
		s.logger.Warn("failed to publish order event",
			zap.String("pattern", pattern),
			zap.Uint64("order_id", o.ID),
			zap.Error(err),
		)
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
