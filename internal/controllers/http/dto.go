package http

import (
	"time"

	"order-manager/internal/domain"
)

// AddProductRequest is the body of the cart and order line endpoints.
// A missing quantity means one unit.
type AddProductRequest struct {
	ProductID uint64 `json:"productId" binding:"required"`
	Quantity  *int64 `json:"quantity"`
}

func (r AddProductRequest) quantity() int64 {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

type OrderLineResponse struct {
	ID        uint64 `json:"id"`
	ProductID uint64 `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type OrderResponse struct {
	ID         uint64              `json:"id"`
	UserID     uint64              `json:"userId"`
	Status     domain.OrderStatus  `json:"status"`
	TotalPrice int64               `json:"totalPrice"`
	Lines      []OrderLineResponse `json:"lines"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	lines := make([]OrderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineResponse{ID: l.ID, ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return OrderResponse{
		ID:         o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		TotalPrice: o.TotalPrice,
		Lines:      lines,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func toOrderResponses(orders []domain.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	return out
}
