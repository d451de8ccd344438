package domain

import "time"

const (
	EventCartUpdated   = "order.cart_updated"
	EventStatusChanged = "order.status_changed"
)

type OrderEvent struct {
	OrderID    uint64      `json:"orderId"`
	UserID     uint64      `json:"userId"`
	Status     OrderStatus `json:"status"`
	TotalPrice int64       `json:"totalPrice"`
	Lines      []EventLine `json:"lines"`
	OccurredAt time.Time   `json:"occurredAt"`
}

type EventLine struct {
	ProductID uint64 `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

func NewOrderEvent(o *Order, at time.Time) OrderEvent {
	lines := make([]EventLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, EventLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return OrderEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		TotalPrice: o.TotalPrice,
		Lines:      lines,
		OccurredAt: at,
	}
}
