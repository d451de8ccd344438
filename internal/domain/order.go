package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

type OrderStatus string

const (
	StatusCart      OrderStatus = "CART"
	StatusPending   OrderStatus = "PENDING"
	StatusOnway     OrderStatus = "ONWAY"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusConfirmed OrderStatus = "CONFIRMED"
)

// ParseStatus maps an externally supplied status name to a target status.
// CART is never a valid target.
func ParseStatus(name string) (OrderStatus, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pending":
		return StatusPending, nil
	case "onway":
		return StatusOnway, nil
	case "delivered":
		return StatusDelivered, nil
	case "confirmed":
		return StatusConfirmed, nil
	}
	return "", invalidArgument("unknown status %q", name)
}

type Order struct {
	ID         uint64      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID     uint64      `json:"userId" gorm:"not null;index:idx_orders_user_status"`
	Status     OrderStatus `json:"status" gorm:"type:enum('CART','PENDING','ONWAY','DELIVERED','CONFIRMED');default:'CART';not null;index:idx_orders_user_status"`
	TotalPrice int64       `json:"totalPrice" gorm:"not null;default:0"`
	// CartKey holds UserID while the order is a cart and NULL afterwards,
	// so the unique index allows one cart per user.
	CartKey   *uint64     `json:"-" gorm:"uniqueIndex"`
	Lines     []OrderLine `json:"lines" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time   `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time   `json:"updatedAt" gorm:"autoUpdateTime"`
}

type OrderLine struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID   uint64    `json:"-" gorm:"not null;uniqueIndex:idx_order_lines_order_product"`
	ProductID uint64    `json:"productId" gorm:"not null;uniqueIndex:idx_order_lines_order_product"`
	Quantity  int64     `json:"quantity" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// NewCart returns an unsaved, empty cart owned by userID.
func NewCart(userID uint64) *Order {
	key := userID
	return &Order{
		UserID:  userID,
		Status:  StatusCart,
		CartKey: &key,
	}
}

func (o *Order) IsCart() bool {
	return o.Status == StatusCart
}

// MaxLineQuantity caps the quantity of a single line.
const MaxLineQuantity int64 = 1_000_000_000

func ValidateLine(productID uint64, quantity int64) error {
	if productID == 0 {
		return invalidArgument("productId is required")
	}
	if quantity <= 0 {
		return invalidArgument("quantity must be positive, got %d", quantity)
	}
	if quantity > MaxLineQuantity {
		return invalidArgument("quantity must not exceed %d, got %d", MaxLineQuantity, quantity)
	}
	return nil
}

// AddLine merges quantity into the line for productID, creating it if absent.
func (o *Order) AddLine(productID uint64, quantity int64) error {
	if err := ValidateLine(productID, quantity); err != nil {
		return err
	}
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			current := o.Lines[i].Quantity
			if current > math.MaxInt64-quantity || current+quantity > MaxLineQuantity {
				return invalidArgument("quantity of product %d would exceed %d", productID, MaxLineQuantity)
			}
			o.Lines[i].Quantity = current + quantity
			return nil
		}
	}
	o.Lines = append(o.Lines, OrderLine{
		OrderID:   o.ID,
		ProductID: productID,
		Quantity:  quantity,
	})
	return nil
}

// RemoveLine drops the line for productID and reports whether one existed.
func (o *Order) RemoveLine(productID uint64) bool {
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			return true
		}
	}
	return false
}

func (o *Order) Line(productID uint64) (OrderLine, bool) {
	for _, l := range o.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return OrderLine{}, false
}

// ProductIDs returns the distinct products on the order in ascending order.
func (o *Order) ProductIDs() []uint64 {
	ids := make([]uint64, 0, len(o.Lines))
	for _, l := range o.Lines {
		ids = append(ids, l.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RecomputeTotal sets TotalPrice from unitPrices, which must cover every line.
// A total that does not fit in int64 is rejected and TotalPrice is left as is.
func (o *Order) RecomputeTotal(unitPrices map[uint64]int64) error {
	var total int64
	for _, l := range o.Lines {
		price, ok := unitPrices[l.ProductID]
		if !ok {
			return invalidArgument("no unit price for product %d", l.ProductID)
		}
		if price < 0 {
			return invalidArgument("negative unit price %d for product %d", price, l.ProductID)
		}
		if price != 0 && l.Quantity > (math.MaxInt64-total)/price {
			return invalidArgument("total overflows at product %d", l.ProductID)
		}
		total += price * l.Quantity
	}
	o.TotalPrice = total
	return nil
}

// SetStatus moves the order to target when policy allows it.
func (o *Order) SetStatus(target OrderStatus, policy TransitionPolicy) error {
	if target == StatusCart {
		return invalidArgument("orders cannot be moved back to %s", StatusCart)
	}
	if policy == nil {
		policy = AnyTransition{}
	}
	if !policy.Allowed(o.Status, target) {
		return invalidArgument("transition %s -> %s is not allowed", o.Status, target)
	}
	o.Status = target
	o.CartKey = nil
	return nil
}
