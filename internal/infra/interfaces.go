package infra

import "context"

// PriceProvider supplies the current unit price of a product. Unknown
// products yield an error wrapping domain.ErrNotFound.
type PriceProvider interface {
	UnitPrice(ctx context.Context, productID uint64) (int64, error)
}

var (
	_ PriceProvider = (*ProductClient)(nil)
	_ PriceProvider = FixedPriceProvider(0)
)
