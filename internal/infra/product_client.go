package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"order-manager/internal/domain"
	"order-manager/internal/infra/circuitbreaker"

	"go.uber.org/zap"
)

type ProductInfo struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Qty   int64  `json:"qty"`
}

var errProductNotFound = fmt.Errorf("product %w", domain.ErrNotFound)

// ProductClient reads prices from the catalog service over HTTP.
type ProductClient struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

func NewProductClient(baseURL string, timeout time.Duration, logger *zap.Logger) *ProductClient {
	return &ProductClient{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: timeout},
		circuitBreaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
		logger:         logger,
	}
}

func (c *ProductClient) GetProductById(ctx context.Context, id uint64) (*ProductInfo, error) {
	var p *ProductInfo
	err := c.circuitBreaker.Execute(ctx, func() error {
		var err error
		p, err = c.fetchProduct(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			// an unknown product is an answer, not a catalog failure
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("catalog lookup failed", zap.Uint64("product_id", id), zap.Error(err))
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %d", errProductNotFound, id)
	}
	return p, nil
}

func (c *ProductClient) UnitPrice(ctx context.Context, productID uint64) (int64, error) {
	p, err := c.GetProductById(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.Price, nil
}

func (c *ProductClient) fetchProduct(ctx context.Context, id uint64) (*ProductInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/products/%d", c.baseURL, id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errProductNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product service returned status %d", resp.StatusCode)
	}

	var p ProductInfo
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FixedPriceProvider prices every product at the same amount. It stands in
// for the catalog when none is configured.
type FixedPriceProvider int64

func (f FixedPriceProvider) UnitPrice(ctx context.Context, productID uint64) (int64, error) {
	return int64(f), nil
}
