package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"order-manager/internal/auth"
	"order-manager/internal/domain"
	"order-manager/internal/mocks"
	"order-manager/internal/repository/memory"
	"order-manager/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type testServer struct {
	router *gin.Engine
	issuer *auth.JWTAuthenticator
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)

	prices := new(mocks.MockPriceProvider)
	prices.On("UnitPrice", mock.Anything, uint64(1)).Return(int64(100), nil)
	prices.On("UnitPrice", mock.Anything, uint64(2)).Return(int64(250), nil)
	prices.On("UnitPrice", mock.Anything, uint64(999)).Return(int64(0), fmt.Errorf("product %w", domain.ErrNotFound))
	publisher := new(mocks.MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	svc := services.NewOrderService(memory.NewOrderRepository(), prices, publisher, zap.NewNop())
	authenticator := auth.NewJWTAuthenticator(testSecret)

	r := gin.New()
	NewHandler(svc, authenticator, zap.NewNop()).RegisterRoutes(r)
	return &testServer{router: r, issuer: authenticator}
}

func (s *testServer) token(t *testing.T, userID uint64) string {
	tok, err := s.issuer.Issue(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path string, userID uint64, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeOrder(t *testing.T, w *httptest.ResponseRecorder) OrderResponse {
	var out OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHandler_AddToCart(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		expectedStatus int
		expectedQty    int64
	}{
		{name: "default quantity", body: map[string]any{"productId": 1}, expectedStatus: http.StatusCreated, expectedQty: 1},
		{name: "explicit quantity", body: map[string]any{"productId": 1, "quantity": 3}, expectedStatus: http.StatusCreated, expectedQty: 3},
		{name: "zero quantity", body: map[string]any{"productId": 1, "quantity": 0}, expectedStatus: http.StatusBadRequest},
		{name: "missing product", body: map[string]any{"quantity": 2}, expectedStatus: http.StatusBadRequest},
		{name: "unknown product", body: map[string]any{"productId": 999}, expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			w := srv.do(t, http.MethodPost, "/cart/items", 7, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())

			if tt.expectedStatus == http.StatusCreated {
				order := decodeOrder(t, w)
				assert.Equal(t, uint64(7), order.UserID)
				assert.Equal(t, domain.StatusCart, order.Status)
				require.Len(t, order.Lines, 1)
				assert.Equal(t, tt.expectedQty, order.Lines[0].Quantity)
				assert.Equal(t, 100*tt.expectedQty, order.TotalPrice)
			}
		})
	}
}

func TestHandler_Authentication(t *testing.T) {
	srv := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		w := srv.do(t, http.MethodGet, "/cart", 0, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "no token provided")
	})

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/cart", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHandler_GetCart(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/cart", 7, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"cart is empty"}`, w.Body.String())

	created := srv.do(t, http.MethodPost, "/cart/items", 7, map[string]any{"productId": 1, "quantity": 2})
	require.Equal(t, http.StatusCreated, created.Code)

	w = srv.do(t, http.MethodGet, "/cart", 7, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	cart := decodeOrder(t, w)
	assert.Equal(t, decodeOrder(t, created).ID, cart.ID)
	assert.Equal(t, int64(200), cart.TotalPrice)
}

func TestHandler_OrderLines(t *testing.T) {
	srv := newTestServer(t)
	created := decodeOrder(t, srv.do(t, http.MethodPost, "/cart/items", 7, map[string]any{"productId": 1}))
	base := fmt.Sprintf("/orders/%d", created.ID)

	w := srv.do(t, http.MethodPost, base+"/products", 7, map[string]any{"productId": 2, "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	order := decodeOrder(t, w)
	assert.Len(t, order.Lines, 2)
	assert.Equal(t, int64(600), order.TotalPrice)

	w = srv.do(t, http.MethodDelete, base+"/products/2", 7, nil)
	require.Equal(t, http.StatusOK, w.Code)
	order = decodeOrder(t, w)
	assert.Len(t, order.Lines, 1)
	assert.Equal(t, int64(100), order.TotalPrice)

	w = srv.do(t, http.MethodDelete, base+"/products/1", 7, nil)
	require.Equal(t, http.StatusOK, w.Code)
	order = decodeOrder(t, w)
	assert.NotNil(t, order.Lines)
	assert.Empty(t, order.Lines)
	assert.Equal(t, int64(0), order.TotalPrice)

	w = srv.do(t, http.MethodPost, base+"/recompute", 7, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), decodeOrder(t, w).TotalPrice)
}

func TestHandler_Ownership(t *testing.T) {
	srv := newTestServer(t)
	created := decodeOrder(t, srv.do(t, http.MethodPost, "/cart/items", 7, map[string]any{"productId": 1}))
	base := fmt.Sprintf("/orders/%d", created.ID)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{name: "get", method: http.MethodGet, path: base},
		{name: "add product", method: http.MethodPost, path: base + "/products", body: map[string]any{"productId": 1}},
		{name: "remove product", method: http.MethodDelete, path: base + "/products/1"},
		{name: "status", method: http.MethodPut, path: base + "/status/pending"},
		{name: "recompute", method: http.MethodPost, path: base + "/recompute"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, tt.method, tt.path, 8, tt.body)
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}

	w := srv.do(t, http.MethodGet, base, 7, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusCart, decodeOrder(t, w).Status)
}

func TestHandler_UpdateStatus(t *testing.T) {
	tests := []struct {
		name           string
		status         string
		expectedStatus int
	}{
		{name: "delivered", status: "delivered", expectedStatus: http.StatusOK},
		{name: "upper case", status: "ONWAY", expectedStatus: http.StatusOK},
		{name: "unknown", status: "bogus", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			created := decodeOrder(t, srv.do(t, http.MethodPost, "/cart/items", 7, map[string]any{"productId": 1}))

			w := srv.do(t, http.MethodPut, fmt.Sprintf("/orders/%d/status/%s", created.ID, tt.status), 7, nil)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}
}

func TestHandler_NotFoundAndBadIDs(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/orders/12345", 7, nil).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/orders/abc", 7, nil).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/orders/0", 7, nil).Code)

	created := decodeOrder(t, srv.do(t, http.MethodPost, "/cart/items", 7, map[string]any{"productId": 1}))
	w := srv.do(t, http.MethodDelete, fmt.Sprintf("/orders/%d/products/x", created.ID), 7, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Listings(t *testing.T) {
	srv := newTestServer(t)

	first := decodeOrder(t, srv.do(t, http.MethodPost, "/cart/items", 7, map[string]any{"productId": 1}))
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPut, fmt.Sprintf("/orders/%d/status/delivered", first.ID), 7, nil).Code)
	second := decodeOrder(t, srv.do(t, http.MethodPost, "/cart/items", 7, map[string]any{"productId": 2}))
	assert.NotEqual(t, first.ID, second.ID)

	var all []OrderResponse
	w := srv.do(t, http.MethodGet, "/users/me/orders", 7, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	var delivered []OrderResponse
	w = srv.do(t, http.MethodGet, "/users/me/orders/delivered", 7, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &delivered))
	require.Len(t, delivered, 1)
	assert.Equal(t, first.ID, delivered[0].ID)

	w = srv.do(t, http.MethodGet, "/users/me/orders", 8, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{fmt.Errorf("order %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad", domain.ErrInvalidArgument), http.StatusBadRequest},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, statusFor(tt.err), tt.err.Error())
	}
}

func TestHandler_InternalErrorsAreHidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	authenticator := new(mocks.MockAuthenticator)
	authenticator.On("Authenticate", mock.Anything, "tok").Return(uint64(0), errors.New("key store unreachable"))

	r := gin.New()
	NewHandler(nil, authenticator, zap.NewNop()).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	authenticator.AssertExpectations(t)
}
