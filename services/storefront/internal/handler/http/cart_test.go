package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/money"
	"github.com/utafrali/storefront/services/storefront/internal/cartapi"
	"github.com/utafrali/storefront/services/storefront/internal/cartstate"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
	"github.com/utafrali/storefront/services/storefront/internal/session"
)

// ============================================================================
// Fake cart service
// ============================================================================

// fakeCartService is an in-memory cart service keyed by nothing: one cart
// per test.
type fakeCartService struct {
	mu          sync.Mutex
	items       []domain.LineItem
	calls       int
	credentials []string
	failWith    error
	nextID      int
}

func (f *fakeCartService) record(ctx context.Context) error {
	f.calls++
	f.credentials = append(f.credentials, cartapi.CredentialFromContext(ctx))
	return f.failWith
}

func (f *fakeCartService) snapshot() *domain.Snapshot {
	total := decimal.Zero
	for _, item := range f.items {
		total = total.Add(item.LineTotal())
	}
	return &domain.Snapshot{Items: domain.CloneItems(f.items), Total: money.New(total)}
}

func (f *fakeCartService) GetCart(ctx context.Context) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx); err != nil {
		return nil, err
	}
	return f.snapshot(), nil
}

func (f *fakeCartService) AddItem(ctx context.Context, productID string, qty int) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx); err != nil {
		return nil, err
	}
	f.nextID++
	f.items = append(f.items, domain.LineItem{
		ID:        "L" + strconv.Itoa(f.nextID),
		ProductID: productID,
		Name:      "Trail Running Shoe",
		UnitPrice: money.New(decimal.RequireFromString("89.99")),
		Quantity:  qty,
	})
	return f.snapshot(), nil
}

func (f *fakeCartService) UpdateQuantity(ctx context.Context, lineItemID string, qty int) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx); err != nil {
		return nil, err
	}
	for i := range f.items {
		if f.items[i].ID == lineItemID {
			f.items[i].Quantity = qty
			return f.snapshot(), nil
		}
	}
	return nil, apperrors.NotFound("cart: cart item", lineItemID)
}

func (f *fakeCartService) RemoveItem(ctx context.Context, lineItemID string) (*domain.RemoveAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx); err != nil {
		return nil, err
	}
	for i := range f.items {
		if f.items[i].ID == lineItemID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return &domain.RemoveAck{ID: lineItemID}, nil
		}
	}
	return nil, apperrors.NotFound("cart: cart item", lineItemID)
}

func (f *fakeCartService) ClearCart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(ctx); err != nil {
		return err
	}
	f.items = nil
	return nil
}

func (f *fakeCartService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ============================================================================
// Test helpers
// ============================================================================

const testSession = "sess-123"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRouter(t *testing.T, backend *fakeCartService) http.Handler {
	t.Helper()
	return setupRouterWithLimit(t, backend, 1000, 1000)
}

func setupRouterWithLimit(t *testing.T, backend *fakeCartService, rps float64, burst int) http.Handler {
	t.Helper()
	opts := cartstate.DefaultOptions()
	opts.Logger = testLogger()
	opts.ErrorDismissDelay = time.Hour

	registry := session.NewRegistry(backend, nil, opts, time.Hour, testLogger())
	t.Cleanup(registry.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return NewRouter(ctx, registry, health.NewHandler(), RouterConfig{
		CORS:           middleware.DefaultCORSConfig(),
		RateLimitRPS:   rps,
		RateLimitBurst: burst,
	}, testLogger())
}

func newRequest(method, path string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SessionHeader, testSession)
	req.Header.Set("Authorization", "Bearer user-token")
	return req
}

type viewPayload struct {
	State string `json:"state"`
	Items []struct {
		ID        string          `json:"id"`
		ProductID string          `json:"product_id"`
		UnitPrice json.RawMessage `json:"unit_price"`
		Quantity  int             `json:"quantity"`
	} `json:"items"`
	Total json.RawMessage `json:"total"`
	Error *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
	Display struct {
		Subtotal   string `json:"subtotal"`
		Tax        string `json:"tax"`
		Shipping   string `json:"shipping"`
		GrandTotal string `json:"grand_total"`
	} `json:"display"`
}

func serve(t *testing.T, router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) viewPayload {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var envelope struct {
		Data viewPayload `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *httputil.ErrorResponse {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

// ============================================================================
// Session handling
// ============================================================================

func TestCart_MissingSession(t *testing.T) {
	backend := &fakeCartService{}
	router := setupRouter(t, backend)

	req := newRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Del(middleware.SessionHeader)
	rec := serve(t, router, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
	assert.Zero(t, backend.callCount())
}

func TestCart_ForwardsCredential(t *testing.T) {
	backend := &fakeCartService{}
	router := setupRouter(t, backend)

	decodeView(t, serve(t, router, newRequest(http.MethodGet, "/api/v1/cart", nil)))

	require.Len(t, backend.credentials, 1)
	assert.Equal(t, "user-token", backend.credentials[0])
}

// ============================================================================
// GetCart
// ============================================================================

func TestGetCart_FetchesOnceWhenIdle(t *testing.T) {
	backend := &fakeCartService{items: []domain.LineItem{{
		ID: "L1", ProductID: "P1", UnitPrice: money.New(decimal.RequireFromString("89.99")), Quantity: 2,
	}}}
	router := setupRouter(t, backend)

	rec := serve(t, router, newRequest(http.MethodGet, "/api/v1/cart", nil))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	view := decodeView(t, rec)

	assert.Equal(t, "ready", view.State)
	require.Len(t, view.Items, 1)
	assert.JSONEq(t, "179.98", string(view.Total))
	assert.Equal(t, "179.98", view.Display.Subtotal)
	assert.Equal(t, "32.40", view.Display.Tax)
	assert.Equal(t, "15.00", view.Display.Shipping)
	assert.Equal(t, "227.38", view.Display.GrandTotal)

	decodeView(t, serve(t, router, newRequest(http.MethodGet, "/api/v1/cart", nil)))
	assert.Equal(t, 1, backend.callCount(), "a ready cart is not refetched")
}

func TestGetCart_ServiceDownIsReportedInView(t *testing.T) {
	backend := &fakeCartService{failWith: apperrors.Unavailable("cart service unreachable", nil)}
	router := setupRouter(t, backend)

	view := decodeView(t, serve(t, router, newRequest(http.MethodGet, "/api/v1/cart", nil)))

	assert.Equal(t, "error", view.State)
	require.NotNil(t, view.Error)
	assert.Equal(t, "network", view.Error.Kind)
	assert.NotEmpty(t, view.Error.Message)
	assert.Empty(t, view.Items)
}

func TestRefresh(t *testing.T) {
	backend := &fakeCartService{}
	router := setupRouter(t, backend)

	decodeView(t, serve(t, router, newRequest(http.MethodGet, "/api/v1/cart", nil)))
	view := decodeView(t, serve(t, router, newRequest(http.MethodPost, "/api/v1/cart/refresh", nil)))

	assert.Equal(t, "ready", view.State)
	assert.Equal(t, 2, backend.callCount())
}

// ============================================================================
// AddItem
// ============================================================================

func TestAddItem_Success(t *testing.T) {
	backend := &fakeCartService{}
	router := setupRouter(t, backend)

	view := decodeView(t, serve(t, router, newRequest(http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": "P1",
		"quantity":   1,
	})))

	assert.Equal(t, "ready", view.State)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "P1", view.Items[0].ProductID)
	assert.Equal(t, "121.19", view.Display.GrandTotal)
}

func TestAddItem_QuantityRejectedLocally(t *testing.T) {
	for _, qty := range []int{0, -2, 100} {
		backend := &fakeCartService{}
		router := setupRouter(t, backend)

		rec := serve(t, router, newRequest(http.MethodPost, "/api/v1/cart/items", map[string]any{
			"product_id": "P1",
			"quantity":   qty,
		}))

		assert.Equal(t, http.StatusBadRequest, rec.Code, "qty %d", qty)
		assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
		assert.Zero(t, backend.callCount())
	}
}

func TestAddItem_MissingProduct(t *testing.T) {
	router := setupRouter(t, &fakeCartService{})

	rec := serve(t, router, newRequest(http.MethodPost, "/api/v1/cart/items", map[string]any{"quantity": 1}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)
	assert.Contains(t, errResp.Fields, "product_id")
}

func TestAddItem_InvalidJSON(t *testing.T) {
	router := setupRouter(t, &fakeCartService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewBufferString("{broken"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SessionHeader, testSession)
	rec := serve(t, router, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
}

func TestAddItem_WrongContentType(t *testing.T) {
	router := setupRouter(t, &fakeCartService{})

	req := newRequest(http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "P1", "quantity": 1})
	req.Header.Set("Content-Type", "text/plain")
	rec := serve(t, router, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// ============================================================================
// UpdateItemQuantity / RemoveItem / ClearCart
// ============================================================================

func TestUpdateItemQuantity(t *testing.T) {
	backend := &fakeCartService{}
	router := setupRouter(t, backend)
	decodeView(t, serve(t, router, newRequest(http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "P1", "quantity": 1})))

	view := decodeView(t, serve(t, router, newRequest(http.MethodPut, "/api/v1/cart/items/L1", map[string]any{"quantity": 3})))
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
	assert.JSONEq(t, "269.97", string(view.Total))
}

func TestUpdateItemQuantity_ZeroIsLocalNoOp(t *testing.T) {
	backend := &fakeCartService{}
	router := setupRouter(t, backend)
	decodeView(t, serve(t, router, newRequest(http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "P1", "quantity": 1})))
	calls := backend.callCount()

	rec := serve(t, router, newRequest(http.MethodPut, "/api/v1/cart/items/L1", map[string]any{"quantity": 0}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
	assert.Equal(t, calls, backend.callCount())

	view := decodeView(t, serve(t, router, newRequest(http.MethodGet, "/api/v1/cart", nil)))
	assert.Equal(t, 1, view.Items[0].Quantity)
}

func TestRemoveItem_IsIdempotent(t *testing.T) {
	backend := &fakeCartService{}
	router := setupRouter(t, backend)
	decodeView(t, serve(t, router, newRequest(http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "P1", "quantity": 1})))

	first := decodeView(t, serve(t, router, newRequest(http.MethodDelete, "/api/v1/cart/items/L1", nil)))
	assert.Empty(t, first.Items)

	second := decodeView(t, serve(t, router, newRequest(http.MethodDelete, "/api/v1/cart/items/L1", nil)))
	assert.Equal(t, "ready", second.State)
	assert.Nil(t, second.Error)
	assert.Empty(t, second.Items)
	assert.Equal(t, "0.00", second.Display.GrandTotal)
}

func TestClearCart(t *testing.T) {
	backend := &fakeCartService{}
	router := setupRouter(t, backend)
	decodeView(t, serve(t, router, newRequest(http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "P1", "quantity": 2})))

	view := decodeView(t, serve(t, router, newRequest(http.MethodDelete, "/api/v1/cart", nil)))

	assert.Equal(t, "ready", view.State)
	assert.Empty(t, view.Items)
	assert.JSONEq(t, "0", string(view.Total))
}

// ============================================================================
// DismissError
// ============================================================================

func TestDismissError(t *testing.T) {
	backend := &fakeCartService{}
	router := setupRouter(t, backend)
	decodeView(t, serve(t, router, newRequest(http.MethodGet, "/api/v1/cart", nil)))

	backend.mu.Lock()
	backend.failWith = apperrors.Conflict("cart: cart was modified concurrently")
	backend.mu.Unlock()

	failed := decodeView(t, serve(t, router, newRequest(http.MethodPost, "/api/v1/cart/items", map[string]any{"product_id": "P1", "quantity": 1})))
	assert.Equal(t, "error", failed.State)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "rejected", failed.Error.Kind)

	view := decodeView(t, serve(t, router, newRequest(http.MethodDelete, "/api/v1/cart/error", nil)))
	assert.Equal(t, "ready", view.State)
	assert.Nil(t, view.Error)
}

// ============================================================================
// Rate limiting / health
// ============================================================================

func TestRateLimitPerSession(t *testing.T) {
	router := setupRouterWithLimit(t, &fakeCartService{}, 0.001, 2)

	for i := 0; i < 2; i++ {
		rec := serve(t, router, newRequest(http.MethodGet, "/api/v1/cart", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(t, router, newRequest(http.MethodGet, "/api/v1/cart", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	other := newRequest(http.MethodGet, "/api/v1/cart", nil)
	other.Header.Set(middleware.SessionHeader, "another-session")
	assert.Equal(t, http.StatusOK, serve(t, router, other).Code)
}

func TestHealthLive(t *testing.T) {
	router := setupRouter(t, &fakeCartService{})
	rec := serve(t, router, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
