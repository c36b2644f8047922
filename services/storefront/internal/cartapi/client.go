// Package cartapi is the REST client of the cart persistence service.
package cartapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

const (
	serviceName  = "cart"
	maxBodyBytes = 1 << 20
)

var tracer = tracing.Tracer("github.com/utafrali/storefront/services/storefront/internal/cartapi")

// Client calls the cart service. Every call carries the bearer credential
// found on its context. Transport failures, 5xx responses and an open
// circuit are reported as ErrServiceUnavail; other statuses are mapped by
// httpclient.ParseResponseError.
type Client struct {
	doer    httpclient.Doer
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a cart service client. doer is usually a
// *httpclient.CircuitBreakerClient.
func NewClient(doer httpclient.Doer, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		doer:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// GetCart fetches GET /api/v1/cart.
func (c *Client) GetCart(ctx context.Context) (snap *domain.Snapshot, err error) {
	ctx, span := tracer.Start(ctx, "cartapi.GetCart")
	defer func() { tracing.End(span, err) }()

	body, err := c.do(ctx, http.MethodGet, "/api/v1/cart", nil)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(body)
}

// AddItem posts POST /api/v1/cart/items and returns the full cart.
func (c *Client) AddItem(ctx context.Context, productID string, quantity int) (snap *domain.Snapshot, err error) {
	ctx, span := tracer.Start(ctx, "cartapi.AddItem")
	defer func() {
		tracing.End(span, err, attribute.String("product_id", productID), attribute.Int("quantity", quantity))
	}()

	body, err := c.do(ctx, http.MethodPost, "/api/v1/cart/items", addItemRequest{ProductID: productID, Quantity: quantity})
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(body)
}

// UpdateQuantity sends PUT /api/v1/cart/items/{lineItemId} and returns the full cart.
func (c *Client) UpdateQuantity(ctx context.Context, lineItemID string, quantity int) (snap *domain.Snapshot, err error) {
	ctx, span := tracer.Start(ctx, "cartapi.UpdateQuantity")
	defer func() {
		tracing.End(span, err, attribute.String("line_item_id", lineItemID), attribute.Int("quantity", quantity))
	}()

	body, err := c.do(ctx, http.MethodPut, "/api/v1/cart/items/"+url.PathEscape(lineItemID), updateQuantityRequest{Quantity: quantity})
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(body)
}

// RemoveItem sends DELETE /api/v1/cart/items/{lineItemId}. The acknowledgement
// carries the removed id and, when the service returned one, the new cart.
func (c *Client) RemoveItem(ctx context.Context, lineItemID string) (ack *domain.RemoveAck, err error) {
	ctx, span := tracer.Start(ctx, "cartapi.RemoveItem")
	defer func() { tracing.End(span, err, attribute.String("line_item_id", lineItemID)) }()

	body, err := c.do(ctx, http.MethodDelete, "/api/v1/cart/items/"+url.PathEscape(lineItemID), nil)
	if err != nil {
		return nil, err
	}
	return decodeRemoveAck(body, lineItemID)
}

// ClearCart sends DELETE /api/v1/cart.
func (c *Client) ClearCart(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "cartapi.ClearCart")
	defer func() { tracing.End(span, err) }()

	_, err = c.do(ctx, http.MethodDelete, "/api/v1/cart", nil)
	return err
}

// do performs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create cart request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := CredentialFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := httpclient.ParseResponseError(resp, serviceName)
		c.logger.DebugContext(ctx, "cart service rejected request",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.Unavailable("read cart service response", err)
	}
	return b, nil
}

// classifyTransportError turns a failed round trip into ErrServiceUnavail.
// A canceled caller context is returned as is.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, apperrors.ErrServiceUnavail) {
		return err
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	return apperrors.Unavailable("cart service unreachable", err)
}
