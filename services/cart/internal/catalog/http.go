// Package catalog reads products from the remote product service.
package catalog

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

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/money"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

// HTTPCatalog implements repository.ProductCatalog against the product
// service REST API.
type HTTPCatalog struct {
	client  httpclient.Doer
	baseURL string
	logger  *slog.Logger
}

// NewHTTPCatalog creates a catalog client. client is usually a
// *httpclient.CircuitBreakerClient.
func NewHTTPCatalog(client httpclient.Doer, baseURL string, logger *slog.Logger) *HTTPCatalog {
	return &HTTPCatalog{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// GetProduct fetches GET /api/v1/products/{id}.
func (c *HTTPCatalog) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	endpoint := c.baseURL + "/api/v1/products/" + url.PathEscape(productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrServiceUnavail) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperrors.Unavailable("catalog service unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := httpclient.ParseResponseError(resp, "catalog")
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("product", productID)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.Unavailable("read catalog response", err)
	}

	p, err := decodeProduct(body)
	if err != nil {
		return nil, fmt.Errorf("decode product %s: %w", productID, err)
	}
	if p.ID == "" {
		p.ID = productID
	}
	if !p.Active {
		c.logger.DebugContext(ctx, "catalog product is not active", slog.String("product_id", productID))
		return nil, apperrors.NotFound("product", productID)
	}
	return p, nil
}

// productPayload accepts the field spellings the product service has used
// over time.
type productPayload struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Title     string        `json:"title"`
	Price     *money.Amount `json:"price"`
	UnitPrice *money.Amount `json:"unit_price"`
	ImageURL  string        `json:"image_url"`
	Image     string        `json:"image"`
	Images    []imageRef    `json:"images"`
	Status    string        `json:"status"`
	Active    *bool         `json:"active"`
	IsActive  *bool         `json:"is_active"`
}

// imageRef is either a bare URL string or an object with a url field.
type imageRef string

func (i *imageRef) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*i = imageRef(obj.URL)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*i = imageRef(s)
	return nil
}

// decodeProduct accepts both the {data: product} envelope and a bare object,
// and folds the payload into one canonical domain.Product.
func decodeProduct(body []byte) (*domain.Product, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	raw := body
	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		raw = envelope.Data
	}

	var p productPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p.normalize()
}

func (p productPayload) normalize() (*domain.Product, error) {
	out := &domain.Product{
		ID:     p.ID,
		Name:   firstNonEmpty(p.Name, p.Title),
		Active: true,
	}

	switch {
	case p.UnitPrice != nil:
		out.Price = p.UnitPrice.Decimal
	case p.Price != nil:
		out.Price = p.Price.Decimal
	default:
		return nil, errors.New("product has no price")
	}
	if out.Price.IsNegative() {
		return nil, fmt.Errorf("product has negative price %s", out.Price)
	}

	out.ImageURL = firstNonEmpty(p.ImageURL, p.Image)
	if out.ImageURL == "" && len(p.Images) > 0 {
		out.ImageURL = string(p.Images[0])
	}

	switch {
	case p.Active != nil:
		out.Active = *p.Active
	case p.IsActive != nil:
		out.Active = *p.IsActive
	case p.Status != "":
		out.Active = p.Status == "active" || p.Status == "published"
	}

	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
