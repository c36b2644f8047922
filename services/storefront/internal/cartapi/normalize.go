package cartapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/pkg/money"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

var errMalformed = errors.New("malformed cart payload")

// cartPayload is a cart as the service (or an older deployment of it) may
// send it. Items are normalised into domain.LineItem before leaving the
// package.
type cartPayload struct {
	Items []linePayload `json:"items"`
	Total *money.Amount `json:"total"`
}

// linePayload accepts every field spelling seen upstream.
type linePayload struct {
	ID        string        `json:"id"`
	MongoID   string        `json:"_id"`
	ProductID string        `json:"product_id"`
	Product   *productRef   `json:"product"`
	Name      string        `json:"name"`
	Title     string        `json:"title"`
	UnitPrice *money.Amount `json:"unit_price"`
	Price     *money.Amount `json:"price"`
	ImageURL  string        `json:"image_url"`
	Image     string        `json:"image"`
	Images    []imageRef    `json:"images"`
	Quantity  flexInt       `json:"quantity"`
}

// productRef is either a bare product id or an embedded product document.
type productRef struct {
	ID     string
	Name   string
	Title  string
	Price  *money.Amount
	Image  string
	Images []imageRef
}

func (p *productRef) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		return json.Unmarshal(data, &p.ID)
	}
	var doc struct {
		ID      string        `json:"id"`
		MongoID string        `json:"_id"`
		Name    string        `json:"name"`
		Title   string        `json:"title"`
		Price   *money.Amount `json:"price"`
		Image   string        `json:"image"`
		Images  []imageRef    `json:"images"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*p = productRef{
		ID:     firstNonEmpty(doc.ID, doc.MongoID),
		Name:   doc.Name,
		Title:  doc.Title,
		Price:  doc.Price,
		Image:  doc.Image,
		Images: doc.Images,
	}
	return nil
}

// imageRef is either a URL string or an object with a url field.
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

// flexInt accepts 3 and "3".
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("quantity %q is not an integer", s)
	}
	*n = flexInt(v)
	return nil
}

// unwrap returns the content of a {data: ...} envelope, or body itself.
func unwrap(body []byte) (json.RawMessage, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		return envelope.Data, nil
	}
	return body, nil
}

func decodeSnapshot(body []byte) (*domain.Snapshot, error) {
	raw, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	return decodeCart(raw)
}

func decodeCart(raw json.RawMessage) (*domain.Snapshot, error) {
	var p cartPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	return p.normalize()
}

// decodeRemoveAck accepts {id}, {id, cart}, a bare cart, or an empty body.
func decodeRemoveAck(body []byte, requestedID string) (*domain.RemoveAck, error) {
	ack := &domain.RemoveAck{ID: requestedID}
	if len(bytes.TrimSpace(body)) == 0 {
		return ack, nil
	}

	raw, err := unwrap(body)
	if err != nil {
		return nil, err
	}

	var shape struct {
		ID    string          `json:"id"`
		Cart  json.RawMessage `json:"cart"`
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}

	switch {
	case len(shape.Cart) > 0 && string(shape.Cart) != "null":
		snap, err := decodeCart(shape.Cart)
		if err != nil {
			return nil, err
		}
		ack.Snapshot = snap
		if shape.ID != "" {
			ack.ID = shape.ID
		}
	case len(shape.Items) > 0:
		snap, err := decodeCart(raw)
		if err != nil {
			return nil, err
		}
		ack.Snapshot = snap
	case shape.ID != "":
		ack.ID = shape.ID
	}
	return ack, nil
}

func (p cartPayload) normalize() (*domain.Snapshot, error) {
	snap := &domain.Snapshot{Items: make([]domain.LineItem, 0, len(p.Items))}
	sum := decimal.Zero
	for i, raw := range p.Items {
		item, err := raw.normalize()
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", errMalformed, i, err)
		}
		if item.Quantity < 1 {
			// Zero-quantity lines are never shown.
			continue
		}
		snap.Items = append(snap.Items, item)
		sum = sum.Add(item.LineTotal())
	}

	if p.Total != nil {
		snap.Total = *p.Total
	} else {
		snap.Total = money.New(sum)
	}
	return snap, nil
}

func (l linePayload) normalize() (domain.LineItem, error) {
	item := domain.LineItem{
		ID:        firstNonEmpty(l.ID, l.MongoID),
		ProductID: l.ProductID,
		Name:      firstNonEmpty(l.Name, l.Title),
		ImageURL:  firstNonEmpty(l.ImageURL, l.Image, firstImage(l.Images)),
		Quantity:  int(l.Quantity),
	}

	var price *money.Amount
	switch {
	case l.UnitPrice != nil:
		price = l.UnitPrice
	case l.Price != nil:
		price = l.Price
	}

	if ref := l.Product; ref != nil {
		if item.ProductID == "" {
			item.ProductID = ref.ID
		}
		if item.Name == "" {
			item.Name = firstNonEmpty(ref.Name, ref.Title)
		}
		if item.ImageURL == "" {
			item.ImageURL = firstNonEmpty(ref.Image, firstImage(ref.Images))
		}
		if price == nil {
			price = ref.Price
		}
	}

	if item.ID == "" {
		return item, errors.New("line item has no id")
	}
	if item.ProductID == "" {
		return item, fmt.Errorf("line item %s has no product", item.ID)
	}
	if price == nil {
		return item, fmt.Errorf("line item %s has no price", item.ID)
	}
	if price.IsNegative() {
		return item, fmt.Errorf("line item %s has negative price %s", item.ID, price.String())
	}
	item.UnitPrice = *price
	return item, nil
}

func firstImage(images []imageRef) string {
	for _, img := range images {
		if img != "" {
			return string(img)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
