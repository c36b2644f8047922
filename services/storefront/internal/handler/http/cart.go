package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
	"github.com/utafrali/storefront/services/storefront/internal/cartstate"
	"github.com/utafrali/storefront/services/storefront/internal/session"
)

// CartHandler exposes the session's cart state machine over HTTP. Every
// response that reached the machine is 200 with the resulting view; remote
// failures are reported inside the view.
type CartHandler struct {
	sessions *session.Registry
	logger   *slog.Logger
}

// NewCartHandler creates a new storefront cart handler.
func NewCartHandler(sessions *session.Registry, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding a product. Quantity
// bounds are enforced by the state machine.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=128"`
	Quantity  int    `json:"quantity"`
}

// UpdateQuantityRequest is the JSON request body for changing a line's quantity.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart. An idle cart is fetched first.
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}

	view := m.View()
	if view.State == cartstate.StateIdle {
		var err error
		view, err = m.Fetch(r.Context())
		if err != nil && !errors.Is(err, cartstate.ErrBusy) {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
	}
	httputil.WriteData(w, view)
}

// Refresh handles POST /api/v1/cart/refresh
func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	h.respond(w, r)(m.Fetch(r.Context()))
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}

	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}
	h.respond(w, r)(m.AddItem(r.Context(), req.ProductID, req.Quantity))
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{lineItemId}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}
	h.respond(w, r)(m.UpdateQuantity(r.Context(), chi.URLParam(r, "lineItemId"), req.Quantity))
}

// RemoveItem handles DELETE /api/v1/cart/items/{lineItemId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	h.respond(w, r)(m.RemoveItem(r.Context(), chi.URLParam(r, "lineItemId")))
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	h.respond(w, r)(m.Clear(r.Context()))
}

// DismissError handles DELETE /api/v1/cart/error
func (h *CartHandler) DismissError(w http.ResponseWriter, r *http.Request) {
	m, ok := h.machine(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, m.ClearError())
}

// --- Helpers ---

func (h *CartHandler) machine(w http.ResponseWriter, r *http.Request) (*cartstate.Machine, bool) {
	m, err := h.sessions.Get(r.Context(), sessionFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return nil, false
	}
	return m, true
}

// respond writes the view of a machine operation, or the local rejection.
func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request) func(cartstate.View, error) {
	return func(view cartstate.View, err error) {
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		httputil.WriteData(w, view)
	}
}

