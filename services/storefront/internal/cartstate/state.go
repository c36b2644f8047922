package cartstate

import (
	"github.com/utafrali/storefront/pkg/money"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
	"github.com/utafrali/storefront/services/storefront/internal/pricing"
)

// State is the lifecycle state of a cart.
type State string

const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateMutating State = "mutating"
	StateError    State = "error"
)

// View is an immutable copy of the machine's observable state. It is the only
// thing the presentation layer sees.
type View struct {
	State State             `json:"state"`
	Items []domain.LineItem `json:"items"`
	Total money.Amount      `json:"total"`
	Error *ErrorView        `json:"error,omitempty"`

	// Pending lists the operations in flight, e.g. "line:L1" or "add:P1".
	// A control whose key is pending should be disabled.
	Pending []string `json:"pending,omitempty"`

	// Provisional is set while the items come from the local snapshot and
	// no fetch has succeeded yet.
	Provisional bool `json:"provisional"`

	Breakdown pricing.Breakdown `json:"breakdown"`
	Display   pricing.Display   `json:"display"`
}

// ErrorView is the user-facing part of an Error.
type ErrorView struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// IsPending reports whether an operation with the given key is in flight.
func (v View) IsPending(key string) bool {
	for _, k := range v.Pending {
		if k == key {
			return true
		}
	}
	return false
}
