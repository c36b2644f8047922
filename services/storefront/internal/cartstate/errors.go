package cartstate

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Kind classifies a cart failure.
type Kind string

const (
	// KindNetwork: the cart service could not be reached, timed out or
	// failed with a 5xx.
	KindNetwork Kind = "network"
	// KindValidation: a precondition failed locally; nothing was sent.
	KindValidation Kind = "validation"
	// KindNotFound: the line item is already gone server-side.
	KindNotFound Kind = "not_found"
	// KindRejected: the service refused the request.
	KindRejected Kind = "rejected"
)

var (
	// ErrBusy rejects a mutation identical to one still in flight.
	ErrBusy = fmt.Errorf("%w: the same cart update is already in progress", apperrors.ErrConflict)

	// ErrClosed is returned once the machine has been closed.
	ErrClosed = fmt.Errorf("%w: cart session closed", apperrors.ErrServiceUnavail)
)

// Error is a classified cart failure. Message is safe to show to a shopper.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) view() *ErrorView {
	return &ErrorView{Kind: e.Kind, Message: e.Message}
}

func validationError(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message, Err: apperrors.ErrInvalidInput}
}

// classify maps a backend failure onto the cart error taxonomy.
func classify(op string, err error) *Error {
	e := &Error{Op: op, Err: err}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindNetwork
		e.Message = "The cart service took too long to respond. Please try again."
	case errors.Is(err, context.Canceled):
		e.Kind = KindNetwork
		e.Message = "The cart request was interrupted. Please try again."
	case errors.Is(err, apperrors.ErrServiceUnavail):
		e.Kind = KindNetwork
		e.Message = "We couldn't reach your cart. Please try again."
	case errors.Is(err, apperrors.ErrNotFound):
		e.Kind = KindNotFound
		e.Message = "That item is no longer available."
	case errors.Is(err, apperrors.ErrConflict):
		e.Kind = KindRejected
		e.Message = "Your cart was changed somewhere else. Please try again."
	case errors.Is(err, apperrors.ErrInvalidInput):
		e.Kind = KindRejected
		e.Message = "The cart could not accept that change."
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			e.Message = "The cart could not accept that change: " + appErr.Message
		}
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrForbidden):
		e.Kind = KindRejected
		e.Message = "Please sign in again to update your cart."
	default:
		e.Kind = KindNetwork
		e.Message = "The cart service sent an unexpected response. Please try again."
	}
	return e
}
