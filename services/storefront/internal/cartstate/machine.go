// Package cartstate owns the shopper's view of a cart: the line items, the
// server total, the lifecycle state and the last error. Every cart service
// round trip goes through a Machine so that concurrent requests, late
// responses and failures converge on one consistent state.
package cartstate

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/money"
	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/services/storefront/internal/domain"
	"github.com/utafrali/storefront/services/storefront/internal/pricing"
)

var tracer = tracing.Tracer("github.com/utafrali/storefront/services/storefront/internal/cartstate")

// Operation names, used in errors, metrics and spans.
const (
	OpFetch          = "fetch"
	OpAddItem        = "add_item"
	OpUpdateQuantity = "update_quantity"
	OpRemoveItem     = "remove_item"
	OpClear          = "clear"
)

const persistTimeout = 2 * time.Second

// Backend is the cart persistence service.
type Backend interface {
	GetCart(ctx context.Context) (*domain.Snapshot, error)
	AddItem(ctx context.Context, productID string, quantity int) (*domain.Snapshot, error)
	UpdateQuantity(ctx context.Context, lineItemID string, quantity int) (*domain.Snapshot, error)
	RemoveItem(ctx context.Context, lineItemID string) (*domain.RemoveAck, error)
	ClearCart(ctx context.Context) error
}

// Persister keeps a local copy of the line items between sessions. Load
// returns nil items when nothing is stored.
type Persister interface {
	Load(ctx context.Context) ([]domain.LineItem, error)
	Save(ctx context.Context, items []domain.LineItem) error
}

// Options configures a Machine.
type Options struct {
	// MaxQuantity caps the quantity of a line. Zero disables the cap.
	MaxQuantity       int
	RequestTimeout    time.Duration
	ErrorDismissDelay time.Duration
	// Calculator prices the view. Its zero value charges no tax or shipping.
	Calculator pricing.Calculator
	// Persister is optional.
	Persister Persister
	Logger    *slog.Logger
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxQuantity:       99,
		RequestTimeout:    15 * time.Second,
		ErrorDismissDelay: 5 * time.Second,
		Calculator:        pricing.Default(),
		Logger:            slog.Default(),
	}
}

// Machine is the cart state machine. It is safe for concurrent use.
type Machine struct {
	backend Backend
	opts    Options
	logger  *slog.Logger

	// lifecycle is canceled by Close and aborts every request in flight.
	lifecycle context.Context
	stop      context.CancelFunc

	mu          sync.Mutex
	state       State
	items       []domain.LineItem
	total       decimal.Decimal
	err         *Error
	everReady   bool
	provisional bool
	closed      bool

	inflight map[string]string
	fetching int
	mutating int

	// seq numbers requests; applied is the seq of the newest snapshot applied.
	seq     uint64
	applied uint64

	// version increments on every change to items and orders persistence.
	version uint64

	errGen  uint64
	dismiss *time.Timer

	persistMu        sync.Mutex
	persistedVersion uint64
}

// New creates an idle machine with an empty cart.
func New(backend Backend, opts Options) *Machine {
	defaults := DefaultOptions()
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaults.RequestTimeout
	}
	if opts.ErrorDismissDelay <= 0 {
		opts.ErrorDismissDelay = defaults.ErrorDismissDelay
	}
	if opts.Logger == nil {
		opts.Logger = defaults.Logger
	}

	lifecycle, stop := context.WithCancel(context.Background())
	return &Machine{
		backend:   backend,
		opts:      opts,
		logger:    opts.Logger,
		lifecycle: lifecycle,
		stop:      stop,
		state:     StateIdle,
		items:     []domain.LineItem{},
		total:     decimal.Zero,
		inflight:  make(map[string]string),
	}
}

// View returns a copy of the current state.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// Fetch loads the cart from the service and replaces items and total
// wholesale. On failure the items are left untouched.
func (m *Machine) Fetch(ctx context.Context) (View, error) {
	const key = "fetch"
	seq, err := m.begin(OpFetch, key, true)
	if err != nil {
		return m.View(), err
	}

	var snap *domain.Snapshot
	callErr := m.roundTrip(ctx, OpFetch, func(ctx context.Context) (err error) {
		snap, err = m.backend.GetCart(ctx)
		return err
	})

	return m.finish(ctx, OpFetch, key, true, callErr, func() {
		m.applySnapshot(seq, snap)
	})
}

// AddItem adds quantity units of productID. The service merges the product
// into an existing line when there is one.
func (m *Machine) AddItem(ctx context.Context, productID string, quantity int) (View, error) {
	if productID == "" {
		return m.reject(OpAddItem, "missing_product", "Choose a product to add.")
	}
	if quantity < 1 {
		return m.reject(OpAddItem, "quantity_below_min", "Quantity must be at least 1.")
	}
	if m.opts.MaxQuantity > 0 && quantity > m.opts.MaxQuantity {
		return m.reject(OpAddItem, "quantity_above_max", maxQuantityMessage(m.opts.MaxQuantity))
	}

	key := "add:" + productID
	seq, err := m.begin(OpAddItem, key, false)
	if err != nil {
		return m.View(), err
	}

	var snap *domain.Snapshot
	callErr := m.roundTrip(ctx, OpAddItem, func(ctx context.Context) (err error) {
		snap, err = m.backend.AddItem(ctx, productID, quantity)
		return err
	}, attribute.String("cart.product_id", productID), attribute.Int("cart.quantity", quantity))

	return m.finish(ctx, OpAddItem, key, false, callErr, func() {
		m.applySnapshot(seq, snap)
	})
}

// UpdateQuantity sets the quantity of a line. A quantity below 1 is rejected
// locally: the service is not called and the state does not change. A line
// the service no longer knows is dropped locally.
func (m *Machine) UpdateQuantity(ctx context.Context, lineItemID string, quantity int) (View, error) {
	if lineItemID == "" {
		return m.reject(OpUpdateQuantity, "missing_line", "Choose an item to update.")
	}
	if quantity < 1 {
		return m.reject(OpUpdateQuantity, "quantity_below_min", "Quantity must be at least 1.")
	}
	if m.opts.MaxQuantity > 0 && quantity > m.opts.MaxQuantity {
		return m.reject(OpUpdateQuantity, "quantity_above_max", maxQuantityMessage(m.opts.MaxQuantity))
	}

	key := "line:" + lineItemID
	seq, err := m.begin(OpUpdateQuantity, key, false)
	if err != nil {
		return m.View(), err
	}

	var snap *domain.Snapshot
	callErr := m.roundTrip(ctx, OpUpdateQuantity, func(ctx context.Context) (err error) {
		snap, err = m.backend.UpdateQuantity(ctx, lineItemID, quantity)
		return err
	}, attribute.String("cart.line_item_id", lineItemID), attribute.Int("cart.quantity", quantity))

	if errors.Is(callErr, apperrors.ErrNotFound) {
		return m.finish(ctx, OpUpdateQuantity, key, false, nil, func() {
			m.dropLine(seq, lineItemID)
		})
	}
	return m.finish(ctx, OpUpdateQuantity, key, false, callErr, func() {
		m.applySnapshot(seq, snap)
	})
}

// RemoveItem deletes a line. Removing a line that is already gone is not an
// error.
func (m *Machine) RemoveItem(ctx context.Context, lineItemID string) (View, error) {
	if lineItemID == "" {
		return m.reject(OpRemoveItem, "missing_line", "Choose an item to remove.")
	}

	key := "line:" + lineItemID
	seq, err := m.begin(OpRemoveItem, key, false)
	if err != nil {
		return m.View(), err
	}

	var ack *domain.RemoveAck
	callErr := m.roundTrip(ctx, OpRemoveItem, func(ctx context.Context) (err error) {
		ack, err = m.backend.RemoveItem(ctx, lineItemID)
		return err
	}, attribute.String("cart.line_item_id", lineItemID))

	if errors.Is(callErr, apperrors.ErrNotFound) {
		return m.finish(ctx, OpRemoveItem, key, false, nil, func() {
			m.dropLine(seq, lineItemID)
		})
	}
	return m.finish(ctx, OpRemoveItem, key, false, callErr, func() {
		id := lineItemID
		if ack != nil {
			if ack.ID != "" {
				id = ack.ID
			}
			if ack.Snapshot != nil {
				m.applySnapshot(seq, ack.Snapshot)
			}
		}
		m.dropLine(seq, id)
	})
}

// Clear empties the cart.
func (m *Machine) Clear(ctx context.Context) (View, error) {
	const key = "clear"
	seq, err := m.begin(OpClear, key, false)
	if err != nil {
		return m.View(), err
	}

	callErr := m.roundTrip(ctx, OpClear, m.backend.ClearCart)

	return m.finish(ctx, OpClear, key, false, callErr, func() {
		empty := domain.EmptySnapshot()
		m.applySnapshot(seq, &empty)
	})
}

// ClearError dismisses the current error. The machine returns to the last
// ready snapshot, or to idle when it never had one.
func (m *Machine) ClearError() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearErrorLocked()
	return m.viewLocked()
}

// Hydrate loads the locally persisted items as a provisional cart. It does
// nothing once a snapshot from the service has been applied. The state
// stays idle so that the first Fetch still runs.
func (m *Machine) Hydrate(ctx context.Context) {
	if m.opts.Persister == nil {
		return
	}
	items, err := m.opts.Persister.Load(ctx)
	if err != nil {
		m.logger.WarnContext(ctx, "failed to load cart snapshot", slog.String("error", err.Error()))
		return
	}
	if items == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.applied > 0 || m.everReady {
		return
	}
	m.items = domain.CloneItems(items)
	m.total = sumLines(m.items)
	m.provisional = true
}

// Close stops the dismiss timer and cancels requests in flight. Responses
// that arrive afterwards are discarded.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.stopDismissLocked()
	m.stop()
}

// begin registers an operation as in flight and returns its sequence number.
func (m *Machine) begin(op, key string, fetch bool) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	if _, busy := m.inflight[key]; busy {
		localRejections.WithLabelValues(op, "busy").Inc()
		return 0, ErrBusy
	}

	m.inflight[key] = op
	if fetch {
		m.fetching++
	} else {
		m.mutating++
	}
	m.seq++

	// A new attempt supersedes the error on display.
	if m.err != nil {
		m.err = nil
		m.stopDismissLocked()
	}
	m.transitionLocked(m.busyStateLocked())
	return m.seq, nil
}

// roundTrip runs fn under the request timeout. The caller's cancellation is
// not propagated: once sent, a request completes and its response is
// applied even if the caller has gone. Close still aborts it.
func (m *Machine) roundTrip(ctx context.Context, op string, fn func(context.Context) error, attrs ...attribute.KeyValue) (err error) {
	ctx, span := tracer.Start(context.WithoutCancel(ctx), "cartstate."+op)
	defer func() { tracing.End(span, err, attrs...) }()

	ctx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	stopAfter := context.AfterFunc(m.lifecycle, cancel)
	defer stopAfter()

	start := time.Now()
	err = fn(ctx)

	outcome := "success"
	if err != nil {
		outcome = string(classify(op, err).Kind)
	}
	backendDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	return err
}

// finish settles an operation. apply runs under the lock on success.
func (m *Machine) finish(ctx context.Context, op, key string, fetch bool, callErr error, apply func()) (View, error) {
	m.mu.Lock()

	delete(m.inflight, key)
	if fetch {
		m.fetching--
	} else {
		m.mutating--
	}

	if m.closed {
		view := m.viewLocked()
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "discarding cart response after close", slog.String("op", op))
		return view, ErrClosed
	}

	before := m.version
	if callErr != nil {
		m.failLocked(ctx, op, callErr)
	} else {
		apply()
		m.succeedLocked()
	}

	view := m.viewLocked()
	var (
		items   []domain.LineItem
		version uint64
	)
	if m.version != before {
		items = domain.CloneItems(m.items)
		version = m.version
	}
	m.mu.Unlock()

	if version > 0 {
		m.persist(ctx, version, items)
	}
	return view, nil
}

func (m *Machine) reject(op, reason, message string) (View, error) {
	localRejections.WithLabelValues(op, reason).Inc()
	return m.View(), validationError(op, message)
}

// applySnapshot replaces items and total unless a newer snapshot has already
// been applied.
func (m *Machine) applySnapshot(seq uint64, snap *domain.Snapshot) {
	if snap == nil {
		return
	}
	if seq <= m.applied {
		staleResponses.Inc()
		m.logger.Debug("discarding stale cart response",
			slog.Uint64("seq", seq),
			slog.Uint64("applied", m.applied),
		)
		return
	}
	m.applied = seq
	m.items = domain.CloneItems(snap.Items)
	m.total = snap.Total.Decimal
	m.provisional = false
	m.version++
}

// dropLine filters a line out and deducts its total. Snapshots requested
// before seq predate the removal and are discarded from now on.
func (m *Machine) dropLine(seq uint64, lineItemID string) {
	m.applied = max(m.applied, seq)
	for i, item := range m.items {
		if item.ID != lineItemID {
			continue
		}
		items := make([]domain.LineItem, 0, len(m.items)-1)
		items = append(items, m.items[:i]...)
		items = append(items, m.items[i+1:]...)
		m.items = items
		m.total = m.total.Sub(item.LineTotal())
		if m.total.IsNegative() {
			m.total = decimal.Zero
		}
		m.version++
		return
	}
}

func (m *Machine) succeedLocked() {
	m.everReady = true
	if m.err != nil {
		m.err = nil
		m.stopDismissLocked()
	}
	if m.fetching+m.mutating > 0 {
		m.transitionLocked(m.busyStateLocked())
		return
	}
	m.transitionLocked(StateReady)
}

func (m *Machine) failLocked(ctx context.Context, op string, callErr error) {
	e := classify(op, callErr)
	m.logger.WarnContext(ctx, "cart operation failed",
		slog.String("op", op),
		slog.String("kind", string(e.Kind)),
		slog.String("error", callErr.Error()),
	)

	m.err = e
	m.transitionLocked(StateError)

	m.stopDismissLocked()
	m.errGen++
	gen := m.errGen
	m.dismiss = time.AfterFunc(m.opts.ErrorDismissDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed || m.errGen != gen {
			return
		}
		m.clearErrorLocked()
	})
}

func (m *Machine) clearErrorLocked() {
	m.stopDismissLocked()
	m.err = nil
	switch {
	case m.fetching+m.mutating > 0:
		m.transitionLocked(m.busyStateLocked())
	case m.everReady:
		m.transitionLocked(StateReady)
	default:
		m.transitionLocked(StateIdle)
	}
}

func (m *Machine) stopDismissLocked() {
	if m.dismiss != nil {
		m.dismiss.Stop()
		m.dismiss = nil
	}
}

func (m *Machine) busyStateLocked() State {
	if m.mutating > 0 {
		return StateMutating
	}
	return StateLoading
}

func (m *Machine) transitionLocked(to State) {
	if m.state == to {
		return
	}
	stateTransitions.WithLabelValues(string(m.state), string(to)).Inc()
	m.state = to
}

func (m *Machine) viewLocked() View {
	items := domain.CloneItems(m.items)
	breakdown := m.opts.Calculator.Calculate(items)
	v := View{
		State:       m.state,
		Items:       items,
		Total:       money.New(m.total),
		Provisional: m.provisional,
		Breakdown:   breakdown,
		Display:     breakdown.Display(),
	}
	if m.err != nil {
		v.Error = m.err.view()
	}
	if len(m.inflight) > 0 {
		v.Pending = make([]string, 0, len(m.inflight))
		for key := range m.inflight {
			v.Pending = append(v.Pending, key)
		}
		sort.Strings(v.Pending)
	}
	return v
}

// persist writes items through the Persister. Saves of older versions that
// lose the race to a newer one are skipped.
func (m *Machine) persist(ctx context.Context, version uint64, items []domain.LineItem) {
	if m.opts.Persister == nil {
		return
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if version <= m.persistedVersion {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.opts.Persister.Save(ctx, items); err != nil {
		m.logger.WarnContext(ctx, "failed to persist cart snapshot", slog.String("error", err.Error()))
		return
	}
	m.persistedVersion = version
}

func sumLines(items []domain.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

func maxQuantityMessage(limit int) string {
	return "Quantity must not exceed " + strconv.Itoa(limit) + "."
}
