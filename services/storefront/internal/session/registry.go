// Package session owns one cart state machine per browser session.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront/services/storefront/internal/cartstate"
	"github.com/utafrali/storefront/services/storefront/internal/snapshot"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "storefront",
		Subsystem: "cart",
		Name:      "active_sessions",
		Help:      "Cart sessions held in memory",
	})

	evictedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "cart",
		Name:      "evicted_sessions_total",
		Help:      "Cart sessions evicted after being idle",
	})
)

// entry tracks a machine and the last time it was used.
type entry struct {
	machine  *cartstate.Machine
	lastSeen time.Time
	hydrate  sync.Once
}

// Registry creates machines lazily, hydrates them from the snapshot store
// and evicts them after idleTTL without use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool

	backend cartstate.Backend
	store   snapshot.Store
	opts    cartstate.Options
	idleTTL time.Duration
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewRegistry creates a registry. store may be nil to disable snapshots.
func NewRegistry(backend cartstate.Backend, store snapshot.Store, opts cartstate.Options, idleTTL time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		backend:  backend,
		store:    store,
		opts:     opts,
		idleTTL:  idleTTL,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// Get returns the machine of sessionID, creating and hydrating it on first
// use. Concurrent first calls share one machine and wait for hydration.
func (r *Registry) Get(ctx context.Context, sessionID string) (*cartstate.Machine, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, cartstate.ErrClosed
	}
	e, ok := r.sessions[sessionID]
	if !ok {
		opts := r.opts
		if r.store != nil {
			opts.Persister = snapshot.Bind(r.store, sessionID)
		}
		opts.Logger = r.logger.With(slog.String("session_id", sessionID))
		e = &entry{machine: cartstate.New(r.backend, opts)}
		r.sessions[sessionID] = e
		activeSessions.Inc()
	}
	e.lastSeen = r.nowFunc()
	r.mu.Unlock()

	e.hydrate.Do(func() {
		e.machine.Hydrate(ctx)
	})
	return e.machine, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run evicts idle sessions every idleTTL/2 until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idleTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := r.Sweep(); evicted > 0 {
				r.logger.Info("idle cart sessions evicted",
					slog.Int("evicted", evicted),
					slog.Int("active", r.Len()),
				)
			}
		}
	}
}

// Sweep closes and removes sessions idle for longer than idleTTL and
// returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	now := r.nowFunc()
	var idle []*cartstate.Machine
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) > r.idleTTL {
			idle = append(idle, e.machine)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, m := range idle {
		m.Close()
	}
	activeSessions.Sub(float64(len(idle)))
	evictedSessions.Add(float64(len(idle)))
	return len(idle)
}

// Close closes every machine. Get fails afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range sessions {
		e.machine.Close()
	}
	activeSessions.Sub(float64(len(sessions)))
}
