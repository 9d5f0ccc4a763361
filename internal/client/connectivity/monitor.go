// Package connectivity owns the client's view of whether the remote is
// reachable and notifies subscribers when that view flips.
package connectivity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/medsync/internal/logging"
)

// Prober checks reachability of the remote.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor is edge-triggered: subscribers hear about transitions only, at
// most once per edge, in subscription order. Callbacks run on the goroutine
// that reported the transition and must not call SetOnline.
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)

	// emit serializes transitions so subscribers see them in order.
	emit sync.Mutex

	log logging.Logger
}

// NewMonitor starts in the given state.
func NewMonitor(online bool, log logging.Logger) *Monitor {
	if log == nil {
		log = logging.Nop()
	}
	return &Monitor{online: online, subs: make(map[int]func(bool)), log: log}
}

// Status reports the current state.
func (m *Monitor) Status() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers cb and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (m *Monitor) OnChange(cb func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = cb
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// SetOnline records a host online/offline signal. Repeating the current
// state is ignored.
func (m *Monitor) SetOnline(online bool) {
	m.emit.Lock()
	defer m.emit.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	cbs := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		cbs = append(cbs, m.subs[id])
	}
	m.mu.Unlock()

	m.log.Info(context.Background(), "connectivity changed", "online", online)
	for _, cb := range cbs {
		cb(online)
	}
}

// Watch probes p right away and then every interval, turning the outcome
// into SetOnline calls. Each probe is bounded by timeout. It returns when
// ctx is done.
func (m *Monitor) Watch(ctx context.Context, p Prober, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Ping(pctx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.log.Debug(ctx, "remote probe failed", "error", err)
		}
		m.SetOnline(err == nil)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
