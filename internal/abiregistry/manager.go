package abiregistry

import (
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
)

// Manager owns the current registry snapshot and runs the scan thread
// named in spec §5 ("ABI scan thread... exists only during a scan, at
// startup and on reload... publishes it through a single-slot
// channel, then exits"). The snapshot itself is the one datum read by
// more than one goroutine; it is published via atomic.Value so readers
// never take a lock (spec §9 "Global state").
type Manager struct {
	root    string
	current atomic.Value // holds *Registry
	ready   chan *Registry
	lastGen int32
}

// NewManager constructs a Manager with an empty registry installed, so
// Current never returns nil before the first scan completes.
func NewManager(root string) *Manager {
	m := &Manager{root: root, ready: make(chan *Registry, 1)}
	m.current.Store(&Registry{})
	return m
}

// Current returns the most recently installed registry snapshot. Safe
// for concurrent use without locking.
func (m *Manager) Current() *Registry {
	return m.current.Load().(*Registry)
}

// Ready exposes the single-slot channel the scan thread publishes
// finished registries on. The state projection drains it during its
// tick loop and calls Install on what it receives.
func (m *Manager) Ready() <-chan *Registry {
	return m.ready
}

// TriggerScan starts the scan thread for one generation. It is safe to
// call at startup and again on every `:reload-abi`; a scan already in
// flight is not cancelled, but since the channel is single-slot, a
// stale pending result is dropped in favor of the newest one.
func (m *Manager) TriggerScan(workers int) {
	prevGen := atomic.LoadInt32(&m.lastGen)
	go func() {
		reg, err := Scan(m.root, int(prevGen), workers)
		if err != nil {
			log.Warn("abi scan completed with errors", "root", m.root, "err", err)
		}
		select {
		case <-m.ready: // drop a stale unread result; keep the slot single-valued
		default:
		}
		m.ready <- reg
	}()
}

// Install publishes reg as the current snapshot via atomic swap and
// records its generation so the next TriggerScan continues counting
// forward.
func (m *Manager) Install(reg *Registry) {
	atomic.StoreInt32(&m.lastGen, int32(reg.Generation()))
	m.current.Store(reg)
}
