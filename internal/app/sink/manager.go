// Package sink provides the sink manager that fans playback snapshots out to
// external state sinks.
package sink

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ambientbox/internal/app/playback"
)

// DefaultTimeout bounds a single sink update.
const DefaultTimeout = 500 * time.Millisecond

// Sink receives playback snapshots.
type Sink interface {
	Name() string
	Update(ctx context.Context, snap playback.Snapshot) error
}

// Func adapts a function to the Sink interface.
type Func struct {
	name string
	fn   func(ctx context.Context, snap playback.Snapshot) error
}

// NewFunc creates a sink calling fn.
func NewFunc(name string, fn func(ctx context.Context, snap playback.Snapshot) error) *Func {
	return &Func{name: name, fn: fn}
}

// Name returns the sink name.
func (f *Func) Name() string { return f.name }

// Update calls the function.
func (f *Func) Update(ctx context.Context, snap playback.Snapshot) error { return f.fn(ctx, snap) }

// registration represents a registered sink.
type registration struct {
	id   string
	sink Sink
}

// delivery is a queued snapshot. target is empty for a broadcast. A delivery
// with flushed set carries no snapshot and marks a Flush point.
type delivery struct {
	snap    playback.Snapshot
	target  string
	flushed chan struct{}
}

// Manager manages sink registrations and delivers snapshots in publish order.
// Publish never blocks, so it is safe to call under the controller lock.
type Manager struct {
	timeout time.Duration

	mu     sync.RWMutex
	sinks  map[string]*registration
	order  []string // Registration order
	latest *playback.Snapshot

	queueMu sync.Mutex
	queue   []delivery
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a sink manager and starts its dispatcher.
// A zero timeout uses DefaultTimeout.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		timeout: timeout,
		sinks:   make(map[string]*registration),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go m.dispatch()
	return m
}

// Register adds a sink and returns its registration ID. The sink receives the
// latest snapshot, if any, before any later one.
func (m *Manager) Register(s Sink) string {
	m.mu.Lock()
	id := uuid.New().String()
	m.sinks[id] = &registration{id: id, sink: s}
	m.order = append(m.order, id)
	latest := m.latest
	m.mu.Unlock()

	zlog.Debug().Msgf("sink registered: name=%s id=%s", s.Name(), id)

	if latest != nil {
		m.enqueue(delivery{snap: *latest, target: id})
	}
	return id
}

// Unregister removes a sink. Snapshots already being delivered to it may
// still arrive.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sinks[id]; !ok {
		return
	}
	delete(m.sinks, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Publish enqueues a snapshot for all sinks.
func (m *Manager) Publish(snap playback.Snapshot) {
	m.mu.Lock()
	s := snap
	m.latest = &s
	m.mu.Unlock()

	m.enqueue(delivery{snap: snap})
}

// Latest returns the most recently published snapshot.
func (m *Manager) Latest() (playback.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return playback.Snapshot{}, false
	}
	return *m.latest, true
}

// SinkCount returns the number of registered sinks.
func (m *Manager) SinkCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

// Flush waits until every snapshot published before the call has been
// delivered, or until ctx is done.
func (m *Manager) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	m.enqueue(delivery{flushed: flushed})

	select {
	case <-flushed:
		return nil
	case <-m.done:
		return errors.New("sink manager closed")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "sink flush")
	}
}

// Close stops the dispatcher. Snapshots still queued are dropped; call Flush
// first to deliver them.
func (m *Manager) Close() {
	m.cancel()
	<-m.done

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = make(map[string]*registration)
	m.order = nil
}

func (m *Manager) enqueue(d delivery) {
	m.queueMu.Lock()
	m.queue = append(m.queue, d)
	m.queueMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) dequeue() (delivery, bool) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	if len(m.queue) == 0 {
		return delivery{}, false
	}
	d := m.queue[0]
	m.queue[0] = delivery{}
	m.queue = m.queue[1:]
	return d, true
}

// dispatch delivers one snapshot at a time so every sink observes the
// publish order.
func (m *Manager) dispatch() {
	defer close(m.done)

	for {
		d, ok := m.dequeue()
		if !ok {
			select {
			case <-m.ctx.Done():
				return
			case <-m.wake:
				continue
			}
		}
		if m.ctx.Err() != nil {
			return
		}
		if d.flushed != nil {
			close(d.flushed)
			continue
		}
		m.deliver(d)
	}
}

// deliver sends a snapshot to its targets in parallel and waits for all of
// them, or for their timeouts.
func (m *Manager) deliver(d delivery) {
	m.mu.RLock()
	targets := make([]*registration, 0, len(m.sinks))
	if d.target != "" {
		if reg, ok := m.sinks[d.target]; ok {
			targets = append(targets, reg)
		}
	} else {
		for _, id := range m.order {
			targets = append(targets, m.sinks[id])
		}
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, reg := range targets {
		wg.Add(1)
		go func(r *registration) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- r.sink.Update(ctx, d.snap)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Warn().Err(err).Msgf("sink update failed: name=%s seq=%d", r.sink.Name(), d.snap.Seq)
				}
			case <-ctx.Done():
				zlog.Warn().Msgf("sink update timed out: name=%s seq=%d timeout=%s", r.sink.Name(), d.snap.Seq, m.timeout)
			}
		}(reg)
	}
	wg.Wait()
}
