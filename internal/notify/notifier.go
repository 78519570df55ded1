package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sensorhub/pkg/types"
)

// EventType tags a state-change notification.
type EventType string

const (
	EventDeviceRegistered EventType = "device_registered"
	EventDeviceOnline     EventType = "device_online"
	EventDeviceOffline    EventType = "device_offline"
	EventStateUpdated     EventType = "state_updated"
	EventSessionEnded     EventType = "session_ended"
)

// Event is delivered to subscribers when session or connectivity state
// changes. Snapshot is set for state events, nil for pure connectivity ones.
type Event struct {
	Type      EventType              `json:"type"`
	DeviceID  string                 `json:"device_id"`
	Snapshot  *types.SessionSnapshot `json:"snapshot,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Notifier fans out coordinator events to subscribers (GUI layer, dashboards)
// through a single goroutine, so publishers never block on a slow consumer.
// Events for a full subscriber buffer are dropped and counted rather than
// stalling the network-receive path.
type Notifier struct {
	events   chan Event
	shutdown chan struct{}

	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	running bool
	dropped atomic.Uint64

	logger zerolog.Logger
	wg     sync.WaitGroup
}

// NewNotifier creates a notifier with the given inbound buffer.
func NewNotifier(buffer int, logger zerolog.Logger) *Notifier {
	if buffer <= 0 {
		buffer = 256
	}
	return &Notifier{
		events:   make(chan Event, buffer),
		shutdown: make(chan struct{}),
		subs:     make(map[int]chan Event),
		logger:   logger.With().Str("component", "notifier").Logger(),
	}
}

// Start launches the fan-out loop.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return ErrAlreadyRunning
	}
	n.running = true
	n.mu.Unlock()

	n.wg.Add(1)
	go n.run(ctx)
	return nil
}

// Stop terminates the fan-out loop and closes all subscriber channels.
func (n *Notifier) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return ErrNotRunning
	}
	n.running = false
	n.mu.Unlock()

	close(n.shutdown)
	n.wg.Wait()

	n.mu.Lock()
	for id, ch := range n.subs {
		close(ch)
		delete(n.subs, id)
	}
	n.mu.Unlock()
	return nil
}

// Subscribe registers a consumer. The returned cancel function removes the
// subscription and closes the channel.
func (n *Notifier) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if sub, exists := n.subs[id]; exists {
			delete(n.subs, id)
			close(sub)
		}
		n.mu.Unlock()
	}
	return ch, cancel
}

// Publish queues an event for fan-out without blocking. When the notifier is
// stopped or its buffer is full the event is dropped and counted.
func (n *Notifier) Publish(event Event) {
	n.mu.RLock()
	running := n.running
	n.mu.RUnlock()
	if !running {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case n.events <- event:
	default:
		n.dropped.Add(1)
		n.logger.Warn().Str("event", string(event.Type)).Str("device_id", event.DeviceID).
			Msg("event buffer full, dropping")
	}
}

// Dropped returns the number of events discarded because of full buffers.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

func (n *Notifier) run(ctx context.Context) {
	defer n.wg.Done()

	for {
		select {
		case event := <-n.events:
			n.fanOut(event)
		case <-n.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (n *Notifier) fanOut(event Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subs {
		select {
		case ch <- event:
		default:
			n.dropped.Add(1)
		}
	}
}
