package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sensorhub/pkg/types"
)

// OutboundQueue holds messages destined for devices that are offline, busy
// or under backpressure, and releases them highest-priority-first with FIFO
// order inside a band.
//
// Growth is unbounded: target deployments run single-digit to low-tens of
// devices, and losing a control message is worse than holding a few. Depth is
// observable through Len and the registry's queued_message_count.
type OutboundQueue struct {
	mu      sync.Mutex
	pending map[string]*deviceQueue
	logger  zerolog.Logger
}

// One FIFO slice per priority band, indexed by Priority value. drainMu
// serializes drains for the device; the bands themselves stay under the
// queue-wide mutex.
type deviceQueue struct {
	drainMu sync.Mutex
	bands   [int(types.PriorityCritical) + 1][]*types.QueuedMessage
}

// SendFunc attempts delivery of one message. A non-nil error leaves the
// message at the head of its band for a later drain.
type SendFunc func(msg *types.QueuedMessage) error

// NewOutboundQueue creates an empty queue set.
func NewOutboundQueue(logger zerolog.Logger) *OutboundQueue {
	return &OutboundQueue{
		pending: make(map[string]*deviceQueue),
		logger:  logger.With().Str("component", "outbound_queue").Logger(),
	}
}

// Enqueue stores a message for the device and returns it. Always succeeds.
func (q *OutboundQueue) Enqueue(deviceID, messageType string, payload map[string]interface{}, priority types.Priority) *types.QueuedMessage {
	if !priority.Valid() {
		priority = types.PriorityNormal
	}

	msg := &types.QueuedMessage{
		ID:          uuid.New().String(),
		DeviceID:    deviceID,
		MessageType: messageType,
		Payload:     payload,
		Priority:    priority,
		EnqueuedAt:  time.Now(),
	}

	q.mu.Lock()
	dq := q.pending[deviceID]
	if dq == nil {
		dq = &deviceQueue{}
		q.pending[deviceID] = dq
	}
	dq.bands[priority] = append(dq.bands[priority], msg)
	depth := dq.len()
	q.mu.Unlock()

	q.logger.Debug().
		Str("device_id", deviceID).
		Str("message_type", messageType).
		Str("priority", priority.String()).
		Int("queue_depth", depth).
		Msg("message queued")

	return msg
}

// NextMessage removes and returns the highest-priority message for the
// device. Ties break FIFO. The second return value is false when the queue
// is empty.
func (q *OutboundQueue) NextMessage(deviceID string) (*types.QueuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	dq := q.pending[deviceID]
	if dq == nil {
		return nil, false
	}
	for p := types.PriorityCritical; p >= types.PriorityLow; p-- {
		if band := dq.bands[p]; len(band) > 0 {
			msg := band[0]
			dq.bands[p] = band[1:]
			return msg, true
		}
	}
	return nil, false
}

// Drain pops messages in priority order and hands each to send. The message
// is removed only after send returns nil; on the first failure the failed
// message stays at the head of its band (with its attempts counter bumped)
// and Drain returns the count delivered so far.
//
// At most one drain runs per device at a time. The reconnect path, the
// direct-send path and the periodic sweep all call Drain; without exclusion
// two of them could peek the same head message and hand it to the transport
// twice. A second caller blocks until the running drain finishes, then
// continues with whatever is still queued.
func (q *OutboundQueue) Drain(deviceID string, send SendFunc) (int, error) {
	q.mu.Lock()
	dq := q.pending[deviceID]
	if dq == nil {
		dq = &deviceQueue{}
		q.pending[deviceID] = dq
	}
	q.mu.Unlock()

	dq.drainMu.Lock()
	defer dq.drainMu.Unlock()

	delivered := 0
	for {
		msg, ok := q.peek(deviceID)
		if !ok {
			return delivered, nil
		}

		msg.Attempts++
		if err := send(msg); err != nil {
			q.logger.Warn().
				Str("device_id", deviceID).
				Str("message_type", msg.MessageType).
				Int("attempts", msg.Attempts).
				Err(err).
				Msg("drain stopped on delivery failure")
			return delivered, err
		}

		q.remove(deviceID, msg)
		delivered++
	}
}

// Len returns the number of pending messages for the device.
func (q *OutboundQueue) Len(deviceID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dq := q.pending[deviceID]
	if dq == nil {
		return 0
	}
	return dq.len()
}

// TotalLen returns the number of pending messages across all devices.
func (q *OutboundQueue) TotalLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	total := 0
	for _, dq := range q.pending {
		total += dq.len()
	}
	return total
}

// peek returns the head message without removing it.
func (q *OutboundQueue) peek(deviceID string) (*types.QueuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	dq := q.pending[deviceID]
	if dq == nil {
		return nil, false
	}
	for p := types.PriorityCritical; p >= types.PriorityLow; p-- {
		if band := dq.bands[p]; len(band) > 0 {
			return band[0], true
		}
	}
	return nil, false
}

// remove drops msg if it is still at the head of its band. A concurrent
// NextMessage may already have taken it; removal is then a no-op.
func (q *OutboundQueue) remove(deviceID string, msg *types.QueuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()

	dq := q.pending[deviceID]
	if dq == nil {
		return
	}
	band := dq.bands[msg.Priority]
	if len(band) > 0 && band[0] == msg {
		dq.bands[msg.Priority] = band[1:]
	}
}

func (dq *deviceQueue) len() int {
	n := 0
	for _, band := range dq.bands {
		n += len(band)
	}
	return n
}
