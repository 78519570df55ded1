package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"sensorhub/internal/metrics"
	"sensorhub/internal/notify"
	"sensorhub/internal/queue"
	"sensorhub/internal/registry"
	"sensorhub/internal/store"
	"sensorhub/pkg/interfaces"
	"sensorhub/pkg/types"
)

// DefaultSweepInterval is how often the background health sweep runs.
const DefaultSweepInterval = 10 * time.Second

// Coordinator ties the registry, session store and outbound queue together
// and implements the device lifecycle state machine:
//
//	UNKNOWN -> REGISTERED/ONLINE <-> OFFLINE
//
// Reconnection is an instantaneous OFFLINE -> ONLINE transition triggered by
// any successful inbound traffic, followed by a priority-ordered drain of the
// device's queue. The coordinator holds no session state of its own; it is an
// orchestrator over the stores, which keeps its behavior deterministic for a
// given input sequence.
type Coordinator struct {
	registry  *registry.Registry
	store     *store.Store
	queue     *queue.OutboundQueue
	transport interfaces.Transport
	notifier  *notify.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	sweepInterval time.Duration

	attempts  atomic.Uint64
	delivered atomic.Uint64
	syncs     atomic.Uint64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Deps carries the coordinator's collaborators. Transport and Notifier may be
// nil: sends then fail (messages stay queued) and events go nowhere.
type Deps struct {
	Registry  *registry.Registry
	Store     *store.Store
	Queue     *queue.OutboundQueue
	Transport interfaces.Transport
	Notifier  *notify.Notifier
	Metrics   *metrics.Metrics
}

// New creates a coordinator. Metrics must be non-nil.
func New(deps Deps, sweepInterval time.Duration, logger zerolog.Logger) *Coordinator {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Coordinator{
		registry:      deps.Registry,
		store:         deps.Store,
		queue:         deps.Queue,
		transport:     deps.Transport,
		notifier:      deps.Notifier,
		metrics:       deps.Metrics,
		logger:        logger.With().Str("component", "coordinator").Logger(),
		sweepInterval: sweepInterval,
	}
}

// StartSynchronization launches the periodic health sweep. The sweep retries
// queue drains for online devices and refreshes gauges; it never alters
// per-device lifecycle state on its own.
func (c *Coordinator) StartSynchronization(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go c.sweepLoop(sweepCtx)

	c.logger.Info().Dur("sweep_interval", c.sweepInterval).Msg("synchronization started")
	return nil
}

// StopSynchronization stops the health sweep. Per-device state is untouched.
func (c *Coordinator) StopSynchronization() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	c.logger.Info().Msg("synchronization stopped")
	return nil
}

// RegisterDevice moves a device from UNKNOWN to REGISTERED/ONLINE.
// Registration implies reachability at registration time, so a register call
// for a known-but-offline device is treated as a reconnect signal. Returns
// false only for a malformed device ID.
func (c *Coordinator) RegisterDevice(deviceID string) bool {
	if !types.IsValidDeviceID(deviceID) {
		c.logger.Warn().Str("device_id", deviceID).Msg("rejecting malformed device ID")
		return false
	}

	if c.registry.RegisterDevice(deviceID) {
		c.publish(notify.Event{Type: notify.EventDeviceRegistered, DeviceID: deviceID})
	} else if c.registry.HandleReconnect(deviceID) {
		c.onReconnect(deviceID)
	}
	c.refreshGauges()
	return true
}

// SyncSessionState applies an inbound snapshot. The connectivity-state update
// and the content update are independent and both happen: a snapshot from an
// offline device flips it online and triggers a queue drain, whether or not
// the content changed. Returns false only for structurally invalid snapshots.
func (c *Coordinator) SyncSessionState(snapshot types.SessionSnapshot) bool {
	if err := snapshot.Validate(); err != nil {
		c.metrics.SnapshotRejects.Inc()
		c.logger.Warn().Err(err).Str("device_id", snapshot.DeviceID).Msg("snapshot rejected")
		return false
	}
	deviceID := snapshot.DeviceID

	// Devices may sync before any explicit registration; tolerate by
	// auto-registering, mirroring the registry's unknown-device policy.
	wasReconnect := false
	if c.registry.RegisterDevice(deviceID) {
		c.publish(notify.Event{Type: notify.EventDeviceRegistered, DeviceID: deviceID})
	} else if c.registry.HandleReconnect(deviceID) {
		wasReconnect = true
	}

	res, err := c.store.SyncState(snapshot)
	if err != nil {
		// Validate above makes this unreachable in practice; surface it as a
		// rejection rather than a fault.
		c.metrics.SnapshotRejects.Inc()
		return false
	}

	c.registry.Touch(deviceID)
	c.syncs.Add(1)
	c.metrics.SnapshotSyncs.Inc()

	current, _ := c.store.State(deviceID)
	c.publish(notify.Event{Type: notify.EventStateUpdated, DeviceID: deviceID, Snapshot: &current})
	if res.SessionEnded {
		c.publish(notify.Event{Type: notify.EventSessionEnded, DeviceID: deviceID, Snapshot: &current})
		c.logger.Info().Str("device_id", deviceID).Str("session_id", snapshot.SessionID).
			Msg("device reported end of recording")
	}

	// Drain after the content update so a command referencing the new state
	// never races ahead of it.
	if wasReconnect {
		c.onReconnect(deviceID)
	}
	c.refreshGauges()
	return true
}

// SessionState returns the stored snapshot for the device, if any.
func (c *Coordinator) SessionState(deviceID string) (types.SessionSnapshot, bool) {
	return c.store.State(deviceID)
}

// RecoverSessionOnReconnect flips an offline device online, drains its queue
// and hands back the last stored snapshot unchanged so the caller can
// reconcile local assumptions (for example "was I still recording?").
func (c *Coordinator) RecoverSessionOnReconnect(deviceID string) (types.SessionSnapshot, bool) {
	if c.registry.HandleReconnect(deviceID) {
		c.onReconnect(deviceID)
		c.refreshGauges()
	}
	return c.store.RecoverOnReconnect(deviceID)
}

// QueueMessage enqueues an outbound control message; if the device is online
// the queue is drained immediately, so delivery stays priority-ordered even
// on the direct path. Always succeeds; offline is not an error.
func (c *Coordinator) QueueMessage(deviceID, messageType string, payload map[string]interface{}, priority types.Priority) {
	msg := c.queue.Enqueue(deviceID, messageType, payload, priority)
	c.metrics.MessagesQueued.WithLabelValues(msg.Priority.String()).Inc()

	if connected, known := c.registry.IsConnected(deviceID); known && connected {
		c.drainDevice(deviceID)
	}
	c.refreshGauges()
}

// Broadcast queues the same message for every known device.
func (c *Coordinator) Broadcast(messageType string, payload map[string]interface{}, priority types.Priority) {
	for _, deviceID := range c.registry.DeviceIDs() {
		c.QueueMessage(deviceID, messageType, payload, priority)
	}
}

// HandleDeviceDisconnect records the ONLINE -> OFFLINE transition. No data is
// discarded: the last snapshot, including recording_active=true, stays as-is
// because the device may well still be recording locally.
func (c *Coordinator) HandleDeviceDisconnect(deviceID string) {
	wasConnected, known := c.registry.IsConnected(deviceID)
	c.registry.HandleDisconnect(deviceID)

	if known && wasConnected {
		c.metrics.Disconnects.Inc()
		c.publish(notify.Event{Type: notify.EventDeviceOffline, DeviceID: deviceID})
	}
	c.refreshGauges()
}

// RecordConnectionIssue appends to the device's bounded issue history for
// health reporting. It never triggers a disconnect by itself.
func (c *Coordinator) RecordConnectionIssue(deviceID, issueType string) {
	c.registry.RecordConnectionIssue(deviceID, issueType)
}

// SyncStatus computes the aggregate health view.
func (c *Coordinator) SyncStatus() types.SyncStatus {
	regStatus := c.registry.GetStatus()

	attempts := c.attempts.Load()
	delivered := c.delivered.Load()
	rate := 100.0
	if attempts > 0 {
		rate = float64(delivered) / float64(attempts) * 100.0
	}

	return types.SyncStatus{
		TotalDevices:  regStatus.TotalDevices,
		OnlineDevices: regStatus.OnlineDevices,
		Devices:       regStatus.Devices,
		Statistics: types.SyncStatistics{
			SnapshotSyncs:      c.syncs.Load(),
			DeliveryAttempts:   attempts,
			MessagesDelivered:  delivered,
			MessagesQueued:     c.queue.TotalLen(),
			SuccessRatePercent: rate,
		},
	}
}

// onReconnect performs the post-reconnect bookkeeping: metrics, event,
// immediate queue drain.
func (c *Coordinator) onReconnect(deviceID string) {
	c.metrics.Reconnects.Inc()
	c.publish(notify.Event{Type: notify.EventDeviceOnline, DeviceID: deviceID})
	c.drainDevice(deviceID)
}

// drainDevice flushes the device's queue through the transport in priority
// order. Messages whose send fails stay queued for the next contact.
func (c *Coordinator) drainDevice(deviceID string) {
	if c.queue.Len(deviceID) == 0 {
		return
	}

	start := time.Now()
	delivered, err := c.queue.Drain(deviceID, func(msg *types.QueuedMessage) error {
		c.attempts.Add(1)
		if c.transport == nil {
			c.metrics.DeliveryFailures.Inc()
			return ErrNoTransport
		}
		if sendErr := c.transport.Send(deviceID, msg); sendErr != nil {
			c.metrics.DeliveryFailures.Inc()
			c.registry.RecordConnectionIssue(deviceID, "send_failure")
			return sendErr
		}
		c.delivered.Add(1)
		c.metrics.MessagesDelivered.WithLabelValues(msg.Priority.String()).Inc()
		return nil
	})
	c.metrics.DrainDuration.Observe(time.Since(start).Seconds())

	log := c.logger.With().Str("device_id", deviceID).Int("delivered", delivered).Logger()
	if err != nil {
		log.Warn().Err(err).Int("remaining", c.queue.Len(deviceID)).Msg("queue drain interrupted")
		return
	}
	if delivered > 0 {
		log.Debug().Msg("queue drained")
	}
}

func (c *Coordinator) sweepLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-ctx.Done():
			return
		}
	}
}

// sweep retries drains for online devices with pending messages and refreshes
// the gauges. Declaring a silent device unreachable is an external monitor's
// policy call; the sweep only keeps the health signals current.
func (c *Coordinator) sweep() {
	for _, deviceID := range c.registry.DeviceIDs() {
		if connected, known := c.registry.IsConnected(deviceID); known && connected {
			c.drainDevice(deviceID)
		}
	}
	c.refreshGauges()
}

func (c *Coordinator) refreshGauges() {
	status := c.registry.GetStatus()
	c.metrics.DevicesKnown.Set(float64(status.TotalDevices))
	c.metrics.DevicesOnline.Set(float64(status.OnlineDevices))
	c.metrics.QueueDepth.Set(float64(c.queue.TotalLen()))
}

func (c *Coordinator) publish(event notify.Event) {
	if c.notifier != nil {
		c.notifier.Publish(event)
	}
}
