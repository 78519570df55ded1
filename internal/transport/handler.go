package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"sensorhub/pkg/interfaces"
	"sensorhub/pkg/types"
)

var upgrader = websocket.Upgrader{
	// Nodes connect from the local capture network; origin checking is the
	// deployment's reverse proxy's job.
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// HandlerConfig tunes the per-connection behavior.
type HandlerConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// Handler accepts device websocket connections, runs the hello handshake and
// pumps inbound messages into the coordinator.
type Handler struct {
	adapter     *Adapter
	coordinator interfaces.Coordinator
	cfg         HandlerConfig
	logger      zerolog.Logger
}

// NewHandler wires the upgrade path to the coordinator.
func NewHandler(adapter *Adapter, coordinator interfaces.Coordinator, cfg HandlerConfig, logger zerolog.Logger) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Handler{
		adapter:     adapter,
		coordinator: coordinator,
		cfg:         cfg,
		logger:      logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleDevice upgrades the request and binds the connection to the device
// named in the device_id query parameter. Validation happens before the
// upgrade so rejected nodes get a proper HTTP status.
func (h *Handler) HandleDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "missing required query parameter: device_id", http.StatusBadRequest)
		return
	}
	if !types.IsValidDeviceID(deviceID) {
		http.Error(w, "invalid device_id format", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("device_id", deviceID).Msg("websocket upgrade failed")
		return
	}

	conn := NewConn(ws, h.cfg.BufferSize, h.cfg.WriteTimeout)
	conn.SetDeviceID(deviceID)
	h.adapter.Bind(deviceID, conn)

	// Binding before registration means the post-reconnect drain triggered by
	// RegisterDevice already has a live connection to send through.
	h.coordinator.RegisterDevice(deviceID)

	h.logger.Info().Str("device_id", deviceID).Msg("device connected")
	go h.readLoop(conn)
}

// readLoop owns the connection lifecycle: heartbeat, inbound dispatch and
// disconnect propagation.
func (h *Handler) readLoop(conn *Conn) {
	deviceID := conn.DeviceID()
	defer func() {
		h.adapter.Unbind(deviceID, conn)
		_ = conn.Close()
		h.coordinator.HandleDeviceDisconnect(deviceID)
		h.logger.Info().Str("device_id", deviceID).Msg("device disconnected")
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		msgType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("device_id", deviceID).Msg("websocket read error")
				h.coordinator.RecordConnectionIssue(deviceID, "read_error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.dispatch(conn, deviceID, data)
	}
}

// dispatch decodes one inbound envelope and routes it into the coordinator.
// Malformed frames are logged and dropped; one bad frame must not kill the
// connection mid-recording.
func (h *Handler) dispatch(conn *Conn, deviceID string, data []byte) {
	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn().Err(err).Str("device_id", deviceID).Msg("dropping undecodable frame")
		h.coordinator.RecordConnectionIssue(deviceID, "malformed_frame")
		return
	}
	// The connection, not the frame, is authoritative for identity.
	msg.DeviceID = deviceID
	if msg.Snapshot != nil && msg.Snapshot.DeviceID == "" {
		msg.Snapshot.DeviceID = deviceID
	}

	if err := msg.Validate(); err != nil {
		h.logger.Warn().Err(err).Str("device_id", deviceID).Str("type", msg.Type).
			Msg("dropping invalid message")
		return
	}

	switch msg.Type {
	case types.MessageTypeHello:
		// Hello doubles as the reconnect signal; hand the recovered snapshot
		// back so the node can reconcile its recording assumptions.
		if snap, ok := h.coordinator.RecoverSessionOnReconnect(deviceID); ok {
			reply := types.Message{
				Type:      types.MessageTypeStateSync,
				DeviceID:  deviceID,
				Timestamp: time.Now(),
				Snapshot:  &snap,
			}
			if err := conn.WriteJSON(&reply); err != nil {
				h.logger.Warn().Err(err).Str("device_id", deviceID).Msg("failed to send recovered state")
			}
		}

	case types.MessageTypeStateSync:
		if msg.Snapshot == nil {
			h.logger.Warn().Str("device_id", deviceID).Msg("state_sync without snapshot")
			return
		}
		h.coordinator.SyncSessionState(*msg.Snapshot)

	case types.MessageTypeConnectionIssue:
		if msg.Issue != nil {
			h.coordinator.RecordConnectionIssue(deviceID, msg.Issue.Type)
		}

	case types.MessageTypeAck:
		// Delivery bookkeeping is queue-side; an ack only proves liveness.
		h.coordinator.RecoverSessionOnReconnect(deviceID)

	default:
		h.logger.Debug().Str("device_id", deviceID).Str("type", msg.Type).
			Msg("ignoring unhandled message type")
	}
}
