package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorhub/pkg/types"
)

type stubCoordinator struct {
	snapshots map[string]types.SessionSnapshot
	status    types.SyncStatus

	queued    []string
	broadcast []string
}

func (s *stubCoordinator) RegisterDevice(string) bool { return true }

func (s *stubCoordinator) SyncSessionState(types.SessionSnapshot) bool { return true }

func (s *stubCoordinator) SessionState(deviceID string) (types.SessionSnapshot, bool) {
	snap, ok := s.snapshots[deviceID]
	return snap, ok
}

func (s *stubCoordinator) RecoverSessionOnReconnect(deviceID string) (types.SessionSnapshot, bool) {
	return s.SessionState(deviceID)
}

func (s *stubCoordinator) QueueMessage(deviceID, messageType string, _ map[string]interface{}, _ types.Priority) {
	s.queued = append(s.queued, deviceID+":"+messageType)
}

func (s *stubCoordinator) Broadcast(messageType string, _ map[string]interface{}, _ types.Priority) {
	s.broadcast = append(s.broadcast, messageType)
}

func (s *stubCoordinator) HandleDeviceDisconnect(string) {}

func (s *stubCoordinator) RecordConnectionIssue(string, string) {}

func (s *stubCoordinator) SyncStatus() types.SyncStatus { return s.status }

type stubSink struct {
	healthErr error
}

func (s *stubSink) SaveSessionRecord(context.Context, *types.SessionRecord) error { return nil }

func (s *stubSink) HealthCheck(context.Context) error { return s.healthErr }

func (s *stubSink) Close() error { return nil }

type stubLister struct {
	records []*types.SessionRecord
	err     error
}

func (s *stubLister) ListSessionRecords(_ context.Context, _ string) ([]*types.SessionRecord, error) {
	return s.records, s.err
}

func newTestServer(coord *stubCoordinator, sink *stubSink, lister RecordLister) *Server {
	if sink == nil {
		// A typed nil would still reach the health check.
		return NewServer(coord, nil, lister, prometheus.NewRegistry(), zerolog.Nop())
	}
	return NewServer(coord, sink, lister, prometheus.NewRegistry(), zerolog.Nop())
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealthWithoutSink(t *testing.T) {
	s := newTestServer(&stubCoordinator{}, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
}

func TestHealthDegradedOnSinkFailure(t *testing.T) {
	s := newTestServer(&stubCoordinator{}, &stubSink{healthErr: errors.New("locked")}, nil)

	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health["status"])
}

func TestStatusEndpoint(t *testing.T) {
	coord := &stubCoordinator{
		status: types.SyncStatus{
			TotalDevices:  2,
			OnlineDevices: 1,
			Devices: map[string]types.DeviceConnectionRecord{
				"cam-01": {DeviceID: "cam-01", IsConnected: true},
				"cam-02": {DeviceID: "cam-02", IsConnected: false},
			},
		},
	}
	s := newTestServer(coord, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status types.SyncStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 2, status.TotalDevices)
	assert.Equal(t, 1, status.OnlineDevices)
	assert.Len(t, status.Devices, 2)
}

func TestDeviceSessionFoundAndMissing(t *testing.T) {
	coord := &stubCoordinator{
		snapshots: map[string]types.SessionSnapshot{
			"cam-01": {DeviceID: "cam-01", SessionID: "session_a", RecordingActive: true},
		},
	}
	s := newTestServer(coord, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/devices/cam-01/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap types.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "session_a", snap.SessionID)
	assert.True(t, snap.RecordingActive)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/devices/ghost/session", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHistory(t *testing.T) {
	lister := &stubLister{
		records: []*types.SessionRecord{
			{DeviceID: "cam-01", SessionID: "session_a", FileCount: 3},
		},
	}
	s := newTestServer(&stubCoordinator{}, nil, lister)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/devices/cam-01/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []*types.SessionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].FileCount)
}

func TestSessionHistoryUnavailable(t *testing.T) {
	s := newTestServer(&stubCoordinator{}, nil, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/devices/cam-01/sessions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueCommand(t *testing.T) {
	coord := &stubCoordinator{}
	s := newTestServer(coord, nil, nil)

	body := map[string]interface{}{
		"message_type": types.MessageTypeCommand,
		"payload":      map[string]interface{}{"action": "start_recording"},
		"priority":     "critical",
	}
	rec := doRequest(t, s, http.MethodPost, "/api/v1/devices/cam-01/commands", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"cam-01:" + types.MessageTypeCommand}, coord.queued)
}

func TestQueueCommandRejectsBadInput(t *testing.T) {
	coord := &stubCoordinator{}
	s := newTestServer(coord, nil, nil)

	// Unknown message type.
	rec := doRequest(t, s, http.MethodPost, "/api/v1/devices/cam-01/commands", map[string]interface{}{
		"message_type": "nonsense",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown priority.
	rec = doRequest(t, s, http.MethodPost, "/api/v1/devices/cam-01/commands", map[string]interface{}{
		"message_type": types.MessageTypeCommand,
		"priority":     "urgent",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed body.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/cam-01/commands", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Empty(t, coord.queued)
}

func TestBroadcastCommand(t *testing.T) {
	coord := &stubCoordinator{}
	s := newTestServer(coord, nil, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/broadcast", map[string]interface{}{
		"message_type": types.MessageTypeStatusRequest,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{types.MessageTypeStatusRequest}, coord.broadcast)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewServer(&stubCoordinator{}, nil, nil, reg, zerolog.Nop())

	rec := doRequest(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
