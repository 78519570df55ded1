package registry

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDepths map[string]int

func (f fakeDepths) Len(deviceID string) int { return f[deviceID] }

func newTestRegistry() *Registry {
	return NewRegistry(nil, 0, zerolog.Nop())
}

func TestRegistry_RegisterDeviceIdempotent(t *testing.T) {
	r := newTestRegistry()

	assert.True(t, r.RegisterDevice("dev1"))
	assert.False(t, r.RegisterDevice("dev1"))

	status := r.GetStatus()
	assert.Equal(t, 1, status.TotalDevices)

	rec, ok := r.Record("dev1")
	require.True(t, ok)
	assert.True(t, rec.IsConnected)
	assert.False(t, rec.LastSeen.IsZero())
}

func TestRegistry_DisconnectAndReconnect(t *testing.T) {
	r := newTestRegistry()
	r.RegisterDevice("dev1")

	r.HandleDisconnect("dev1")
	connected, known := r.IsConnected("dev1")
	require.True(t, known)
	assert.False(t, connected)

	// First reconnect after a disconnect reports a transition.
	assert.True(t, r.HandleReconnect("dev1"))
	// Already online: no transition, last_seen still refreshed.
	assert.False(t, r.HandleReconnect("dev1"))

	connected, _ = r.IsConnected("dev1")
	assert.True(t, connected)
}

func TestRegistry_UnknownDeviceOperationsTolerated(t *testing.T) {
	r := newTestRegistry()

	// None of these should panic or create records.
	r.HandleDisconnect("ghost")
	r.RecordConnectionIssue("ghost", "timeout")
	r.Touch("ghost")
	assert.False(t, r.HandleReconnect("ghost"))

	_, ok := r.Record("ghost")
	assert.False(t, ok)
	assert.False(t, r.Known("ghost"))
	assert.Equal(t, 0, r.GetStatus().TotalDevices)
}

func TestRegistry_IssueHistoryBounded(t *testing.T) {
	r := NewRegistry(nil, 5, zerolog.Nop())
	r.RegisterDevice("dev1")

	for i := 0; i < 12; i++ {
		r.RecordConnectionIssue("dev1", "packet_loss")
	}
	r.RecordConnectionIssue("dev1", "timeout")

	rec, ok := r.Record("dev1")
	require.True(t, ok)
	assert.Len(t, rec.ConnectionIssues, 5)
	// Oldest entries dropped, newest retained.
	assert.Equal(t, "timeout", rec.ConnectionIssues[4].Type)
}

func TestRegistry_StatusCountsAndQueueDepths(t *testing.T) {
	depths := fakeDepths{"dev2": 3}
	r := NewRegistry(depths, 0, zerolog.Nop())

	r.RegisterDevice("dev1")
	r.RegisterDevice("dev2")
	r.RegisterDevice("dev3")
	r.HandleDisconnect("dev2")

	status := r.GetStatus()
	assert.Equal(t, 3, status.TotalDevices)
	assert.Equal(t, 2, status.OnlineDevices)
	assert.False(t, status.Devices["dev2"].IsConnected)
	assert.Equal(t, 3, status.Devices["dev2"].QueuedMessageCount)
	assert.Equal(t, 0, status.Devices["dev1"].QueuedMessageCount)

	ids := r.DeviceIDs()
	assert.ElementsMatch(t, []string{"dev1", "dev2", "dev3"}, ids)
}
