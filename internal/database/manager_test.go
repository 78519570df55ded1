package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorhub/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{Path: filepath.Join(t.TempDir(), "sensorhub.db")}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func sampleRecord(deviceID, sessionID string) *types.SessionRecord {
	start := time.Now().Add(-2 * time.Minute).UTC()
	return &types.SessionRecord{
		DeviceID:           deviceID,
		SessionID:          sessionID,
		StartedAt:          &start,
		EndedAt:            time.Now().UTC(),
		DurationSeconds:    120,
		FileCount:          4,
		TotalFileSizeBytes: 2048,
	}
}

func TestManager_EmptyPathRejected(t *testing.T) {
	_, err := NewManager(Config{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestManager_SaveAndList(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveSessionRecord(ctx, sampleRecord("dev1", "S1")))
	require.NoError(t, m.SaveSessionRecord(ctx, sampleRecord("dev2", "S1")))

	records, err := m.ListSessionRecords(ctx, "dev1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "dev1", records[0].DeviceID)
	assert.Equal(t, "S1", records[0].SessionID)
	assert.Equal(t, 4, records[0].FileCount)
	assert.Equal(t, int64(2048), records[0].TotalFileSizeBytes)
	assert.NotNil(t, records[0].StartedAt)

	all, err := m.ListSessionRecords(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestManager_NilStartTimeSurvivesRoundtrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	record := sampleRecord("dev1", "S1")
	record.StartedAt = nil
	require.NoError(t, m.SaveSessionRecord(ctx, record))

	records, err := m.ListSessionRecords(ctx, "dev1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].StartedAt)
}

func TestManager_InvalidRecordRejected(t *testing.T) {
	m := newTestManager(t)

	assert.ErrorIs(t, m.SaveSessionRecord(context.Background(), nil), ErrInvalidRecord)
	assert.ErrorIs(t, m.SaveSessionRecord(context.Background(), &types.SessionRecord{}), ErrInvalidRecord)
}

func TestManager_HealthCheck(t *testing.T) {
	m := newTestManager(t)
	assert.NoError(t, m.HealthCheck(context.Background()))
}

func TestManager_CloseIsIdempotentAndFinal(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	err := m.SaveSessionRecord(context.Background(), sampleRecord("dev1", "S1"))
	assert.ErrorIs(t, err, ErrManagerClosed)
}
