package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sensorhub/pkg/interfaces"
	"sensorhub/pkg/types"
)

// Store holds the last-known SessionSnapshot per device. Each device is the
// sole writer of its own snapshot, so last-write-wins on arrival order is
// conflict-free by construction; no vector clocks, no staleness rejection.
//
// Durability across a process restart is not provided here. Only finalized
// session records leave the process, through the sink.
type Store struct {
	mu        sync.RWMutex
	snapshots map[string]*types.SessionSnapshot
	sink      interfaces.SessionSink
	logger    zerolog.Logger
	nowFn     func() time.Time

	persistWG sync.WaitGroup
}

// SyncResult reports what a SyncState call did.
type SyncResult struct {
	// FirstSync is true when no snapshot existed for the device before.
	FirstSync bool
	// SessionEnded is true when this snapshot reported recording_active=false
	// while the previous one reported true. The stored counters have been
	// reset and the finalized record dispatched to the sink.
	SessionEnded bool
}

// NewStore creates an empty store. sink may be nil; finalized sessions are
// then only logged.
func NewStore(sink interfaces.SessionSink, logger zerolog.Logger) *Store {
	return &Store{
		snapshots: make(map[string]*types.SessionSnapshot),
		sink:      sink,
		logger:    logger.With().Str("component", "session_store").Logger(),
		nowFn:     time.Now,
	}
}

// SyncState validates the snapshot structurally and stores it, stamping
// last_updated locally. Stale or reordered content is never rejected: the
// latest arrival wins. On a terminal recording transition (active -> not
// active) the stored duration and file counters are reset to zero (the device
// is not trusted to do that) and the finalized record is dispatched to the
// sink on a separate goroutine, so a slow sink never blocks the sync path.
//
// On validation failure the prior stored snapshot, if any, is left untouched.
func (s *Store) SyncState(snapshot types.SessionSnapshot) (SyncResult, error) {
	if err := snapshot.Validate(); err != nil {
		s.logger.Warn().Err(err).Str("device_id", snapshot.DeviceID).Msg("snapshot rejected")
		return SyncResult{}, err
	}

	now := s.nowFn()
	stored := snapshot.Clone()
	stored.LastUpdated = now

	s.mu.Lock()
	prev := s.snapshots[stored.DeviceID]
	res := SyncResult{FirstSync: prev == nil}

	if prev != nil && prev.RecordingActive && !stored.RecordingActive {
		res.SessionEnded = true
		record := finalize(stored, now)
		// Reset counters so the invariant "counters are zero when not
		// recording, immediately after a session end" holds regardless of
		// what the device sent.
		stored.RecordingDurationSeconds = 0
		stored.FileCount = 0
		stored.TotalFileSizeBytes = 0
		stored.RecordingStartTime = nil
		s.snapshots[stored.DeviceID] = stored
		s.mu.Unlock()

		// The sink may block on I/O or retry; never stall the sync path
		// (and the network read loop above it) on it.
		s.persistWG.Add(1)
		go func() {
			defer s.persistWG.Done()
			s.persist(record)
		}()
		return res, nil
	}

	s.snapshots[stored.DeviceID] = stored
	s.mu.Unlock()
	return res, nil
}

// State returns a copy of the stored snapshot, or false if the device has
// never synced.
func (s *Store) State(deviceID string) (types.SessionSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.snapshots[deviceID]
	if !exists {
		return types.SessionSnapshot{}, false
	}
	return *snap.Clone(), true
}

// RecoverOnReconnect hands back the most recently stored snapshot unchanged.
// Recovery means "the coordinator still has the last state"; there is no log
// replay or reconstruction.
func (s *Store) RecoverOnReconnect(deviceID string) (types.SessionSnapshot, bool) {
	return s.State(deviceID)
}

// Known reports whether any snapshot has been stored for the device.
func (s *Store) Known(deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.snapshots[deviceID]
	return exists
}

// WaitForPersistence blocks until all dispatched sink writes have returned.
// Called during shutdown so a session finalized moments earlier is not lost
// when the sink closes.
func (s *Store) WaitForPersistence() {
	s.persistWG.Wait()
}

// DeviceCount returns the number of devices with a stored snapshot.
func (s *Store) DeviceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

func finalize(snap *types.SessionSnapshot, endedAt time.Time) *types.SessionRecord {
	return &types.SessionRecord{
		DeviceID:           snap.DeviceID,
		SessionID:          snap.SessionID,
		StartedAt:          snap.RecordingStartTime,
		EndedAt:            endedAt,
		DurationSeconds:    snap.RecordingDurationSeconds,
		FileCount:          snap.FileCount,
		TotalFileSizeBytes: snap.TotalFileSizeBytes,
	}
}

func (s *Store) persist(record *types.SessionRecord) {
	log := s.logger.With().
		Str("device_id", record.DeviceID).
		Str("session_id", record.SessionID).
		Float64("duration_seconds", record.DurationSeconds).
		Int("file_count", record.FileCount).
		Logger()

	if s.sink == nil {
		log.Info().Msg("session ended (no sink configured)")
		return
	}
	if err := s.sink.SaveSessionRecord(context.Background(), record); err != nil {
		// The in-memory state is already consistent; a sink failure is an
		// observability problem, not a sync failure.
		log.Error().Err(err).Msg("failed to persist finalized session")
		return
	}
	log.Info().Msg("session finalized")
}
