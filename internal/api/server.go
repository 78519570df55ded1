package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"sensorhub/pkg/interfaces"
	"sensorhub/pkg/types"
)

// RecordLister is the optional read side of the persistence sink, used for
// the session history endpoint.
type RecordLister interface {
	ListSessionRecords(ctx context.Context, deviceID string) ([]*types.SessionRecord, error)
}

// Server is the HTTP control surface: sync status for dashboards, command
// injection for the session-manager layer and prometheus metrics. No
// business logic lives here.
type Server struct {
	coordinator interfaces.Coordinator
	sink        interfaces.SessionSink
	records     RecordLister
	gatherer    prometheus.Gatherer
	router      chi.Router
	logger      zerolog.Logger
}

// NewServer builds the router. sink and records may be nil when the process
// runs without persistence.
func NewServer(coordinator interfaces.Coordinator, sink interfaces.SessionSink, records RecordLister, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		coordinator: coordinator,
		sink:        sink,
		records:     records,
		gatherer:    gatherer,
		logger:      logger.With().Str("component", "api").Logger(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/devices", s.handleDevices)
		r.Route("/devices/{deviceID}", func(r chi.Router) {
			r.Get("/session", s.handleDeviceSession)
			r.Get("/sessions", s.handleDeviceSessionHistory)
			r.Post("/commands", s.handleDeviceCommand)
		})
		r.Post("/broadcast", s.handleBroadcast)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{"status": "ok"}
	code := http.StatusOK

	if s.sink != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.sink.HealthCheck(ctx); err != nil {
			health["status"] = "degraded"
			health["database"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			health["database"] = "ok"
		}
	}
	s.writeJSON(w, code, health)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.coordinator.SyncStatus())
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	status := s.coordinator.SyncStatus()
	s.writeJSON(w, http.StatusOK, status.Devices)
}

func (s *Server) handleDeviceSession(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	snapshot, ok := s.coordinator.SessionState(deviceID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no session state for device")
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleDeviceSessionHistory(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		s.writeError(w, http.StatusNotFound, "session history not available")
		return
	}
	deviceID := chi.URLParam(r, "deviceID")

	records, err := s.records.ListSessionRecords(r.Context(), deviceID)
	if err != nil {
		s.logger.Error().Err(err).Str("device_id", deviceID).Msg("history query failed")
		s.writeError(w, http.StatusInternalServerError, "failed to load session history")
		return
	}
	if records == nil {
		records = []*types.SessionRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

// commandRequest is the body for POST .../commands and /broadcast.
type commandRequest struct {
	MessageType string                 `json:"message_type"`
	Payload     map[string]interface{} `json:"payload"`
	Priority    string                 `json:"priority"`
}

func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if !types.IsValidDeviceID(deviceID) {
		s.writeError(w, http.StatusBadRequest, "invalid device ID")
		return
	}

	req, priority, ok := s.decodeCommand(w, r)
	if !ok {
		return
	}

	s.coordinator.QueueMessage(deviceID, req.MessageType, req.Payload, priority)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	req, priority, ok := s.decodeCommand(w, r)
	if !ok {
		return
	}

	s.coordinator.Broadcast(req.MessageType, req.Payload, priority)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) decodeCommand(w http.ResponseWriter, r *http.Request) (commandRequest, types.Priority, bool) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, 0, false
	}
	if !types.IsValidMessageType(req.MessageType) {
		s.writeError(w, http.StatusBadRequest, "invalid message_type")
		return req, 0, false
	}

	priority := types.PriorityNormal
	if req.Priority != "" {
		parsed, err := types.ParsePriority(req.Priority)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid priority")
			return req, 0, false
		}
		priority = parsed
	}
	return req, priority, true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
