package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/fallback"
	"github.com/litekeeper/litekeeper/internal/integrity"
	"github.com/litekeeper/litekeeper/internal/retry"
	"github.com/litekeeper/litekeeper/internal/storage"
)

// handleStatus returns the coordinator's storage status snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.coord.Status())
}

// databaseHealthResponse is the live probe outcome plus the accumulated
// health report.
type databaseHealthResponse struct {
	Healthy bool                 `json:"healthy"`
	Error   string               `json:"error,omitempty"`
	Report  storage.HealthReport `json:"report"`
}

// handleDatabaseHealth runs a liveness probe against the current
// connection. Unhealthy responds 503 so plain HTTP monitors work without
// parsing the body.
func (s *Server) handleDatabaseHealth(w http.ResponseWriter, r *http.Request) {
	resp := databaseHealthResponse{Healthy: true}
	if err := s.coord.HealthCheck(r.Context()); err != nil {
		resp.Healthy = false
		resp.Error = err.Error()
	}
	resp.Report = s.coord.Health()

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

// handleOptions previews the recovery tiers without executing any.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if s.recovery == nil {
		respondError(w, http.StatusServiceUnavailable, "no recovery planner configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string][]fallback.Option{
		"options": s.recovery.AvailableOptions(r.Context()),
	})
}

// statsResponse aggregates every counter the coordinator keeps.
type statsResponse struct {
	Status          core.StorageStatus      `json:"status"`
	Health          storage.HealthReport    `json:"health"`
	Retry           retry.Stats             `json:"retry"`
	Fallback        storage.FallbackMetrics `json:"fallback"`
	DroppedEvents   int64                   `json:"dropped_events"`
	ServerStartedAt time.Time               `json:"server_started_at"`
}

// handleStats returns connection, retry and fallback statistics in one
// payload.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, statsResponse{
		Status:          s.coord.Status(),
		Health:          s.coord.Health(),
		Retry:           s.coord.Executor().Stats(),
		Fallback:        s.coord.FallbackMetrics(),
		DroppedEvents:   s.coord.Bus().DroppedCount(),
		ServerStartedAt: s.started,
	})
}

// checkRequest are the options accepted by the check trigger. The body may
// be empty.
type checkRequest struct {
	CreateBackup bool `json:"create_backup"`
}

// handleCheck runs an integrity check against the current database file
// and returns the full result.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := s.coord.Status()
	if status.DatabasePath == "" {
		respondError(w, http.StatusServiceUnavailable, "no database path resolved yet")
		return
	}
	if status.DatabasePath == storage.MemoryPath {
		respondError(w, http.StatusConflict, "cannot check an in-memory database")
		return
	}

	checker := integrity.NewChecker(status.DatabasePath,
		integrity.WithEventBus(s.coord.Bus()),
		integrity.WithLogger(s.logger),
	)
	result := checker.Check(r.Context(), integrity.CheckOptions{CreateBackup: req.CreateBackup})
	s.coord.SetIntegrityStatus(result.Status())
	respondJSON(w, http.StatusOK, result)
}

// handleBackup creates a backup of the live database and returns its
// description.
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	status := s.coord.Status()
	if status.DatabasePath == storage.MemoryPath {
		respondError(w, http.StatusConflict, "cannot back up an in-memory database")
		return
	}

	db, err := s.coord.DB()
	if err != nil {
		if errors.Is(err, storage.ErrNotConnected) {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	store := storage.NewStore(status.DatabasePath, storage.WithStoreLogger(s.logger))
	info, err := store.Create(r.Context(), db, "api")
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, info)
}

// decodeOptional decodes a JSON body into v, treating an empty body as the
// zero value.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}
