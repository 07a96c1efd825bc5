package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/viewassist/timerd/internal/models"
	"github.com/viewassist/timerd/internal/timers"
)

// statusForError maps service sentinel errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrTimeParse),
		errors.Is(err, models.ErrInvalidSelection),
		errors.Is(err, models.ErrEmptyDeviceID),
		errors.Is(err, models.ErrInvalidTimerClass):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrTimerNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTimerState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// timersHandler routes /timers, /timers/{id} and /timers/{id}/snooze.
func (s *Server) timersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.timersHandler: routing request", "method", r.Method, "path", r.URL.Path)

	path := strings.TrimPrefix(r.URL.Path, "/timers")
	path = strings.TrimPrefix(path, "/")
	segments := strings.Split(path, "/")

	if len(segments) == 0 || segments[0] == "" {
		// /timers
		switch r.Method {
		case http.MethodPost:
			s.setTimerHandler(w, r)
		case http.MethodGet:
			s.listTimersHandler(w, r)
		case http.MethodDelete:
			s.bulkCancelHandler(w, r)
		default:
			w.Header().Set("Allow", "GET, POST, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	timerID := segments[0]

	if len(segments) == 1 {
		// /timers/{id}
		switch r.Method {
		case http.MethodGet:
			s.getTimerHandler(w, r, timerID)
		case http.MethodDelete:
			s.cancelTimerHandler(w, r, timerID)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		}
		return
	}

	if len(segments) == 2 && segments[1] == "snooze" {
		// /timers/{id}/snooze
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
			return
		}
		s.snoozeTimerHandler(w, r, timerID)
		return
	}

	writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown timer endpoint"))
}

// setTimerHandler handles POST /timers.
func (s *Server) setTimerHandler(w http.ResponseWriter, r *http.Request) {
	var req timers.SetTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.setTimerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	slog.Debug("Server.setTimerHandler: parsed request", "device_id", req.DeviceID, "type", req.Class, "time", req.Time)

	result, err := s.svc.SetTimer(r.Context(), req)
	if err != nil {
		slog.Warn("Server.setTimerHandler: set_timer failed", "device_id", req.DeviceID, "error", err)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}

	slog.Info("Server.setTimerHandler: timer created", "timer_id", result.TimerID)
	writeJSONResponse(w, http.StatusCreated, models.Success(result))
}

// listTimersHandler handles GET /timers with device_id, timer_id and
// include_expired query filters.
func (s *Server) listTimersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	timerID := q.Get("timer_id")
	deviceID := q.Get("device_id")
	includeExpired := q.Get("include_expired") == "true"

	records, err := s.svc.GetTimers(r.Context(), timerID, deviceID, includeExpired)
	if err != nil {
		slog.Warn("Server.listTimersHandler: get_timers failed", "timer_id", timerID, "device_id", deviceID, "error", err)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}

	slog.Debug("Server.listTimersHandler: returning timers", "count", len(records))
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"timers": records,
		"count":  len(records),
	}))
}

// getTimerHandler handles GET /timers/{id}.
func (s *Server) getTimerHandler(w http.ResponseWriter, r *http.Request, timerID string) {
	records, err := s.svc.GetTimers(r.Context(), timerID, "", true)
	if err != nil {
		slog.Warn("Server.getTimerHandler: lookup failed", "timer_id", timerID, "error", err)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	if len(records) == 0 {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Timer not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records[0]))
}

// cancelTimerHandler handles DELETE /timers/{id}.
func (s *Server) cancelTimerHandler(w http.ResponseWriter, r *http.Request, timerID string) {
	removed, err := s.svc.CancelTimer(r.Context(), timerID, "", false)
	if err != nil {
		slog.Error("Server.cancelTimerHandler: cancel failed", "timer_id", timerID, "error", err)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	slog.Info("Server.cancelTimerHandler: cancel done", "timer_id", timerID, "removed", removed)
	writeJSONResponse(w, http.StatusOK, models.Success(models.CancelTimerResult{Result: removed}))
}

// bulkCancelHandler handles DELETE /timers with all=true or device_id
// query selectors.
func (s *Server) bulkCancelHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	removeAll := q.Get("all") == "true"
	deviceID := q.Get("device_id")

	removed, err := s.svc.CancelTimer(r.Context(), "", deviceID, removeAll)
	if err != nil {
		slog.Warn("Server.bulkCancelHandler: cancel failed", "device_id", deviceID, "all", removeAll, "error", err)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}
	slog.Info("Server.bulkCancelHandler: cancel done", "device_id", deviceID, "all", removeAll, "removed", removed)
	writeJSONResponse(w, http.StatusOK, models.Success(models.CancelTimerResult{Result: removed}))
}

// snoozeRequest is the body of POST /timers/{id}/snooze.
type snoozeRequest struct {
	Time string `json:"time"`
}

// snoozeTimerHandler handles POST /timers/{id}/snooze.
func (s *Server) snoozeTimerHandler(w http.ResponseWriter, r *http.Request, timerID string) {
	var req snoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.snoozeTimerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.svc.SnoozeTimer(r.Context(), timerID, req.Time)
	if err != nil {
		slog.Warn("Server.snoozeTimerHandler: snooze failed", "timer_id", timerID, "error", err)
		writeJSONResponse(w, statusForError(err), models.Error(err.Error()))
		return
	}

	slog.Info("Server.snoozeTimerHandler: timer snoozed", "timer_id", timerID)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// healthHandler provides a health check endpoint for monitoring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if records, err := s.svc.GetTimers(r.Context(), "", "", false); err != nil {
		slog.Warn("Server.healthHandler: failed to count active timers", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to fetch timer metrics"
	} else {
		healthData["active_timers"] = len(records)
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
