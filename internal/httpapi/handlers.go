package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/CZERTAINLY/sensord/internal/hal"
	"github.com/CZERTAINLY/sensord/internal/service"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 1000
)

type submitRequest struct {
	Kind   string `json:"kind"`
	Cookie int    `json:"cookie"`
}

type submitResponse struct {
	ID uuid.UUID `json:"id"`
}

type sensorsResponse struct {
	Sensors []service.SensorStatus `json:"sensors"`
	// Active lists the sensors running an acquisition.
	Active []int `json:"active"`
}

func (s *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	all, err := s.backend.StatusAll(r.Context())
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, sensorsResponse{
		Sensors: all,
		Active:  s.backend.ActiveSensors(),
	})
}

func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sensorID, ok := sensorParam(w, r, reqID)
	if !ok {
		return
	}
	st, err := s.backend.Status(r.Context(), sensorID)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, st)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sensorID, ok := sensorParam(w, r, reqID)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			&APIError{Code: ErrValidation, Message: "invalid JSON: " + err.Error()})
		return
	}
	kind, err := hal.ParseKind(req.Kind)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if req.Cookie < 0 {
		respondError(w, reqID, http.StatusBadRequest,
			&APIError{Code: ErrValidation, Message: "cookie must not be negative"})
		return
	}

	id, err := s.backend.Submit(r.Context(), sensorID, kind, req.Cookie)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	w.Header().Set("Location", "/api/v1/operations/"+id.String())
	respondCreated(w, reqID, submitResponse{ID: id})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sensorID, ok := sensorParam(w, r, reqID)
	if !ok {
		return
	}
	id, ok := idParam(w, r, reqID)
	if !ok {
		return
	}
	if err := s.backend.Cancel(sensorID, id); err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondAccepted(w, reqID)
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sensorID, ok := sensorParam(w, r, reqID)
	if !ok {
		return
	}
	cookie, err := strconv.Atoi(chi.URLParam(r, "cookie"))
	if err != nil || cookie <= 0 {
		respondError(w, reqID, http.StatusBadRequest,
			&APIError{Code: ErrValidation, Message: "cookie must be a positive integer"})
		return
	}
	if err := s.backend.PromoteCookie(sensorID, cookie); err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondAccepted(w, reqID)
}

// handleSetHardware replaces both hardware switches of a sensor.
func (s *Server) handleSetHardware(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sensorID, ok := sensorParam(w, r, reqID)
	if !ok {
		return
	}

	var req service.HardwareState
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			&APIError{Code: ErrValidation, Message: "invalid JSON: " + err.Error()})
		return
	}
	hw, err := s.backend.SetHardware(r.Context(), sensorID, req)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, hw)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sensorID, ok := sensorParam(w, r, reqID)
	if !ok {
		return
	}
	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxJournalLimit {
			respondError(w, reqID, http.StatusBadRequest,
				&APIError{Code: ErrValidation, Message: "limit must be between 1 and " + strconv.Itoa(maxJournalLimit)})
			return
		}
		limit = n
	}

	recs, err := s.backend.History(r.Context(), sensorID, limit)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, recs)
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id, ok := idParam(w, r, reqID)
	if !ok {
		return
	}
	op, err := s.backend.Operation(r.Context(), id)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, op)
}

func sensorParam(w http.ResponseWriter, r *http.Request, reqID string) (int, bool) {
	raw := chi.URLParam(r, "sensor")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		respondError(w, reqID, http.StatusBadRequest,
			&APIError{Code: ErrValidation, Message: "invalid sensor id '" + raw + "'"})
		return 0, false
	}
	return id, true
}

func idParam(w http.ResponseWriter, r *http.Request, reqID string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			&APIError{Code: ErrValidation, Message: "invalid operation id '" + raw + "'"})
		return uuid.Nil, false
	}
	return id, true
}
