package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lineup/internal/domain"
	"lineup/internal/ledger"
	"lineup/internal/models"
)

// statusForError maps the domain error taxonomy onto HTTP. Anything
// unrecognized is a 500; the handlers never leak raw SQL errors.
func statusForError(err error) int {
	var cutoff *domain.CutoffError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &cutoff),
		errors.Is(err, domain.ErrCutoffExceeded),
		errors.Is(err, domain.ErrSlotUnavailable),
		errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidState):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	code := statusForError(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, code, "internal error")
		return
	}

	var cutoff *domain.CutoffError
	if errors.As(err, &cutoff) {
		writeJSON(w, code, map[string]any{
			"error":    err.Error(),
			"deadline": cutoff.Deadline,
		})
		return
	}
	writeError(w, code, err.Error())
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	venueID := strings.TrimSpace(q.Get("venue_id"))
	if venueID == "" {
		writeError(w, http.StatusBadRequest, "venue_id is required")
		return
	}

	date, err := time.Parse("2006-01-02", strings.TrimSpace(q.Get("date")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	partySize, err := strconv.Atoi(strings.TrimSpace(q.Get("party_size")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "party_size is required")
		return
	}

	result, err := s.engine.ComputeAvailability(r.Context(), venueID, date, partySize)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	venueID := strings.TrimSpace(r.URL.Query().Get("venue_id"))
	if venueID == "" {
		venueID = s.registry.Venue().ID
	}

	resources, err := s.registry.ResourcesFor(venueID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

// POST /api/v1/resources/{id}/out-of-service
func (s *HTTPServer) handleResourceAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/resources/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "out-of-service" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	resourceID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}

	var body struct {
		OutOfService bool `json:"out_of_service"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.ledger.SetResourceOutOfService(r.Context(), resourceID, s.auth.Actor(r), body.OutOfService); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource_id": resourceID, "out_of_service": body.OutOfService})
}

func (s *HTTPServer) handleReservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createReservation(w, r)
	case http.MethodGet:
		s.listReservations(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createReservationRequest struct {
	VenueID         string    `json:"venue_id"`
	ResourceID      int64     `json:"resource_id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	PartySize       int       `json:"party_size"`
	GuestName       string    `json:"guest_name"`
	GuestPhone      string    `json:"guest_phone"`
	Source          string    `json:"source"`
}

func (s *HTTPServer) createReservation(w http.ResponseWriter, r *http.Request) {
	var body createReservationRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	actor := s.auth.Actor(r)
	if actor.ID == "" {
		writeError(w, http.StatusBadRequest, "actor header is required")
		return
	}

	reservation, err := s.ledger.Create(r.Context(), ledger.CreateRequest{
		VenueID:         body.VenueID,
		ResourceID:      body.ResourceID,
		Start:           body.Start,
		DurationMinutes: body.DurationMinutes,
		PartySize:       body.PartySize,
		OwnerID:         actor.ID,
		GuestName:       body.GuestName,
		GuestPhone:      body.GuestPhone,
		Source:          body.Source,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reservation)
}

func (s *HTTPServer) listReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerID := strings.TrimSpace(q.Get("owner_id"))
	actor := s.auth.Actor(r)
	if ownerID == "" {
		ownerID = actor.ID
	}
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	scope := strings.TrimSpace(q.Get("scope"))
	if scope == "" {
		scope = "active"
	}

	var (
		reservations []*models.Reservation
		err          error
	)
	switch scope {
	case "active":
		reservations, err = s.ledger.ListActive(r.Context(), ownerID, actor)
	case "past":
		limit := 20
		if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
			if n, perr := strconv.Atoi(raw); perr == nil && n > 0 {
				limit = n
			}
		}
		reservations, err = s.ledger.ListPast(r.Context(), ownerID, actor, limit)
	default:
		writeError(w, http.StatusBadRequest, "scope must be active or past")
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": reservations})
}

// POST /api/v1/reservations/{id}/{action}
func (s *HTTPServer) handleReservationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/reservations/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation id")
		return
	}

	actor := s.auth.Actor(r)

	switch parts[1] {
	case "cancel":
		var body struct {
			Reason string `json:"reason"`
		}
		_ = decodeBody(r, &body)
		err = s.ledger.Cancel(r.Context(), id, actor, body.Reason)
	case "arrive":
		err = s.ledger.MarkArrived(r.Context(), id, actor)
	case "complete":
		err = s.ledger.MarkCompleted(r.Context(), id, actor)
	case "no-show":
		err = s.ledger.MarkNoShow(r.Context(), id, actor)
	case "extend":
		s.extendReservation(w, r, id, actor)
		return
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservation_id": id, "action": parts[1]})
}

func (s *HTTPServer) extendReservation(w http.ResponseWriter, r *http.Request, id int64, actor ledger.Actor) {
	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := s.sweeper.RequestExtension(r.Context(), id, actor, body.Minutes)
	if err != nil {
		// A denied request is still a request the caller can inspect.
		if req != nil && errors.Is(err, domain.ErrSlotUnavailable) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":   err.Error(),
				"request": req,
			})
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": req})
}

func (s *HTTPServer) handleHolds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		ResourceID int64     `json:"resource_id"`
		Start      time.Time `json:"start"`
		End        time.Time `json:"end"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	actor := s.auth.Actor(r)
	if actor.ID == "" {
		writeError(w, http.StatusBadRequest, "actor header is required")
		return
	}

	hold, err := s.ledger.PlaceHold(r.Context(), body.ResourceID, body.Start, body.End, actor.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, hold)
}

// DELETE /api/v1/holds/{token}
func (s *HTTPServer) handleHoldRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := strings.TrimPrefix(r.URL.Path, "/api/v1/holds/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, http.StatusBadRequest, "hold token is required")
		return
	}

	if err := s.ledger.ReleaseHold(r.Context(), token); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
