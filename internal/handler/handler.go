// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/felicity-portal/enrollment/internal/model"
	"github.com/felicity-portal/enrollment/internal/service"
	"github.com/go-chi/chi/v5"
)

// Handler holds all HTTP handlers for the enrollment API.
type Handler struct {
	svc *service.Service
}

// New constructs a Handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeDomainError maps service errors onto HTTP statuses. Domain-rule
// violations become 409, authorization failures 403, absent resources 404,
// malformed input 400, everything else a generic 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrUnauthorized):
		writeError(w, http.StatusForbidden, model.ErrUnauthorized.Error())
	case errors.Is(err, model.ErrEventNotOpen),
		errors.Is(err, model.ErrDeadlinePassed),
		errors.Is(err, model.ErrEventFull),
		errors.Is(err, model.ErrIneligible),
		errors.Is(err, model.ErrDuplicateRegistration),
		errors.Is(err, model.ErrWrongEventType),
		errors.Is(err, model.ErrItemNotFound),
		errors.Is(err, model.ErrInsufficientStock),
		errors.Is(err, model.ErrPurchaseLimitExceeded),
		errors.Is(err, model.ErrNoProofAttached),
		errors.Is(err, model.ErrAlreadyApproved),
		errors.Is(err, model.ErrAlreadyCancelled),
		errors.Is(err, model.ErrStatusMismatch),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrEventNotEditable),
		errors.Is(err, model.ErrFormLocked):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func requireParticipant(w http.ResponseWriter, r *http.Request) (service.Participant, bool) {
	p, ok := participantFrom(r)
	if !ok {
		writeError(w, http.StatusForbidden, "participant identity required")
	}
	return p, ok
}

func requireOrganizer(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := organizerFrom(r)
	if !ok {
		writeError(w, http.StatusForbidden, "organizer identity required")
	}
	return id, ok
}

// ─── Event handlers ───────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}
	var in service.CreateEventInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	event, err := h.svc.CreateEvent(r.Context(), organizerID, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	page, err := h.svc.ListEvents(r.Context(), model.EventFilter{
		Status:      model.EventStatus(q.Get("status")),
		Type:        model.EventType(q.Get("type")),
		OrganizerID: q.Get("organizer_id"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if page.Events == nil {
		page.Events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, page)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// UpdateEvent handles PUT /events/{id}
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}
	var in service.UpdateEventInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	event, err := h.svc.UpdateEvent(r.Context(), organizerID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// PublishEvent handles POST /events/{id}/publish
func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}
	event, err := h.svc.PublishEvent(r.Context(), organizerID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// UpdateEventStatus handles PATCH /events/{id}/status
func (h *Handler) UpdateEventStatus(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}
	var in struct {
		Status model.EventStatus `json:"status"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	event, err := h.svc.UpdateEventStatus(r.Context(), organizerID, chi.URLParam(r, "id"), in.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ListEventRegistrations handles GET /events/{id}/registrations
func (h *Handler) ListEventRegistrations(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}
	regs, err := h.svc.ListEventRegistrations(r.Context(), organizerID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// ─── Registration handlers ────────────────────────────────────────────────────

// Register handles POST /events/{id}/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	p, ok := requireParticipant(w, r)
	if !ok {
		return
	}
	var in struct {
		FormResponses map[string]any `json:"form_responses"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	reg, err := h.svc.Register(r.Context(), p, chi.URLParam(r, "id"), in.FormResponses)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// Purchase handles POST /events/{id}/purchase
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	p, ok := requireParticipant(w, r)
	if !ok {
		return
	}
	var in struct {
		Lines []model.PurchaseLine `json:"lines"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	reg, err := h.svc.Purchase(r.Context(), p, chi.URLParam(r, "id"), in.Lines)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// MyRegistrations handles GET /registrations/mine
func (h *Handler) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	p, ok := requireParticipant(w, r)
	if !ok {
		return
	}
	out, err := h.svc.MyRegistrations(r.Context(), p.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// CancelRegistration handles POST /registrations/{id}/cancel
func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	p, ok := requireParticipant(w, r)
	if !ok {
		return
	}
	if err := h.svc.CancelRegistration(r.Context(), p.ID, chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Ticket handles GET /registrations/{id}/ticket
func (h *Handler) Ticket(w http.ResponseWriter, r *http.Request) {
	p, ok := requireParticipant(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Ticket(r.Context(), p.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UploadPaymentProof handles POST /registrations/{id}/payment-proof
func (h *Handler) UploadPaymentProof(w http.ResponseWriter, r *http.Request) {
	p, ok := requireParticipant(w, r)
	if !ok {
		return
	}
	var in struct {
		PaymentProofRef string `json:"payment_proof_ref"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.svc.UploadPaymentProof(r.Context(), p.ID, chi.URLParam(r, "id"), in.PaymentProofRef); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pending approval"})
}

// ApproveOrder handles POST /registrations/{id}/approve
func (h *Handler) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	h.decideOrder(w, r, true)
}

// RejectOrder handles POST /registrations/{id}/reject
func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	h.decideOrder(w, r, false)
}

func (h *Handler) decideOrder(w http.ResponseWriter, r *http.Request, approve bool) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}
	var in struct {
		Note string `json:"note"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	var (
		reg *model.Registration
		err error
	)
	if approve {
		reg, err = h.svc.ApproveOrder(r.Context(), organizerID, id, in.Note)
	} else {
		reg, err = h.svc.RejectOrder(r.Context(), organizerID, id, in.Note)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// PendingPayments handles GET /payments/pending
func (h *Handler) PendingPayments(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}
	regs, err := h.svc.PendingPayments(r.Context(), organizerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// CheckIn handles POST /checkin
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}
	var ref service.CheckInRef
	if err := decodeJSON(r, &ref); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	result, err := h.svc.CheckIn(r.Context(), organizerID, ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
