package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/flow"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/patients"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/report"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/store"
)

type Handler struct {
	svc      *booking.Service
	sessions flow.SessionStore
	uploader report.Uploader
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// New builds the HTTP handlers. uploader may be nil, in which case reports are only
// streamed back to the caller.
func New(svc *booking.Service, sessions flow.SessionStore, uploader report.Uploader, logger *slog.Logger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Handler{
		svc:      svc,
		sessions: sessions,
		uploader: uploader,
		logger:   logger,
		validate: v,
		now:      time.Now,
	}
}

type directoryResponse struct {
	Doctors   []store.Doctor `json:"doctors"`
	Locations []string       `json:"locations"`
}

func (h *Handler) Directory(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.svc.Directory(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	seen := map[string]bool{}
	locations := []string{}
	for _, d := range doctors {
		if !seen[d.Location] {
			seen[d.Location] = true
			locations = append(locations, d.Location)
		}
	}
	if doctors == nil {
		doctors = []store.Doctor{}
	}
	httpx.WriteJSON(w, http.StatusOK, directoryResponse{Doctors: doctors, Locations: locations})
}

type lookupRequest struct {
	FullName string `json:"full_name" validate:"required"`
	DOB      string `json:"dob" validate:"required,datetime=2006-01-02"`
	Doctor   string `json:"doctor"`
	Location string `json:"location"`
}

func (h *Handler) LookupPatient(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		badRequest(w, r, err)
		return
	}
	res, err := h.svc.LookupPatient(r.Context(), patients.LookupRequest{
		FullName: req.FullName,
		DOB:      req.DOB,
		Doctor:   req.Doctor,
		Location: req.Location,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// Slots answers GET /slots?doctor=&location=&date=&duration_minutes=&fallback=.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sel := slots.Selector{
		Doctor:   strings.TrimSpace(q.Get("doctor")),
		Location: strings.TrimSpace(q.Get("location")),
		Date:     strings.TrimSpace(q.Get("date")),
	}
	if err := h.validate.Struct(sel); err != nil {
		badRequest(w, r, err)
		return
	}
	duration, err := strconv.Atoi(q.Get("duration_minutes"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_input", "duration_minutes must be an integer")
		return
	}
	fallback := false
	if raw := q.Get("fallback"); raw != "" {
		if fallback, err = strconv.ParseBool(raw); err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_input", "fallback must be a boolean")
			return
		}
	}

	res, err := h.svc.FindWindows(r.Context(), sel, duration, fallback)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if res.Windows == nil {
		res.Windows = []slots.Window{}
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

type createAppointmentRequest struct {
	slots.Selector
	StartTime slots.Clock     `json:"start_time"`
	EndTime   slots.Clock     `json:"end_time"`
	Patient   model.Patient   `json:"patient"`
	Insurance model.Insurance `json:"insurance"`
	Email     string          `json:"email" validate:"omitempty,email"`
	Phone     string          `json:"phone"`
	IfVersion string          `json:"if_version"`
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		badRequest(w, r, err)
		return
	}
	appt, err := h.svc.Book(r.Context(), booking.BookRequest{
		Selector:  req.Selector,
		Window:    slots.Window{Start: req.StartTime, End: req.EndTime},
		Patient:   req.Patient,
		Insurance: req.Insurance,
		Email:     req.Email,
		Phone:     req.Phone,
		IfVersion: req.IfVersion,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appt)
}

type listResponse struct {
	Appointments []model.Appointment `json:"appointments"`
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_input", "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	appts, err := h.svc.List(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Appointments: appts})
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

type confirmRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
}

// Confirm accepts an empty body; a contact given here overrides the one used at booking.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		badRequest(w, r, err)
		return
	}
	appt, err := h.svc.Confirm(r.Context(), chi.URLParam(r, "id"), booking.Contact{Email: req.Email, Phone: req.Phone})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *Handler) RequestForms(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.RequestForms(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"appointment_id": appt.ID, "email": appt.Email})
}

type remindersResponse struct {
	AppointmentID string           `json:"appointment_id"`
	Reminders     []model.Reminder `json:"reminders"`
}

func (h *Handler) ScheduleReminders(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reminders, err := h.svc.ScheduleReminders(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, remindersResponse{AppointmentID: id, Reminders: reminders})
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := flow.NewSession(uuid.NewString(), h.now().UTC())
	if err := h.sessions.Put(r.Context(), s); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, s)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

type advanceRequest struct {
	Input map[string]string `json:"input"`
}

// AdvanceSession merges the input and moves one step. A refused advance is still saved so
// the collected values and the reason survive; it is answered with 422 and the session.
func (h *Handler) AdvanceSession(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, r, err)
		return
	}
	ctx := r.Context()
	s, err := h.sessions.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	next, advErr := s.Advance(req.Input, h.now().UTC())
	if advErr != nil && !errors.Is(advErr, flow.ErrMissingFields) {
		h.fail(w, r, advErr)
		return
	}
	if err := h.sessions.Put(ctx, next); err != nil {
		h.fail(w, r, err)
		return
	}
	if advErr != nil {
		httpx.WriteJSON(w, http.StatusUnprocessableEntity, next)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, next)
}

// AdminReport streams the xlsx export and, when an uploader is configured, archives a copy.
func (h *Handler) AdminReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appts, reminders, err := h.svc.ReportData(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body, err := report.Bytes(appts, reminders)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	name := report.FileName(h.now())
	if h.uploader != nil {
		loc, err := h.uploader.Upload(ctx, name, body)
		if err != nil {
			h.logger.Warn("report archive failed", "file", name, "err", err)
		} else {
			w.Header().Set("X-Report-Location", loc)
		}
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
