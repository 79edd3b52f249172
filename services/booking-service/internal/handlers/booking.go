package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

// WallClockLayout is the minute-precision wall-clock form used for every
// instant on the wire. Values carry no zone; they are the provider's local time.
const WallClockLayout = "2006-01-02T15:04"

// Lifecycle is the booking state machine as the HTTP edge sees it.
type Lifecycle interface {
	Book(ctx context.Context, in booking.Intent) (model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	ListDay(ctx context.Context, providerID string, day time.Time) ([]model.Appointment, error)
	Confirm(ctx context.Context, id, paymentReference string) (model.Appointment, error)
	Complete(ctx context.Context, id string, actualEnd *time.Time) (lifecycle.CompleteResult, error)
	Cancel(ctx context.Context, id string, cancelledAt *time.Time, reason model.CancelReason) (lifecycle.CancelResult, error)
}

type BookingHandler struct {
	svc    Lifecycle
	logger *slog.Logger
}

func NewBookingHandler(svc Lifecycle, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type createBookingRequest struct {
	ProviderID       string          `json:"provider_id"`
	StaffID          string          `json:"staff_id"`
	ClientID         string          `json:"client_id"`
	ClientPhone      string          `json:"client_phone"`
	ServiceID        string          `json:"service_id"`
	Date             string          `json:"date"`
	Time             string          `json:"time"`
	DurationMinutes  int             `json:"duration_minutes"`
	ServicePrice     decimal.Decimal `json:"service_price"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference"`
	Paid             bool            `json:"paid"`
}

type bookingResponse struct {
	BookingID             string `json:"booking_id"`
	ProviderID            string `json:"provider_id"`
	StaffID               string `json:"staff_id,omitempty"`
	ClientID              string `json:"client_id"`
	ServiceID             string `json:"service_id"`
	TokenNumber           int    `json:"token_number"`
	Status                string `json:"status"`
	PaymentStatus         string `json:"payment_status"`
	ScheduledStart        string `json:"scheduled_start"`
	ScheduledEnd          string `json:"scheduled_end"`
	ActualEnd             string `json:"actual_end,omitempty"`
	NeedsManualReschedule bool   `json:"needs_manual_reschedule,omitempty"`
	CancelledAt           string `json:"cancelled_at,omitempty"`
	CancelReason          string `json:"cancel_reason,omitempty"`
	ServicePrice          string `json:"service_price"`
	PlatformFee           string `json:"platform_fee"`
	Replayed              bool   `json:"replayed,omitempty"`
}

func toBookingResponse(a model.Appointment) bookingResponse {
	resp := bookingResponse{
		BookingID:             a.ID,
		ProviderID:            a.ProviderID,
		ClientID:              a.ClientID,
		ServiceID:             a.ServiceID,
		TokenNumber:           a.TokenNumber,
		Status:                string(a.Status),
		PaymentStatus:         string(a.PaymentStatus),
		ScheduledStart:        a.ScheduledStart.Format(WallClockLayout),
		ScheduledEnd:          a.ScheduledEnd.Format(WallClockLayout),
		NeedsManualReschedule: a.NeedsManualReschedule,
		CancelReason:          a.CancelReason,
		ServicePrice:          a.ServicePrice.StringFixed(2),
		PlatformFee:           a.PlatformFee.StringFixed(2),
	}
	if a.StaffID != nil {
		resp.StaffID = *a.StaffID
	}
	if a.ActualEnd != nil {
		resp.ActualEnd = a.ActualEnd.Format(WallClockLayout)
	}
	if a.CancelledAt != nil {
		resp.CancelledAt = a.CancelledAt.Format(WallClockLayout)
	}
	return resp
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body", "")
		return
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ProviderID == "" || req.ClientID == "" || req.ServiceID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "provider_id, client_id and service_id required", "")
		return
	}

	start, err := parseWallClock(strings.TrimSpace(req.Date) + "T" + strings.TrimSpace(req.Time))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD and time HH:MM", "")
		return
	}

	appt, err := h.svc.Book(r.Context(), booking.Intent{
		ProviderID:       req.ProviderID,
		StaffID:          strings.TrimSpace(req.StaffID),
		ClientID:         req.ClientID,
		ClientPhone:      strings.TrimSpace(req.ClientPhone),
		ServiceID:        req.ServiceID,
		Start:            start,
		DurationMinutes:  req.DurationMinutes,
		ServicePrice:     req.ServicePrice,
		PlatformFee:      req.PlatformFee,
		PaymentMethod:    model.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		IdempotencyKey:   strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		Paid:             req.Paid,
	})
	if errors.Is(err, booking.ErrReplayed) {
		resp := toBookingResponse(appt)
		resp.Replayed = true
		httpx.WriteJSON(w, http.StatusOK, resp)
		return
	}
	if err != nil {
		h.writeError(w, "create booking", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toBookingResponse(appt))
}

type confirmRequest struct {
	BookingID        string `json:"booking_id"`
	PaymentReference string `json:"payment_reference"`
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body", "")
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "booking_id required", "")
		return
	}

	appt, err := h.svc.Confirm(r.Context(), req.BookingID, strings.TrimSpace(req.PaymentReference))
	if err != nil {
		h.writeError(w, "confirm booking", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBookingResponse(appt))
}

type completeRequest struct {
	BookingID string `json:"booking_id"`
	ActualEnd string `json:"actual_end"`
}

type completeResponse struct {
	Booking         bookingResponse `json:"booking"`
	OvertimeMinutes int             `json:"overtime_minutes"`
	Cascaded        []string        `json:"cascaded"`
	Flagged         []string        `json:"flagged"`
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body", "")
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "booking_id required", "")
		return
	}
	actualEnd, err := optionalWallClock(req.ActualEnd)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "actual_end must be YYYY-MM-DDTHH:MM", "")
		return
	}

	res, err := h.svc.Complete(r.Context(), req.BookingID, actualEnd)
	if err != nil {
		h.writeError(w, "complete booking", err)
		return
	}
	resp := completeResponse{
		Booking:         toBookingResponse(res.Appointment),
		OvertimeMinutes: res.OvertimeMinutes,
		Cascaded:        nonNil(res.Cascaded),
		Flagged:         nonNil(res.Flagged),
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type cancelRequest struct {
	BookingID   string `json:"booking_id"`
	CancelledAt string `json:"cancelled_at"`
	Reason      string `json:"reason"`
}

type refundView struct {
	Status    string `json:"status"`
	RefundID  string `json:"refund_id,omitempty"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

type cancelResponse struct {
	Booking     bookingResponse `json:"booking"`
	Eligible    bool            `json:"eligible"`
	HoursNotice string          `json:"hours_notice"`
	Amount      string          `json:"amount,omitempty"`
	Refund      *refundView     `json:"refund,omitempty"`
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body", "")
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "booking_id required", "")
		return
	}
	reason := model.CancelReason(strings.TrimSpace(req.Reason))
	if reason == "" {
		reason = model.ReasonClientCancelled
	}
	cancelledAt, err := optionalWallClock(req.CancelledAt)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "cancelled_at must be YYYY-MM-DDTHH:MM", "")
		return
	}

	res, err := h.svc.Cancel(r.Context(), req.BookingID, cancelledAt, reason)
	if err != nil {
		h.writeError(w, "cancel booking", err)
		return
	}
	resp := cancelResponse{
		Booking:     toBookingResponse(res.Appointment),
		Eligible:    res.Decision.Eligible,
		HoursNotice: decimal.NewFromFloat(res.Decision.HoursNotice).StringFixed(2),
	}
	if res.Decision.Amount != nil {
		resp.Amount = res.Decision.Amount.StringFixed(2)
	}
	if res.Refund != nil {
		resp.Refund = &refundView{
			Status:    string(res.Refund.Status),
			RefundID:  res.Refund.RefundID,
			Attempts:  res.Refund.Attempts,
			LastError: res.Refund.LastError,
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Bookings serves GET /api/v1/bookings: a single booking by booking_id, or
// the provider's day by provider_id and date.
func (h *BookingHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		h.Create(w, r)
		return
	}
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	q := r.URL.Query()
	if id := strings.TrimSpace(q.Get("booking_id")); id != "" {
		appt, err := h.svc.Get(r.Context(), id)
		if err != nil {
			h.writeError(w, "get booking", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toBookingResponse(appt))
		return
	}

	providerID := strings.TrimSpace(q.Get("provider_id"))
	if providerID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "provider_id or booking_id required", "")
		return
	}
	day, err := calendar.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", "")
		return
	}
	appts, err := h.svc.ListDay(r.Context(), providerID, day)
	if err != nil {
		h.writeError(w, "list bookings", err)
		return
	}
	items := make([]bookingResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toBookingResponse(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"bookings": items})
}

func parseWallClock(s string) (time.Time, error) {
	return time.ParseInLocation(WallClockLayout, s, time.UTC)
}

func optionalWallClock(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := parseWallClock(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
