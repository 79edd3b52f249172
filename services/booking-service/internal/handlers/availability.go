package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/calendar"
)

type Resolver interface {
	Resolve(ctx context.Context, providerID string, date time.Time, durationMinutes int) (availability.Grid, error)
}

type AvailabilityHandler struct {
	resolver Resolver
	logger   *slog.Logger
}

func NewAvailabilityHandler(resolver Resolver, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{resolver: resolver, logger: logger}
}

type slotItem struct {
	Time        string `json:"time"`
	StaffID     string `json:"staff_id"`
	IsAvailable bool   `json:"is_available"`
	IsBooked    bool   `json:"is_booked"`
	IsBreakTime bool   `json:"is_break_time"`
}

type staffItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type availabilityResponse struct {
	Date            string      `json:"date"`
	Staff           []staffItem `json:"staff"`
	Slots           []slotItem  `json:"slots"`
	AvailableTimes  []string    `json:"available_times"`
	SelectedStaffID string      `json:"selected_staff_id,omitempty"`
}

// Slots serves GET /api/v1/availability. With a time parameter the response
// also names the staff member to book when exactly one is free then.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	if providerID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "provider_id required", "")
		return
	}
	day, err := calendar.ParseDate(strings.TrimSpace(q.Get("date")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", "")
		return
	}
	duration, err := strconv.Atoi(strings.TrimSpace(q.Get("duration_minutes")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "duration_minutes must be an integer", "")
		return
	}

	grid, err := h.resolver.Resolve(r.Context(), providerID, day, duration)
	if err != nil {
		writeError(w, h.logger, "resolve availability", err)
		return
	}

	resp := availabilityResponse{
		Date:           grid.Date.Format(calendar.DateLayout),
		Staff:          make([]staffItem, 0, len(grid.StaffMembers)),
		Slots:          make([]slotItem, 0, len(grid.Slots)),
		AvailableTimes: []string{},
	}
	for _, s := range grid.StaffMembers {
		resp.Staff = append(resp.Staff, staffItem{ID: s.ID, Name: s.Name})
	}
	for _, s := range grid.Slots {
		resp.Slots = append(resp.Slots, slotItem{
			Time:        s.Time.Format(calendar.ClockLayout),
			StaffID:     s.StaffID,
			IsAvailable: s.IsAvailable,
			IsBooked:    s.IsBooked,
			IsBreakTime: s.IsBreakTime,
		})
	}
	for _, t := range grid.Available() {
		resp.AvailableTimes = append(resp.AvailableTimes, t.Format(calendar.ClockLayout))
	}

	if raw := strings.TrimSpace(q.Get("time")); raw != "" {
		minute, err := calendar.ParseClock(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "time must be HH:MM", "")
			return
		}
		if id, ok := grid.SoleAvailableStaff(calendar.At(day, minute)); ok {
			resp.SelectedStaffID = id
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
