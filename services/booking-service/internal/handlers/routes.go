package handlers

import "net/http"

func Register(mux *http.ServeMux, bookings *BookingHandler, slots *AvailabilityHandler, settlements *SettlementHandler) {
	mux.HandleFunc("/api/v1/availability", slots.Slots)
	mux.HandleFunc("/api/v1/bookings", bookings.Bookings)
	mux.HandleFunc("/api/v1/bookings/confirm", bookings.Confirm)
	mux.HandleFunc("/api/v1/bookings/complete", bookings.Complete)
	mux.HandleFunc("/api/v1/bookings/cancel", bookings.Cancel)
	mux.HandleFunc("/api/v1/settlements/failed", settlements.Failed)
}
