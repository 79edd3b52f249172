package storage

import (
	"context"
	"sort"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

func (s *MemoryStore) InsertRefund(_ context.Context, rec model.RefundRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refunds[rec.BookingID]; ok {
		return false, nil
	}
	rec.UpdatedAt = s.now()
	s.refunds[rec.BookingID] = rec
	return true, nil
}

func (s *MemoryStore) GetRefund(_ context.Context, bookingID string) (model.RefundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.refunds[bookingID]
	if !ok {
		return model.RefundRecord{}, model.ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) MarkRefund(_ context.Context, bookingID string, outcome RefundOutcome) (model.RefundRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refunds[bookingID]
	if !ok {
		return model.RefundRecord{}, model.ErrNotFound
	}
	rec.Status = outcome.Status
	if outcome.RefundID != "" {
		rec.RefundID = outcome.RefundID
	}
	rec.LastError = outcome.LastError
	rec.Attempts++
	rec.UpdatedAt = s.now()
	s.refunds[bookingID] = rec
	return rec, nil
}

func (s *MemoryStore) ListRefunds(_ context.Context, status model.SettlementStatus, limit int) ([]model.RefundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.RefundRecord
	for _, rec := range s.refunds {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return truncate(out, limit), nil
}

func (s *MemoryStore) InsertPayout(_ context.Context, rec model.PayoutRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payouts[rec.BookingID]; ok {
		return false, nil
	}
	rec.UpdatedAt = s.now()
	s.payouts[rec.BookingID] = rec
	return true, nil
}

func (s *MemoryStore) GetPayout(_ context.Context, bookingID string) (model.PayoutRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.payouts[bookingID]
	if !ok {
		return model.PayoutRecord{}, model.ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) MarkPayout(_ context.Context, bookingID string, outcome PayoutOutcome) (model.PayoutRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.payouts[bookingID]
	if !ok {
		return model.PayoutRecord{}, model.ErrNotFound
	}
	rec.Status = outcome.Status
	if outcome.PayoutID != "" {
		rec.PayoutID = outcome.PayoutID
	}
	if outcome.TransactionReference != "" {
		rec.TransactionReference = outcome.TransactionReference
	}
	rec.LastError = outcome.LastError
	rec.Attempts++
	rec.UpdatedAt = s.now()
	s.payouts[bookingID] = rec
	return rec, nil
}

// RecordPayoutSent stores a payout settled by the primary payment path,
// overwriting any pending or failed backup attempt.
func (s *MemoryStore) RecordPayoutSent(_ context.Context, rec model.PayoutRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.payouts[rec.BookingID]; ok {
		if existing.Status == model.SettlementSucceeded {
			return nil
		}
		rec.Attempts = existing.Attempts
	}
	rec.Status = model.SettlementSucceeded
	rec.LastError = ""
	rec.UpdatedAt = s.now()
	s.payouts[rec.BookingID] = rec
	return nil
}

func (s *MemoryStore) ListPayouts(_ context.Context, status model.SettlementStatus, limit int) ([]model.PayoutRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.PayoutRecord
	for _, rec := range s.payouts {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return truncate(out, limit), nil
}

// Record marks an inbound event as seen. It returns false for duplicates.
func (s *MemoryStore) Record(_ context.Context, eventID, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbox[eventID]; ok {
		return false, nil
	}
	s.inbox[eventID] = struct{}{}
	return true, nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func (s *MemoryStore) Forget(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inbox, eventID)
	return nil
}
