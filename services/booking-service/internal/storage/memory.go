package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
)

// MemoryStore keeps everything in process. Commits and moves for one provider
// are serialised by a per-provider mutex, which is what makes the conflict
// check and the insert a single atomic step.
type MemoryStore struct {
	mu        sync.RWMutex
	providers map[string]model.Provider
	staff     map[string][]model.StaffMember
	schedule  map[string]map[int]model.ProviderScheduleDay
	appts     map[string]model.Appointment
	refunds   map[string]model.RefundRecord
	payouts   map[string]model.PayoutRecord
	inbox     map[string]struct{}
	events    []outbox.Event

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		providers: map[string]model.Provider{},
		staff:     map[string][]model.StaffMember{},
		schedule:  map[string]map[int]model.ProviderScheduleDay{},
		appts:     map[string]model.Appointment{},
		refunds:   map[string]model.RefundRecord{},
		payouts:   map[string]model.PayoutRecord{},
		inbox:     map[string]struct{}{},
		locks:     map[string]*sync.Mutex{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) providerLock(providerID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[providerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[providerID] = l
	}
	return l
}

// PutProvider seeds a provider with its roster and weekly schedule.
func (s *MemoryStore) PutProvider(p model.Provider, staff []model.StaffMember, days []model.ProviderScheduleDay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
	s.staff[p.ID] = append([]model.StaffMember(nil), staff...)
	byDay := map[int]model.ProviderScheduleDay{}
	for _, d := range days {
		byDay[d.DayOfWeek] = d
	}
	s.schedule[p.ID] = byDay
}

func (s *MemoryStore) GetProvider(_ context.Context, id string) (model.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return model.Provider{}, fmt.Errorf("provider %s: %w", id, model.ErrProviderNotFound)
	}
	return p, nil
}

func (s *MemoryStore) ListStaff(_ context.Context, providerID string) ([]model.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.StaffMember(nil), s.staff[providerID]...), nil
}

func (s *MemoryStore) ScheduleDay(_ context.Context, providerID string, weekday int) (model.ProviderScheduleDay, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.schedule[providerID][weekday]
	return d, ok, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) ListProviderDay(_ context.Context, providerID string, day time.Time) ([]model.Appointment, error) {
	start, end := dayBounds(day)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlappingLocked(providerID, start, end), nil
}

func (s *MemoryStore) overlappingLocked(providerID string, start, end time.Time) []model.Appointment {
	var out []model.Appointment
	for _, a := range s.appts {
		if a.ProviderID != providerID || !a.Blocking() {
			continue
		}
		if a.ScheduledStart.Before(end) && start.Before(a.EffectiveEnd()) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledStart.Before(out[j].ScheduledStart) })
	return out
}

func (s *MemoryStore) CommitIfFree(_ context.Context, appt *model.Appointment, rule booking.Rule, events EventsFunc) error {
	lock := s.providerLock(appt.ProviderID)
	lock.Lock()
	defer lock.Unlock()

	// Update does not take the provider lock, so the check and the write
	// share one hold of mu.
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.appts[appt.ID]; exists {
		return ErrDuplicate
	}
	if appt.IdempotencyKey != "" {
		for _, a := range s.appts {
			if a.ProviderID == appt.ProviderID && a.IdempotencyKey == appt.IdempotencyKey {
				*appt = a
				return booking.ErrReplayed
			}
		}
	}
	existing := s.overlappingLocked(appt.ProviderID, appt.ScheduledStart, appt.ScheduledEnd)
	if err := booking.FindConflict(*appt, existing, rule); err != nil {
		return err
	}

	dayStart, dayEnd := dayBounds(appt.ScheduledStart)
	token := 0
	for _, a := range s.appts {
		if a.ProviderID == appt.ProviderID && !a.ScheduledStart.Before(dayStart) && a.ScheduledStart.Before(dayEnd) && a.TokenNumber > token {
			token = a.TokenNumber
		}
	}

	now := s.now()
	appt.TokenNumber = token + 1
	appt.Version = 1
	appt.CreatedAt = now
	appt.UpdatedAt = now

	evts, err := buildEvents(events, *appt)
	if err != nil {
		return err
	}
	s.appts[appt.ID] = *appt
	s.events = append(s.events, evts...)
	return nil
}

func (s *MemoryStore) MoveIfFree(_ context.Context, id string, expectVersion int, newStart time.Time, rule booking.Rule, events EventsFunc) (model.Appointment, error) {
	s.mu.RLock()
	current, ok := s.appts[id]
	s.mu.RUnlock()
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}

	lock := s.providerLock(current.ProviderID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	current = s.appts[id]
	if current.Version != expectVersion {
		return model.Appointment{}, model.ErrStaleVersion
	}
	if current.Status.Terminal() {
		return model.Appointment{}, &model.TransitionError{From: current.Status, To: current.Status}
	}

	moved := current
	moved.ScheduledStart = newStart
	moved.ScheduledEnd = model.EndFor(newStart, current.DurationMinutes)

	existing := s.overlappingLocked(moved.ProviderID, moved.ScheduledStart, moved.ScheduledEnd)
	if err := booking.FindConflict(moved, existing, rule); err != nil {
		return model.Appointment{}, err
	}

	moved.NeedsManualReschedule = false
	moved.Version++
	moved.UpdatedAt = s.now()
	evts, err := buildEvents(events, moved)
	if err != nil {
		return model.Appointment{}, err
	}
	s.appts[id] = moved
	s.events = append(s.events, evts...)
	return moved, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, guard GuardFunc, mutate MutateFunc, events EventsFunc) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	if guard != nil {
		if err := guard(current); err != nil {
			return model.Appointment{}, err
		}
	}
	next := current
	if mutate != nil {
		mutate(&next)
	}
	keepSchedule(&next, current)
	next.Version = current.Version + 1
	next.UpdatedAt = s.now()

	evts, err := buildEvents(events, next)
	if err != nil {
		return model.Appointment{}, err
	}
	s.appts[id] = next
	s.events = append(s.events, evts...)
	return next, nil
}

func (s *MemoryStore) ListDueForCompletion(_ context.Context, cutoff time.Time, limit int) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.Status == model.StatusConfirmed && a.PaymentStatus == model.PaymentPaid && a.ScheduledEnd.Before(cutoff) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledEnd.Before(out[j].ScheduledEnd) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns a copy of every outbox event written so far.
func (s *MemoryStore) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]outbox.Event(nil), s.events...)
}

// All returns every stored appointment, cancelled ones included.
func (s *MemoryStore) All() []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Appointment, 0, len(s.appts))
	for _, a := range s.appts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledStart.Before(out[j].ScheduledStart) })
	return out
}
