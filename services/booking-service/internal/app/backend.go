package app

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/cascade"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/completion"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/settlement"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type BookingStore interface {
	booking.Store
	lifecycle.Store
	completion.Store
	cascade.Store
}

type SettlementStore interface {
	settlement.Store
	consumer.PayoutRecorder
}

// Backend is the persistence the service runs on: Postgres when a database
// is configured, the in-process store otherwise. Pool is nil for the latter.
type Backend struct {
	Bookings    BookingStore
	Roster      cascade.Roster
	Settlements SettlementStore
	Inbox       consumer.Inbox
	Pool        *db.Pool
}

func Postgres(pool *db.Pool) Backend {
	return Backend{
		Bookings:    storage.NewBookingRepository(pool, outbox.NewRepository()),
		Roster:      storage.NewRosterRepository(pool),
		Settlements: storage.NewSettlementRepository(pool),
		Inbox:       inbox.NewRepository(pool),
		Pool:        pool,
	}
}

// Memory returns an in-process backend, optionally seeded with a demo
// provider for local development.
func Memory(seed bool) Backend {
	store := storage.NewMemoryStore()
	if seed {
		SeedDemoProvider(store)
	}
	return Backend{
		Bookings:    store,
		Roster:      store,
		Settlements: store,
		Inbox:       store,
	}
}

// Leader elects the sweeping instance through a session advisory lock when
// several replicas share a database.
func (b Backend) Leader() completion.Leader {
	if b.Pool == nil {
		return completion.AlwaysLeader
	}
	const sweepLockKey = 7310
	return func(ctx context.Context) (bool, func(), error) {
		return b.Pool.TryAdvisoryLock(ctx, sweepLockKey)
	}
}

func SeedDemoProvider(store *storage.MemoryStore) {
	days := make([]model.ProviderScheduleDay, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		days = append(days, model.ProviderScheduleDay{
			DayOfWeek:   int(d),
			IsAvailable: d != time.Sunday,
			StartTime:   "09:00",
			EndTime:     "18:00",
			HasBreak:    true,
			BreakStart:  "13:00",
			BreakEnd:    "14:00",
		})
	}
	store.PutProvider(
		model.Provider{ID: "demo", Name: "Demo Salon", BankAccount: "acct_demo"},
		[]model.StaffMember{
			{ID: "demo-s1", ProviderID: "demo", Name: "Stylist One", IsActive: true},
			{ID: "demo-s2", ProviderID: "demo", Name: "Stylist Two", IsActive: true},
		},
		days,
	)
}
