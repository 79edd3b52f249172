package storage

import (
	"context"

	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// RosterRepository reads provider profiles, staff and business hours. The
// core never writes these tables.
type RosterRepository struct {
	pool *db.Pool
}

func NewRosterRepository(pool *db.Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

func (r *RosterRepository) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	var p model.Provider
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, bank_account
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Phone, &p.BankAccount)
	if IsNotFound(err) {
		return model.Provider{}, model.ErrProviderNotFound
	}
	return p, err
}

func (r *RosterRepository) ListStaff(ctx context.Context, providerID string) ([]model.StaffMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, name, is_active, specialties
		FROM staff_members
		WHERE provider_id = $1
		ORDER BY id
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []model.StaffMember
	for rows.Next() {
		var s model.StaffMember
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.Name, &s.IsActive, &s.Specialties); err != nil {
			return nil, err
		}
		staff = append(staff, s)
	}
	return staff, rows.Err()
}

// ScheduleDay returns the provider's hours for weekday (0 = Sunday). The bool
// is false when no row exists.
func (r *RosterRepository) ScheduleDay(ctx context.Context, providerID string, weekday int) (model.ProviderScheduleDay, bool, error) {
	var d model.ProviderScheduleDay
	err := r.pool.QueryRow(ctx, `
		SELECT day_of_week, is_available, start_time, end_time, has_break, break_start, break_end
		FROM provider_schedule_days
		WHERE provider_id = $1 AND day_of_week = $2
	`, providerID, weekday).Scan(&d.DayOfWeek, &d.IsAvailable, &d.StartTime, &d.EndTime, &d.HasBreak, &d.BreakStart, &d.BreakEnd)
	if IsNotFound(err) {
		return model.ProviderScheduleDay{}, false, nil
	}
	if err != nil {
		return model.ProviderScheduleDay{}, false, err
	}
	return d, true, nil
}
