package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/shopspring/decimal"
)

const appointmentColumns = `id::text, provider_id, staff_id, client_id, client_phone, service_id,
	scheduled_start, duration_minutes, scheduled_end, actual_end, status,
	payment_status, payment_method, payment_reference, COALESCE(idempotency_key, ''), token_number,
	service_price::text, platform_fee::text, completion_source, needs_manual_reschedule,
	cancelled_at, cancel_reason, version, created_at, updated_at`

type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

func (r *BookingRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if IsNotFound(err) {
		return model.Appointment{}, model.ErrNotFound
	}
	return appt, err
}

// ListProviderDay returns the non-cancelled bookings of a provider that
// overlap the calendar day of day.
func (r *BookingRepository) ListProviderDay(ctx context.Context, providerID string, day time.Time) ([]model.Appointment, error) {
	start, end := dayBounds(day)
	return r.listOverlapping(ctx, r.pool, providerID, start, end)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *BookingRepository) listOverlapping(ctx context.Context, q querier, providerID string, start, end time.Time) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
			AND status <> 'cancelled'
			AND scheduled_start < $3
			AND COALESCE(actual_end, scheduled_end) > $2
		ORDER BY scheduled_start ASC
	`, providerID, start, end)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// CommitIfFree inserts appt when it conflicts with nothing the provider
// already holds. The per-provider advisory lock serialises the capacity check
// with the insert; the exclusion constraint backs up the staff rule.
func (r *BookingRepository) CommitIfFree(ctx context.Context, appt *model.Appointment, rule booking.Rule, events EventsFunc) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := db.AdvisoryXactLock(ctx, tx, "provider:"+appt.ProviderID); err != nil {
			return err
		}
		existing, err := r.listOverlapping(ctx, tx, appt.ProviderID, appt.ScheduledStart, appt.ScheduledEnd)
		if err != nil {
			return err
		}
		if appt.IdempotencyKey != "" {
			prior, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE provider_id = $1 AND idempotency_key = $2`, appt.ProviderID, appt.IdempotencyKey))
			if err == nil {
				*appt = prior
				return booking.ErrReplayed
			}
			if !IsNotFound(err) {
				return err
			}
		}
		if err := booking.FindConflict(*appt, existing, rule); err != nil {
			return err
		}

		dayStart, dayEnd := dayBounds(appt.ScheduledStart)
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(token_number), 0) + 1
			FROM appointments
			WHERE provider_id = $1 AND scheduled_start >= $2 AND scheduled_start < $3
		`, appt.ProviderID, dayStart, dayEnd).Scan(&appt.TokenNumber); err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO appointments
				(id, provider_id, staff_id, client_id, client_phone, service_id,
				 scheduled_start, duration_minutes, scheduled_end, status,
				 payment_status, payment_method, payment_reference, idempotency_key, token_number,
				 service_price, platform_fee)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14::text, ''), $15, $16::numeric, $17::numeric)
			RETURNING version, created_at, updated_at
		`, appt.ID, appt.ProviderID, appt.StaffID, appt.ClientID, appt.ClientPhone, appt.ServiceID,
			appt.ScheduledStart, appt.DurationMinutes, appt.ScheduledEnd, appt.Status,
			appt.PaymentStatus, appt.PaymentMethod, appt.PaymentReference, appt.IdempotencyKey, appt.TokenNumber,
			appt.ServicePrice.String(), appt.PlatformFee.String(),
		).Scan(&appt.Version, &appt.CreatedAt, &appt.UpdatedAt)
		if err != nil {
			if IsConflict(err) {
				return staffConflict(*appt)
			}
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		appt.CreatedAt = appt.CreatedAt.UTC()
		appt.UpdatedAt = appt.UpdatedAt.UTC()
		return r.writeEvents(ctx, tx, events, *appt)
	})
}

// MoveIfFree shifts a booking to newStart, keeping its duration, under the
// same critical section as CommitIfFree.
func (r *BookingRepository) MoveIfFree(ctx context.Context, id string, expectVersion int, newStart time.Time, rule booking.Rule, events EventsFunc) (model.Appointment, error) {
	var moved model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		current, err := r.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := db.AdvisoryXactLock(ctx, tx, "provider:"+current.ProviderID); err != nil {
			return err
		}
		if current.Version != expectVersion {
			return model.ErrStaleVersion
		}
		if current.Status.Terminal() {
			return &model.TransitionError{From: current.Status, To: current.Status}
		}

		moved = current
		moved.ScheduledStart = newStart
		moved.ScheduledEnd = model.EndFor(newStart, current.DurationMinutes)
		existing, err := r.listOverlapping(ctx, tx, moved.ProviderID, moved.ScheduledStart, moved.ScheduledEnd)
		if err != nil {
			return err
		}
		if err := booking.FindConflict(moved, existing, rule); err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			UPDATE appointments
			SET scheduled_start = $2,
				scheduled_end = $3,
				needs_manual_reschedule = false,
				version = version + 1,
				updated_at = now()
			WHERE id = $1
			RETURNING version, updated_at
		`, id, moved.ScheduledStart, moved.ScheduledEnd).Scan(&moved.Version, &moved.UpdatedAt)
		if err != nil {
			if IsConflict(err) {
				return staffConflict(moved)
			}
			return err
		}
		moved.NeedsManualReschedule = false
		moved.UpdatedAt = moved.UpdatedAt.UTC()
		return r.writeEvents(ctx, tx, events, moved)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return moved, nil
}

// Update locks the row, lets guard veto the change, applies mutate to the
// non-schedule fields and bumps the version.
func (r *BookingRepository) Update(ctx context.Context, id string, guard GuardFunc, mutate MutateFunc, events EventsFunc) (model.Appointment, error) {
	var next model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		current, err := r.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(current); err != nil {
				return err
			}
		}
		next = current
		if mutate != nil {
			mutate(&next)
		}
		keepSchedule(&next, current)

		err = tx.QueryRow(ctx, `
			UPDATE appointments
			SET client_phone = $2,
				actual_end = $3,
				status = $4,
				payment_status = $5,
				payment_method = $6,
				payment_reference = $7,
				service_price = $8::numeric,
				platform_fee = $9::numeric,
				completion_source = $10,
				needs_manual_reschedule = $11,
				cancelled_at = $12,
				cancel_reason = $13,
				version = version + 1,
				updated_at = now()
			WHERE id = $1 AND version = $14
			RETURNING version, updated_at
		`, id, next.ClientPhone, next.ActualEnd, next.Status, next.PaymentStatus, next.PaymentMethod,
			next.PaymentReference, next.ServicePrice.String(), next.PlatformFee.String(), next.CompletionSource,
			next.NeedsManualReschedule, next.CancelledAt, next.CancelReason, current.Version,
		).Scan(&next.Version, &next.UpdatedAt)
		if err != nil {
			if IsNotFound(err) {
				return model.ErrStaleVersion
			}
			return err
		}
		next.UpdatedAt = next.UpdatedAt.UTC()
		return r.writeEvents(ctx, tx, events, next)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return next, nil
}

// ListDueForCompletion returns confirmed, paid bookings whose scheduled end is
// before cutoff.
func (r *BookingRepository) ListDueForCompletion(ctx context.Context, cutoff time.Time, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
			AND payment_status = 'paid'
			AND scheduled_end < $1
		ORDER BY scheduled_end ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *BookingRepository) getForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if IsNotFound(err) {
		return model.Appointment{}, model.ErrNotFound
	}
	return appt, err
}

func (r *BookingRepository) writeEvents(ctx context.Context, tx pgx.Tx, fn EventsFunc, appt model.Appointment) error {
	evts, err := buildEvents(fn, appt)
	if err != nil {
		return err
	}
	if len(evts) == 0 {
		return nil
	}
	return r.outbox.Insert(ctx, tx, evts...)
}

func staffConflict(appt model.Appointment) error {
	return &booking.ConflictError{
		Kind:       booking.KindStaffConflict,
		ProviderID: appt.ProviderID,
		StaffID:    appt.StaffKey(),
		Start:      appt.ScheduledStart,
		End:        appt.ScheduledEnd,
	}
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt        model.Appointment
		price, fee  string
		status      string
		payStatus   string
		payMethod   string
		source      string
		actualEnd   *time.Time
		cancelledAt *time.Time
	)
	err := row.Scan(
		&appt.ID,
		&appt.ProviderID,
		&appt.StaffID,
		&appt.ClientID,
		&appt.ClientPhone,
		&appt.ServiceID,
		&appt.ScheduledStart,
		&appt.DurationMinutes,
		&appt.ScheduledEnd,
		&actualEnd,
		&status,
		&payStatus,
		&payMethod,
		&appt.PaymentReference,
		&appt.IdempotencyKey,
		&appt.TokenNumber,
		&price,
		&fee,
		&source,
		&appt.NeedsManualReschedule,
		&cancelledAt,
		&appt.CancelReason,
		&appt.Version,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.ServicePrice, err = decimal.NewFromString(price); err != nil {
		return model.Appointment{}, fmt.Errorf("service_price %q: %w", price, err)
	}
	if appt.PlatformFee, err = decimal.NewFromString(fee); err != nil {
		return model.Appointment{}, fmt.Errorf("platform_fee %q: %w", fee, err)
	}
	appt.Status = model.Status(status)
	appt.PaymentStatus = model.PaymentStatus(payStatus)
	appt.PaymentMethod = model.PaymentMethod(payMethod)
	appt.CompletionSource = model.CompletionSource(source)
	appt.ScheduledStart = appt.ScheduledStart.UTC()
	appt.ScheduledEnd = appt.ScheduledEnd.UTC()
	appt.ActualEnd = utcPtr(actualEnd)
	appt.CancelledAt = utcPtr(cancelledAt)
	appt.CreatedAt = appt.CreatedAt.UTC()
	appt.UpdatedAt = appt.UpdatedAt.UTC()
	return appt, nil
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// IsConflict reports an exclusion-constraint violation.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
