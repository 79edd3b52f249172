package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

// SettlementRepository persists refund and payout records. Both tables are
// keyed by booking id, which makes every insert idempotent.
type SettlementRepository struct {
	pool *db.Pool
}

func NewSettlementRepository(pool *db.Pool) *SettlementRepository {
	return &SettlementRepository{pool: pool}
}

const refundColumns = `booking_id::text, payment_id, amount::text, reason, status, hours_notice,
	cancelled_at, refund_id, attempts, last_error, updated_at`

const payoutColumns = `booking_id::text, provider_id, provider_amount::text, platform_fee::text, status,
	payout_id, transaction_reference, attempts, last_error, updated_at`

func (r *SettlementRepository) InsertRefund(ctx context.Context, rec model.RefundRecord) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO refund_records (booking_id, payment_id, amount, reason, status, hours_notice, cancelled_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		ON CONFLICT (booking_id) DO NOTHING
	`, rec.BookingID, rec.PaymentID, rec.Amount.String(), rec.Reason, rec.Status, rec.HoursNotice, rec.CancelledAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SettlementRepository) GetRefund(ctx context.Context, bookingID string) (model.RefundRecord, error) {
	rec, err := scanRefund(r.pool.QueryRow(ctx, `SELECT `+refundColumns+` FROM refund_records WHERE booking_id = $1`, bookingID))
	if IsNotFound(err) {
		return model.RefundRecord{}, model.ErrNotFound
	}
	return rec, err
}

func (r *SettlementRepository) MarkRefund(ctx context.Context, bookingID string, outcome RefundOutcome) (model.RefundRecord, error) {
	rec, err := scanRefund(r.pool.QueryRow(ctx, `
		UPDATE refund_records
		SET status = $2,
			refund_id = COALESCE(NULLIF($3::text, ''), refund_id),
			last_error = $4,
			attempts = attempts + 1,
			updated_at = now()
		WHERE booking_id = $1
		RETURNING `+refundColumns, bookingID, outcome.Status, outcome.RefundID, outcome.LastError))
	if IsNotFound(err) {
		return model.RefundRecord{}, model.ErrNotFound
	}
	return rec, err
}

func (r *SettlementRepository) ListRefunds(ctx context.Context, status model.SettlementStatus, limit int) ([]model.RefundRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+refundColumns+`
		FROM refund_records
		WHERE status = $1
		ORDER BY updated_at
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RefundRecord
	for rows.Next() {
		rec, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SettlementRepository) InsertPayout(ctx context.Context, rec model.PayoutRecord) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO payout_records (booking_id, provider_id, provider_amount, platform_fee, status)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5)
		ON CONFLICT (booking_id) DO NOTHING
	`, rec.BookingID, rec.ProviderID, rec.ProviderAmount.String(), rec.PlatformFee.String(), rec.Status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SettlementRepository) GetPayout(ctx context.Context, bookingID string) (model.PayoutRecord, error) {
	rec, err := scanPayout(r.pool.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payout_records WHERE booking_id = $1`, bookingID))
	if IsNotFound(err) {
		return model.PayoutRecord{}, model.ErrNotFound
	}
	return rec, err
}

func (r *SettlementRepository) MarkPayout(ctx context.Context, bookingID string, outcome PayoutOutcome) (model.PayoutRecord, error) {
	rec, err := scanPayout(r.pool.QueryRow(ctx, `
		UPDATE payout_records
		SET status = $2,
			payout_id = COALESCE(NULLIF($3::text, ''), payout_id),
			transaction_reference = COALESCE(NULLIF($4::text, ''), transaction_reference),
			last_error = $5,
			attempts = attempts + 1,
			updated_at = now()
		WHERE booking_id = $1
		RETURNING `+payoutColumns, bookingID, outcome.Status, outcome.PayoutID, outcome.TransactionReference, outcome.LastError))
	if IsNotFound(err) {
		return model.PayoutRecord{}, model.ErrNotFound
	}
	return rec, err
}

// RecordPayoutSent stores a payout settled by the primary payment path. A
// pending or failed backup record is overwritten; a succeeded one is kept.
func (r *SettlementRepository) RecordPayoutSent(ctx context.Context, rec model.PayoutRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payout_records (booking_id, provider_id, provider_amount, platform_fee, status, payout_id, transaction_reference)
		VALUES ($1, $2, $3::numeric, $4::numeric, 'succeeded', $5, $6)
		ON CONFLICT (booking_id) DO UPDATE
		SET status = 'succeeded',
			payout_id = EXCLUDED.payout_id,
			transaction_reference = EXCLUDED.transaction_reference,
			last_error = '',
			updated_at = now()
		WHERE payout_records.status <> 'succeeded'
	`, rec.BookingID, rec.ProviderID, rec.ProviderAmount.String(), rec.PlatformFee.String(), rec.PayoutID, rec.TransactionReference)
	return err
}

func (r *SettlementRepository) ListPayouts(ctx context.Context, status model.SettlementStatus, limit int) ([]model.PayoutRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+payoutColumns+`
		FROM payout_records
		WHERE status = $1
		ORDER BY updated_at
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PayoutRecord
	for rows.Next() {
		rec, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRefund(row pgx.Row) (model.RefundRecord, error) {
	var rec model.RefundRecord
	var amount, reason, status string
	if err := row.Scan(&rec.BookingID, &rec.PaymentID, &amount, &reason, &status, &rec.HoursNotice,
		&rec.CancelledAt, &rec.RefundID, &rec.Attempts, &rec.LastError, &rec.UpdatedAt); err != nil {
		return model.RefundRecord{}, err
	}
	var err error
	if rec.Amount, err = decimal.NewFromString(amount); err != nil {
		return model.RefundRecord{}, fmt.Errorf("refund amount %q: %w", amount, err)
	}
	rec.Reason = model.CancelReason(reason)
	rec.Status = model.SettlementStatus(status)
	rec.CancelledAt = rec.CancelledAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func scanPayout(row pgx.Row) (model.PayoutRecord, error) {
	var rec model.PayoutRecord
	var amount, fee, status string
	if err := row.Scan(&rec.BookingID, &rec.ProviderID, &amount, &fee, &status,
		&rec.PayoutID, &rec.TransactionReference, &rec.Attempts, &rec.LastError, &rec.UpdatedAt); err != nil {
		return model.PayoutRecord{}, err
	}
	var err error
	if rec.ProviderAmount, err = decimal.NewFromString(amount); err != nil {
		return model.PayoutRecord{}, fmt.Errorf("provider amount %q: %w", amount, err)
	}
	if rec.PlatformFee, err = decimal.NewFromString(fee); err != nil {
		return model.PayoutRecord{}, fmt.Errorf("platform fee %q: %w", fee, err)
	}
	rec.Status = model.SettlementStatus(status)
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}
