package completion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Store interface {
	ListDueForCompletion(ctx context.Context, cutoff time.Time, limit int) ([]model.Appointment, error)
	Update(ctx context.Context, id string, guard storage.GuardFunc, mutate storage.MutateFunc, events outbox.EventsFunc) (model.Appointment, error)
}

// Settler receives every booking the sweep completes. It is the backup payout
// path; the primary path is announced on Kafka.
type Settler interface {
	OnCompleted(ctx context.Context, appt model.Appointment) (model.PayoutRecord, error)
}

// Leader elects one sweeping instance. ok false means another instance holds
// the lock and this pass is skipped.
type Leader func(ctx context.Context) (ok bool, release func(), err error)

// AlwaysLeader is used for single-process deployments.
func AlwaysLeader(context.Context) (bool, func(), error) {
	return true, func() {}, nil
}

type Config struct {
	Interval  time.Duration
	Buffer    time.Duration
	BatchSize int
	// Now returns the provider's wall-clock time.
	Now func() time.Time
}

// Detector periodically completes confirmed, paid bookings whose scheduled
// end passed more than Buffer ago. It records actualEnd = scheduledEnd and so
// never detects overtime itself; only a manual completion can.
type Detector struct {
	store   Store
	settler Settler
	leader  Leader
	logger  *slog.Logger
	cfg     Config
}

var errNotDue = errors.New("booking no longer confirmed")

func NewDetector(store Store, settler Settler, leader Leader, logger *slog.Logger, cfg Config) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if leader == nil {
		leader = AlwaysLeader
	}
	return &Detector{store: store, settler: settler, leader: leader, logger: logger, cfg: cfg}
}

type Report struct {
	Skipped   bool
	Due       int
	Completed int
	Failed    int
	Settled   int
}

func (d *Detector) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := d.Sweep(ctx)
			if err != nil {
				d.logger.Error("completion sweep failed", "err", err)
				continue
			}
			if report.Due > 0 {
				d.logger.Info("completion sweep", "due", report.Due, "completed", report.Completed, "failed", report.Failed, "settled", report.Settled)
			}
		}
	}
}

// Sweep runs one pass. A failure on one booking is logged and counted; the
// rest of the batch still runs.
func (d *Detector) Sweep(ctx context.Context) (Report, error) {
	ctx, span := otelx.Tracer("booking-service/completion").Start(ctx, "completion.sweep")
	defer span.End()

	ok, release, err := d.leader(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Report{}, err
	}
	if !ok {
		span.SetAttributes(attribute.Bool("sweep.skipped", true))
		return Report{Skipped: true}, nil
	}
	defer release()

	cutoff := d.cfg.Now().Add(-d.cfg.Buffer)
	due, err := d.store.ListDueForCompletion(ctx, cutoff, d.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Report{}, err
	}

	report := Report{Due: len(due)}
	for _, appt := range due {
		completed, err := d.complete(ctx, appt.ID)
		if errors.Is(err, errNotDue) {
			continue
		}
		if err != nil {
			report.Failed++
			d.logger.Error("auto-complete failed", "booking_id", appt.ID, "err", err)
			continue
		}
		report.Completed++

		if d.settler == nil {
			continue
		}
		if _, err := d.settler.OnCompleted(ctx, completed); err != nil {
			d.logger.Warn("backup payout failed", "booking_id", completed.ID, "err", err)
			continue
		}
		report.Settled++
	}
	span.SetAttributes(
		attribute.Int("sweep.due", report.Due),
		attribute.Int("sweep.completed", report.Completed),
		attribute.Int("sweep.failed", report.Failed),
	)
	return report, nil
}

func (d *Detector) complete(ctx context.Context, id string) (model.Appointment, error) {
	return d.store.Update(ctx, id,
		func(current model.Appointment) error {
			if current.Status != model.StatusConfirmed {
				return errNotDue
			}
			return nil
		},
		func(a *model.Appointment) {
			end := a.ScheduledEnd
			a.ActualEnd = &end
			a.Status = model.StatusCompleted
			a.CompletionSource = model.CompletedBySweep
		},
		outbox.Emit(outbox.TypeCompleted, map[string]any{"source": string(model.CompletedBySweep), "overtime_minutes": 0}),
	)
}
