// Package app assembles the booking engine from configuration. Both the
// service binary and the operator CLI build on it.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/cascade"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/completion"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/settlement"
)

type Config struct {
	Location         *time.Location
	SlotInterval     time.Duration
	ExcessiveWait    time.Duration
	SweepInterval    time.Duration
	CompletionBuffer time.Duration
	SweepBatchSize   int

	SettlementRetryInterval time.Duration
	SettlementMaxAttempts   int

	StripeSecretKey string
	StripeCurrency  string

	NotifyWebhookURL   string
	NotifyWebhookToken string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		StripeSecretKey:    config.String("STRIPE_SECRET_KEY", ""),
		StripeCurrency:     config.String("STRIPE_CURRENCY", "usd"),
		NotifyWebhookURL:   config.String("NOTIFY_WEBHOOK_URL", ""),
		NotifyWebhookToken: config.String("NOTIFY_WEBHOOK_TOKEN", ""),
	}

	loc, err := time.LoadLocation(config.String("BUSINESS_TIMEZONE", "UTC"))
	if err != nil {
		return Config{}, fmt.Errorf("BUSINESS_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	minutes := map[string]struct {
		dst      *time.Duration
		fallback int
	}{
		"SLOT_INTERVAL_MINUTES":     {&cfg.SlotInterval, 30},
		"EXCESSIVE_WAIT_MINUTES":    {&cfg.ExcessiveWait, 10},
		"COMPLETION_BUFFER_MINUTES": {&cfg.CompletionBuffer, 15},
	}
	for key, m := range minutes {
		n, err := config.Int(key, m.fallback)
		if err != nil {
			return Config{}, err
		}
		*m.dst = time.Duration(n) * time.Minute
	}

	if cfg.SweepInterval, err = config.Duration("SWEEP_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SweepBatchSize, err = config.Int("SWEEP_BATCH_SIZE", 100); err != nil {
		return Config{}, err
	}
	if cfg.SettlementRetryInterval, err = config.Duration("SETTLEMENT_RETRY_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SettlementMaxAttempts, err = config.Int("SETTLEMENT_MAX_ATTEMPTS", 5); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Engine is the wired set of booking components over one backend.
type Engine struct {
	Backend     Backend
	Now         func() time.Time
	Guard       *booking.Guard
	Resolver    *availability.Resolver
	Rescheduler *cascade.Rescheduler
	Settlement  *settlement.Trigger
	Service     *lifecycle.Service
	Detector    *completion.Detector
}

func NewEngine(b Backend, cfg Config, logger *slog.Logger) *Engine {
	loc := cfg.Location
	now := func() time.Time { return calendar.WallClock(time.Now(), loc) }

	var gateway interface {
		payments.RefundGateway
		payments.PayoutGateway
	} = payments.NoopGateway{}
	if cfg.StripeSecretKey != "" {
		gateway = payments.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeCurrency)
	} else {
		logger.Warn("stripe not configured; refunds and payouts are recorded without moving money")
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyWebhookToken)
	}

	guard := booking.NewGuard(b.Bookings, b.Roster, now)
	trigger := settlement.NewTrigger(b.Settlements, b.Roster, b.Bookings, gateway, gateway, notifier, logger, settlement.Config{
		MaxAttempts:   cfg.SettlementMaxAttempts,
		RetryInterval: cfg.SettlementRetryInterval,
	})
	rescheduler := cascade.NewRescheduler(b.Bookings, guard, b.Roster, notifier, logger)

	policy := settlement.DefaultPolicy()
	if cfg.ExcessiveWait > 0 {
		policy.ExcessiveWait = cfg.ExcessiveWait
	}

	return &Engine{
		Backend:     b,
		Now:         now,
		Guard:       guard,
		Resolver:    availability.NewResolver(b.Roster, b.Bookings, availability.Config{SlotInterval: cfg.SlotInterval, Now: now}),
		Rescheduler: rescheduler,
		Settlement:  trigger,
		Service: lifecycle.NewService(lifecycle.Deps{
			Store:    b.Bookings,
			Guard:    guard,
			Cascader: rescheduler,
			Settler:  trigger,
			Policy:   policy,
			Notifier: notifier,
			Logger:   logger,
			Now:      now,
		}),
		Detector: completion.NewDetector(b.Bookings, trigger, b.Leader(), logger, completion.Config{
			Interval:  cfg.SweepInterval,
			Buffer:    cfg.CompletionBuffer,
			BatchSize: cfg.SweepBatchSize,
			Now:       now,
		}),
	}
}
