// Command bookingctl runs operator tasks against the booking database:
// migrations, a one-off completion sweep, and settlement inspection and retry.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/libs/grpcx"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/app"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/migrations"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "bookingctl",
		Short:         "Operator tools for the booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(settlementsCmd())
	rootCmd.AddCommand(healthCmd())

	ctx, stop := runtime.SignalContext()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openPool(ctx context.Context) (*db.Pool, error) {
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, dbURL, db.Options{MaxConns: 2})
}

func openEngine(ctx context.Context) (*app.Engine, func(), error) {
	pool, err := openPool(ctx)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := app.ConfigFromEnv()
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger := runtime.NewLogger("bookingctl", config.String("LOG_LEVEL", "warn"))
	return app.NewEngine(app.Postgres(pool), cfg, logger), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.Migrate(cmd.Context(), pool, migrations.FS)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("schema up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Println("applied", v)
			}
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Completion sweep",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Run a single completion sweep and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := engine.Detector.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			if report.Skipped {
				fmt.Println("another instance holds the sweep lock; skipped")
				return nil
			}
			fmt.Printf("due=%d completed=%d failed=%d settled=%d\n", report.Due, report.Completed, report.Failed, report.Settled)
			return nil
		},
	})
	return cmd
}

func settlementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settlements",
		Short: "Inspect and retry refunds and payouts",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print failed refunds and payouts as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			engine, closeFn, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			refunds, payouts, err := engine.Settlement.Failed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"refunds": refunds, "payouts": payouts})
		},
	}
	listCmd.Flags().Int("limit", 50, "Maximum records of each kind")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Retry every failed settlement under the attempt limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := engine.Settlement.RetryFailed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("retried=%d succeeded=%d gave_up=%d\n", report.Retried, report.Succeeded, report.GaveUp)
			return nil
		},
	})
	return cmd
}

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the service's gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			service, _ := cmd.Flags().GetString("service")
			status, err := grpcx.CheckHealth(cmd.Context(), addr, service, grpcx.DialOptions{Timeout: 3 * time.Second})
			if err != nil {
				return err
			}
			fmt.Println(status.String())
			if status != healthpb.HealthCheckResponse_SERVING {
				os.Exit(2)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "localhost:9093", "gRPC health address")
	cmd.Flags().String("service", "booking-service", "Service name to query")
	return cmd
}
