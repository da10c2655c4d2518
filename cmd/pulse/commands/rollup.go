package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/okian/pulse/internal/adapters/repository"
	"github.com/okian/pulse/internal/app"
	"github.com/okian/pulse/internal/domain/model"
	"github.com/okian/pulse/pkg/logger"
)

// HTTP timeout constants for the scrape endpoint.
const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

var (
	rollupOrg  string
	rollupTeam string
	rollupWeek string
	rollupAll  bool
)

// noResponses is the production response source: observations are folded in
// by the ingestion surface as they arrive, so a rollup has nothing to replay.
type noResponses struct{}

func (noResponses) WeekObservations(context.Context, string, string, time.Time) ([]model.Observation, error) {
	return nil, nil
}

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Run the weekly measurement-to-aggregate pipeline",
	Long: `Runs inference, employee profiling, k-gated aggregation and team
profile detection for one team or for every known team. Safe to invoke
repeatedly or concurrently: each (org, team, week) is guarded by a lock row
and an idempotency fingerprint.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !rollupAll && (rollupOrg == "" || rollupTeam == "") {
			return fmt.Errorf("either --all or both --org and --team are required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		week, err := parseWeek(rollupWeek)
		if err != nil {
			return err
		}

		store, err := repository.Open(cfg.DBPath,
			repository.WithDefaultKThreshold(cfg.DefaultKThreshold))
		if err != nil {
			return err
		}
		defer store.Close()

		stopMetrics := serveMetrics(ctx)
		defer stopMetrics()

		svc := app.New(store, noResponses{},
			app.WithLockTTL(time.Duration(cfg.LockTTLMinutes)*time.Minute),
			app.WithStaleAfter(time.Duration(cfg.StaleLockMinutes)*time.Minute),
			app.WithMaxConcurrentRuns(cfg.MaxConcurrentRuns))

		log := logger.Get()
		if rollupAll {
			results, err := svc.RunAll(ctx, week)
			if err != nil {
				return err
			}
			for _, r := range results {
				log.Info(ctx, "rollup finished",
					logger.String("org_id", r.OrgID),
					logger.String("team_id", r.TeamID),
					logger.String("status", string(r.Status)),
					logger.Int("participants", r.Participants),
					logger.Int("skipped", len(r.Skipped)))
			}
			return nil
		}

		r, err := svc.RunWeek(ctx, rollupOrg, rollupTeam, week)
		if errors.Is(err, app.ErrRunInProgress) {
			log.Info(ctx, "another run holds the lock; declining", logger.Error(err))
			return nil
		}
		if err != nil {
			return err
		}
		log.Info(ctx, "rollup finished",
			logger.String("status", string(r.Status)),
			logger.Int("participants", r.Participants),
			logger.Int("skipped", len(r.Skipped)))
		return nil
	},
}

// serveMetrics exposes /metrics for the duration of the run so cron scrapes
// can observe long rollups. Disabled when metrics_addr is empty.
func serveMetrics(ctx context.Context) func() {
	if cfg.MetricsAddr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Get().Warn(ctx, "metrics endpoint stopped", logger.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// parseWeek accepts an ISO date or defaults to the current week.
func parseWeek(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --week %q, want YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

func init() {
	rollupCmd.Flags().StringVar(&rollupOrg, "org", "", "organization id")
	rollupCmd.Flags().StringVar(&rollupTeam, "team", "", "team id")
	rollupCmd.Flags().StringVar(&rollupWeek, "week", "", "any date inside the target week (YYYY-MM-DD, default: now)")
	rollupCmd.Flags().BoolVar(&rollupAll, "all", false, "run every known (org, team)")
	rootCmd.AddCommand(rollupCmd)
}
