package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/pulse/internal/adapters/repository"
	"github.com/okian/pulse/internal/app"
	"github.com/okian/pulse/pkg/logger"
)

var reclaimOlderThan int

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and reclaim weekly run locks",
}

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Release locks abandoned by failed runs",
	Long: `Releases ACQUIRED locks older than the staleness window and prints an
audit record for each. This is the only way an abandoned lock is freed;
there is no blanket wipe, so two runs can never race through a mass delete.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := repository.Open(cfg.DBPath,
			repository.WithDefaultKThreshold(cfg.DefaultKThreshold))
		if err != nil {
			return err
		}
		defer store.Close()

		staleAfter := time.Duration(cfg.StaleLockMinutes) * time.Minute
		if reclaimOlderThan > 0 {
			staleAfter = time.Duration(reclaimOlderThan) * time.Minute
		}

		svc := app.New(store, nil, app.WithStaleAfter(staleAfter))
		reclaimed, err := svc.ReclaimStaleLocks(cmd.Context())
		if err != nil {
			return err
		}
		logger.Get().Info(cmd.Context(), "stale lock reclaim complete",
			logger.Int("reclaimed", len(reclaimed)),
			logger.Duration("older_than", staleAfter))
		return nil
	},
}

func init() {
	reclaimCmd.Flags().IntVar(&reclaimOlderThan, "older-than", 0, "staleness window in minutes (default: stale_lock_minutes from config)")
	locksCmd.AddCommand(reclaimCmd)
	rootCmd.AddCommand(locksCmd)
}
