package cmd

import (
	"context"
	"fmt"
	"os"

	"course-checkout/internal/api/router"
	"course-checkout/internal/config"
	"course-checkout/pkg/logger"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire overdue registrations once and exit",
	Long: `Run a single expiry pass: registrations past their deadline are
expired, after one gateway poll for those awaiting payment. Suitable for cron
when the server runs with --no-sweeper.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSweep()
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep() {
	cfg := config.Get()

	db, err := connectDatabase(cfg)
	if err != nil {
		logger.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	components, err := router.NewCheckoutComponents(cfg, db)
	if err != nil {
		logger.Error("Failed to wire application: %v", err)
		os.Exit(1)
	}
	defer components.Close()

	expired, err := components.Coordinator.SweepExpired(context.Background())
	fmt.Printf("Expired %d registrations\n", expired)
	if err != nil {
		logger.Error("Sweep finished with errors: %v", err)
		os.Exit(1)
	}
}
