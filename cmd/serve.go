package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-checkout/internal/api/router"
	"course-checkout/internal/config"
	"course-checkout/internal/infrastructure/database"
	"course-checkout/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	servePort      string
	skipMigrate    bool
	disableSweeper bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the checkout HTTP server",
	Long: `Start the checkout HTTP server. This includes:
- Registration, checkout, confirm, cancel and poll endpoints
- The payment gateway webhook and its event workers
- The background sweeper that expires abandoned registrations`,
	Run: func(cmd *cobra.Command, args []string) {
		startServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Port for the server to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Do not apply migrations on start")
	serveCmd.Flags().BoolVar(&disableSweeper, "no-sweeper", false, "Do not run the expiry sweeper in this process")
}

func startServer() {
	cfg := config.Get()
	if servePort != "" {
		cfg.Server.Port = servePort
	}

	db, err := connectDatabase(cfg)
	if err != nil {
		logger.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	if db != nil {
		if !skipMigrate {
			if err := database.RunMigrations(db); err != nil {
				logger.Error("Failed to run database migrations: %v", err)
				os.Exit(1)
			}
		}
		if err := database.HealthCheck(db); err != nil {
			logger.Error("Database health check failed: %v", err)
			os.Exit(1)
		}
	}

	components, err := router.NewCheckoutComponents(cfg, db)
	if err != nil {
		logger.Error("Failed to wire application: %v", err)
		os.Exit(1)
	}
	defer components.Close()

	components.QueueService.StartWorkers()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if cfg.Sweeper.Enabled && !disableSweeper {
		go components.Sweeper.Run(ctx)
	}

	srv := &http.Server{
		Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:        components.Router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Info("Starting checkout server on %s", srv.Addr)
		logger.Info("Payment provider: %s, database: %s, queue: %s", cfg.Payment.Provider, cfg.Database.Driver, cfg.Queue.Type)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down checkout server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}

	stop()
	logger.Info("Stopping queue workers...")
	components.QueueService.StopWorkers()

	logger.Info("Checkout server exited")
}
