package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sander-remitly/plate-calc/internal/api"
	"github.com/sander-remitly/plate-calc/internal/cache"
	"github.com/sander-remitly/plate-calc/internal/logger"
	"github.com/sander-remitly/plate-calc/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"api"},
	Short:   "Start the API server",
	Long:    `Start the REST API server for plate calculations and inventory management.`,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	repository, err := openRepository()
	if err != nil {
		return err
	}
	defer repository.Close()

	cacheInstance := cache.NewCache(cfg.Redis)
	defer cacheInstance.Close()

	handler := api.NewHandler(repository, cacheInstance, cfg, api.WithMetrics(metrics.New()))
	router := handler.SetupRouter()

	addr := cfg.Addr()
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Log.Info("Server starting",
			zap.String("api", fmt.Sprintf("http://localhost%s/api", addr)),
			zap.String("health", fmt.Sprintf("http://localhost%s/api/health", addr)),
			zap.String("db", cfg.DBPath),
			zap.Bool("cache", cacheInstance.IsEnabled()),
			zap.Float64("max_target_kg", cfg.MaxTargetKg),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serverErr:
		if ok {
			logger.Log.Error("Server error", zap.Error(err))
			return err
		}
		return nil
	case sig := <-quit:
		logger.Log.Info("Shutting down server...", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Log.Info("Server stopped")
	return nil
}
