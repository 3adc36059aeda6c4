package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimbus-gateway/orchestrator/internal/config"
	"github.com/nimbus-gateway/orchestrator/internal/eventbus"
	"github.com/nimbus-gateway/orchestrator/internal/gateway"
	"github.com/nimbus-gateway/orchestrator/internal/handler"
	"github.com/nimbus-gateway/orchestrator/internal/model"
	"github.com/nimbus-gateway/orchestrator/internal/provider"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.DefaultConfig()

	logDir := os.Getenv("NIMBUS_LOG_DIR")
	if logDir == "" {
		logDir = "logs"
	}
	bus, err := eventbus.New(logDir, logger)
	if err != nil {
		logger.Fatal("eventbus_init_failed", zap.Error(err))
	}
	defer bus.Close()

	providers := map[string]provider.Provider{
		"stripe":   provider.NewStripe(),
		"adyen":    provider.NewAdyen(),
		"paypal":   provider.NewPayPal(),
		"razorpay": provider.NewRazorpay(),
	}

	gw := gateway.New(providers, cfg, bus, logger, model.StrategyHealthBased)
	h := handler.New(gw, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	addr := cfg.ServerPort
	if v := os.Getenv("NIMBUS_SERVER_PORT"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	logger.Info("server_starting", zap.String("port", addr), zap.Int("providers", len(providers)))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server_failed", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("server_shutting_down", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server_shutdown_error", zap.Error(err))
		}
	}

	logger.Info("server_stopped")
}
