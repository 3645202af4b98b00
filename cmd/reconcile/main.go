package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"cinegate/internal/access"
	"cinegate/internal/config"
	"cinegate/internal/storage"
	"cinegate/pkg/logger"
)

// reconcile makes a single repair pass over approved movie requests and
// exits. Schedule it from cron when the API's built-in loop is not enough.
func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("error", false)
		boot.Fatal().Err(err).Msg("invalid config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repaired, err := run(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Int("repaired", repaired).Msg("reconcile failed")
		stop()
		os.Exit(1)
	}
	log.Info().Int("repaired", repaired).Msg("reconcile complete")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) (int, error) {
	store, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return 0, err
	}
	defer store.Close()
	return access.NewReconciler(store, log, 0).RunOnce(ctx)
}
