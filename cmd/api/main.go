package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"cinegate/internal/access"
	"cinegate/internal/api"
	"cinegate/internal/auth"
	"cinegate/internal/config"
	"cinegate/internal/storage"
	"cinegate/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("error", false)
		boot.Fatal().Err(err).Msg("invalid config")
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup, store, err := setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("startup failed")
	}
	defer store.Close()

	log.Info().Str("addr", ":"+cfg.Server.Port).Str("store", cfg.Store.Driver).Msg("api listening")
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("supervisor stopped")
	}
	log.Info().Msg("shutdown complete")
}

// setup opens the store, bootstraps the admin account and builds the
// supervisor that runs the HTTP server and the reconciler.
func setup(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*suture.Supervisor, access.Store, error) {
	store, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	accounts := access.NewAccounts(store, log)
	if cfg.Auth.AdminEmail != "" {
		if err := accounts.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	requests := access.NewService(store, log, access.WithRetryPolicy(access.RetryPolicy{
		Attempts: cfg.Workflow.EntitlementRetries,
		Initial:  cfg.Workflow.RetryInterval,
		Max:      access.DefaultRetryPolicy().Max,
	}))
	reconciler := access.NewReconciler(store, log, cfg.Workflow.ReconcileInterval)
	tokens := auth.NewService(cfg.Auth.AppSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	handler := api.NewHandler(requests, accounts, tokens, reconciler, log, api.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		RateWindow:  cfg.Server.RateWindow,
		OpsToken:    cfg.Auth.OpsToken,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sup := suture.New("cinegate", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn().Fields(e.Map()).Msg(e.String())
		},
		Timeout: cfg.Server.ShutdownTimeout,
	})
	sup.Add(api.NewServer(srv, cfg.Server.ShutdownTimeout))
	sup.Add(reconciler)
	return sup, store, nil
}
