package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"chatrelay/pkg/api"
	"chatrelay/pkg/blob"
	"chatrelay/pkg/config"
	"chatrelay/pkg/identity"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/progressor"
	"chatrelay/pkg/realtime"
	"chatrelay/pkg/retention"
	"chatrelay/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	verifier identity.Verifier
	hub      *realtime.Hub
	gateway  *realtime.Gateway
	api      *api.API
	blobs    *blob.Store

	srv *http.Server
}

// New initializes resources that do not need a running context: the store,
// the token verifier, the hub and the REST surface. It does not start the
// HTTP server; call Run to start it and block until shutdown.
func New(ctx context.Context, eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	verifier, err := buildVerifier(ctx, eff.Config.Identity)
	if err != nil {
		return nil, err
	}

	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	if _, err := progressor.Run(ctx, version); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	var blobs *blob.Store
	if eff.Config.Blob.Bucket != "" {
		blobs, err = blob.New(eff.Config.Blob)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to init blob store: %w", err)
		}
	}

	hub := realtime.NewHub()
	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		verifier:  verifier,
		hub:       hub,
		gateway:   realtime.NewGateway(hub, verifier, eff.Config.Security.CORS.AllowedOrigins),
		api:       api.New(hub, blobs, int64(eff.Config.Blob.MaxUploadBytes)),
		blobs:     blobs,
	}
	return a, nil
}

// buildVerifier wires the configured identity provider. OIDC wins when an
// issuer is set; the HS256 secret is the self-hosted fallback.
func buildVerifier(ctx context.Context, cfg config.IdentityConfig) (identity.Verifier, error) {
	if cfg.Issuer != "" {
		v, err := identity.NewOIDCVerifier(ctx, cfg.Issuer, cfg.Audience)
		if err != nil {
			return nil, fmt.Errorf("failed to reach OIDC issuer %s: %w", cfg.Issuer, err)
		}
		logger.Info("identity_provider", "mode", "oidc", "issuer", cfg.Issuer)
		return v, nil
	}
	if cfg.HS256Secret != "" {
		v, err := identity.NewHS256Verifier(cfg.HS256Secret)
		if err != nil {
			return nil, err
		}
		logger.Info("identity_provider", "mode", "hs256")
		return v, nil
	}
	return nil, fmt.Errorf("no identity provider configured: set identity.issuer or identity.hs256_secret")
}

// Run starts the hub, the retention scheduler and the HTTP server, and
// blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	go a.hub.Run()

	stopRetention, err := retention.Start(ctx, a.eff)
	if err != nil {
		return err
	}
	defer stopRetention()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			a.shutdown()
			return err
		}
		return nil
	}
}

// shutdown drains the HTTP server and closes the store.
func (a *App) shutdown() {
	if a.srv != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shCtx); err != nil {
			logger.Warn("http_shutdown_error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Warn("store_close_error", "error", err)
	}
	logger.Info("shutdown_complete")
}
