package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marquee/internal/custody"
	"marquee/internal/device"
	"marquee/internal/manifest"
	"marquee/internal/platform/config"
	"marquee/internal/platform/httpserver"
	"marquee/internal/platform/logger"
	"marquee/internal/platform/metrics"
	"marquee/internal/playback"
	"marquee/internal/runtime"
	"marquee/internal/status"
	"marquee/internal/stream"
	streammetrics "marquee/internal/stream/metrics"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if cfg.StoreSecret == "" {
		log.Error("MARQUEE_STORE_SECRET is required to seal the key store")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keyStore, err := custody.NewFileStore(cfg.DataDir, []byte(cfg.StoreSecret))
	if err != nil {
		log.Error("open key store", "error", err)
		os.Exit(1)
	}
	registrations, err := device.NewRegistrationStore(cfg.DataDir)
	if err != nil {
		log.Error("open registration store", "error", err)
		os.Exit(1)
	}

	keys := custody.NewService(keyStore, log)
	pair, err := keys.GetOrCreate(ctx, cfg.KeyAlias)
	if err != nil {
		log.Error("obtain display keypair", "error", err)
		os.Exit(1)
	}

	agentMetrics := metrics.New()
	streamMetrics := streammetrics.New()
	backend := manifest.NewClient(cfg.BackendURL, "", pair, nil, log, agentMetrics)

	rt := runtime.New(runtime.Deps{
		Logger:        log,
		Keys:          keys,
		MachineIDs:    device.NewMachineIDResolver(cfg.DataDir, log),
		Registrations: registrations,
		Backend:       backend,
		NewTransport:  transportFactory(cfg, backend, pair),
		StreamMetrics: streamMetrics,
		Measurer:      playback.NopMeasurer{},
		Clock:         playback.RealClock(),
		Config: runtime.Config{
			KeyAlias:    cfg.KeyAlias,
			PairingCode: cfg.PairingCode,
			OutputName:  cfg.OutputName,
			UserAgent:   cfg.UserAgent,
			Language:    cfg.Language,
			Viewport:    playback.Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
			Timing:      playback.Config{ScrollPixelsPerSecond: cfg.ScrollPixelsPerSecond},
		},
	})

	statusHandler := status.New(rt, log)
	srv := httpserver.New(cfg.StatusAddr, statusHandler.Router())

	go func() {
		log.Info("status surface listening", "addr", cfg.StatusAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("status server error", "error", err)
			stop()
		}
	}()

	log.Info("marquee agent starting",
		"backend", cfg.BackendURL,
		"data_dir", cfg.DataDir,
		"stream_variant", cfg.StreamVariant,
	)
	if err := rt.Run(ctx); err != nil {
		log.Error("runtime stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// transportFactory picks the push transport variant. Header-authenticated
// streams sign each attempt directly; token streams embed a short-lived
// token in the URL for backends that cannot read custom headers.
func transportFactory(cfg config.Agent, backend *manifest.Client, pair *custody.KeyPair) func(slug string) stream.Transport {
	return func(slug string) stream.Transport {
		streamURL := cfg.BackendURL + "/api/displays/" + slug + "/stream"
		if cfg.StreamVariant == "token" {
			return &stream.TokenTransport{
				URL: streamURL,
				Token: func(ctx context.Context) (string, error) {
					return backend.StreamToken(ctx, slug)
				},
			}
		}
		return &stream.HeaderTransport{
			URL:         streamURL,
			DisplaySlug: slug,
			Signer:      pair,
		}
	}
}
