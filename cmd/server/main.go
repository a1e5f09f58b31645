package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Huddle/internal/adapters/bridge"
	"github.com/dkeye/Huddle/internal/adapters/browser"
	router "github.com/dkeye/Huddle/internal/adapters/http"
	"github.com/dkeye/Huddle/internal/adapters/native"
	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/dkeye/Huddle/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("failed to open store")
	}
	defer db.Close()

	var hub *bridge.Hub
	var factory core.TransportFactory
	switch cfg.Transport.Kind {
	case config.TransportBrowser:
		hub = bridge.NewHub(bridge.Config{ReadLimit: cfg.ReadLimit, PingPeriod: cfg.PingPeriod})
		factory = browserFactory(hub)
	default:
		factory = nativeFactory(cfg)
	}

	coord := orch.New(factory, orch.Options{
		Capacity:          cfg.Call.MaxParticipants,
		SpeakingThreshold: cfg.Call.SpeakingThreshold,
		Token:             cfg.Transport.Token,
		JoinTimeout:       cfg.Call.JoinTimeout,
		LeaveTimeout:      cfg.Call.LeaveTimeout,
		Metrics:           metrics.New(reg),
	})

	cfg.Watch(func(next *config.Config) {
		coord.SetSpeakingThreshold(next.Call.SpeakingThreshold)
	})

	deps := router.Deps{
		Call:     coord,
		Names:    db,
		Limiter:  router.NewJoinRateLimiter(cfg.Call.JoinRateLimit, cfg.Call.JoinRateWindow),
		Gatherer: reg,
	}
	if hub != nil {
		deps.Engine = hub
	}

	g, ctx := errgroup.WithContext(ctx)

	r := router.SetupRouter(ctx, cfg, deps)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g.Go(func() error {
		log.Info().Str("addr", addr).Str("transport", cfg.Transport.Kind).Msg("Huddle server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		err := srv.Shutdown(shutdownCtx)
		if cerr := coord.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("coordinator close")
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}
	log.Info().Msg("Server exited gracefully")
}

func nativeFactory(cfg *config.Config) core.TransportFactory {
	rtcCfg := rtc.DefaultConfig()
	rtcCfg.SignalURL = cfg.Transport.SignalURL
	rtcCfg.ICEServers = cfg.Transport.ICEServers
	rtcCfg.VideoMaxWidth = cfg.Transport.VideoMaxWidth
	rtcCfg.VideoMaxHeight = cfg.Transport.VideoMaxHeight
	rtcCfg.ReadLimit = cfg.ReadLimit
	rtcCfg.PingPeriod = cfg.PingPeriod

	return func(ctx context.Context) (core.MediaTransport, error) {
		return native.New(rtc.NewEngine(rtcCfg), native.Options{VolumeInterval: cfg.Call.VolumeInterval}), nil
	}
}

func browserFactory(hub *bridge.Hub) core.TransportFactory {
	return func(ctx context.Context) (core.MediaTransport, error) {
		page, err := hub.Page(ctx)
		if err != nil {
			return nil, fmt.Errorf("wait for engine page: %w", err)
		}
		return browser.New(bridge.NewClient(page)), nil
	}
}
