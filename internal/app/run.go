package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/bnema/zerowrap"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/ocistore/internal/adapters/dto"
	"github.com/bnema/ocistore/internal/adapters/in/http/middleware"
	registryhttp "github.com/bnema/ocistore/internal/adapters/in/http/registry"
	"github.com/bnema/ocistore/internal/adapters/out/eventbus"
	"github.com/bnema/ocistore/internal/adapters/out/kvstore"
	"github.com/bnema/ocistore/internal/adapters/out/ratelimit"
	"github.com/bnema/ocistore/internal/adapters/out/telemetry"
	"github.com/bnema/ocistore/internal/boundaries/out"
	"github.com/bnema/ocistore/internal/usecase/registry"
	"github.com/bnema/ocistore/pkg/version"
)

const (
	serviceName = "ocistore"

	sweepInterval = time.Minute
)

// registryServer holds the wired registry components.
type registryServer struct {
	handler  http.Handler
	eventBus *eventbus.InMemory
	blobs    *registry.BlobService
	manifest *registry.ManifestService

	// background tasks that run until the server context is done.
	background []func(context.Context) error
	closers    []func() error
}

// Run loads configuration, starts the registry HTTP server and blocks until
// ctx is cancelled or a termination signal arrives.
func Run(ctx context.Context, configPath string) error {
	_, cfg, err := initConfig(configPath)
	if err != nil {
		return err
	}

	log, cleanup, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx = zerowrap.WithCtx(ctx, log)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str(zerowrap.FieldLayer, "app").
		Str("version", version.Version()).
		Str("commit", version.Commit()).
		Str("storage", cfg.Storage.Backend).
		Msg("starting ocistore")

	provider, err := telemetry.NewProvider(ctx, cfg.Telemetry, serviceName, version.Version())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown error")
		}
	}()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("failed to create metrics, continuing without them")
		metrics = nil
	}

	srv, err := newRegistryServer(ctx, cfg, metrics, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Warn().Err(err).Msg("error releasing registry resources")
		}
	}()

	return serve(ctx, cfg, srv, log)
}

// newRegistryServer wires storage, engines, the event bus and the HTTP stack.
func newRegistryServer(ctx context.Context, cfg Config, metrics *telemetry.Metrics, log zerowrap.Logger) (*registryServer, error) {
	limits, err := cfg.Limits()
	if err != nil {
		return nil, err
	}

	srv := &registryServer{}

	persistence, closePersistence, err := createPersistence(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, closePersistence)

	bus := eventbus.NewInMemory(cfg.Events.BufferSize, log)
	if metrics != nil {
		bus.SetMetrics(metrics)
		if err := bus.Subscribe(telemetry.NewEventRecorder(metrics)); err != nil {
			_ = srv.Close()
			return nil, fmt.Errorf("failed to subscribe metrics recorder: %w", err)
		}
	}
	if cfg.Events.Audit {
		if err := bus.Subscribe(registry.NewAuditHandler()); err != nil {
			_ = srv.Close()
			return nil, fmt.Errorf("failed to subscribe audit handler: %w", err)
		}
	}
	if err := bus.Start(); err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("failed to start event bus: %w", err)
	}
	srv.eventBus = bus

	store := kvstore.NewStore(persistence, log)
	engineCfg := registry.Config{
		StrictManifestDigest: cfg.Registry.StrictManifestDigest,
		MinChunkLength:       limits.MinChunkLength,
	}
	srv.blobs = registry.NewBlobService(store, bus, engineCfg)
	srv.manifest = registry.NewManifestService(store, bus, engineCfg)

	handler := registryhttp.NewHandler(srv.blobs, srv.manifest, registryhttp.Config{
		Host:            cfg.Host(),
		MaxManifestSize: limits.MaxManifestSize,
		MaxChunkSize:    limits.MaxChunkSize,
	}, log)
	if metrics != nil {
		handler.SetMetrics(metrics)
	}

	globalLimiter, ipLimiter, err := srv.createRateLimiters(cfg, log)
	if err != nil {
		_ = srv.Close()
		return nil, err
	}

	trustedNets := middleware.ParseTrustedProxies(cfg.API.RateLimit.TrustedProxies)
	allowedNets := middleware.ParseTrustedProxies(cfg.Server.AllowedCIDRs)

	chain := middleware.Chain(
		middleware.PanicRecovery(log),
		middleware.RequestLogger(log, trustedNets),
		middleware.SecurityHeaders(trustedNets),
		middleware.RegistryCIDRAllowlist(allowedNets, trustedNets, log),
		registryhttp.RateLimitMiddleware(globalLimiter, ipLimiter, cfg.API.RateLimit.TrustedProxies, metrics, log),
	)

	mux := http.NewServeMux()
	mux.Handle("/v2/", chain(handler))
	mux.HandleFunc("/health", healthHandler)

	srv.handler = otelhttp.NewHandler(mux, serviceName)

	return srv, nil
}

// createRateLimiters builds the global and per-IP limiters. Both are nil
// when rate limiting is disabled.
func (s *registryServer) createRateLimiters(cfg Config, log zerowrap.Logger) (out.RateLimiter, out.RateLimiter, error) {
	rl := cfg.API.RateLimit
	if !rl.Enabled {
		return nil, nil, nil
	}

	dir := rl.Dir
	if dir == "" {
		dir = filepath.Join(cfg.Server.DataDir, "ratelimit")
	}

	global, err := s.newLimiter(ratelimit.Config{
		Backend: rl.Backend,
		Dir:     filepath.Join(dir, "global"),
		RPS:     rl.GlobalRPS,
		Burst:   rl.Burst,
	}, rl.IdleTimeout, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create global rate limiter: %w", err)
	}

	perIP, err := s.newLimiter(ratelimit.Config{
		Backend: rl.Backend,
		Dir:     filepath.Join(dir, "ip"),
		RPS:     rl.PerIPRPS,
		Burst:   rl.Burst,
	}, rl.IdleTimeout, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create per-IP rate limiter: %w", err)
	}

	return global, perIP, nil
}

func (s *registryServer) newLimiter(cfg ratelimit.Config, idle time.Duration, log zerowrap.Logger) (out.RateLimiter, error) {
	limiter, err := ratelimit.NewStore(cfg, log)
	if err != nil {
		return nil, err
	}

	switch l := limiter.(type) {
	case *ratelimit.MemoryStore:
		if idle > 0 {
			s.background = append(s.background, func(ctx context.Context) error {
				return l.Run(ctx, sweepInterval, idle)
			})
		}
	case *ratelimit.StarskeyStore:
		s.closers = append(s.closers, l.Close)
	}

	return limiter, nil
}

// Handler returns the root HTTP handler.
func (s *registryServer) Handler() http.Handler {
	return s.handler
}

// Close stops the event bus and releases storage in reverse order of
// acquisition.
func (s *registryServer) Close() error {
	var errs []error
	if s.eventBus != nil {
		if err := s.eventBus.Stop(); err != nil {
			errs = append(errs, err)
		}
		s.eventBus = nil
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// serve runs the HTTP server and background tasks until ctx is done, then
// shuts the server down gracefully.
func serve(ctx context.Context, cfg Config, srv *registryServer, log zerowrap.Logger) error {
	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str(zerowrap.FieldLayer, "app").
			Str(zerowrap.FieldComponent, "http").
			Int("port", cfg.Server.Port).
			Str(zerowrap.FieldHost, cfg.Server.Hostname).
			Msg("registry listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("registry server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		log.Info().
			Str(zerowrap.FieldLayer, "app").
			Msg("shutting down registry server")

		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("registry server shutdown error")
		}
		return nil
	})

	for _, task := range srv.background {
		g.Go(func() error { return task(gctx) })
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().
		Str(zerowrap.FieldLayer, "app").
		Msg("ocistore shutdown complete")
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_ = json.NewEncoder(w).Encode(dto.HealthResponse{Status: "healthy"})
	}
}
