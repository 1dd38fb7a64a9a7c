// Package app wires the qrauth server runtime: config, logging, the session
// state machine, HTTP routes, the status-watch gateway, and background workers.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"qrauth/cmd/identity"
	"qrauth/cmd/internal/audit"
	authapi "qrauth/cmd/internal/auth/api"
	"qrauth/cmd/internal/auth/session"
	"qrauth/cmd/internal/realtime"
)

// App is the qrauth server runtime. It owns the HTTP server, the expiry
// reaper, and the optional audit writer.
type App struct {
	cfg Config
	log Logger

	users   *identity.MemoryDirectory
	machine *session.Machine
	reaper  *session.Reaper
	hub     *realtime.StatusHub

	auth  *authapi.Handler
	watch *realtime.WatchGateway

	registry *prometheus.Registry

	dbPool *pgxpool.Pool
	audit  *audit.PostgresSink
	redis  *redis.Client

	baseURL string
}

// New constructs a fully wired App. Postgres and Redis are connected only
// when their URLs are configured.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("app: session config: %w", err)
	}
	apiCfg := authapi.LoadConfigFromEnv()
	wsCfg := realtime.LoadConfigFromEnv()

	a := &App{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.users = identity.NewMemoryDirectory()
	seeds, err := identity.ParseSeeds(cfg.SeedUsers)
	if err != nil {
		return nil, err
	}
	if err := identity.SeedDirectory(ctx, a.users, seeds); err != nil {
		return nil, fmt.Errorf("app: seed users: %w", err)
	}
	if len(seeds) > 0 {
		log.Info("users.seeded", "count", len(seeds))
	}

	store := session.NewMemoryStore(
		session.WithTokenBytes(sessCfg.TokenBytes),
		session.WithHasher(tokenHasher()),
	)

	a.hub = realtime.NewStatusHub(log)
	a.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "qrauth",
		Subsystem: "watch",
		Name:      "watchers",
		Help:      "Open status-watch sockets.",
	}, func() float64 { return float64(a.hub.Len()) }))

	observers := []session.Observer{
		a.hub,
		session.NewMetrics(a.registry, store.Len),
	}

	if cfg.DatabaseURL != "" {
		if err := a.openAudit(ctx); err != nil {
			a.Close()
			return nil, err
		}
		observers = append(observers, audit.NewSessionObserver(a.audit))
	} else {
		log.Info("db.disabled.audit_off")
	}

	a.machine = session.NewMachine(sessCfg, store, a.users,
		session.WithLogger(log),
		session.WithObserver(observers...),
	)
	a.reaper = session.NewReaper(a.machine, sessCfg.ReaperInterval, log)

	a.baseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if a.baseURL == "" {
		a.baseURL = runtimeBaseURL(cfg.HTTPAddr)
	}

	apiOpts := []authapi.HandlerOption{authapi.WithBaseURL(a.baseURL)}
	if cfg.RedisURL != "" {
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		apiOpts = append(apiOpts, authapi.WithLimiter(
			authapi.NewRedisLimiter(client, apiCfg.RateLimitEvents, apiCfg.RateLimitWindow),
		))
		log.Info("ratelimit.redis.enabled")
	}

	a.auth = authapi.NewHandler(log, apiCfg, a.machine, a.users, apiOpts...)
	a.watch = realtime.NewWatchGateway(log, wsCfg, a.hub, a.machine)

	return a, nil
}

func (a *App) openAudit(ctx context.Context) error {
	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.dbPool = pool

	if err := audit.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("app: audit schema: %w", err)
	}
	a.audit = audit.NewPostgresSink(pool, a.log, a.cfg.AuditBuffer)
	a.log.Info("db.enabled.audit_postgres")
	return nil
}

// Handler returns the root HTTP handler with middleware applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)

	var h http.Handler = mux
	if len(a.cfg.CORSAllowedOrigins) > 0 {
		h = WithCORS(h, a.cfg, a.log)
	}
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, a.log)
	return WithRequestID(h)
}

// Run starts the HTTP server and background workers and blocks until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server.start",
			"addr", a.cfg.HTTPAddr,
			"base_url", a.baseURL,
			"watch_url", wsBaseURL(a.baseURL)+"/auth/qr/watch",
			"audit", a.audit != nil,
			"redis", a.redis != nil,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error { return a.reaper.Run(gctx) })

	if a.audit != nil {
		g.Go(func() error { return a.audit.Run(gctx) })
	}

	err := g.Wait()
	a.log.Info("server.stopped")
	return err
}

// Close releases external connections. It is safe to call more than once.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

// runtimeBaseURL derives a reachable http origin from a listen address,
// mapping wildcard binds to loopback.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL maps an http(s) origin to its ws(s) counterpart.
func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
