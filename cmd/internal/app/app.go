// Package app wires the eucl server runtime: config, logging, storage,
// the session subsystem, HTTP routes and background sweeping.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"eucl/cmd/identity"
	"eucl/cmd/internal/auth/api"
	"eucl/cmd/internal/auth/session"
	"eucl/cmd/internal/migrations"
	"eucl/cmd/security/token"
)

// App is the eucl server runtime.
type App struct {
	cfg Config
	log Logger

	pool     *pgxpool.Pool
	registry *prometheus.Registry

	users    *identity.Service
	sessions *session.Service
	sweeper  *session.Sweeper
	handler  http.Handler
}

// New constructs a fully wired App. It fails when the security policy is
// not met, including when no signing key is configured.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.Log)
	}

	hasher, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}
	pwCfg, err := cfg.Passwords()
	if err != nil {
		return nil, err
	}
	signer, err := session.NewJWTSigner(cfg.Session())
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st, err := a.newStores(ctx, hasher)
	if err != nil {
		return nil, err
	}

	a.users, err = identity.NewService(st.users, pwCfg, identity.WithLogger(log))
	if err != nil {
		a.close()
		return nil, err
	}
	if err := a.seedAdmin(ctx); err != nil {
		a.close()
		return nil, err
	}

	metrics := session.NewMetrics(a.registry)
	a.sessions = session.NewService(signer, st.refresh, st.revocations, a.users,
		session.WithLogger(log),
		session.WithMetrics(metrics),
	)
	a.sweeper = session.NewSweeper(st.refresh, st.revocations, cfg.Auth.SweepInterval, log, metrics)

	opts := []api.HandlerOption{api.WithLogger(log), api.WithAuditor(st.auditor)}
	if st.failures != nil {
		opts = append(opts, api.WithFailureCounter(st.failures))
	}
	authHandler, err := api.NewHandler(cfg.API(), a.sessions, a.users, opts...)
	if err != nil {
		a.close()
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, a.pool, a.registry, authHandler)
	a.handler = WithRequestLogging(mux, log, newHTTPMetrics(a.registry))

	log.Info("app.ready",
		"db_enabled", a.pool != nil,
		"revocation_backend", cfg.Auth.RevocationBackend,
		"signing_alg", signer.Algorithm(),
		"token_hmac", hasher.Keyed(),
	)
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP and runs the sweeper until ctx is done or the server
// fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		a.close()
		return fmt.Errorf("listen %s: %w", a.cfg.HTTP.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	defer a.close()

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.HTTP.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.HTTP.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.HTTP.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.HTTP.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.HTTP.MaxHeaderBytes, 1<<20),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server.start", "addr", ln.Addr().String(), "db_enabled", a.pool != nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error { return a.sweeper.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.HTTP.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	err := g.Wait()
	a.log.Info("server.stopped")
	return err
}

type stores struct {
	users       identity.Store
	refresh     session.RefreshStore
	revocations session.RevocationRegistry
	auditor     api.Auditor
	failures    api.FailureCounter
}

// newStores decides between Postgres-backed persistence and in-memory stores.
func (a *App) newStores(ctx context.Context, hasher token.Hasher) (stores, error) {
	sessCfg := a.cfg.Session()
	logAudit := api.LogAuditor{Log: a.log}

	if !a.cfg.dbEnabled() {
		a.log.Info("db.disabled.inmemory_store")
		return stores{
			users:       identity.NewMemoryStore(),
			refresh:     session.NewMemoryRefreshStore(sessCfg, hasher),
			revocations: session.NewMemoryRevocationRegistry(),
			auditor:     logAudit,
		}, nil
	}

	pool, err := NewDBPool(ctx, a.cfg.Database)
	if err != nil {
		return stores{}, fmt.Errorf("db: %w", err)
	}
	a.pool = pool

	if a.cfg.Database.Migrate {
		if err := migrations.Up(ctx, pool); err != nil {
			a.close()
			return stores{}, err
		}
		a.log.Info("db.migrated")
	}

	st := stores{}
	fail := func(err error) (stores, error) {
		a.close()
		return stores{}, err
	}

	if st.users, err = identity.NewPostgresStore(pool); err != nil {
		return fail(err)
	}
	if st.refresh, err = session.NewPostgresRefreshStore(pool, sessCfg, hasher); err != nil {
		return fail(err)
	}
	if a.cfg.Auth.RevocationBackend == RevocationPostgres {
		if st.revocations, err = session.NewPostgresRevocationRegistry(pool); err != nil {
			return fail(err)
		}
	} else {
		st.revocations = session.NewMemoryRevocationRegistry()
	}

	pgAudit, err := api.NewPostgresAuditor(pool, a.log, migrations.Schema)
	if err != nil {
		return fail(err)
	}
	st.auditor = api.Auditors{logAudit, pgAudit}
	st.failures = pgAudit

	a.log.Info("db.enabled.postgres_store")
	return st, nil
}

func (a *App) seedAdmin(ctx context.Context) error {
	admin := a.cfg.Admin
	if admin.Email == "" {
		return nil
	}
	u, created, err := a.users.EnsureAdmin(ctx, admin.Name, admin.Email, admin.Password)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	a.log.Info("admin.seeded", "user_id", u.ID, "created", created)
	return nil
}

func (a *App) close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
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
