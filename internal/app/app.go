// Package app wires all tickvox subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and runs background jobs, and Shutdown tears
// everything down in order.
//
// For testing, inject stores and collaborators via functional options
// (WithSettingsStore, WithHistoryStore, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tickvox/internal/api"
	"github.com/MrWong99/tickvox/internal/config"
	"github.com/MrWong99/tickvox/internal/executor"
	"github.com/MrWong99/tickvox/internal/gateway"
	"github.com/MrWong99/tickvox/internal/health"
	"github.com/MrWong99/tickvox/internal/history"
	"github.com/MrWong99/tickvox/internal/mcpserver"
	"github.com/MrWong99/tickvox/internal/observe"
	"github.com/MrWong99/tickvox/internal/orchestrator"
	"github.com/MrWong99/tickvox/internal/phrase"
	"github.com/MrWong99/tickvox/internal/settings"
	"github.com/MrWong99/tickvox/internal/tracker"
)

// readHeaderTimeout bounds header reads independently of the body timeout.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	settings settings.Store
	history  history.Store
	tracker  tracker.Service
	intents  *executor.Registry
	orch     *orchestrator.Orchestrator
	limiter  *api.RateLimiter
	sweeper  *history.Sweeper
	checkers []health.Checker
	handler  http.Handler
	httpSrv  *http.Server

	metrics  *observe.Metrics
	logLevel *slog.LevelVar
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSettingsStore injects a settings store instead of creating one from config.
func WithSettingsStore(s settings.Store) Option {
	return func(a *App) { a.settings = s }
}

// WithHistoryStore injects a history store instead of creating one from config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithTracker injects the ticket service the command handlers operate on.
func WithTracker(t tracker.Service) Option {
	return func(a *App) { a.tracker = t }
}

// WithMetrics overrides the default metrics instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the app the level variable behind the default logger so
// config reloads can change verbosity.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithListener makes Run serve on l instead of listening on the configured
// address.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from main.go (see [BuildProviders]); only the LLM is mandatory.
//
// New performs all initialisation synchronously: storage connection and
// migration, tracker seeding, intent registry validation, pipeline and HTTP
// surface assembly.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}
	c := cfg.WithDefaults()
	a := &App{
		cfg:       &c,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Storage ───────────────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Tracker ───────────────────────────────────────────────────────
	if err := a.initTracker(ctx); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init tracker: %w", err)
	}

	// ── 3. Pipeline ──────────────────────────────────────────────────────
	synth, err := a.initPipeline()
	if err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	if err := a.initHTTP(synth); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init http: %w", err)
	}

	// ── 5. Retention ─────────────────────────────────────────────────────
	if iv := a.cfg.Storage.RetentionInterval; iv > 0 {
		a.sweeper = history.NewSweeper(a.history, history.RetentionFunc(a.retentionDays), iv,
			history.WithPurgeHook(func(ctx context.Context, _ string, n int) {
				a.metrics.HistoryPurged.Add(ctx, int64(n))
			}),
		)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStorage connects to PostgreSQL when a DSN is configured, otherwise
// falls back to in-memory stores. Injected stores are kept as they are.
func (a *App) initStorage(ctx context.Context) error {
	if a.settings != nil && a.history != nil {
		return nil
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		slog.Warn("no postgres_dsn configured, settings and history are kept in memory")
		if a.settings == nil {
			a.settings = settings.NewMemStore()
		}
		if a.history == nil {
			a.history = history.NewMemStore()
		}
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	a.checkers = append(a.checkers, health.PingCheck("postgres", pool))

	if a.settings == nil {
		st := settings.NewPostgresStore(pool)
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		a.settings = st
	}
	if a.history == nil {
		hs := history.NewPostgresStore(pool)
		if err := hs.Migrate(ctx); err != nil {
			return err
		}
		a.history = hs
	}
	slog.Info("connected to postgres")
	return nil
}

// initTracker creates the in-memory tracker and imports the seed file.
func (a *App) initTracker(ctx context.Context) error {
	if a.tracker != nil {
		return nil
	}
	store := tracker.NewMemStore()
	a.tracker = store

	path := a.cfg.Storage.TrackerSeedFile
	if path == "" {
		return nil
	}
	sf, err := tracker.LoadSeedFile(path)
	if err != nil {
		return fmt.Errorf("load seed file %q: %w", path, err)
	}
	n, err := store.Seed(ctx, sf)
	if err != nil {
		return fmt.Errorf("seed tracker from %q: %w", path, err)
	}
	slog.Info("seeded tracker", "path", path, "records", n)
	return nil
}

// initPipeline builds the gateways, the intent registry and the
// orchestrator. It returns the synthesizer, nil when no TTS is configured.
func (a *App) initPipeline() (*gateway.Synthesizer, error) {
	p := a.cfg.Pipeline

	interpOpts := []gateway.InterpreterOption{
		gateway.WithInterpretationTimeout(p.InterpretationTimeout),
		gateway.WithInterpreterMetrics(a.metrics),
	}
	if p.Temperature != nil {
		interpOpts = append(interpOpts, gateway.WithTemperature(*p.Temperature))
	}
	interp := gateway.NewInterpreter(a.providers.LLM, a.cfg.Providers.LLM.Name, interpOpts...)

	a.intents = executor.NewRegistry()
	if err := executor.RegisterBuiltins(a.intents, a.tracker); err != nil {
		return nil, err
	}
	// Every intent the model may choose needs a handler before we serve.
	if err := a.intents.Validate(interp.Intents()); err != nil {
		return nil, err
	}

	var matcherOpts []phrase.Option
	if p.CustomCommandThreshold > 0 {
		matcherOpts = append(matcherOpts, phrase.WithThreshold(p.CustomCommandThreshold))
	}
	orchOpts := []orchestrator.Option{
		orchestrator.WithPhraseMatcher(phrase.New(matcherOpts...)),
		orchestrator.WithMetrics(a.metrics),
	}

	if a.providers.STT != nil {
		orchOpts = append(orchOpts, orchestrator.WithTranscriber(gateway.NewTranscriber(
			a.providers.STT, a.cfg.Providers.STT.Name,
			gateway.WithTranscriptionTimeout(p.TranscriptionTimeout),
			gateway.WithLanguage(p.Language),
			gateway.WithVocabulary(strings.Join(p.Vocabulary, ", ")),
			gateway.WithTranscriberMetrics(a.metrics),
		)))
	} else {
		slog.Warn("no STT provider configured, audio commands will fail")
	}

	var synth *gateway.Synthesizer
	if a.providers.TTS != nil {
		synth = gateway.NewSynthesizer(
			a.providers.TTS, a.cfg.Providers.TTS.Name,
			gateway.WithSynthesisTimeout(p.SynthesisTimeout),
			gateway.WithSynthesizerMetrics(a.metrics),
		)
		orchOpts = append(orchOpts, orchestrator.WithSynthesizer(synth))
	}

	orch, err := orchestrator.New(interp, a.intents, a.settings, a.history, orchOpts...)
	if err != nil {
		return nil, err
	}
	a.orch = orch

	for _, pc := range []struct {
		kind     string
		provider any
	}{
		{"llm", a.providers.LLM},
		{"stt", a.providers.STT},
		{"tts", a.providers.TTS},
	} {
		if g, ok := pc.provider.(health.ProviderGroup); ok {
			a.checkers = append(a.checkers, health.ProviderCheck(pc.kind, g))
		}
	}
	return synth, nil
}

// initHTTP assembles the API, health, metrics and MCP routes.
func (a *App) initHTTP(synth *gateway.Synthesizer) error {
	auth, err := api.NewAuthenticator(api.AuthConfig{
		Secret:   a.cfg.Auth.JWTSecret,
		Issuer:   a.cfg.Auth.Issuer,
		Audience: a.cfg.Auth.Audience,
		Disabled: a.cfg.Auth.Disabled,
		DevUser:  a.cfg.Auth.DevUser,
	})
	if err != nil {
		return err
	}
	if a.cfg.Auth.Disabled {
		slog.Warn("authentication disabled, all requests act as the dev user", "user", a.cfg.Auth.DevUser)
	}

	rl := a.cfg.RateLimit
	a.limiter = api.NewRateLimiter(rl.Enabled, rl.PerMinute, rl.Burst)

	hh := health.New(a.checkers...)
	opts := []api.Option{
		api.WithRateLimiter(a.limiter),
		api.WithMaxBodyBytes(a.cfg.Server.MaxBodyBytes),
		api.WithMetrics(a.metrics),
		api.WithPublicRoute("GET /healthz", http.HandlerFunc(hh.Healthz)),
		api.WithPublicRoute("GET /readyz", http.HandlerFunc(hh.Readyz)),
		api.WithPublicRoute("GET /metrics", promhttp.Handler()),
	}
	if synth != nil {
		opts = append(opts, api.WithSynthesizer(synth))
	}
	if a.cfg.MCP.Enabled {
		ms, err := mcpserver.New(a.orch, a.settings, a.history)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithRoute(a.cfg.MCP.Path, ms.Handler()))
		slog.Info("MCP endpoint enabled", "path", a.cfg.MCP.Path)
	}

	srv, err := api.New(a.orch, a.settings, a.history, auth, opts...)
	if err != nil {
		return err
	}
	a.handler = srv.Handler()
	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}
	return nil
}

// retentionDays reads the user's history retention from their settings.
func (a *App) retentionDays(ctx context.Context, userID string) (int, error) {
	vs, err := a.settings.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return vs.Privacy.HistoryRetentionDays, nil
}

// Handler returns the complete HTTP handler. Useful for tests.
func (a *App) Handler() http.Handler { return a.handler }

// Orchestrator returns the command pipeline.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and runs the retention sweeper until ctx is cancelled.
// The HTTP server is drained within the configured shutdown timeout before
// Run returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen on %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve http: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.httpSrv.Shutdown(sctx); err != nil {
			slog.Warn("http shutdown incomplete", "err", err)
		}
		return nil
	})

	if a.sweeper != nil {
		g.Go(func() error { return a.sweeper.Run(gctx) })
	}

	slog.Info("app running", "addr", ln.Addr().String())
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of next. Changes that need a
// restart are logged and otherwise ignored.
func (a *App) ApplyConfig(old, next *config.Config) {
	d := config.Diff(old, next)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.RateLimitChanged {
		rl := d.NewRateLimit
		a.limiter.Configure(rl.Enabled, rl.PerMinute, rl.Burst)
		slog.Info("rate limit changed", "enabled", rl.Enabled, "per_minute", rl.PerMinute, "burst", rl.Burst)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
}

// SlogLevel maps a config level to its slog equivalent. Unknown levels map
// to info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases what a failed New already acquired.
func (a *App) runClosers() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
