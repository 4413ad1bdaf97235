package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"queueforge/pkg/clock"
	"queueforge/pkg/config"
	"queueforge/pkg/events"
	"queueforge/pkg/game"
	"queueforge/pkg/metrics"
	"queueforge/pkg/queue"
	"queueforge/pkg/store"
)

// CLI is the server command line.
type CLI struct {
	Config  string `short:"c" help:"Path to a YAML config file." type:"path" env:"QUEUEFORGE_CONFIG"`
	Addr    string `help:"Listen address, overrides server.addr."`
	Verbose bool   `short:"v" help:"Mirror logs to the console."`
	Seed    bool   `help:"Create a homeworld when the database has no planets." default:"true" negatable:""`
}

// App carries everything the HTTP handlers need.
type App struct {
	engine     *queue.Engine
	orders     *game.Service
	planets    game.StateStore
	db         *sql.DB
	registry   *prometheus.Registry
	eventsMode string
	started    time.Time
}

func newApp(cfg *config.Config, st *store.SQLiteStore, publisher events.Publisher, clk clock.Clock) *App {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mode := "disabled"
	if _, ok := publisher.(*events.NATSPublisher); ok {
		mode = "nats"
	}

	engine := queue.NewEngine(st, game.NewPorts(st),
		queue.WithClock(clk),
		queue.WithLockTimeout(cfg.Queue.LockTimeout),
		queue.WithRecorder(metrics.NewPrometheusRecorder(registry)),
		queue.WithPublisher(publisher),
		queue.WithLoggers(InfoLog, ErrorLog),
	)
	return &App{
		engine:     engine,
		orders:     game.NewService(engine, st, cfg.Game.Speed, cfg.Queue.LockTimeout, InfoLog),
		planets:    st,
		db:         st.DB(),
		registry:   registry,
		eventsMode: mode,
		started:    time.Now(),
	}
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	// Client API Endpoints
	mux.HandleFunc("GET /api/overview", a.handleOverview)
	mux.HandleFunc("GET /api/queue", a.handleQueue)
	mux.HandleFunc("POST /api/order", a.handleOrder)
	mux.HandleFunc("POST /api/cancel", a.handleCancel)

	// Public Status Check
	mux.HandleFunc("GET /api/status", a.handleStatus)
	mux.Handle("GET /metrics", metrics.Handler(a.registry))

	// Wrap Middleware
	handler := middlewareSecurity(mux)
	return middlewareCORS(handler)
}

func run(cli CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if cli.Addr != "" {
		cfg.Server.Addr = cli.Addr
	}
	if cli.Verbose {
		cfg.Log.Verbose = true
	}

	if err := setupLogging(cfg.Log.Dir, cfg.Log.Verbose); err != nil {
		return err
	}
	configureLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	InfoLog.Printf("%s %s BOOT SEQUENCE", AppName, AppVersion)
	InfoLog.Printf("Database: %s (%s) | Speed: x%g | Lock timeout: %s", cfg.Database.Path, cfg.Database.Driver, cfg.Game.Speed, cfg.Queue.LockTimeout)

	st, err := initDB(ctx, cfg.Database, cli.Seed)
	if err != nil {
		return err
	}
	defer st.Close()

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.NATS.URL != "" {
		nc, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return err
		}
		defer nc.Close()
		publisher = nc
		InfoLog.Printf("Publishing queue events to %s (%s.*)", cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	}

	app := newApp(cfg, st, publisher, clock.System{})

	// Secure Server Config
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		InfoLog.Printf("Listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		InfoLog.Println("Shutting down...")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name(AppName),
		kong.Description("Production queue server for buildings, research and ships."),
		kong.UsageOnError(),
	)
	if err := run(cli); err != nil {
		if ErrorLog != nil {
			ErrorLog.Println(err)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
