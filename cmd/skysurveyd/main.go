package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"skysurvey/internal/api"
	"skysurvey/pkg/bus"
	"skysurvey/pkg/config"
	"skysurvey/pkg/db"
	"skysurvey/pkg/fleet"
	"skysurvey/pkg/logging"
	"skysurvey/pkg/mission"
	"skysurvey/pkg/probe"
	"skysurvey/pkg/store"
	"skysurvey/pkg/version"
)

const defaultConfigPath = "configs/skysurvey.yaml"

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", "", "Path to config file (default "+defaultConfigPath+")")
	trace      = flag.Bool("trace", false, "Enable per-tick trace logging")
)

func main() {
	flag.Parse()

	// .env is optional; it carries local overrides like SKYSURVEY_CONFIG.
	_ = godotenv.Load()

	path := *configPath
	if path == "" {
		path = os.Getenv("SKYSURVEY_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath
	}

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", path)
		return
	}

	logging.SetTrace(*trace)

	if err := run(context.Background(), path); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("SkySurvey Started", "version", version.Version, "addr", cfg.Server.Address)

	dbConn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbConn.Close()
	st := store.NewSQLiteStore(dbConn)

	checks := probe.Run(ctx,
		probe.Probe{
			Name:     "Database",
			Check:    func(context.Context) error { return dbConn.Ping() },
			Critical: true,
		},
		probe.Probe{
			// Non-critical: bases can be registered over the API later.
			Name: "Fleet",
			Check: func(pctx context.Context) error {
				bases, err := st.QueryActiveBases(pctx)
				if err != nil {
					return err
				}
				if len(bases) == 0 {
					return fmt.Errorf("no active bases registered")
				}
				return nil
			},
		},
	)
	if err := probe.AnalyzeResults(checks); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	eventBus := bus.New(cfg.Bus.BufferSize)
	selector := fleet.NewSelector(st, slog.With("component", "fleet"))
	charger := fleet.NewCharger(st, slog.With("component", "charger"),
		time.Duration(cfg.Fleet.ChargeInterval))

	supervisor := mission.NewSupervisor(ctx, st, eventBus, selector, charger,
		slog.With("component", "mission"), mission.Options{
			TickInterval: time.Duration(cfg.Ticker.MissionLoop),
			TickSeconds:  cfg.Ticker.TickSeconds,
			RetryBackoff: time.Duration(cfg.Ticker.RetryBackoff),
		})
	defer supervisor.StopAll()

	// Missions that were flying when the process died pick up where their
	// persisted state left off.
	if err := supervisor.Recover(ctx); err != nil {
		return fmt.Errorf("mission recovery failed: %w", err)
	}

	svc := mission.NewService(st, supervisor, slog.With("component", "mission"))

	return runServer(ctx, cfg, svc, st, eventBus)
}

func runServer(ctx context.Context, cfg *config.Config, svc *mission.Service, st store.Store, eventBus *bus.Bus) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewMissionHandler(svc),
		api.NewFleetHandler(st),
		api.NewStreamHandler(eventBus, st),
		shutdownFunc,
	)
	srv.Handler = loggingMiddleware(srv.Handler)

	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
