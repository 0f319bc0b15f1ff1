package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensky-to/agent-sub001/internal/api"
	"github.com/opensky-to/agent-sub001/pkg/backend"
	"github.com/opensky-to/agent-sub001/pkg/config"
	"github.com/opensky-to/agent-sub001/pkg/logging"
	"github.com/opensky-to/agent-sub001/pkg/request"
	"github.com/opensky-to/agent-sub001/pkg/sim"
	"github.com/opensky-to/agent-sub001/pkg/sim/mocksim"
	"github.com/opensky-to/agent-sub001/pkg/store"
	"github.com/opensky-to/agent-sub001/pkg/tracking"
	"github.com/opensky-to/agent-sub001/pkg/vatsim"
	"github.com/opensky-to/agent-sub001/pkg/version"
)

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

const configPath = "configs/agent.yaml"

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: " + configPath)
		return
	}

	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Secrets (OPENSKY_API_TOKEN) may live in a local .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("OpenSky Agent started", "version", version.Version)

	st, err := store.Open(filepath.Join(cfg.Agent.DataDir, "agent.db"))
	if err != nil {
		return fmt.Errorf("failed to open state db: %w", err)
	}
	defer st.Close()

	rc := request.New(cfg.Backend.Timeout.Std(), cfg.Backend.Backoff.Attempts, cfg.Backend.Backoff.BaseDelay.Std())
	be := backend.NewHTTPClient(cfg.Backend.URL, cfg.Backend.Token, rc)

	// Startup reachability check. A dead backend is not fatal: uploads retry
	// on their own schedule, but the user should know right away.
	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := be.Ping(pingCtx); err != nil {
		slog.Warn("OpenSky backend not reachable", "url", cfg.Backend.URL, "error", err)
	} else {
		slog.Info("OpenSky backend reachable", "url", cfg.Backend.URL)
	}
	pingCancel()

	tracker, err := tracking.New(cfg, nil, be, st)
	if err != nil {
		return fmt.Errorf("failed to create tracker: %w", err)
	}

	source, err := initializeSimSource(cfg, tracker)
	if err != nil {
		return fmt.Errorf("failed to initialize sim bridge: %w", err)
	}
	defer source.Close()
	tracker.AttachSource(source)

	hub := api.NewHub()
	defer hub.Close()
	tracker.Subscribe(hub)

	if cfg.Vatsim.Enabled {
		cid, err := strconv.Atoi(cfg.Vatsim.CID)
		if err != nil {
			return fmt.Errorf("invalid vatsim cid %q: %w", cfg.Vatsim.CID, err)
		}
		svc := vatsim.NewService(cfg.Vatsim.URL, cid, rc, func(s vatsim.Status) {
			tracker.UpdateVatsimStatus(s.Online, s.Callsign)
		})
		go svc.Run(ctx)
	}

	tracker.Start(ctx)
	defer tracker.Close()

	srv := api.NewServer(cfg.Server.Address, tracker, hub, cancel)
	go func() {
		slog.Info("Status server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Status server failed", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutting down on signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("Shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Status server shutdown incomplete", "error", err)
	}

	return nil
}

// initializeSimSource wires the configured simulator bridge to the tracker's
// telemetry queues. Only the scripted mock ships in this binary; the
// SimConnect bridge is a separate process feeding the same queues.
func initializeSimSource(cfg *config.Config, consumer sim.Consumer) (sim.Source, error) {
	switch cfg.Sim.Provider {
	case "mock", "":
		return mocksim.NewClient(mocksim.Config{
			StartLat:     cfg.Sim.Mock.StartLat,
			StartLon:     cfg.Sim.Mock.StartLon,
			StartHeading: cfg.Sim.Mock.StartHeading,
		}, consumer), nil
	default:
		return nil, fmt.Errorf("unknown sim provider: %s", cfg.Sim.Provider)
	}
}
