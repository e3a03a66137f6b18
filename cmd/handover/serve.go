package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/handover"
	"github.com/loykin/handover/internal/config"
	"github.com/loykin/handover/internal/echodemo"
	tlsutil "github.com/loykin/handover/internal/tls"
)

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg, err := loadServeConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}

	lg := slog.Default()
	if cfg.Log != nil {
		lg, err = cfg.Log.New()
		if err != nil {
			return fmt.Errorf("error building logger: %w", err)
		}
		slog.SetDefault(lg)
	}

	var childEnv []string
	if configPath != "" {
		childEnv, err = config.LoadGlobalEnv(configPath)
		if err != nil {
			return fmt.Errorf("error loading env: %w", err)
		}
	}

	// A handoff parent has already written the generation counter.
	generation := 0
	if payload, err := handover.InheritedPayload(); err != nil {
		lg.Warn("handoff probe failed, starting fresh", "error", err)
	} else if payload != nil {
		generation, err = echodemo.DecodePayload(payload)
		_ = payload.Close()
		if err != nil {
			return fmt.Errorf("inherited handoff payload: %w", err)
		}
	}

	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PidFile) }()
	}

	d := handover.NewDrain()

	demo, err := echodemo.New(echodemo.Config{
		Port:           cfg.Echo.Port,
		MaxGenerations: cfg.Echo.MaxGenerations,
		Greeting:       cfg.Echo.Greeting,
	}, generation, d, lg)
	if err != nil {
		return err
	}
	defer func() { _ = demo.Close() }()

	var sink handover.HistorySink
	if cfg.History.DSN != "" {
		sink, err = handover.NewHistorySink(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("error opening history sink: %w", err)
		}
		defer func() {
			if c, ok := sink.(io.Closer); ok {
				_ = c.Close()
			}
		}()
	}

	if cfg.Metrics.Enabled {
		if err := handover.RegisterMetricsDefault(); err != nil {
			lg.Warn("failed to register metrics", "error", err)
		}
		go func() {
			if err := handover.ServeMetrics(cfg.Metrics.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("metrics server error", "error", err)
			}
		}()
		lg.Info("metrics listening", "addr", cfg.Metrics.Listen)
	}

	coord, err := handover.New(handover.Config{
		Enabled:      cfg.Restart.EndpointEnabled(),
		SocketPath:   cfg.Restart.Socket,
		Lifecycle:    demo.Lifecycle(),
		ReadyTimeout: cfg.Restart.ReadyTimeout,
		Schedule:     cfg.Restart.Schedule,
		Env:          childEnv,
		Generation:   generation,
		History:      sink,
		Logger:       lg,
	})
	if err != nil {
		return err
	}
	defer func() { _ = coord.Close() }()

	var admin *http.Server
	if cfg.Server.Enabled {
		tlsConf, err := tlsutil.Setup(cfg.Server.TLS)
		if err != nil {
			return fmt.Errorf("admin tls: %w", err)
		}
		admin, err = handover.NewHTTPServer(cfg.Server.Listen, handover.ServerConfig{
			Restarter:     coord,
			Drain:         d,
			History:       sink,
			BasePath:      cfg.Server.BasePath,
			AuthTokenHash: cfg.Server.AuthTokenHash,
			TLS:           tlsConf,
		})
		if err != nil {
			return fmt.Errorf("failed to create admin server: %w", err)
		}
		defer func() { _ = admin.Close() }()
		lg.Info("admin API listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath, "tls", tlsConf != nil)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-coord.Done():
		out := coord.Outcome()
		if out.Err != nil {
			return fmt.Errorf("coordination endpoint failed: %w", out.Err)
		}
		lg.Info("handed over, draining connections", "child_pid", out.ChildPID)
		_ = demo.Close()
		drainAndReport(d, flags, lg)
		return nil
	case sig := <-sigCh:
		lg.Info("shutting down", "signal", sig.String())
		_ = coord.Close()
		_ = demo.Close()
		drainAndReport(d, flags, lg)
		return nil
	}
}

func drainAndReport(d *handover.Drain, flags *ServeFlags, lg *slog.Logger) {
	ctx := context.Background()
	if flags.DrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.DrainTimeout)
		defer cancel()
	}
	if err := d.Drain(ctx); err != nil {
		lg.Warn("exiting with connections still open", "active", d.Active(), "error", err)
		return
	}
	lg.Info("all connections drained")
}

// loadServeConfig falls back to built-in defaults when no config file
// is given, so a bare "handover" run works out of the box.
func loadServeConfig(path string) (*config.Config, error) {
	if path == "" {
		c := &config.Config{}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return c, nil
	}
	return handover.LoadConfig(path)
}
