package handover

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/handover/internal/config"
	"github.com/loykin/handover/internal/drain"
	"github.com/loykin/handover/internal/handoff"
	"github.com/loykin/handover/internal/history"
	"github.com/loykin/handover/internal/history/factory"
	"github.com/loykin/handover/internal/metrics"
	"github.com/loykin/handover/internal/restart"
	iapi "github.com/loykin/handover/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = restart.Config

type Coordinator = restart.Coordinator

type Outcome = restart.Outcome

type Status = restart.Status

// Lifecycle serializes application state into the handoff payload. A
// returned error vetoes the restart.
type Lifecycle = handoff.Lifecycle

type Noop = handoff.Noop

type Event = history.Event

type Source = history.Source

type HistorySink = history.Sink

type HistoryConfig = cfg.HistoryConfig

const (
	SourceSocket   = history.SourceSocket
	SourceHTTP     = history.SourceHTTP
	SourceSchedule = history.SourceSchedule
	SourceLocal    = history.SourceLocal
)

var (
	ErrInProgress = restart.ErrInProgress
	ErrHandedOver = restart.ErrHandedOver
)

// New builds and starts a restart coordinator.
func New(c Config) (*Coordinator, error) { return restart.New(c) }

// Trigger contacts the coordinator listening on socketPath and waits for
// the attempt to conclude. An empty socketPath uses the default path.
func Trigger(ctx context.Context, socketPath string) (int, error) {
	return restart.Trigger(ctx, socketPath)
}

// IsNotRunning reports whether err means no coordinator was listening.
func IsNotRunning(err error) bool { return restart.IsNotRunning(err) }

// InheritedPayload returns the read end of the handoff channel when this
// process was spawned by a previous generation, or nil on a fresh start.
// Read it before calling New; the previous generation has already
// finished writing and closed its end.
func InheritedPayload() (*os.File, error) {
	inh, err := handoff.Probe()
	if err != nil || inh == nil {
		return nil, err
	}
	return inh.Payload(), nil
}

// Drain facade

type Drain = drain.Coordinator

type DrainHandle = drain.Handle

type DrainSignal = drain.Signal

func NewDrain() *Drain { return drain.New() }

func LoadConfig(path string) (*cfg.Config, error) {
	return cfg.LoadConfig(path)
}

// Admin HTTP API facade

type ServerConfig = iapi.Config

type Restarter = iapi.Restarter

// NewHTTPServer starts an HTTP server exposing the admin API.
func NewHTTPServer(addr string, c ServerConfig) (*http.Server, error) {
	return iapi.NewServer(addr, c)
}

// NewHistorySink builds a history sink from a DSN. Supported schemes:
// sqlite file paths, postgres://, clickhouse:// and opensearch://.
func NewHistorySink(dsn string) (HistorySink, error) {
	return factory.NewSinkFromDSN(dsn)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
