package restart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/handover/internal/handoff"
	"github.com/loykin/handover/internal/history"
	"github.com/loykin/handover/internal/metrics"
	"github.com/loykin/handover/internal/sched"
)

// DefaultSocketPath is where the coordination endpoint listens when the
// config does not name a path.
const DefaultSocketPath = "/tmp/handover.sock"

const connIOTimeout = 10 * time.Second

// Config describes one generation's restart coordinator.
type Config struct {
	// Enabled binds the coordination endpoint. Without it restarts can
	// still be triggered in-process via TriggerLocal.
	Enabled bool
	// SocketPath is the unix socket the endpoint listens on.
	// Defaults to DefaultSocketPath.
	SocketPath string
	// Lifecycle serializes application state into the handoff channel
	// and may refuse the restart. Defaults to handoff.Noop.
	Lifecycle handoff.Lifecycle
	// ReadyTimeout bounds the wait for the next generation's readiness
	// signal. Zero means wait forever.
	ReadyTimeout time.Duration
	// Schedule optionally restarts on a fixed interval,
	// in the form "@every <duration>".
	Schedule string
	// Command overrides the argv used to spawn the next generation.
	// Defaults to re-executing the current binary with its arguments.
	Command []string
	// Env adds "K=V" overrides to the next generation's environment.
	Env []string
	// Generation is an application-owned counter carried into logs,
	// metrics and history events. The engine never interprets it.
	Generation int
	// History receives trigger/success/failure events when set.
	History history.Sink
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Outcome is the final state of a coordinator: either a successful
// handover to ChildPID or a fatal endpoint error.
type Outcome struct {
	ChildPID int
	Err      error
}

// Status is a point-in-time snapshot for admin surfaces.
type Status struct {
	PID        int       `json:"pid"`
	Generation int       `json:"generation"`
	SocketPath string    `json:"socket_path"`
	Enabled    bool      `json:"enabled"`
	InFlight   bool      `json:"in_flight"`
	HandedOver bool      `json:"handed_over"`
	StartedAt  time.Time `json:"started_at"`
}

// Coordinator owns the coordination endpoint and runs restart attempts.
// At most one attempt is in flight; concurrent triggers are rejected,
// never queued.
type Coordinator struct {
	cfg       Config
	lg        *slog.Logger
	ln        *net.UnixListener
	inherited *handoff.Inherited
	scheduler *sched.Scheduler
	startedAt time.Time

	inFlight   atomic.Bool
	handedOver atomic.Bool
	closed     atomic.Bool

	resolveOnce sync.Once
	doneCh      chan struct{}
	outcome     Outcome

	closeOnce sync.Once
}

// New probes for an inherited handoff channel, binds the coordination
// endpoint and, when this process is a spawned next generation, signals
// readiness back to its parent.
func New(cfg Config) (*Coordinator, error) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath
	}
	if cfg.Lifecycle == nil {
		cfg.Lifecycle = handoff.Noop{}
	}
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	lg = lg.With("component", "restart")

	inh, err := handoff.Probe()
	if err != nil {
		return nil, fmt.Errorf("probe inherited handoff channel: %w", err)
	}

	c := &Coordinator{
		cfg:       cfg,
		lg:        lg,
		inherited: inh,
		startedAt: time.Now(),
		doneCh:    make(chan struct{}),
	}

	if cfg.Enabled {
		// A spawned generation replaces the endpoint path bound by its
		// parent instead of probing it for liveness.
		ln, err := bindEndpoint(cfg.SocketPath, inh != nil)
		if err != nil {
			return nil, err
		}
		c.ln = ln
	}

	if cfg.Schedule != "" {
		s, err := sched.New(cfg.Schedule, c.scheduledTrigger)
		if err != nil {
			if c.ln != nil {
				_ = c.ln.Close()
			}
			return nil, fmt.Errorf("restart schedule: %w", err)
		}
		c.scheduler = s
	}

	if inh != nil {
		if err := inh.Ready(); err != nil {
			lg.Warn("could not signal readiness to previous generation", "error", err)
		}
	}

	metrics.SetGeneration(cfg.Generation)
	lg.Info("restart coordinator up",
		"pid", os.Getpid(),
		"generation", cfg.Generation,
		"socket", cfg.SocketPath,
		"endpoint_enabled", cfg.Enabled,
		"inherited", inh != nil)

	if c.ln != nil {
		go c.acceptLoop()
	}
	c.scheduler.Start()
	return c, nil
}

// HandoffPayload returns the reader for state serialized by the
// previous generation, or nil on a fresh start. The caller owns the
// returned file and should close it after consuming the payload.
func (c *Coordinator) HandoffPayload() *os.File {
	if c.inherited == nil {
		return nil
	}
	return c.inherited.Payload()
}

// Done is closed when the coordinator reaches its final state: a
// successful handover or a fatal endpoint failure. Outcome reports
// which one.
func (c *Coordinator) Done() <-chan struct{} { return c.doneCh }

// Outcome is valid once Done is closed.
func (c *Coordinator) Outcome() Outcome {
	return c.outcome
}

func (c *Coordinator) resolve(o Outcome) {
	c.resolveOnce.Do(func() {
		c.outcome = o
		close(c.doneCh)
	})
}

// Status snapshots coordinator state for admin surfaces.
func (c *Coordinator) Status() Status {
	return Status{
		PID:        os.Getpid(),
		Generation: c.cfg.Generation,
		SocketPath: c.cfg.SocketPath,
		Enabled:    c.cfg.Enabled,
		InFlight:   c.inFlight.Load(),
		HandedOver: c.handedOver.Load(),
		StartedAt:  c.startedAt,
	}
}

// TriggerLocal runs a restart attempt in-process, for admin handlers
// and signal loops. It blocks until the attempt settles.
func (c *Coordinator) TriggerLocal(ctx context.Context, source history.Source) (int, error) {
	if source == "" {
		source = history.SourceLocal
	}
	return c.attempt(ctx, source)
}

func (c *Coordinator) scheduledTrigger() {
	_, err := c.attempt(context.Background(), history.SourceSchedule)
	switch {
	case err == nil:
	case errors.Is(err, ErrInProgress), errors.Is(err, ErrHandedOver):
		// benign during overlap with a manual trigger or after success
	default:
		c.lg.Warn("scheduled restart failed", "error", err)
	}
}

// Close tears the coordinator down without restarting. After a
// successful handover the endpoint is left to the next generation.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.scheduler.Stop()
		if c.ln != nil && !c.handedOver.Load() {
			_ = c.ln.Close()
		}
	})
	return nil
}

func (c *Coordinator) acceptLoop() {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			if c.closed.Load() || c.handedOver.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			c.lg.Error("coordination endpoint accept failed", "error", err)
			c.resolve(Outcome{Err: fmt.Errorf("coordination endpoint: %w", err)})
			return
		}
		go c.handleConn(conn)
	}
}

func (c *Coordinator) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(connIOTimeout))
	req, err := readRequest(conn)
	if err != nil {
		_ = writeResponse(conn, Response{OK: false, Kind: KindProtocol, Error: err.Error()})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	var resp Response
	switch req.Command {
	case CommandRestart:
		pid, err := c.attempt(context.Background(), history.SourceSocket)
		if err != nil {
			resp = failureResponse(err)
		} else {
			resp = successResponse(pid)
		}
	default:
		resp = Response{OK: false, Kind: KindProtocol, Error: fmt.Sprintf("unknown command %q", req.Command)}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(connIOTimeout))
	if err := writeResponse(conn, resp); err != nil {
		c.lg.Warn("write trigger response", "error", err)
	}
}

// attempt runs one restart: spawn, hand off, await readiness. A failed
// attempt leaves this generation serving and triggerable again; only a
// successful handover is terminal.
func (c *Coordinator) attempt(ctx context.Context, source history.Source) (int, error) {
	if c.handedOver.Load() {
		metrics.IncTrigger(metrics.ResultRejected)
		return 0, ErrHandedOver
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		metrics.IncTrigger(metrics.ResultRejected)
		c.record(history.EventFailed, 0, source, KindInProgress, ErrInProgress.Error())
		return 0, ErrInProgress
	}
	defer c.inFlight.Store(false)
	metrics.SetInFlight(true)
	defer metrics.SetInFlight(false)
	start := time.Now()
	defer func() { metrics.ObserveAttemptDuration(time.Since(start).Seconds()) }()

	c.lg.Info("restart requested", "source", string(source), "generation", c.cfg.Generation)
	c.record(history.EventTriggered, 0, source, "", "")

	pipes, err := handoff.NewPipes()
	if err != nil {
		werr := &HandoffError{Err: err}
		c.fail(source, werr)
		return 0, werr
	}

	cmd, exited, err := c.spawnChild(pipes)
	if err != nil {
		pipes.CloseParentEnds()
		pipes.CloseChildEnds()
		werr := &SpawnError{Err: err}
		c.fail(source, werr)
		return 0, werr
	}
	pid := cmd.Process.Pid
	pipes.CloseChildEnds()
	c.lg.Info("next generation spawned", "pid", pid)

	cw := &countingWriter{w: pipes.PayloadW}
	if serr := c.cfg.Lifecycle.Send(ctx, cw); serr != nil {
		// A write failure is channel trouble; anything else is the
		// application refusing the restart. Closing the write end lets
		// the child tell an aborted handoff from a fresh start.
		var werr error
		if cw.err != nil && errors.Is(serr, cw.err) {
			werr = &HandoffError{Err: serr}
		} else {
			werr = &VetoError{Err: serr}
		}
		pipes.CloseParentEnds()
		c.terminateChild(cmd, exited)
		c.fail(source, werr)
		return 0, werr
	}
	metrics.AddHandoffBytes(int(cw.n))
	_ = pipes.PayloadW.Close()

	if err := c.waitReady(ctx, pipes.NotifyR, exited); err != nil {
		_ = pipes.NotifyR.Close()
		werr := &NotReadyError{Err: err}
		c.terminateChild(cmd, exited)
		c.fail(source, werr)
		return 0, werr
	}
	_ = pipes.NotifyR.Close()

	c.handedOver.Store(true)
	metrics.IncTrigger(metrics.ResultSuccess)
	c.record(history.EventSucceeded, pid, source, "", "")
	c.lg.Info("handed over to next generation",
		"pid", pid, "payload_bytes", cw.n, "took", time.Since(start))

	c.scheduler.Stop()
	if c.ln != nil {
		// The child has already rebound the path; closing must not
		// unlink its socket.
		c.ln.SetUnlinkOnClose(false)
		_ = c.ln.Close()
	}
	c.resolve(Outcome{ChildPID: pid})
	return pid, nil
}

func (c *Coordinator) fail(source history.Source, err error) {
	kind := errorKind(err)
	switch kind {
	case KindVeto:
		metrics.IncTrigger(metrics.ResultVeto)
	case KindSpawn:
		metrics.IncTrigger(metrics.ResultSpawn)
	case KindHandoff:
		metrics.IncTrigger(metrics.ResultHandoff)
	case KindNotReady:
		metrics.IncTrigger(metrics.ResultNotReady)
	default:
		metrics.IncTrigger(metrics.ResultRejected)
	}
	c.record(history.EventFailed, 0, source, kind, err.Error())
	c.lg.Warn("restart attempt failed", "kind", kind, "error", err)
}

func (c *Coordinator) record(t history.EventType, childPID int, source history.Source, kind, detail string) {
	if c.cfg.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		PID:        os.Getpid(),
		Generation: c.cfg.Generation,
		ChildPID:   childPID,
		Source:     source,
		Kind:       kind,
		Detail:     detail,
	}
	if err := c.cfg.History.Send(ctx, e); err != nil {
		c.lg.Warn("history sink rejected event", "type", string(t), "error", err)
	}
}

// countingWriter tracks bytes and the first write error so a lifecycle
// failure can be classified as channel I/O versus application veto.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	if err != nil && cw.err == nil {
		cw.err = err
	}
	return n, err
}
