package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/loykin/handover/internal/drain"
	"github.com/loykin/handover/internal/history"
	"github.com/loykin/handover/internal/metrics"
	"github.com/loykin/handover/internal/restart"
)

// Router provides embeddable HTTP handlers for the admin plane.
// Endpoints:
//
//	GET  {basePath}/healthz       liveness
//	GET  {basePath}/status        restart + drain + process snapshot
//	POST {basePath}/restart       trigger a restart attempt
//	GET  {basePath}/history       query: limit=N (needs a queryable sink)
//
// basePath may be empty or start with '/'; no trailing slash.
// healthz is always unauthenticated; the rest honors AuthTokenHash.

// Restarter is the slice of the restart coordinator the admin plane
// needs. *restart.Coordinator satisfies it.
type Restarter interface {
	TriggerLocal(ctx context.Context, source history.Source) (int, error)
	Status() restart.Status
}

// HistoryReader is implemented by sinks that can also query recent
// events. The SQL sink can; fire-and-forget sinks cannot.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Event, error)
}

// Config wires the admin plane's dependencies. Everything except
// Restarter is optional.
type Config struct {
	Restarter Restarter
	Drain     *drain.Coordinator
	History   history.Sink
	BasePath  string
	// AuthTokenHash is a bcrypt hash; when set, requests must carry
	// "Authorization: Bearer <token>" with the matching token.
	AuthTokenHash string
	// TLS, when set, makes NewServer serve HTTPS.
	TLS *tls.Config
}

type Router struct {
	cfg      Config
	basePath string
}

func NewRouter(cfg Config) *Router {
	return &Router{cfg: cfg, basePath: sanitizeBase(cfg.BasePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())

	open := g.Group(r.basePath)
	open.GET("/healthz", r.handleHealthz)

	sec := g.Group(r.basePath)
	if r.cfg.AuthTokenHash != "" {
		sec.Use(bearerAuth(r.cfg.AuthTokenHash))
	}
	sec.GET("/status", r.handleStatus)
	sec.POST("/restart", r.handleRestart)
	sec.GET("/history", r.handleHistory)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// With cfg.TLS set it serves HTTPS. Shut it down via http.Server's
// Close or Shutdown.
func NewServer(addr string, cfg Config) (*http.Server, error) {
	r := NewRouter(cfg)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		TLSConfig:         cfg.TLS,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if cfg.TLS != nil {
		go func() { _ = server.ListenAndServeTLS("", "") }()
	} else {
		go func() { _ = server.ListenAndServe() }()
	}
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type restartResp struct {
	OK  bool `json:"ok"`
	PID int  `json:"pid"`
}

type drainStatus struct {
	ActiveHandles  int  `json:"active_handles"`
	DrainRequested bool `json:"drain_requested"`
}

type statusResp struct {
	Restart restart.Status     `json:"restart"`
	Drain   *drainStatus       `json:"drain,omitempty"`
	Process *metrics.SelfStats `json:"process,omitempty"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	var resp statusResp
	if r.cfg.Restarter != nil {
		resp.Restart = r.cfg.Restarter.Status()
	}
	if r.cfg.Drain != nil {
		resp.Drain = &drainStatus{
			ActiveHandles:  r.cfg.Drain.Active(),
			DrainRequested: r.cfg.Drain.Requested(),
		}
	}
	if st, err := metrics.CollectSelf(); err == nil {
		resp.Process = &st
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleRestart(c *gin.Context) {
	if r.cfg.Restarter == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "restart coordinator not configured"})
		return
	}
	pid, err := r.cfg.Restarter.TriggerLocal(c.Request.Context(), history.SourceHTTP)
	if err != nil {
		writeJSON(c, restartFailureCode(err), errorResp{Error: err.Error(), Kind: restart.KindOf(err)})
		return
	}
	writeJSON(c, http.StatusOK, restartResp{OK: true, PID: pid})
}

// restartFailureCode: rejections and vetoes are conflicts with current
// state; everything else is an internal failure.
func restartFailureCode(err error) int {
	if errors.Is(err, restart.ErrInProgress) || errors.Is(err, restart.ErrHandedOver) {
		return http.StatusConflict
	}
	var veto *restart.VetoError
	if errors.As(err, &veto) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (r *Router) handleHistory(c *gin.Context) {
	hr, ok := r.cfg.History.(HistoryReader)
	if !ok {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "configured history sink does not support queries"})
		return
	}
	limit := 20
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
			return
		}
		if n > 1000 {
			n = 1000
		}
		limit = n
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	events, err := hr.Recent(ctx, limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, events)
}

func bearerAuth(hash string) gin.HandlerFunc {
	const prefix = "Bearer "
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResp{Error: "missing bearer token"})
			return
		}
		token := strings.TrimPrefix(h, prefix)
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResp{Error: "invalid token"})
			return
		}
		c.Next()
	}
}
