package adminapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/streamspace/plugify/internal/apierr"
	"github.com/streamspace/plugify/internal/eventbus"
	"github.com/streamspace/plugify/internal/orchestrator"
	"github.com/streamspace/plugify/internal/reportstore"
)

// Orchestrator is the subset of orchestrator.Orchestrator this package
// depends on, kept narrow so handler tests can fake it without pulling
// in the whole orchestrator package.
type Orchestrator interface {
	Snapshot() ([]orchestrator.ModuleSnapshot, []orchestrator.PluginSnapshot)
	LoadOrder() []string
}

// ReportHistory is the subset of reportstore.Store this package needs.
type ReportHistory interface {
	Latest(n int) ([]reportstore.Record, error)
	Get(id int64) (*reportstore.Record, error)
}

// Server is the admin HTTP+WebSocket surface. It holds no mutable
// state of its own beyond the hub; everything it reports is read
// straight through to the orchestrator and report store on each
// request.
type Server struct {
	log    zerolog.Logger
	orch   Orchestrator
	store  ReportHistory // nil if report persistence is disabled
	hub    *hub
	router *gin.Engine
}

// New builds the admin API router. store may be nil when report
// persistence (internal/reportstore) is not configured; the report
// endpoints then respond 503 instead of 500, since the feature is
// intentionally absent rather than broken.
func New(log zerolog.Logger, orch Orchestrator, store ReportHistory, events *eventbus.Bus) *Server {
	l := log.With().Str("component", "adminapi").Logger()
	s := &Server{log: l, orch: orch, store: store, hub: newHub(l)}

	if events != nil {
		events.Subscribe(eventbus.SubjectModuleState, s.hub.publish)
		events.Subscribe(eventbus.SubjectPluginState, s.hub.publish)
		events.Subscribe(eventbus.SubjectPhase, s.hub.publish)
	}

	go s.hub.run()
	s.router = s.buildRouter()
	return s
}

// Handler returns the http.Handler to mount (or serve directly).
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(apierr.Recovery(s.log))
	router.Use(apierr.ErrorHandler(s.log))
	router.Use(requestLogger(s.log))

	router.GET("/healthz", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/reports", s.handleListReports)
	router.GET("/reports/:id", s.handleGetReport)
	router.GET("/ws/events", s.handleEvents)

	return router
}

// requestLogger mirrors the teacher's StructuredLogger middleware shape
// (method, path, status, latency on every request) trimmed to a single
// zerolog call since this surface has no per-route audit requirement.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("admin api request")
	}
}
