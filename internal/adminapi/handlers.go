package adminapi

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/streamspace/plugify/internal/apierr"
)

// statusResponse is the snapshot shape returned by GET /status.
type statusResponse struct {
	Modules   []moduleView `json:"modules"`
	Plugins   []pluginView `json:"plugins"`
	LoadOrder []string     `json:"loadOrder"`
}

type moduleView struct {
	Name         string   `json:"name"`
	State        string   `json:"state"`
	BoundPlugins []string `json:"boundPlugins"`
}

type pluginView struct {
	Name       string `json:"name"`
	ModuleName string `json:"moduleName"`
	State      string `json:"state"`
	SkipReason string `json:"skipReason,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

// handleStatus returns a snapshot of every registered module and
// plugin's current lifecycle state plus the last resolver load order.
func (s *Server) handleStatus(c *gin.Context) {
	modules, plugins := s.orch.Snapshot()

	resp := statusResponse{LoadOrder: s.orch.LoadOrder()}
	for _, m := range modules {
		resp.Modules = append(resp.Modules, moduleView{Name: m.Name, State: m.State, BoundPlugins: m.BoundPlugins})
	}
	for _, p := range plugins {
		resp.Plugins = append(resp.Plugins, pluginView{Name: p.Name, ModuleName: p.ModuleName, State: p.State, SkipReason: p.SkipReason})
	}
	c.JSON(200, resp)
}

// handleListReports returns the n most recent startup reports, newest
// first. n defaults to 20 and is capped at 200 to keep the response
// bounded regardless of how long the host has been running.
func (s *Server) handleListReports(c *gin.Context) {
	if s.store == nil {
		apierr.HandleError(c, apierr.ServiceUnavailable("report history"))
		return
	}

	n := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			apierr.HandleError(c, apierr.BadRequest("limit must be a positive integer"))
			return
		}
		n = parsed
	}
	if n > 200 {
		n = 200
	}

	records, err := s.store.Latest(n)
	if err != nil {
		apierr.HandleError(c, apierr.Wrap(apierr.CodeInternalServer, "failed to load report history", err))
		return
	}
	c.JSON(200, records)
}

// handleGetReport returns a single startup report by id.
func (s *Server) handleGetReport(c *gin.Context) {
	if s.store == nil {
		apierr.HandleError(c, apierr.ServiceUnavailable("report history"))
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apierr.HandleError(c, apierr.BadRequest("id must be an integer"))
		return
	}

	record, err := s.store.Get(id)
	if err != nil {
		apierr.HandleError(c, apierr.Wrap(apierr.CodeInternalServer, "failed to load report", err))
		return
	}
	if record == nil {
		apierr.HandleError(c, apierr.NotFound("report"))
		return
	}
	c.JSON(200, record)
}

// handleEvents upgrades the connection to a WebSocket and streams every
// module-state, plugin-state, and phase event published on the event
// bus until the client disconnects.
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	cl := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, 64)}
	s.hub.register <- cl

	go cl.writePump()
	go cl.readPump(s.hub)
}
