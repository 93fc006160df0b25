// Package api exposes a small read-only HTTP surface over the pipeline:
// status, trade history, wallets and a websocket event stream. It binds to
// localhost for a single operator; there is no auth layer.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"signal-trader/internal/events"
	"signal-trader/pkg/db"
)

// Server wires HTTP endpoints around the store and the event bus.
type Server struct {
	Router *gin.Engine
	Bus    *events.Bus
	DB     *db.Database
	Meta   SystemMeta
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	DryRun    bool
	Channels  []string
	Version   string
	StartedAt time.Time
}

// NewServer builds the router.
func NewServer(bus *events.Bus, database *db.Database, meta SystemMeta) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	s := &Server{Router: r, Bus: bus, DB: database, Meta: meta}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/trades", s.getTrades)
		api.GET("/open-trades", s.getOpenTrades)
		api.GET("/wallets", s.getWallets)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	return s.Router.Run(addr)
}
