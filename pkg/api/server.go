// Package api exposes the refinement pipeline over HTTP: a batch
// endpoint, a streaming endpoint that forwards orchestrator events as
// server-sent events, and memory inspection operations.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/refinehq/refinery/pkg/agent/orchestrator"
	"github.com/refinehq/refinery/pkg/memory"
)

// Server is the HTTP front of the orchestrator.
type Server struct {
	orch    *orchestrator.Orchestrator
	store   memory.Store
	version string
	backend string

	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer wires the orchestrator and its store into a routed engine.
// backend names the memory backend for health reporting ("memory",
// "postgres", "redis").
func NewServer(orch *orchestrator.Orchestrator, store memory.Store, version, backend string) *Server {
	s := &Server{
		orch:    orch,
		store:   store,
		version: version,
		backend: backend,
	}
	s.engine = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(recovery())
	router.Use(requestLogger())
	router.Use(securityHeaders())

	router.GET("/health", s.healthHandler)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/refine-requirements", s.refineHandler)
		apiGroup.POST("/refine-requirements/stream", s.refineStreamHandler)
		apiGroup.GET("/agents", s.agentsHandler)
		apiGroup.POST("/context/check", s.contextCheckHandler)
	}

	mem := router.Group("/memory")
	{
		mem.GET("/stats", s.memoryStatsHandler)
		mem.GET("/:thread_id", s.threadHistoryHandler)
		mem.GET("/:thread_id/search", s.threadSearchHandler)
		mem.DELETE("/:thread_id", s.clearThreadHandler)
	}

	return router
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// Start blocks serving HTTP on addr until Shutdown or a listener error.
// WriteTimeout stays unset: streaming responses outlive any fixed write
// budget and are bounded by the orchestrator's request timeout instead.
func (s *Server) Start(addr string) error {
	s.httpServer = s.newHTTPServer()
	s.httpServer.Addr = addr
	return s.httpServer.ListenAndServe()
}

// StartWithListener blocks serving HTTP on an already-bound listener.
// Tests use it to serve on an ephemeral port they know the address of.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = s.newHTTPServer()
	return s.httpServer.Serve(ln)
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Shutdown stops accepting connections and waits for in-flight requests
// within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
