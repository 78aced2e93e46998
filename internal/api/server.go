// Package api serves the HTTP interface: template listing, backtest
// execution, and stored run retrieval.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"barsim/internal/batch"
	"barsim/internal/exits"
	"barsim/internal/risk"
	"barsim/internal/store"
	"barsim/internal/util"
)

// Options configures the Server beyond its storage dependencies.
type Options struct {
	AllowOrigins []string
	Limits       risk.Limits
	InitialCash  float64
	EntryDelay   int
	BatchSize    int
}

// Server owns the HTTP handlers and their dependencies. Results is optional;
// when nil, completed runs are returned to the caller but not persisted.
type Server struct {
	bars     store.BarStore
	results  *store.SQLiteStore
	registry *exits.Registry
	calendar *util.TradingCalendar
	opts     Options
	log      *slog.Logger
}

// NewServer creates a Server.
func NewServer(bars store.BarStore, results *store.SQLiteStore, registry *exits.Registry, calendar *util.TradingCalendar, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if opts.InitialCash <= 0 {
		opts.InitialCash = 100000
	}
	if opts.EntryDelay < 1 {
		opts.EntryDelay = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = batch.DefaultBatchSize
	}
	return &Server{
		bars:     bars,
		results:  results,
		registry: registry,
		calendar: calendar,
		opts:     opts,
		log:      log.With("component", "api"),
	}
}

// Handler returns the complete HTTP handler: gin routes wrapped in CORS
// middleware.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/templates", s.handleListTemplates)
		v1.POST("/backtest", s.handleBacktest)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id/trades", s.handleRunTrades)
		v1.GET("/runs/:id/summary", s.handleRunSummary)
	}

	origins := s.opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)
}

// ListenAndServe runs the server on host:port until it fails.
func (s *Server) ListenAndServe(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.log.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}
