// Package server exposes the ETL over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/BartekS5/movielens-etl/internal/etl"
	"github.com/BartekS5/movielens-etl/pkg/logger"
	"github.com/BartekS5/movielens-etl/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runner is the part of the orchestrator the HTTP surface drives.
type Runner interface {
	RunFullETL(ctx context.Context) *models.RunStats
	Summary(ctx context.Context) (map[string]int64, error)
	Stage() etl.Stage
}

type Server struct {
	runner   Runner
	objects  etl.ObjectStore
	store    etl.RecordStore
	gatherer prometheus.Gatherer

	// running serialises ETL runs triggered over HTTP.
	running sync.Mutex
}

func New(runner Runner, objects etl.ObjectStore, store etl.RecordStore, gatherer prometheus.Gatherer) *Server {
	return &Server{
		runner:   runner,
		objects:  objects,
		store:    store,
		gatherer: gatherer,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/health", s.health)
	r.POST("/etl/run", s.runETL)
	r.GET("/etl/summary", s.summary)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	ctx := c.Request.Context()
	objectsOK := s.objects.CheckConnection(ctx) == nil
	dbOK := s.store.CheckConnection(ctx)

	data := gin.H{
		"object_store_connected": objectsOK,
		"database_connected":     dbOK,
		"stage":                  s.runner.Stage(),
	}
	if objectsOK && dbOK {
		respond(c, http.StatusOK, "healthy", data)
		return
	}
	respond(c, http.StatusServiceUnavailable, "unhealthy", data)
}

func (s *Server) runETL(c *gin.Context) {
	if !s.running.TryLock() {
		respond(c, http.StatusConflict, "an ETL run is already in progress", gin.H{"stage": s.runner.Stage()})
		return
	}
	defer s.running.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("ETL run aborted: %v", r)
			respond(c, http.StatusInternalServerError, fmt.Sprintf("ETL run aborted: %v", r), nil)
		}
	}()

	// A finalized run is reported with 200 whatever its status; a client
	// disconnect must not abandon a half-loaded run.
	stats := s.runner.RunFullETL(context.WithoutCancel(c.Request.Context()))
	if stats == nil {
		respond(c, http.StatusInternalServerError, "ETL run returned no statistics", nil)
		return
	}
	if stats.Succeeded() {
		respond(c, http.StatusOK, "ETL completed successfully", stats)
		return
	}
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "ETL failed: " + stats.ErrorMessage,
		Data:    stats,
	})
}

func (s *Server) summary(c *gin.Context) {
	counts, err := s.runner.Summary(c.Request.Context())
	if err != nil {
		respond(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	respond(c, http.StatusOK, "success", gin.H{"tables": counts})
}
