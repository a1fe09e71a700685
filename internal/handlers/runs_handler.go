package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/config"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/pipeline"
	"github.com/kevinesg/ph-top-headlines-ETL/internal/repository"
	"github.com/kevinesg/ph-top-headlines-ETL/logger"
)

// RunFunc executes one pipeline run with the given configuration.
type RunFunc func(ctx context.Context, cfg config.Config, runID string) (models.RunReport, error)

// RunHandler triggers pipeline runs over HTTP. At most one run is in flight.
type RunHandler struct {
	Ctx    context.Context
	cfg    config.Config
	run    RunFunc
	runs   repository.RunRepository
	logger *logger.ColorfulLogger

	busy atomic.Bool
	wg   sync.WaitGroup
}

// NewRunHandler creates a new instance of RunHandler
func NewRunHandler(ctx context.Context, cfg config.Config, run RunFunc, runs repository.RunRepository, logger *logger.ColorfulLogger) *RunHandler {
	return &RunHandler{
		Ctx:    ctx,
		cfg:    cfg,
		run:    run,
		runs:   runs,
		logger: logger,
	}
}

// CreateRun starts a run in the background and returns its id
func (h *RunHandler) CreateRun(c *gin.Context) {
	var overrides config.Overrides
	if err := c.ShouldBindJSON(&overrides); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	cfg, err := h.cfg.WithOverrides(overrides)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid overrides", "details": err.Error()})
		return
	}

	if !h.busy.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"error": "A run is already in progress"})
		return
	}

	runID := uuid.New().String()
	report := models.RunReport{
		RunID:     runID,
		Status:    models.RunQueued,
		StartedAt: time.Now().UTC(),
	}
	if err := h.runs.Save(c.Request.Context(), report); err != nil {
		h.busy.Store(false)
		h.logger.Error("Failed to save run %s: %v", runID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue run"})
		return
	}

	h.wg.Add(1)
	go h.execute(cfg, report)

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":  runID,
		"status":  models.RunQueued,
		"message": "Run submitted successfully",
	})
}

func (h *RunHandler) execute(cfg config.Config, report models.RunReport) {
	defer h.wg.Done()
	defer h.busy.Store(false)

	report.Status = models.RunRunning
	if err := h.runs.Save(h.Ctx, report); err != nil {
		h.logger.Error("Failed to update run %s: %v", report.RunID, err)
	}

	final, err := h.run(h.Ctx, cfg, report.RunID)
	if final.RunID == "" {
		final = report
		final.Status = models.RunError
		final.FinishedAt = time.Now().UTC()
	}
	if err != nil {
		final.Status = models.RunError
		if final.Error == "" {
			final.Error = err.Error()
		}
		if final.ErrorClass == "" {
			final.ErrorClass = pipeline.Classify(err)
		}
	}
	if err := h.runs.Save(h.Ctx, final); err != nil {
		h.logger.Error("Failed to save result of run %s: %v", report.RunID, err)
	}
}

// Wait blocks until the background run, if any, has finished
func (h *RunHandler) Wait() {
	h.wg.Wait()
}

// GetRun retrieves a run by ID
func (h *RunHandler) GetRun(c *gin.Context) {
	id := c.Param("id")

	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run ID format"})
		return
	}

	report, err := h.runs.Get(c.Request.Context(), id)
	if errors.Is(err, repository.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to fetch run %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch run"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetAllRuns lists stored runs, newest first
func (h *RunHandler) GetAllRuns(c *gin.Context) {
	runs, err := h.runs.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to fetch runs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs"})
		return
	}
	if runs == nil {
		runs = []models.RunReport{}
	}
	c.JSON(http.StatusOK, runs)
}

func (h *RunHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ph-news-etl",
		"busy":    h.busy.Load(),
	})
}

// RegisterRoutes registers all run routes
func (h *RunHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.POST("/run", h.CreateRun)
	router.GET("/run/:id", h.GetRun)
	router.GET("/runs", h.GetAllRuns)
}

// RequestLogger logs every request through the colorful logger
func RequestLogger(l *logger.ColorfulLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.LogRequest(c.Request.Method, c.Request.URL.Path, c.ClientIP(), c.Writer.Status(), time.Since(start))
	}
}
