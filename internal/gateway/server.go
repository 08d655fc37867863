package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"encoding/json"

	"aegis/internal/config"
	"aegis/internal/gateway/bridge"
	"aegis/internal/gateway/registry"
	"aegis/internal/gateway/translate"
	"aegis/internal/jsonrpc"
	"aegis/internal/logging"
	"aegis/internal/org"
	"aegis/internal/salute"
)

// Server is the A2A task gateway: JSON-RPC over POST /, SSE streaming, agent
// card discovery, health, and metrics.
type Server struct {
	cfg      config.Gateway
	registry *registry.Registry
	bridge   *bridge.Bridge
	roles    *org.RoleLibrary
	cards    *cardBuilder
	metrics  *metrics
	promReg  *prometheus.Registry
	logger   logging.Logger
	engine   *gin.Engine
}

// New assembles the gateway from its configuration.
func New(cfg config.Gateway, logger logging.Logger) *Server {
	logger = logging.OrNop(logger)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		promReg: promReg,
		metrics: newMetrics(promReg),
		roles:   org.NewRoleLibrary(cfg.RolesDir),
	}
	s.registry = registry.New(cfg.TaskQueue.MaxConcurrent, cfg.TaskQueue.MaxQueued, logger)
	s.bridge = bridge.New(bridge.Config{
		BaseURL:    cfg.AgentConnection.BaseURL,
		APIKey:     cfg.AgentConnection.APIKey,
		Timeout:    cfg.TaskTimeout(),
		ReportsDir: cfg.ReportsDir,
	}, logger)
	s.cards = newCardBuilder(cfg, s.roles)

	// Queued tasks promoted by the registry begin dispatch immediately.
	s.registry.OnPromoted(func(task *registry.Task) {
		s.dispatchDetached(task.ID, task.MessageText)
	})

	s.engine = s.buildEngine()
	return s
}

// Registry exposes the task registry, mainly for tests.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Handler returns the HTTP handler for the gateway.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization", "X-API-KEY"},
	}))

	engine.GET("/.well-known/agent.json", s.handleCard)
	engine.GET("/.well-known/a2a/agent-card", s.handleCard)
	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{})))
	engine.POST("/", authMiddleware(s.cfg), s.handleRPC)
	return engine
}

func (s *Server) handleCard(c *gin.Context) {
	scheme := "http"
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if c.Request.TLS != nil {
		scheme = "https"
	}
	host := c.GetHeader("X-Forwarded-Host")
	if host == "" {
		host = c.Request.Host
	}
	baseURL := fmt.Sprintf("%s://%s/", scheme, host)

	c.Header("Cache-Control", "public, max-age=30")
	c.JSON(http.StatusOK, s.cards.Build(baseURL))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"active_tasks": s.registry.ActiveCount(),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRPC parses the envelope and dispatches to the method handlers.
// message/stream takes over the connection for SSE; everything else replies
// with a single JSON-RPC response.
func (s *Server) handleRPC(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, jsonrpc.Fail(nil, jsonrpc.NewError(jsonrpc.CodeParseError, "unreadable body")))
		return
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusOK, jsonrpc.Fail(nil, jsonrpc.NewError(jsonrpc.CodeParseError, "parse error")))
		return
	}
	if req.JSONRPC != jsonrpc.Version {
		c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidRequest, "jsonrpc must be \"2.0\"")))
		return
	}

	method := jsonrpc.Canonical(req.Method)
	if method == "" {
		c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.NewError(jsonrpc.CodeMethodNotFound, "method not found: "+req.Method)))
		return
	}

	started := time.Now()
	defer func() {
		s.metrics.requestDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
	}()

	switch method {
	case "message/send":
		s.handleSend(c, req)
	case "message/stream":
		s.handleStream(c, req)
	case "tasks/get":
		s.handleGet(c, req)
	case "tasks/cancel":
		s.handleCancel(c, req)
	}
}

// handleSend runs a task synchronously end-to-end, or resumes an
// input-required task when the params reference one.
func (s *Server) handleSend(c *gin.Context, req jsonrpc.Request) {
	text, contextID, taskID := extractMessage(req.Params)
	if text == "" {
		c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "message text is required")))
		return
	}

	if task := s.findFollowupTarget(taskID, contextID); task != nil {
		execCtx, cancel := s.execContext()
		s.runFollowup(execCtx, task, text)
		cancel()
		snap := s.registry.Snapshot(task.ID, true)
		c.JSON(http.StatusOK, jsonrpc.Result(req.ID, snap))
		return
	}

	task, err := s.registry.Create(text)
	if err != nil {
		c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.NewError(jsonrpc.CodeQueueFull, "task queue full")))
		return
	}
	s.metrics.tasksCreated.Inc()
	s.updateGauges()

	if task.State == registry.StateWorking {
		execCtx, cancel := s.execContext()
		s.executeTask(execCtx, task.ID, task.MessageText)
		cancel()
	}

	snap := s.registry.Snapshot(task.ID, true)
	c.JSON(http.StatusOK, jsonrpc.Result(req.ID, snap))
}

func (s *Server) handleGet(c *gin.Context, req jsonrpc.Request) {
	id, includeHistory := extractTaskID(req.Params)
	task := s.registry.Get(id)
	if task == nil {
		c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.NewError(jsonrpc.CodeTaskNotFound, "task not found")))
		return
	}

	// Refresh telemetry for live tasks before answering.
	if !task.State.IsTerminal() {
		if report := s.bridge.ReadLatestTelemetry(""); report != nil {
			s.registry.UpdateTelemetry(id, report)
		}
	}

	c.JSON(http.StatusOK, jsonrpc.Result(req.ID, s.registry.Snapshot(id, includeHistory)))
}

func (s *Server) handleCancel(c *gin.Context, req jsonrpc.Request) {
	id, _ := extractTaskID(req.Params)
	task := s.registry.Get(id)
	if task == nil {
		c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.NewError(jsonrpc.CodeTaskNotFound, "task not found")))
		return
	}
	if task.State.IsTerminal() {
		c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.NewError(jsonrpc.CodeTaskNotCancelable, "task already terminal")))
		return
	}

	// Advisory cancel to the inner agent; the registry transition is
	// authoritative regardless of the outcome.
	s.bridge.Cancel(c.Request.Context(), task.AgentContextID)
	s.registry.Cancel(id)
	s.metrics.tasksCanceled.Inc()
	s.updateGauges()

	c.JSON(http.StatusOK, jsonrpc.Result(req.ID, s.registry.Snapshot(id, false)))
}

// findFollowupTarget resolves a follow-up reference to an input-required task.
func (s *Server) findFollowupTarget(taskID, contextID string) *registry.Task {
	var task *registry.Task
	if taskID != "" {
		task = s.registry.Get(taskID)
	}
	if task == nil && contextID != "" {
		task = s.registry.FindByContextID(contextID)
	}
	if task == nil || task.State != registry.StateInputRequired {
		return nil
	}
	return task
}

// runFollowup resumes the task on its existing agent context.
func (s *Server) runFollowup(ctx context.Context, task *registry.Task, text string) {
	if !s.registry.Resume(task.ID, text) {
		return
	}

	reply, err := s.bridge.SubmitFollowup(ctx, text, task.AgentContextID)
	if err != nil {
		s.registry.Fail(task.ID, err.Error(), nil)
		s.metrics.tasksFailed.Inc()
		s.updateGauges()
		return
	}
	s.finishFromReply(task.ID, reply.Message)
}

// execContext returns a context for inner-agent dispatch bounded only by the
// task-timeout budget. Dispatch never inherits a request context: a client
// that walks away must not cancel the agent's work.
func (s *Server) execContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.TaskTimeout())
}

// dispatchDetached runs executeTask in the background with its own lifetime.
func (s *Server) dispatchDetached(taskID, text string) {
	go func() {
		ctx, cancel := s.execContext()
		defer cancel()
		s.executeTask(ctx, taskID, text)
	}()
}

// executeTask dispatches the task text to the inner agent and records the
// outcome. Runs synchronously for message/send and in a goroutine for
// promoted or streamed tasks.
func (s *Server) executeTask(ctx context.Context, taskID, text string) {
	s.updateGauges()

	reply, err := s.bridge.Submit(ctx, text)
	if err != nil {
		s.logger.Warn("task %s agent dispatch failed: %v", taskID, err)
		s.registry.Fail(taskID, err.Error(), nil)
		s.metrics.tasksFailed.Inc()
		s.updateGauges()
		return
	}

	s.registry.SetAgentContextID(taskID, reply.ContextID)
	s.finishFromReply(taskID, reply.Message)
}

// finishFromReply inspects the final SALUTE and closes out the task: an
// emergency level fails it with a synthesized report, anything else completes
// it. Partial artifacts are collected either way.
func (s *Server) finishFromReply(taskID, replyText string) {
	final := s.bridge.ReadLatestTelemetry("")
	if final != nil {
		s.registry.UpdateTelemetry(taskID, final)
	}
	artifacts := translate.CollectArtifacts(final)

	if final != nil && final.Status.PaceLevel == salute.PaceEmergency {
		report := translate.BuildFailureReport(final, replyText)
		s.registry.Fail(taskID, report, artifacts)
		s.metrics.tasksFailed.Inc()
	} else {
		s.registry.Complete(taskID, replyText, artifacts)
		s.metrics.tasksCompleted.Inc()
	}
	s.updateGauges()
}

func (s *Server) updateGauges() {
	s.metrics.activeTasks.Set(float64(s.registry.ActiveCount()))
	s.metrics.queueDepth.Set(float64(s.registry.QueueDepth()))
}
