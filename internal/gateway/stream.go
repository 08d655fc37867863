package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"aegis/internal/gateway/registry"
	"aegis/internal/gateway/translate"
	"aegis/internal/jsonrpc"
)

// statusUpdateEvent is the incremental SSE payload for a live task.
type statusUpdateEvent struct {
	ID        string              `json:"id"`
	ContextID string              `json:"contextId"`
	Status    registry.TaskStatus `json:"status"`
	Final     bool                `json:"final"`
}

// queuedEvent is the one-off notification for a task waiting in the queue.
type queuedEvent struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Position int    `json:"position"`
}

// handleStream creates a task and streams its progress as SSE until it
// reaches a terminal state, the budget runs out, or the client disconnects.
func (s *Server) handleStream(c *gin.Context, req jsonrpc.Request) {
	text, _, _ := extractMessage(req.Params)
	if text == "" {
		c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "message text is required")))
		return
	}

	task, err := s.registry.Create(text)
	if err != nil {
		c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.NewError(jsonrpc.CodeQueueFull, "task queue full")))
		return
	}
	s.metrics.tasksCreated.Inc()
	s.updateGauges()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusOK, jsonrpc.Fail(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, "streaming unsupported")))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	s.metrics.sseStreams.Inc()
	defer s.metrics.sseStreams.Dec()

	writeEvent := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	// Initial snapshot before any work happens.
	writeEvent("task", s.registry.Snapshot(task.ID, false))

	if task.State == registry.StateSubmitted {
		writeEvent("status", queuedEvent{
			ID:       task.ID,
			State:    string(registry.StateSubmitted),
			Position: s.registry.QueueDepth(),
		})
	} else {
		// Dispatch in the background; this handler only observes, so the
		// task's lifetime is independent of the stream connection.
		s.dispatchDetached(task.ID, task.MessageText)
	}

	s.pollLoop(c, task.ID, writeEvent)

	// Final snapshot closes the stream.
	writeEvent("task", s.registry.Snapshot(task.ID, false))
}

// pollLoop watches telemetry for the task and emits status updates until the
// task is terminal. SALUTE reports are deduplicated by their timestamp.
func (s *Server) pollLoop(c *gin.Context, taskID string, writeEvent func(string, any)) {
	interval := s.cfg.PollInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}
	deadline := time.Now().Add(s.cfg.TaskTimeout())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastSeen := ""
	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			// Disconnect stops observation only; the inner agent keeps
			// working until completion or an explicit cancel.
			s.logger.Debug("stream client left task %s", taskID)
			return
		case <-ticker.C:
		}

		task := s.registry.Get(taskID)
		if task == nil {
			return
		}
		if task.State.IsTerminal() {
			return
		}
		if time.Now().After(deadline) {
			s.registry.Fail(taskID, "task timed out", nil)
			s.metrics.tasksFailed.Inc()
			s.updateGauges()
			return
		}

		report := s.bridge.ReadLatestTelemetry("")
		if report == nil || report.Time.Timestamp == lastSeen {
			continue
		}
		lastSeen = report.Time.Timestamp
		s.registry.UpdateTelemetry(taskID, report)

		state := translate.SaluteToState(report)
		message := translate.StatusMessage(report)

		if state == registry.StateInputRequired && task.State == registry.StateWorking {
			reason := translate.BuildContingentMessage(report, nil)
			if s.registry.SetInputRequired(taskID, reason) {
				message = reason
			}
		}

		snap := s.registry.Snapshot(taskID, false)
		if snap == nil {
			return
		}
		status := snap.Status
		if status.Message == nil && message != "" {
			status.Message = &registry.Message{
				Role:  "agent",
				Parts: []registry.Part{{Type: "text", Text: message}},
			}
		}
		writeEvent("status_update", statusUpdateEvent{
			ID:        snap.ID,
			ContextID: snap.ContextID,
			Status:    status,
			Final:     false,
		})
	}
}
