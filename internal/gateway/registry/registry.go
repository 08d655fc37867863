package registry

import (
	"fmt"
	"sync"
	"time"

	"aegis/internal/logging"
	"aegis/internal/salute"
)

// ErrQueueFull is returned by Create when the admission queue is at capacity.
var ErrQueueFull = fmt.Errorf("task queue full")

// PromotedFunc is invoked, outside the registry lock, for every task promoted
// from the queue into the active set. The gateway registers its dispatcher
// here.
type PromotedFunc func(task *Task)

// Registry tracks every task for the lifetime of the server process.
//
// All state lives in memory: a map id → task plus the active and queued
// orderings. Capacity limits are enforced on admission (max_queued) and on
// promotion (max_concurrent).
type Registry struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	active []string
	queue  []string

	maxConcurrent int
	maxQueued     int

	onPromoted PromotedFunc
	logger     logging.Logger
}

// New returns a registry with the given capacity limits.
func New(maxConcurrent, maxQueued int, logger logging.Logger) *Registry {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxQueued < 0 {
		maxQueued = 0
	}
	return &Registry{
		tasks:         make(map[string]*Task),
		maxConcurrent: maxConcurrent,
		maxQueued:     maxQueued,
		logger:        logging.OrNop(logger),
	}
}

// OnPromoted registers the promotion callback. Must be set before tasks are
// created.
func (r *Registry) OnPromoted(fn PromotedFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPromoted = fn
}

// Create admits a new task. If the active set has capacity the task starts
// working immediately; otherwise it queues in FIFO order. Returns ErrQueueFull
// when the queue is at max_queued.
func (r *Registry) Create(messageText string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.queue) >= r.maxQueued {
		return nil, ErrQueueFull
	}

	task := newTask(messageText)
	r.tasks[task.ID] = task

	if len(r.active) < r.maxConcurrent {
		r.active = append(r.active, task.ID)
		task.State = StateWorking
		task.UpdatedAt = time.Now().UTC()
		r.logger.Info("task %s admitted to active set", task.ID)
	} else {
		r.queue = append(r.queue, task.ID)
		r.logger.Info("task %s queued (depth %d)", task.ID, len(r.queue))
	}
	return task, nil
}

// Get returns the task by id, or nil.
func (r *Registry) Get(id string) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id]
}

// FindByContextID returns the task whose public context id matches, or nil.
func (r *Registry) FindByContextID(contextID string) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, task := range r.tasks {
		if task.ContextID == contextID {
			return task
		}
	}
	return nil
}

// Complete transitions the task to completed with its result and artifacts,
// then promotes queued work.
func (r *Registry) Complete(id, resultText string, artifacts []Artifact) {
	promoted := r.finish(id, StateCompleted, resultText, "", artifacts)
	r.firePromoted(promoted)
}

// Fail transitions the task to failed with the error detail and any partial
// artifacts, then promotes queued work.
func (r *Registry) Fail(id, errorDetail string, partialArtifacts []Artifact) {
	promoted := r.finish(id, StateFailed, "", errorDetail, partialArtifacts)
	r.firePromoted(promoted)
}

// Cancel transitions a non-terminal task to canceled. Terminal tasks are left
// untouched. Queued tasks are removed from the queue. Promotes queued work.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	task := r.tasks[id]
	if task == nil || task.State.IsTerminal() {
		r.mu.Unlock()
		return
	}

	for i, queued := range r.queue {
		if queued == id {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			break
		}
	}
	r.removeActive(id)
	task.State = StateCanceled
	task.UpdatedAt = time.Now().UTC()
	promoted := r.promoteNext()
	r.mu.Unlock()

	r.logger.Info("task %s canceled", id)
	r.firePromoted(promoted)
}

// SetInputRequired transitions a non-terminal task to input-required and
// appends the reason to its history as an agent turn.
func (r *Registry) SetInputRequired(id, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := r.tasks[id]
	if task == nil || task.State.IsTerminal() {
		return false
	}
	task.State = StateInputRequired
	task.UpdatedAt = time.Now().UTC()
	if reason != "" {
		task.History = append(task.History, HistoryEntry{
			Role: "agent", Text: reason, Timestamp: task.UpdatedAt,
		})
	}
	return true
}

// Resume transitions an input-required task back to working and records the
// follow-up user turn.
func (r *Registry) Resume(id, followupText string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := r.tasks[id]
	if task == nil || task.State != StateInputRequired {
		return false
	}
	task.State = StateWorking
	task.UpdatedAt = time.Now().UTC()
	if followupText != "" {
		task.History = append(task.History, HistoryEntry{
			Role: "user", Text: followupText, Timestamp: task.UpdatedAt,
		})
	}
	return true
}

// UpdateTelemetry refreshes the task's last SALUTE snapshot and PACE level.
func (r *Registry) UpdateTelemetry(id string, report *salute.Report) {
	if report == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	task := r.tasks[id]
	if task == nil || task.State.IsTerminal() {
		return
	}
	task.LastTelemetry = report
	task.PaceLevel = report.Status.PaceLevel
	task.UpdatedAt = time.Now().UTC()
}

// SetAgentContextID records the inner agent's context for follow-ups.
func (r *Registry) SetAgentContextID(id, agentContextID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task := r.tasks[id]; task != nil && task.AgentContextID == "" {
		task.AgentContextID = agentContextID
	}
}

// AppendHistory records a conversation turn on the task.
func (r *Registry) AppendHistory(id, role, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task := r.tasks[id]; task != nil {
		task.History = append(task.History, HistoryEntry{
			Role: role, Text: text, Timestamp: time.Now().UTC(),
		})
	}
}

// AppendArtifacts adds artifacts to the task. Follow-up runs accumulate;
// nothing is replaced.
func (r *Registry) AppendArtifacts(id string, artifacts []Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task := r.tasks[id]; task != nil {
		task.Artifacts = append(task.Artifacts, artifacts...)
	}
}

// Snapshot renders the task's wire form, or nil when unknown.
func (r *Registry) Snapshot(id string, includeHistory bool) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	task := r.tasks[id]
	if task == nil {
		return nil
	}
	snap := task.snapshot(includeHistory)
	return &snap
}

// ActiveCount returns the number of currently active tasks.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// QueueDepth returns the number of queued tasks.
func (r *Registry) QueueDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// finish applies a terminal transition and returns any promoted tasks.
func (r *Registry) finish(id string, state TaskState, resultText, errorDetail string, artifacts []Artifact) []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := r.tasks[id]
	if task == nil || task.State.IsTerminal() {
		return nil
	}

	task.State = state
	task.UpdatedAt = time.Now().UTC()
	if resultText != "" {
		task.ResultText = resultText
		task.History = append(task.History, HistoryEntry{
			Role: "agent", Text: resultText, Timestamp: task.UpdatedAt,
		})
	}
	if errorDetail != "" {
		task.ErrorDetail = errorDetail
	}
	task.Artifacts = append(task.Artifacts, artifacts...)

	r.removeActive(id)
	return r.promoteNext()
}

// promoteNext moves queue heads into the active set while capacity remains.
// Caller holds the lock. Promoted tasks are returned so the callback can fire
// after the lock is released; a promoted task is already in state working by
// the time its callback runs.
func (r *Registry) promoteNext() []*Task {
	var promoted []*Task
	for len(r.queue) > 0 && len(r.active) < r.maxConcurrent {
		id := r.queue[0]
		r.queue = r.queue[1:]
		task := r.tasks[id]
		if task == nil || task.State.IsTerminal() {
			continue
		}
		r.active = append(r.active, id)
		task.State = StateWorking
		task.UpdatedAt = time.Now().UTC()
		promoted = append(promoted, task)
	}
	return promoted
}

func (r *Registry) removeActive(id string) {
	for i, activeID := range r.active {
		if activeID == id {
			r.active = append(r.active[:i], r.active[i+1:]...)
			return
		}
	}
}

func (r *Registry) firePromoted(promoted []*Task) {
	if len(promoted) == 0 {
		return
	}
	r.mu.Lock()
	fn := r.onPromoted
	r.mu.Unlock()

	for _, task := range promoted {
		r.logger.Info("task %s promoted from queue", task.ID)
		if fn != nil {
			fn(task)
		}
	}
}

// saluteStatusText renders a one-line working-state summary from telemetry.
func saluteStatusText(report *salute.Report) string {
	text := ""
	if report.Activity.HTNPlan != "" {
		text = fmt.Sprintf("Working on %s (step %d/%d)",
			report.Activity.HTNPlan, report.Activity.HTNStep, report.Activity.HTNTotalSteps)
	} else if report.Activity.CurrentTask != "" {
		text = "Working on: " + report.Activity.CurrentTask
	} else {
		text = "Working"
	}
	if report.Status.Progress > 0 {
		text += fmt.Sprintf(", %.0f%% complete", report.Status.Progress*100)
	}
	return text
}
