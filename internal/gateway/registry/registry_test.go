package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/salute"
)

func TestCreateAdmitsUpToConcurrency(t *testing.T) {
	reg := New(1, 2, nil)

	first, err := reg.Create("investigate globex")
	require.NoError(t, err)
	assert.Equal(t, StateWorking, first.State)
	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, first.ContextID)
	require.Len(t, first.History, 1)
	assert.Equal(t, "user", first.History[0].Role)

	second, err := reg.Create("reconcile ledgers")
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, second.State, "over capacity queues")

	assert.Equal(t, 1, reg.ActiveCount())
	assert.Equal(t, 1, reg.QueueDepth())
}

func TestCreateRejectsWhenQueueFull(t *testing.T) {
	reg := New(1, 1, nil)
	_, err := reg.Create("a")
	require.NoError(t, err)
	_, err = reg.Create("b")
	require.NoError(t, err)

	_, err = reg.Create("c")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestCompletePromotesQueuedFIFO(t *testing.T) {
	reg := New(1, 3, nil)
	var promotedIDs []string
	reg.OnPromoted(func(task *Task) {
		promotedIDs = append(promotedIDs, task.ID)
		assert.Equal(t, StateWorking, task.State, "promotion happens before the callback")
	})

	active, _ := reg.Create("a")
	queued1, _ := reg.Create("b")
	queued2, _ := reg.Create("c")

	reg.Complete(active.ID, "done", nil)
	require.Equal(t, []string{queued1.ID}, promotedIDs)
	assert.Equal(t, StateCompleted, reg.Get(active.ID).State)
	assert.Equal(t, "done", reg.Get(active.ID).ResultText)

	reg.Complete(queued1.ID, "done too", nil)
	assert.Equal(t, []string{queued1.ID, queued2.ID}, promotedIDs)
	assert.Equal(t, 0, reg.QueueDepth())
}

func TestTerminalStatesAreImmutable(t *testing.T) {
	reg := New(2, 2, nil)
	task, _ := reg.Create("a")
	reg.Complete(task.ID, "done", nil)

	reg.Fail(task.ID, "boom", nil)
	assert.Equal(t, StateCompleted, reg.Get(task.ID).State)
	assert.Empty(t, reg.Get(task.ID).ErrorDetail)

	reg.Cancel(task.ID)
	assert.Equal(t, StateCompleted, reg.Get(task.ID).State)

	assert.False(t, reg.SetInputRequired(task.ID, "why"))
	reg.UpdateTelemetry(task.ID, &salute.Report{})
	assert.Nil(t, reg.Get(task.ID).LastTelemetry)
}

func TestCancelQueuedTaskFreesSlot(t *testing.T) {
	reg := New(1, 2, nil)
	active, _ := reg.Create("a")
	queued, _ := reg.Create("b")

	reg.Cancel(queued.ID)
	assert.Equal(t, StateCanceled, reg.Get(queued.ID).State)
	assert.Equal(t, 0, reg.QueueDepth())

	reg.Cancel(active.ID)
	assert.Equal(t, StateCanceled, reg.Get(active.ID).State)
	assert.Equal(t, 0, reg.ActiveCount())
}

func TestInputRequiredAndResume(t *testing.T) {
	reg := New(1, 1, nil)
	task, _ := reg.Create("audit the filings")

	require.True(t, reg.SetInputRequired(task.ID, "which fiscal year?"))
	assert.Equal(t, StateInputRequired, reg.Get(task.ID).State)

	assert.False(t, reg.Resume("missing", "2023"))
	require.True(t, reg.Resume(task.ID, "fiscal year 2023"))

	got := reg.Get(task.ID)
	assert.Equal(t, StateWorking, got.State)
	require.Len(t, got.History, 3)
	assert.Equal(t, "agent", got.History[1].Role)
	assert.Equal(t, "which fiscal year?", got.History[1].Text)
	assert.Equal(t, "user", got.History[2].Role)

	assert.False(t, reg.Resume(task.ID, "again"), "only input-required tasks resume")
}

func TestSnapshotStatusMessages(t *testing.T) {
	reg := New(2, 2, nil)
	task, _ := reg.Create("audit the filings")

	reg.UpdateTelemetry(task.ID, &salute.Report{
		Status:   salute.Status{PaceLevel: salute.PaceAlternate, Progress: 0.5},
		Activity: salute.Activity{HTNPlan: "audit", HTNStep: 2, HTNTotalSteps: 4},
	})
	assert.Equal(t, salute.PaceAlternate, reg.Get(task.ID).PaceLevel)

	working := reg.Snapshot(task.ID, false)
	require.NotNil(t, working)
	require.NotNil(t, working.Status.Message)
	assert.Equal(t, "Working on audit (step 2/4), 50% complete", working.Status.Message.Parts[0].Text)
	assert.Empty(t, working.History)

	reg.Complete(task.ID, "all reconciled", []Artifact{{Name: "report.md"}})
	done := reg.Snapshot(task.ID, true)
	require.NotNil(t, done)
	assert.Equal(t, StateCompleted, done.Status.State)
	assert.Equal(t, "all reconciled", done.Status.Message.Parts[0].Text)
	require.Len(t, done.Artifacts, 1)
	assert.Len(t, done.History, 2, "history renders on request")

	assert.Nil(t, reg.Snapshot("missing", false))
}

func TestSnapshotInputRequiredShowsReason(t *testing.T) {
	reg := New(1, 1, nil)
	task, _ := reg.Create("audit")
	reg.SetInputRequired(task.ID, "need the ledger file")

	snap := reg.Snapshot(task.ID, false)
	require.NotNil(t, snap)
	require.NotNil(t, snap.Status.Message)
	assert.Equal(t, "need the ledger file", snap.Status.Message.Parts[0].Text)
}

func TestFindByContextID(t *testing.T) {
	reg := New(2, 2, nil)
	task, _ := reg.Create("a")

	assert.Same(t, task, reg.FindByContextID(task.ContextID))
	assert.Nil(t, reg.FindByContextID("nope"))
}

func TestAgentContextIDSetOnce(t *testing.T) {
	reg := New(1, 1, nil)
	task, _ := reg.Create("a")

	reg.SetAgentContextID(task.ID, "agent-ctx-1")
	reg.SetAgentContextID(task.ID, "agent-ctx-2")
	assert.Equal(t, "agent-ctx-1", reg.Get(task.ID).AgentContextID)
}

func TestArtifactsAccumulate(t *testing.T) {
	reg := New(1, 1, nil)
	task, _ := reg.Create("a")

	reg.AppendArtifacts(task.ID, []Artifact{{Name: "one.txt"}})
	reg.AppendArtifacts(task.ID, []Artifact{{Name: "two.txt"}})
	require.Len(t, reg.Get(task.ID).Artifacts, 2)
	assert.Equal(t, "one.txt", reg.Get(task.ID).Artifacts[0].Name)
}
