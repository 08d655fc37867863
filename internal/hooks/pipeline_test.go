package hooks

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"aegis/internal/org"
)

func namedStage(name string, log *[]string, err error) Stage {
	return Stage{
		Name: name,
		Run: func(ctx context.Context, state *ConversationState) error {
			*log = append(*log, name)
			return err
		},
	}
}

func TestPipelineRunsStagesInOrder(t *testing.T) {
	var ran []string
	pipeline := NewPipeline(nil).
		PreTurn(namedStage("intent", &ran, nil), namedStage("recall", &ran, nil)).
		PostTurn(namedStage("persist", &ran, nil))

	state := &ConversationState{}
	pipeline.RunPreTurn(context.Background(), state)
	pipeline.RunPostTurn(context.Background(), state)

	assert.Equal(t, []string{"intent", "recall", "persist"}, ran)
}

func TestPipelineSwallowsStageErrors(t *testing.T) {
	var ran []string
	pipeline := NewPipeline(nil).PreTurn(
		namedStage("broken", &ran, fmt.Errorf("storage offline")),
		namedStage("survivor", &ran, nil),
	)

	pipeline.RunPreTurn(context.Background(), &ConversationState{})
	assert.Equal(t, []string{"broken", "survivor"}, ran,
		"a failing stage never stops the turn")
}

func TestPipelineStopsOnCanceledContext(t *testing.T) {
	var ran []string
	pipeline := NewPipeline(nil).PreTurn(namedStage("never", &ran, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pipeline.RunPreTurn(ctx, &ConversationState{})
	assert.Empty(t, ran)
}

func TestBeginTurnResetsPerTurnState(t *testing.T) {
	state := &ConversationState{
		Turn:                    3,
		Belief:                  nil,
		PaceLevel:               "contingent",
		ToolFailuresConsecutive: 2,
		ToolFailuresTotal:       5,
		TurnsWithoutProgress:    4,
		Domain:                  "finance",
		EnrichedMessage:         "old enrichment",
		Clarification:           "old question",
		Role:                    &org.RoleProfile{RoleID: "auditor"},
		AllowedPlans:            []string{"research"},
		Advice:                  "old advice",
		ReflectionPrompt:        "old prompt",
		OntologyContext:         "old context",
	}

	state.BeginTurn("new message", "assembled prompt")

	assert.Equal(t, 4, state.Turn)
	assert.Equal(t, "new message", state.UserMessage)
	assert.Equal(t, "assembled prompt", state.Prompt)
	assert.Equal(t, "contingent", state.PrevPaceLevel, "the previous level survives for transition detection")

	assert.Empty(t, state.Domain)
	assert.Empty(t, state.EnrichedMessage)
	assert.Empty(t, state.Clarification)
	assert.Nil(t, state.Role)
	assert.Nil(t, state.AllowedPlans)
	assert.Empty(t, state.Advice)
	assert.Empty(t, state.ReflectionPrompt)
	assert.Empty(t, state.OntologyContext)
	assert.Nil(t, state.Recalled)

	assert.Equal(t, 2, state.ToolFailuresConsecutive, "failure counters persist across turns")
	assert.Equal(t, 5, state.ToolFailuresTotal)
	assert.Equal(t, 4, state.TurnsWithoutProgress)
}

func TestRoleAccessors(t *testing.T) {
	state := &ConversationState{}
	assert.Empty(t, state.ActiveRoleID())
	assert.Nil(t, state.RoleDomains())

	role := &org.RoleProfile{RoleID: "financial_analyst"}
	role.Capabilities.BSTDomains = []string{"finance"}
	state.Role = role
	assert.Equal(t, "financial_analyst", state.ActiveRoleID())
	assert.Equal(t, []string{"finance"}, state.RoleDomains())
}
