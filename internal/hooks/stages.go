package hooks

import (
	"context"

	"aegis/internal/bst"
	"aegis/internal/memory"
	"aegis/internal/ontology"
	"aegis/internal/org"
	"aegis/internal/org/toolhealth"
)

// BSTStage classifies the message, fills slots, and stores the resulting
// belief and enriched message on the state.
func BSTStage(engine *bst.Engine) Stage {
	return Stage{
		Name: "bst",
		Run: func(ctx context.Context, state *ConversationState) error {
			result := engine.Process(bst.Input{
				Message: state.UserMessage,
				History: state.History,
				Turn:    state.Turn,
				Prior:   state.Belief,
			})
			if result.Belief != nil {
				state.Belief = result.Belief
				state.Domain = result.Belief.Domain
			}
			switch result.Action {
			case bst.ActionEnrich:
				state.EnrichedMessage = result.Enriched
			case bst.ActionClarify:
				state.Clarification = result.Clarification
			}
			return nil
		},
	}
}

// DispatchStage runs role selection, the PACE tick, and SALUTE emission.
func DispatchStage(dispatcher *org.Dispatcher) Stage {
	return Stage{
		Name: "org-dispatch",
		Run: func(ctx context.Context, state *ConversationState) error {
			result := dispatcher.Dispatch(org.TurnInput{
				Domain:                  state.Domain,
				CurrentTask:             state.CurrentTask,
				Plan:                    state.Plan,
				PlanStep:                state.PlanStep,
				PlanTotalSteps:          state.PlanTotalSteps,
				IterationsOnStep:        state.IterationsOnStep,
				Progress:                state.Progress,
				CurrentTool:             state.CurrentTool,
				WorkingDir:              state.WorkingDir,
				FilesModified:           state.FilesModified,
				FilesRead:               state.FilesRead,
				Model:                   state.Model,
				TurnCount:               state.Turn,
				TurnsWithoutProgress:    state.TurnsWithoutProgress,
				ContextFill:             state.ContextFill,
				ToolFailuresConsecutive: state.ToolFailuresConsecutive,
				ToolFailuresTotal:       state.ToolFailuresTotal,
				UnrecoverableError:      state.UnrecoverableError,
				MemoryHealth:            state.MemoryHealth,
				PrevPaceLevel:           state.PrevPaceLevel,
				TaskAborted:             state.TaskAborted,
			})
			state.Role = result.Role
			state.AllowedPlans = result.AllowedPlans
			state.PaceLevel = result.PaceLevel
			state.PaceTransitioned = result.Transitioned
			return nil
		},
	}
}

// WatchdogStage measures context utilization for the current prompt.
func WatchdogStage(watchdog *org.ContextWatchdog) Stage {
	return Stage{
		Name: "context-watchdog",
		Run: func(ctx context.Context, state *ConversationState) error {
			if state.Prompt != "" {
				state.ContextFill = watchdog.Check(state.Prompt)
			}
			return nil
		},
	}
}

// AdvisorStage injects fallback advice when the current tool keeps failing.
func AdvisorStage(tracker *toolhealth.Tracker) Stage {
	return Stage{
		Name: "fallback-advisor",
		Run: func(ctx context.Context, state *ConversationState) error {
			if state.CurrentTool != "" {
				state.Advice = toolhealth.Advise(tracker, state.CurrentTool)
			}
			return nil
		},
	}
}

// RecallStage runs classified recall against the enriched message.
func RecallStage(recaller *memory.Recaller, roles *org.RoleLibrary) Stage {
	return Stage{
		Name: "memory-recall",
		Run: func(ctx context.Context, state *ConversationState) error {
			query := state.EnrichedMessage
			if query == "" {
				query = state.UserMessage
			}
			if query == "" {
				return nil
			}
			results, err := recaller.Recall(ctx, memory.RecallContext{
				Query:       query,
				ActiveRole:  state.ActiveRoleID(),
				RoleDomains: state.RoleDomains(),
				RoleDomainsOf: func(roleID string) []string {
					if roles == nil {
						return nil
					}
					profile, err := roles.Load(roleID)
					if err != nil {
						return nil
					}
					return profile.Capabilities.BSTDomains
				},
			})
			if err != nil {
				return err
			}
			state.Recalled = results
			return nil
		},
	}
}

// OntologyQueryStage renders the entity context block for the message.
func OntologyQueryStage(querier *ontology.Querier) Stage {
	return Stage{
		Name: "ontology-query",
		Run: func(ctx context.Context, state *ConversationState) error {
			block, err := querier.Context(ctx, state.UserMessage)
			if err != nil {
				return err
			}
			state.OntologyContext = block
			return nil
		},
	}
}

// FailureLogStage classifies the last tool result, updating the trackers and
// the state's failure counters. A reflection prompt appears when the same
// tool keeps producing format errors.
func FailureLogStage(tracker *toolhealth.Tracker, reflection *toolhealth.ReflectionTracker) Stage {
	return Stage{
		Name: "failure-log",
		Run: func(ctx context.Context, state *ConversationState) error {
			if state.LastToolName == "" {
				return nil
			}
			kind := tracker.Record(state.LastToolName, state.LastToolOutput)
			if kind == "" {
				reflection.RecordSuccess()
			} else {
				state.ReflectionPrompt = reflection.RecordError(state.LastToolName, state.LastToolOutput)
			}
			state.ToolFailuresConsecutive = tracker.MaxConsecutive()
			state.ToolFailuresTotal = tracker.Total()
			return nil
		},
	}
}

// ClassifierStage runs one classification cycle and refreshes the memory
// health snapshot.
func ClassifierStage(classifier *memory.Classifier) Stage {
	return Stage{
		Name: "memory-classifier",
		Run: func(ctx context.Context, state *ConversationState) error {
			classifier.RunCycle(ctx, memory.TurnContext{
				LastUserMessage: state.UserMessage,
				ActiveRole:      state.ActiveRoleID(),
				BSTDomain:       state.Domain,
			})
			health := classifier.Health()
			state.MemoryHealth = map[string]any{
				"status":     classifier.HealthLabel(),
				"total":      health.Total,
				"deprecated": health.Deprecated,
			}
			return nil
		},
	}
}

// MemoryMaintenanceStage runs dedup, linking, clustering, and dormancy
// flagging every intervalTurns turns.
func MemoryMaintenanceStage(maintainer *memory.Maintainer, classifier *memory.Classifier, intervalTurns int) Stage {
	if intervalTurns <= 0 {
		intervalTurns = 10
	}
	return Stage{
		Name: "memory-maintenance",
		Run: func(ctx context.Context, state *ConversationState) error {
			if state.Turn == 0 || state.Turn%intervalTurns != 0 {
				return nil
			}
			maintainer.Run(ctx, classifier.Cycle())
			return nil
		},
	}
}

// OntologyMaintenanceStage ticks the ontology maintenance loop counter.
func OntologyMaintenanceStage(maintainer *ontology.Maintainer) Stage {
	return Stage{
		Name: "ontology-maintenance",
		Run: func(ctx context.Context, state *ConversationState) error {
			maintainer.Tick(ctx)
			return nil
		},
	}
}

// Components bundles everything the standard pipeline wires together. Nil
// members skip their stages.
type Components struct {
	BST                 *bst.Engine
	Dispatcher          *org.Dispatcher
	Watchdog            *org.ContextWatchdog
	Roles               *org.RoleLibrary
	ToolTracker         *toolhealth.Tracker
	Reflection          *toolhealth.ReflectionTracker
	Recaller            *memory.Recaller
	Classifier          *memory.Classifier
	MemoryMaint         *memory.Maintainer
	MemoryMaintInterval int
	OntologyQuery       *ontology.Querier
	OntologyMaint       *ontology.Maintainer
}

// StandardPipeline assembles the documented stage order: pre-turn
// BST → dispatcher → watchdog → advisor → recall → ontology query, post-turn
// failure log → classifier → memory maintenance → ontology maintenance.
func StandardPipeline(c Components, pipeline *Pipeline) *Pipeline {
	if c.BST != nil {
		pipeline.PreTurn(BSTStage(c.BST))
	}
	if c.Dispatcher != nil {
		pipeline.PreTurn(DispatchStage(c.Dispatcher))
	}
	if c.Watchdog != nil {
		pipeline.PreTurn(WatchdogStage(c.Watchdog))
	}
	if c.ToolTracker != nil {
		pipeline.PreTurn(AdvisorStage(c.ToolTracker))
	}
	if c.Recaller != nil {
		pipeline.PreTurn(RecallStage(c.Recaller, c.Roles))
	}
	if c.OntologyQuery != nil {
		pipeline.PreTurn(OntologyQueryStage(c.OntologyQuery))
	}

	if c.ToolTracker != nil && c.Reflection != nil {
		pipeline.PostTurn(FailureLogStage(c.ToolTracker, c.Reflection))
	}
	if c.Classifier != nil {
		pipeline.PostTurn(ClassifierStage(c.Classifier))
	}
	if c.MemoryMaint != nil && c.Classifier != nil {
		pipeline.PostTurn(MemoryMaintenanceStage(c.MemoryMaint, c.Classifier, c.MemoryMaintInterval))
	}
	if c.OntologyMaint != nil {
		pipeline.PostTurn(OntologyMaintenanceStage(c.OntologyMaint))
	}
	return pipeline
}
