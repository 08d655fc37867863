package hooks

import (
	"context"
	"time"

	"aegis/internal/logging"
)

// Stage is one named step of the pipeline.
type Stage struct {
	Name string
	Run  func(ctx context.Context, state *ConversationState) error
}

// Pipeline executes pre-turn and post-turn stages in registration order.
type Pipeline struct {
	pre    []Stage
	post   []Stage
	logger logging.Logger
}

// NewPipeline returns an empty pipeline.
func NewPipeline(logger logging.Logger) *Pipeline {
	return &Pipeline{logger: logging.OrNop(logger)}
}

// PreTurn appends stages to the pre-turn phase.
func (p *Pipeline) PreTurn(stages ...Stage) *Pipeline {
	p.pre = append(p.pre, stages...)
	return p
}

// PostTurn appends stages to the post-turn phase.
func (p *Pipeline) PostTurn(stages ...Stage) *Pipeline {
	p.post = append(p.post, stages...)
	return p
}

// RunPreTurn executes the pre-turn stages. Errors are logged, never returned.
func (p *Pipeline) RunPreTurn(ctx context.Context, state *ConversationState) {
	p.run(ctx, "pre-turn", p.pre, state)
}

// RunPostTurn executes the post-turn stages. Errors are logged, never
// returned.
func (p *Pipeline) RunPostTurn(ctx context.Context, state *ConversationState) {
	p.run(ctx, "post-turn", p.post, state)
}

func (p *Pipeline) run(ctx context.Context, phase string, stages []Stage, state *ConversationState) {
	for _, stage := range stages {
		if ctx.Err() != nil {
			p.logger.Warn("hook %s aborted before %s: %v", phase, stage.Name, ctx.Err())
			return
		}
		start := time.Now()
		if err := stage.Run(ctx, state); err != nil {
			p.logger.Warn("hook %s/%s failed: %v", phase, stage.Name, err)
			continue
		}
		p.logger.Debug("hook %s/%s done in %s", phase, stage.Name, time.Since(start))
	}
}
