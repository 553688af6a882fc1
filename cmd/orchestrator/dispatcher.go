package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sparesparrow/ai-servis/envelope"
	"github.com/sparesparrow/ai-servis/pipeline"
)

// pipelineDispatcher adapts a running pipeline.Pipeline to adapters.Dispatcher:
// it submits the text as a Command and polls for its terminal CommandResult,
// since Submit is asynchronous (spec.md §4.5 step 1, §4.9 adapter contract).
type pipelineDispatcher struct {
	p            *pipeline.Pipeline
	pollInterval time.Duration
}

func newPipelineDispatcher(p *pipeline.Pipeline) *pipelineDispatcher {
	return &pipelineDispatcher{p: p, pollInterval: 25 * time.Millisecond}
}

func (d *pipelineDispatcher) Dispatch(ctx context.Context, sessionID, userID, text string) (any, error) {
	cmd := pipeline.Command{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Text:      text,
		Priority:  pipeline.PriorityNormal,
	}

	result, err := d.p.Submit(cmd)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for isTerminal(result.State) == false {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			r, ok := d.p.Result(cmd.ID)
			if ok {
				result = r
			}
		}
	}

	if !result.Success {
		return nil, &envelope.Error{Code: envelope.ErrorCode(result.ErrorCode), Message: result.Error}
	}
	return result.Result, nil
}

func isTerminal(s pipeline.State) bool {
	switch s {
	case pipeline.StateCompleted, pipeline.StateFailed, pipeline.StateTimeout, pipeline.StateCancelled:
		return true
	default:
		return false
	}
}
