package worker

import (
	"context"

	"honestai/internal/models"
)

// QueuedRunner runs analyses through a Dispatcher while keeping the call
// synchronous for the caller.
type QueuedRunner struct {
	dispatcher *Dispatcher
}

func NewQueuedRunner(d *Dispatcher) *QueuedRunner {
	return &QueuedRunner{dispatcher: d}
}

// Run queues the analysis and waits for it. If ctx ends first the caller gets
// ctx.Err(); a job that has not started yet is then skipped by its worker.
func (r *QueuedRunner) Run(ctx context.Context, user *models.User, filename string) (*models.AnalysisResult, error) {
	resultCh := make(chan workerReturn, 1)
	job := Job{
		Type: Analyze,
		Task: &analysisTask{ctx: ctx, user: user, filename: filename, resultCh: resultCh},
	}
	if err := r.dispatcher.Submit(job); err != nil {
		return nil, err
	}
	select {
	case ret := <-resultCh:
		return ret.analysis, ret.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
