package worker

import (
	"context"

	"github.com/charmbracelet/log"

	"honestai/internal/models"
)

// Analyzer runs the analysis pipeline for one request.
type Analyzer interface {
	Run(ctx context.Context, user *models.User, filename string) (*models.AnalysisResult, error)
}

type Worker struct {
	id         int
	pool       *jobChannelPool
	analyzer   Analyzer
	jobChannel chan Job
}

func NewWorker(id int, pool *jobChannelPool, analyzer Analyzer) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		analyzer:   analyzer,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			switch job.Type {
			case Stop:
				log.Debug("worker retired", "worker", w.id)
				w.pool.retire(w.jobChannel)
				return
			case Analyze:
				w.handle(job.Task)
			}
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}

func (w *Worker) handle(task *analysisTask) {
	// the caller gave up while the job was queued
	if err := task.ctx.Err(); err != nil {
		task.finish(workerReturn{err: err})
		return
	}
	res, err := w.analyzer.Run(task.ctx, task.user, task.filename)
	task.finish(workerReturn{analysis: res, err: err})
}
