package worker

import (
	"context"
	"errors"

	"honestai/internal/models"
)

var (
	// ErrDispatcherBusy is returned when the queue already holds QueueSize jobs.
	ErrDispatcherBusy = errors.New("analysis queue is full")
	// ErrDispatcherStopped is returned for jobs submitted to or stranded in a stopped dispatcher.
	ErrDispatcherStopped = errors.New("analysis dispatcher stopped")
)

type JobType int

const (
	Analyze JobType = iota
	Stop
)

// Job is one unit of work handed to a worker. Stop jobs carry no task.
type Job struct {
	Type JobType
	Task *analysisTask
}

type analysisTask struct {
	ctx      context.Context
	user     *models.User
	filename string
	resultCh chan workerReturn
}

type workerReturn struct {
	analysis *models.AnalysisResult
	err      error
}

func (job Job) userID() int64 {
	if job.Task == nil || job.Task.user == nil {
		return 0
	}
	return job.Task.user.ID
}

func (t *analysisTask) finish(ret workerReturn) {
	// resultCh is buffered and written exactly once
	t.resultCh <- ret
}
