package worker

import (
	"container/list"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"honestai/internal/config"
)

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher fans analysis jobs out to a bounded worker pool. Users take
// turns: each dispatch serves the user at the front of the ready list and
// moves them to the back if they still have work.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
	capacity int

	mu      sync.Mutex
	queues  map[int64]*userQueue // job queue for each user
	ready   *list.List           // round-robin list of user IDs
	pending int

	stopMu  sync.RWMutex
	stopped bool
	quit    chan struct{}
	done    chan struct{}
}

func NewDispatcher(cfg config.WorkerConfig, analyzer Analyzer) *Dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		pool:     newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, analyzer),
		jobQueue: make(chan Job, queueSize),
		capacity: queueSize,
		queues:   make(map[int64]*userQueue),
		ready:    list.New(),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	d.stopMu.RLock()
	defer d.stopMu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}

	d.mu.Lock()
	if d.pending >= d.capacity {
		d.mu.Unlock()
		return ErrDispatcherBusy
	}
	d.pending++
	d.mu.Unlock()

	// pending bounds the channel contents, so this never blocks
	d.jobQueue <- job
	return nil
}

// Stop refuses new jobs, fails queued ones with ErrDispatcherStopped and
// lets running jobs finish.
func (d *Dispatcher) Stop() {
	d.stopMu.Lock()
	if d.stopped {
		d.stopMu.Unlock()
		<-d.done
		return
	}
	d.stopped = true
	d.stopMu.Unlock()

	close(d.quit)
	// unblocks a dispatch waiting for a free worker
	d.pool.close()
	<-d.done
}

// Stats reports queued jobs and the pool's running and idle workers.
func (d *Dispatcher) Stats() (queued, running, idle int) {
	d.mu.Lock()
	queued = d.pending
	d.mu.Unlock()
	running, idle = d.pool.size()
	return queued, running, idle
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		if !d.hasReady() {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				d.drain()
				return
			}
			continue
		}

		start := time.Now()
		workerChan := d.pool.acquire()
		if workerChan == nil {
			d.drain()
			return
		}
		// choose the job only once a worker is free, so users who queued
		// while we waited still get their turn
		d.collectIncoming()
		job, userID := d.next()
		log.Debug("dispatching analysis job", "user_id", userID, "waited", time.Since(start).Round(time.Millisecond))
		workerChan <- job
	}
}

func (d *Dispatcher) hasReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready.Len() > 0
}

func (d *Dispatcher) collectIncoming() {
	for {
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		default:
			return
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	userID := job.userID()

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[userID]
	if q == nil {
		q = &userQueue{}
		d.queues[userID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.ready.PushBack(userID)
}

// next pops a job from the user at the front of the ready list and moves
// that user to the back if more of their jobs remain. ready must be non-empty.
func (d *Dispatcher) next() (Job, int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elem := d.ready.Front()
	userID := elem.Value.(int64)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.queues, userID)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.pending--
	return job, userID
}

// drain fails every job still waiting in the dispatcher.
func (d *Dispatcher) drain() {
	d.collectIncoming()

	d.mu.Lock()
	var stranded []Job
	for _, q := range d.queues {
		stranded = append(stranded, q.jobs...)
	}
	d.queues = make(map[int64]*userQueue)
	d.ready.Init()
	d.pending = 0
	d.mu.Unlock()

	for _, job := range stranded {
		job.Task.finish(workerReturn{err: ErrDispatcherStopped})
	}
}
