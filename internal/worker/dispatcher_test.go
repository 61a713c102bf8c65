package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honestai/internal/config"
	"honestai/internal/models"
)

type fakeAnalyzer struct {
	mu      sync.Mutex
	order   []string
	block   chan struct{}
	started chan string
	calls   atomic.Int32
}

func (f *fakeAnalyzer) Run(ctx context.Context, user *models.User, filename string) (*models.AnalysisResult, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- filename
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.order = append(f.order, filename)
	f.mu.Unlock()
	if filename == "broken.wav" {
		return nil, models.ErrAnalysisFailed
	}
	return &models.AnalysisResult{UserID: user.ID, FileName: filename, TruthScore: 0.87}, nil
}

func (f *fakeAnalyzer) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func newRunner(t *testing.T, cfg config.WorkerConfig, analyzer Analyzer) (*QueuedRunner, *Dispatcher) {
	t.Helper()
	d := NewDispatcher(cfg, analyzer)
	t.Cleanup(d.Stop)
	return NewQueuedRunner(d), d
}

func TestQueuedRunnerReturnsResult(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	runner, _ := newRunner(t, config.WorkerConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4}, analyzer)
	alice := &models.User{ID: 1, Username: "alice"}

	res, err := runner.Run(context.Background(), alice, "a.wav")
	require.NoError(t, err)
	assert.Equal(t, "a.wav", res.FileName)
	assert.Equal(t, int64(1), res.UserID)

	_, err = runner.Run(context.Background(), alice, "broken.wav")
	assert.ErrorIs(t, err, models.ErrAnalysisFailed)
}

func TestDispatcherJobOrderPerUser(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	runner, _ := newRunner(t, config.WorkerConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4}, analyzer)
	alice := &models.User{ID: 11, Username: "alice"}

	for _, name := range []string{"first.wav", "second.wav"} {
		_, err := runner.Run(context.Background(), alice, name)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"first.wav", "second.wav"}, analyzer.executed())
}

func TestDispatcherRoundRobinAcrossUsers(t *testing.T) {
	analyzer := &fakeAnalyzer{block: make(chan struct{}), started: make(chan string, 16)}
	runner, _ := newRunner(t, config.WorkerConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 16}, analyzer)
	alice := &models.User{ID: 1}
	bob := &models.User{ID: 2}

	var wg sync.WaitGroup
	run := func(u *models.User, name string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = runner.Run(context.Background(), u, name)
		}()
	}

	// occupy the only worker
	run(alice, "a0.wav")
	require.Equal(t, "a0.wav", <-analyzer.started)

	run(alice, "a1.wav")
	waitQueued(t, runner.dispatcher, 1)
	run(alice, "a2.wav")
	waitQueued(t, runner.dispatcher, 2)
	run(bob, "b1.wav")
	waitQueued(t, runner.dispatcher, 3)

	go func() {
		for range analyzer.started {
		}
	}()
	close(analyzer.block)
	wg.Wait()
	close(analyzer.started)

	// bob is served before alice's second queued job
	assert.Equal(t, []string{"a0.wav", "a1.wav", "b1.wav", "a2.wav"}, analyzer.executed())
}

func TestDispatcherBusy(t *testing.T) {
	analyzer := &fakeAnalyzer{block: make(chan struct{}), started: make(chan string, 4)}
	runner, _ := newRunner(t, config.WorkerConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, analyzer)
	user := &models.User{ID: 5}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx, user, "running.wav")
	require.Equal(t, "running.wav", <-analyzer.started)

	go runner.Run(ctx, user, "queued.wav")
	waitQueued(t, runner.dispatcher, 1)

	_, err := runner.Run(context.Background(), user, "rejected.wav")
	assert.ErrorIs(t, err, ErrDispatcherBusy)
	close(analyzer.block)
}

func TestQueuedRunnerSkipsCancelledJobs(t *testing.T) {
	analyzer := &fakeAnalyzer{block: make(chan struct{}), started: make(chan string, 4)}
	runner, _ := newRunner(t, config.WorkerConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4}, analyzer)
	user := &models.User{ID: 6}

	go runner.Run(context.Background(), user, "long.wav")
	require.Equal(t, "long.wav", <-analyzer.started)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := runner.Run(ctx, user, "impatient.wav")
		errCh <- err
	}()
	waitQueued(t, runner.dispatcher, 1)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(analyzer.block)
	require.Eventually(t, func() bool {
		queued, _, idle := runner.dispatcher.Stats()
		return queued == 0 && idle == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), analyzer.calls.Load())
}

func TestDispatcherStopFailsQueuedJobs(t *testing.T) {
	analyzer := &fakeAnalyzer{block: make(chan struct{}), started: make(chan string, 4)}
	d := NewDispatcher(config.WorkerConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4}, analyzer)
	runner := NewQueuedRunner(d)
	user := &models.User{ID: 7}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Run(ctx, user, "running.wav")
	require.Equal(t, "running.wav", <-analyzer.started)

	errCh := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), user, "queued.wav")
		errCh <- err
	}()
	waitQueued(t, d, 1)

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	assert.ErrorIs(t, <-errCh, ErrDispatcherStopped)
	close(analyzer.block)
	<-stopped

	_, err := runner.Run(context.Background(), user, "late.wav")
	assert.True(t, errors.Is(err, ErrDispatcherStopped))
	d.Stop()
}

func TestPoolRetiresIdleWorkers(t *testing.T) {
	analyzer := &fakeAnalyzer{block: make(chan struct{}), started: make(chan string, 8)}
	d := NewDispatcher(config.WorkerConfig{MinWorkers: 1, MaxWorkers: 3, QueueSize: 8, IdleTimeout: 20 * time.Millisecond}, analyzer)
	defer d.Stop()
	runner := NewQueuedRunner(d)

	var wg sync.WaitGroup
	for i, name := range []string{"a.wav", "b.wav", "c.wav"} {
		wg.Add(1)
		go func(id int64, name string) {
			defer wg.Done()
			_, _ = runner.Run(context.Background(), &models.User{ID: id}, name)
		}(int64(i+1), name)
	}
	for i := 0; i < 3; i++ {
		<-analyzer.started
	}
	_, running, _ := d.Stats()
	assert.Equal(t, 3, running)

	close(analyzer.block)
	wg.Wait()
	require.Eventually(t, func() bool {
		_, running, _ := d.Stats()
		return running == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func waitQueued(t *testing.T, d *Dispatcher, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		queued, _, _ := d.Stats()
		return queued == n
	}, time.Second, time.Millisecond)
}
