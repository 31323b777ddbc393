package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mrsingh-rishi/voice-agent/queue"
)

// ErrStopped is returned by Submit once the worker has been stopped.
var ErrStopped = errors.New("session worker stopped")

// Job is a unit of session work. The context it receives is detached from
// the submitter's cancellation.
type Job func(ctx context.Context)

type task struct {
	ctx  context.Context
	run  Job
	done chan struct{}
	err  error
}

// SessionWorker runs jobs one at a time in submission order. Every read or
// write of the conversation session goes through it, which makes it the
// session's single writer.
type SessionWorker struct {
	ctx     context.Context
	cancel  context.CancelFunc
	queue   *queue.Queue[*task]
	onDepth func(int)
	log     zerolog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewSessionWorker creates a stopped worker. onDepth, if not nil, is called
// with the number of waiting jobs whenever it changes.
func NewSessionWorker(log zerolog.Logger, onDepth func(int)) *SessionWorker {
	ctx, cancel := context.WithCancel(context.Background())
	if onDepth == nil {
		onDepth = func(int) {}
	}
	return &SessionWorker{
		ctx:     ctx,
		cancel:  cancel,
		queue:   queue.New[*task](),
		onDepth: onDepth,
		log:     log.With().Str("component", "session_worker").Logger(),
	}
}

func (sw *SessionWorker) Start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.started || sw.stopped {
		return
	}
	sw.started = true
	sw.wg.Add(1)
	go func() {
		defer sw.wg.Done()
		for {
			t, err := sw.queue.Wait(sw.ctx)
			if err != nil {
				sw.drain()
				return
			}
			// Wait may hand out a job queued before Stop.
			if sw.ctx.Err() != nil {
				t.err = ErrStopped
				close(t.done)
				sw.drain()
				return
			}
			sw.onDepth(sw.queue.Len())
			sw.execute(t)
		}
	}()
}

// Stop waits for the running job to finish. Jobs still queued fail with
// ErrStopped.
func (sw *SessionWorker) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.stopped = true
	started := sw.started
	sw.cancel()
	sw.mu.Unlock()

	if started {
		sw.wg.Wait()
	} else {
		sw.drain()
	}
}

// Submit queues job and waits for it to finish. If ctx ends before the job
// starts, the job is skipped; if it ends while the job runs, Submit returns
// ctx.Err() and the job still completes.
func (sw *SessionWorker) Submit(ctx context.Context, job Job) error {
	t := &task{ctx: ctx, run: job, done: make(chan struct{})}

	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return ErrStopped
	}
	sw.queue.Enqueue(t)
	sw.mu.Unlock()
	sw.onDepth(sw.queue.Len())

	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sw *SessionWorker) execute(t *task) {
	defer close(t.done)

	if err := t.ctx.Err(); err != nil {
		sw.log.Debug().Err(err).Msg("skipping job abandoned before start")
		t.err = err
		return
	}

	defer func() {
		if p := recover(); p != nil {
			sw.log.Error().Interface("panic", p).Msg("session job panicked")
			t.err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	t.run(context.WithoutCancel(t.ctx))
}

func (sw *SessionWorker) drain() {
	for {
		t, ok := sw.queue.Dequeue()
		if !ok {
			break
		}
		t.err = ErrStopped
		close(t.done)
	}
	sw.onDepth(0)
}
