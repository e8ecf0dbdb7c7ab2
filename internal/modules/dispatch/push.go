// README: Bounded worker pool for push delivery.
package dispatch

import (
	"context"
	"sync"

	"taxihub/internal/logger"
)

type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Pusher delivers a single push message to a device token.
type Pusher interface {
	Push(ctx context.Context, token string, n Notification) error
}

type pushJob struct {
	token string
	note  Notification
}

// PushPool fans push messages out over a fixed number of workers. The queue
// is bounded; when it is full new messages are dropped and logged rather
// than blocking the caller.
type PushPool struct {
	pusher  Pusher
	jobs    chan pushJob
	workers int
	log     logger.ILogger
	wg      sync.WaitGroup
}

func NewPushPool(pusher Pusher, workers, queueSize int, log logger.ILogger) *PushPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = workers
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PushPool{
		pusher:  pusher,
		jobs:    make(chan pushJob, queueSize),
		workers: workers,
		log:     log,
	}
}

// Start launches the workers. They drain the queue until ctx is cancelled.
func (p *PushPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Enqueue queues one push. It never blocks; it reports false when the
// queue was full and the message was dropped.
func (p *PushPool) Enqueue(token string, n Notification) bool {
	select {
	case p.jobs <- pushJob{token: token, note: n}:
		return true
	default:
		p.log.Warn("push queue full, message dropped", logger.String("title", n.Title))
		return false
	}
}

// Wait blocks until all workers have exited.
func (p *PushPool) Wait() {
	p.wg.Wait()
}

func (p *PushPool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			if err := p.pusher.Push(ctx, job.token, job.note); err != nil {
				p.log.Warn("push delivery failed", logger.Error(err))
			}
		}
	}
}
