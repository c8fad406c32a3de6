// Package preview buffers live camera frames for slow readers.
//
// Every camera gets its own Queue. The camera loop pushes frames without
// blocking; when the queue is full the frame is dropped and counted. The
// queue's drain goroutine pulls frames at a bounded rate, keeps the latest
// frame, and fans it out to subscribers. A Hub owns the queues of all open
// cameras.
package preview

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/smazurov/burstcam/internal/frame"
	"github.com/smazurov/burstcam/internal/metrics"
	"golang.org/x/time/rate"
)

// Defaults for NewQueue.
const (
	DefaultSize = 8
	DefaultFPS  = 25
)

// Queue is a bounded, drop-on-full frame queue for one camera. It
// implements camera.PreviewConsumer.
type Queue struct {
	cameraID string
	ch       chan *frame.Frame
	limiter  *rate.Limiter
	dropped  atomic.Uint64

	mu     sync.RWMutex
	latest *frame.Frame
	subs   map[chan *frame.Frame]struct{}
	closed bool
}

// NewQueue creates a queue for cameraID holding up to size frames and
// delivering at most fps frames per second. Non-positive values use the
// defaults.
func NewQueue(cameraID string, size int, fps float64) *Queue {
	if size <= 0 {
		size = DefaultSize
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Queue{
		cameraID: cameraID,
		ch:       make(chan *frame.Frame, size),
		limiter:  rate.NewLimiter(rate.Limit(fps), 1),
		subs:     make(map[chan *frame.Frame]struct{}),
	}
}

// OnPreviewFrame enqueues f without blocking.
func (q *Queue) OnPreviewFrame(_ string, f *frame.Frame) {
	select {
	case q.ch <- f:
	default:
		q.dropped.Add(1)
		metrics.IncPreviewDropped(q.cameraID)
	}
}

// Dropped returns the number of frames dropped because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Run drains the queue until ctx is cancelled, then closes every
// subscriber channel.
func (q *Queue) Run(ctx context.Context) {
	defer q.shutdown()
	for {
		if err := q.limiter.Wait(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case f := <-q.ch:
			q.deliver(f)
		}
	}
}

func (q *Queue) deliver(f *frame.Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.latest = f
	for ch := range q.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

func (q *Queue) shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for ch := range q.subs {
		close(ch)
		delete(q.subs, ch)
	}
}

// Latest returns the most recent delivered frame.
func (q *Queue) Latest() (*frame.Frame, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.latest, q.latest != nil
}

// Subscribe returns a channel of delivered frames and a function that
// removes the subscription. Slow subscribers miss frames. The channel is
// closed when the queue stops.
func (q *Queue) Subscribe() (<-chan *frame.Frame, func()) {
	ch := make(chan *frame.Frame, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	q.subs[ch] = struct{}{}
	q.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.subs, ch)
			q.mu.Unlock()
		})
	}
}
