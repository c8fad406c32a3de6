package preview

import (
	"context"
	"sync"

	"github.com/smazurov/burstcam/internal/frame"
)

type entry struct {
	queue  *Queue
	cancel context.CancelFunc
	done   chan struct{}
}

// Hub owns one Queue and drain goroutine per camera, so the size and rate
// bounds apply to each camera separately.
type Hub struct {
	size int
	fps  float64

	mu     sync.RWMutex
	queues map[string]*entry
}

// NewHub creates a hub whose queues hold size frames and deliver fps
// frames per second.
func NewHub(size int, fps float64) *Hub {
	return &Hub{
		size:   size,
		fps:    fps,
		queues: make(map[string]*entry),
	}
}

// Add starts a queue for cameraID and returns it. Adding a camera twice
// returns the running queue.
func (h *Hub) Add(cameraID string) *Queue {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.queues[cameraID]; ok {
		return e.queue
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		queue:  NewQueue(cameraID, h.size, h.fps),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(e.done)
		e.queue.Run(ctx)
	}()
	h.queues[cameraID] = e
	return e.queue
}

// Remove stops the queue of cameraID and waits for its goroutine.
func (h *Hub) Remove(cameraID string) {
	h.mu.Lock()
	e, ok := h.queues[cameraID]
	delete(h.queues, cameraID)
	h.mu.Unlock()
	if ok {
		e.cancel()
		<-e.done
	}
}

// Close stops every queue.
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.queues))
	for id := range h.queues {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.Remove(id)
	}
}

func (h *Hub) queue(cameraID string) (*Queue, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.queues[cameraID]
	if !ok {
		return nil, false
	}
	return e.queue, true
}

// Latest returns the most recent delivered frame of a camera.
func (h *Hub) Latest(cameraID string) (*frame.Frame, bool) {
	q, ok := h.queue(cameraID)
	if !ok {
		return nil, false
	}
	return q.Latest()
}

// Subscribe returns delivered frames of a camera. For an unknown camera
// the channel is already closed.
func (h *Hub) Subscribe(cameraID string) (<-chan *frame.Frame, func()) {
	q, ok := h.queue(cameraID)
	if !ok {
		ch := make(chan *frame.Frame)
		close(ch)
		return ch, func() {}
	}
	return q.Subscribe()
}

// Dropped returns the frames a camera's queue dropped.
func (h *Hub) Dropped(cameraID string) uint64 {
	q, ok := h.queue(cameraID)
	if !ok {
		return 0
	}
	return q.Dropped()
}
