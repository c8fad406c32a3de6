package sink

import (
	"sync"
	"time"

	"github.com/smazurov/burstcam/internal/frame"
)

// Entry is a completed burst kept for later export.
type Entry struct {
	Burst      *frame.Burst
	Dir        string
	ReceivedAt time.Time
}

// Archive keeps the most recent completed burst of each camera in memory.
type Archive struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewArchive creates an empty archive.
func NewArchive() *Archive {
	return &Archive{entries: make(map[string]Entry)}
}

// OnBurstReady implements camera.BurstConsumer.
func (a *Archive) OnBurstReady(burst *frame.Burst, dir string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[burst.CameraID] = Entry{Burst: burst, Dir: dir, ReceivedAt: time.Now()}
}

// Latest returns the newest burst of a camera.
func (a *Archive) Latest(cameraID string) (Entry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[cameraID]
	return e, ok
}

// Forget drops the burst of a camera.
func (a *Archive) Forget(cameraID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, cameraID)
}
