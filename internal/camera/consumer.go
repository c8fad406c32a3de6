package camera

import "github.com/smazurov/burstcam/internal/frame"

// BurstConsumer receives completed bursts. OnBurstReady runs on its own
// goroutine after the controller has returned to streaming; the burst is
// shared between consumers and must not be modified.
type BurstConsumer interface {
	OnBurstReady(burst *frame.Burst, dir string)
}

// PreviewConsumer receives live frames from the preview and acquisition
// loops. OnPreviewFrame is called on the producer goroutine and must not block.
type PreviewConsumer interface {
	OnPreviewFrame(cameraID string, f *frame.Frame)
}

// BurstConsumerFunc adapts a function to BurstConsumer.
type BurstConsumerFunc func(burst *frame.Burst, dir string)

// OnBurstReady implements BurstConsumer.
func (fn BurstConsumerFunc) OnBurstReady(burst *frame.Burst, dir string) {
	fn(burst, dir)
}

// AddBurstConsumer registers c for every completed burst.
func (c *Controller) AddBurstConsumer(bc BurstConsumer) {
	c.consumersMu.Lock()
	defer c.consumersMu.Unlock()
	c.burstConsumers = append(c.burstConsumers, bc)
}

// AddPreviewConsumer registers pc for live frames.
func (c *Controller) AddPreviewConsumer(pc PreviewConsumer) {
	c.consumersMu.Lock()
	defer c.consumersMu.Unlock()
	c.previewConsumers = append(c.previewConsumers, pc)
}

func (c *Controller) publishPreview(f *frame.Frame) {
	c.consumersMu.RLock()
	defer c.consumersMu.RUnlock()
	for _, pc := range c.previewConsumers {
		pc.OnPreviewFrame(c.id, f)
	}
}

func (c *Controller) snapshotBurstConsumers() []BurstConsumer {
	c.consumersMu.RLock()
	defer c.consumersMu.RUnlock()
	return append([]BurstConsumer(nil), c.burstConsumers...)
}
