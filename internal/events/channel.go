package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T into ch for select loops
// such as SSE handlers. The publisher never blocks: events are dropped
// while ch is full. A nil bus never delivers.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return subscribeFiltered[T](bus, ch, "")
}

// SubscribeCamera forwards every camera event into ch, like
// SubscribeToChannel. A non-empty cameraID keeps only that camera's events.
func SubscribeCamera(bus *Bus, ch chan<- any, cameraID string) func() {
	unsubs := []func(){
		subscribeFiltered[CameraStateChangedEvent](bus, ch, cameraID),
		subscribeFiltered[BurstCompletedEvent](bus, ch, cameraID),
		subscribeFiltered[BurstDiscardedEvent](bus, ch, cameraID),
		subscribeFiltered[SettingsAppliedEvent](bus, ch, cameraID),
		subscribeFiltered[DeviceDiscoveryEvent](bus, ch, cameraID),
		subscribeFiltered[ExportFinishedEvent](bus, ch, cameraID),
		subscribeFiltered[AcquisitionFaultEvent](bus, ch, cameraID),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func subscribeFiltered[T Event](bus *Bus, ch chan<- any, cameraID string) func() {
	if bus == nil {
		return func() {}
	}
	return event.Subscribe(bus.dispatcher, func(e T) {
		if cameraID != "" {
			if scoped, ok := any(e).(CameraScoped); ok && scoped.Camera() != cameraID {
				return
			}
		}
		select {
		case ch <- e:
		default:
		}
	})
}
