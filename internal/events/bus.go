// Package events is the in-process event bus connecting camera controllers,
// sinks, and the API. It wraps kelindar/event with the concrete event types
// of this package.
package events

import "github.com/kelindar/event"

// Bus broadcasts events to typed subscribers. Delivery is asynchronous;
// each subscriber sees events in publish order.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish sends ev to the subscribers of its type. A nil bus drops the
// event so components can run without one.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case CameraStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case BurstCompletedEvent:
		event.Publish(b.dispatcher, e)
	case BurstDiscardedEvent:
		event.Publish(b.dispatcher, e)
	case SettingsAppliedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceDiscoveryEvent:
		event.Publish(b.dispatcher, e)
	case ExportFinishedEvent:
		event.Publish(b.dispatcher, e)
	case AcquisitionFaultEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler, a func taking one of the event types, and
// returns its unsubscribe function:
//
//	defer bus.Subscribe(func(e BurstCompletedEvent) { ... })()
//
// Handlers of other types are ignored.
func (b *Bus) Subscribe(handler any) func() {
	if b == nil {
		return func() {}
	}
	switch h := handler.(type) {
	case func(CameraStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BurstCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BurstDiscardedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SettingsAppliedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceDiscoveryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ExportFinishedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(AcquisitionFaultEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	}
	return func() {}
}
