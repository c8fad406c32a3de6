package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan BurstCompletedEvent, 1)

	unsub := bus.Subscribe(func(e BurstCompletedEvent) {
		received <- e
	})
	defer unsub()

	event := BurstCompletedEvent{
		CameraID:  "cam0",
		Frames:    10,
		Directory: "output/cam0/_0",
		Reason:    "quantity",
		Timestamp: "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.CameraID != event.CameraID {
		t.Errorf("Expected camera_id %s, got %s", event.CameraID, got.CameraID)
	}
	if got.Frames != 10 {
		t.Errorf("Expected 10 frames, got %d", got.Frames)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan CameraStateChangedEvent, 1)
	received2 := make(chan CameraStateChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e CameraStateChangedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e CameraStateChangedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(CameraStateChangedEvent{CameraID: "cam0", From: "idle", To: "streaming"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan AcquisitionFaultEvent, 1)

	unsub := bus.Subscribe(func(e AcquisitionFaultEvent) {
		received <- e
	})

	bus.Publish(AcquisitionFaultEvent{CameraID: "cam0"})
	<-received

	unsub()

	bus.Publish(AcquisitionFaultEvent{CameraID: "cam1"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	completedReceived := make(chan bool, 1)
	discardedReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ BurstCompletedEvent) {
		completedReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ BurstDiscardedEvent) {
		discardedReceived <- true
	})
	defer unsub2()

	bus.Publish(BurstCompletedEvent{CameraID: "cam0"})
	<-completedReceived

	select {
	case <-discardedReceived:
		t.Fatal("Discard subscriber should NOT have received BurstCompletedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}

	bus.Publish(BurstDiscardedEvent{CameraID: "cam0", Frames: 2, Minimum: 5})
	<-discardedReceived

	select {
	case <-completedReceived:
		t.Fatal("Completion subscriber should NOT have received BurstDiscardedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ DeviceDiscoveryEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(DeviceDiscoveryEvent{
					Action:    "added",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"CameraState", CameraStateChangedEvent{CameraID: "cam0"}},
		{"BurstCompleted", BurstCompletedEvent{CameraID: "cam0"}},
		{"BurstDiscarded", BurstDiscardedEvent{CameraID: "cam0"}},
		{"SettingsApplied", SettingsAppliedEvent{CameraID: "cam0"}},
		{"DeviceDiscovery", DeviceDiscoveryEvent{Action: "added"}},
		{"ExportFinished", ExportFinishedEvent{Kind: "images"}},
		{"AcquisitionFault", AcquisitionFaultEvent{Loop: "preview"}},
		{"LogEntry", LogEntryEvent{Message: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case CameraStateChangedEvent:
				unsub = bus.Subscribe(func(e CameraStateChangedEvent) { received <- e })
			case BurstCompletedEvent:
				unsub = bus.Subscribe(func(e BurstCompletedEvent) { received <- e })
			case BurstDiscardedEvent:
				unsub = bus.Subscribe(func(e BurstDiscardedEvent) { received <- e })
			case SettingsAppliedEvent:
				unsub = bus.Subscribe(func(e SettingsAppliedEvent) { received <- e })
			case DeviceDiscoveryEvent:
				unsub = bus.Subscribe(func(e DeviceDiscoveryEvent) { received <- e })
			case ExportFinishedEvent:
				unsub = bus.Subscribe(func(e ExportFinishedEvent) { received <- e })
			case AcquisitionFaultEvent:
				unsub = bus.Subscribe(func(e AcquisitionFaultEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestBus_NilPublishIsNoop(_ *testing.T) {
	var bus *Bus
	bus.Publish(BurstCompletedEvent{CameraID: "cam0"})
}

func TestNilBusSubscriptionsAreNoops(t *testing.T) {
	var bus *Bus
	ch := make(chan any, 1)
	unsubs := []func(){
		bus.Subscribe(func(BurstCompletedEvent) {}),
		SubscribeToChannel[BurstCompletedEvent](bus, ch),
		SubscribeCamera(bus, ch, "cam0"),
		SubscribeCamera(bus, ch, ""),
	}
	for _, unsub := range unsubs {
		unsub()
	}
	bus.Publish(BurstCompletedEvent{CameraID: "cam0"})
	if len(ch) != 0 {
		t.Error("nil bus delivered an event")
	}
}

func TestEventJSONSerialization(t *testing.T) {
	data, err := json.Marshal(BurstDiscardedEvent{
		CameraID:  "cam0",
		Frames:    3,
		Minimum:   5,
		Reason:    "timeout",
		Timestamp: "2025-01-27T10:30:00Z",
	})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var result map[string]any
	if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
		t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
	}
	if result["camera_id"] != "cam0" {
		t.Errorf("Expected camera_id cam0, got %v", result["camera_id"])
	}
	if result["minimum"] != float64(5) {
		t.Errorf("Expected minimum 5, got %v", result["minimum"])
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[CameraStateChangedEvent](bus, ch)
	defer unsub()

	event := CameraStateChangedEvent{CameraID: "cam0", From: "streaming", To: "triggered"}
	bus.Publish(event)

	received := <-ch
	stateEvent, ok := received.(CameraStateChangedEvent)
	if !ok {
		t.Fatalf("Expected CameraStateChangedEvent, got %T", received)
	}
	if stateEvent.To != event.To {
		t.Errorf("Expected to %s, got %s", event.To, stateEvent.To)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[BurstCompletedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(BurstCompletedEvent{CameraID: "cam0"})
		done <- true
	}()

	<-done // Should complete without blocking
}

// drain collects events from ch until none arrive for a short while.
func drain(ch <-chan any) []any {
	var got []any
	for {
		select {
		case e := <-ch:
			got = append(got, e)
		case <-time.After(50 * time.Millisecond):
			return got
		}
	}
}

func TestSubscribeCameraFilters(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)
	defer SubscribeCamera(bus, ch, "left")()

	bus.Publish(BurstCompletedEvent{CameraID: "right"})
	bus.Publish(BurstCompletedEvent{CameraID: "left"})
	bus.Publish(ExportFinishedEvent{CameraID: "left", Kind: "fits"})
	bus.Publish(LogEntryEvent{CameraID: "left"})

	got := drain(ch)
	for _, e := range got {
		if c := e.(CameraScoped).Camera(); c != "left" {
			t.Errorf("received %T of camera %q", e, c)
		}
	}
	if len(got) != 2 {
		t.Errorf("received %d events %v, want the burst and export events only", len(got), got)
	}
}

func TestSubscribeCameraWithoutFilter(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)
	unsub := SubscribeCamera(bus, ch, "")

	bus.Publish(DeviceDiscoveryEvent{CameraID: "a", Action: "added"})
	bus.Publish(AcquisitionFaultEvent{CameraID: "b"})
	if got := drain(ch); len(got) != 2 {
		t.Errorf("expected 2 events, got %v", got)
	}

	unsub()
	bus.Publish(DeviceDiscoveryEvent{CameraID: "a"})
	if got := drain(ch); len(got) != 0 {
		t.Errorf("events delivered after unsubscribe: %v", got)
	}
}
