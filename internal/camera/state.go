package camera

import (
	"context"
	"time"

	"github.com/looplab/fsm"
	"github.com/smazurov/burstcam/internal/events"
	"github.com/smazurov/burstcam/internal/metrics"
)

// Controller states.
const (
	StateIdle      = "idle"
	StateStreaming = "streaming"
	StateTriggered = "triggered"
	StateClosed    = "closed"
)

// State machine events.
const (
	eventStart  = "start"
	eventStop   = "stop"
	eventArm    = "arm"
	eventDisarm = "disarm"
	eventClose  = "close"
)

// newStateMachine builds the controller lifecycle. Triggered is only
// reachable from streaming, so a triggered camera is always streaming.
func newStateMachine(cameraID string, bus *events.Bus) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateStreaming},
			{Name: eventStop, Src: []string{StateStreaming}, Dst: StateIdle},
			{Name: eventArm, Src: []string{StateStreaming}, Dst: StateTriggered},
			{Name: eventDisarm, Src: []string{StateTriggered}, Dst: StateStreaming},
			{Name: eventClose, Src: []string{StateIdle, StateStreaming, StateTriggered}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				metrics.SetCameraState(cameraID, e.Dst)
				ev := events.CameraStateChangedEvent{
					CameraID:  cameraID,
					From:      e.Src,
					To:        e.Dst,
					Timestamp: time.Now().Format(time.RFC3339),
				}
				if len(e.Args) > 0 {
					if source, ok := e.Args[0].(string); ok {
						ev.Source = source
					}
				}
				bus.Publish(ev)
			},
		},
	)
}
