package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/burstcam/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of camera state changes, bursts, exports, and device changes, optionally for one camera",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"camera-state":      events.CameraStateChangedEvent{},
		"burst-completed":   events.BurstCompletedEvent{},
		"burst-discarded":   events.BurstDiscardedEvent{},
		"settings-applied":  events.SettingsAppliedEvent{},
		"device-discovery":  events.DeviceDiscoveryEvent{},
		"export-finished":   events.ExportFinishedEvent{},
		"acquisition-fault": events.AcquisitionFaultEvent{},
	}, func(ctx context.Context, input *struct {
		CameraID string `query:"camera_id" doc:"Only events of this camera"`
	}, send sse.Sender) {
		eventCh := make(chan any, 32)
		defer events.SubscribeCamera(s.eventBus, eventCh, input.CameraID)()

		// Replay the current state so a new client does not wait for the next transition.
		now := time.Now().Format(time.RFC3339)
		for _, c := range s.coord.Cameras() {
			if input.CameraID != "" && c.ID() != input.CameraID {
				continue
			}
			if err := send.Data(events.CameraStateChangedEvent{
				CameraID:  c.ID(),
				From:      c.State(),
				To:        c.State(),
				Timestamp: now,
			}); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
