package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/burstcam/internal/events"
	"github.com/smazurov/burstcam/internal/logging"
)

// LogListResponse is the body of GET /api/logs.
type LogListResponse struct {
	Body struct {
		Entries []logging.LogEntry `json:"entries" doc:"Buffered log entries, oldest first"`
		Lines   []string           `json:"lines,omitempty" doc:"Entries rendered as text when format=text"`
	}
}

// LogLevelsResponse is the body of the log level endpoints.
type LogLevelsResponse struct {
	Body struct {
		Levels map[string]string `json:"levels" doc:"Current level per module"`
	}
}

// SetLogLevelRequest changes the level of one module.
type SetLogLevelRequest struct {
	Module string `path:"module" example:"camera" doc:"Logger module"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}

func levelsResponse() *LogLevelsResponse {
	resp := &LogLevelsResponse{}
	resp.Body.Levels = logging.ModuleLevels()
	return resp
}

func toLogEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		CameraID:   entry.CameraID,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

// registerLogRoutes registers the log endpoints.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Logs",
		Description: "Get the buffered log entries, optionally filtered by camera",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *struct {
		CameraID string `query:"camera_id" doc:"Only entries of this camera"`
		Since    uint64 `query:"since" doc:"Only entries with a greater sequence number"`
		Format   string `query:"format" enum:"json,text" default:"json" doc:"Also render entries as text lines"`
	}) (*LogListResponse, error) {
		resp := &LogListResponse{}
		resp.Body.Entries = []logging.LogEntry{}
		if buffer := logging.GetBuffer(); buffer != nil {
			resp.Body.Entries = append(resp.Body.Entries, buffer.Filter(input.Since, func(e logging.LogEntry) bool {
				return input.CameraID == "" || e.CameraID == input.CameraID
			})...)
		}
		if input.Format == "text" {
			for _, e := range resp.Body.Entries {
				resp.Body.Lines = append(resp.Body.Lines, logging.FormatLogLine(e))
			}
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logs/levels",
		Summary:     "Log Levels",
		Description: "Get the level of every module logger",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*LogLevelsResponse, error) {
		return levelsResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/levels/{module}",
		Summary:     "Set Log Level",
		Description: "Change the level of one module logger until restart",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 422},
	}, func(_ context.Context, input *SetLogLevelRequest) (*LogLevelsResponse, error) {
		if err := logging.SetModuleLevel(input.Module, input.Body.Level); err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		s.logger.Info("Log level changed", "target", input.Module, "level", input.Body.Level)
		return levelsResponse(), nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying history; the seq lets clients drop duplicates.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.Since(0) {
				if err := send.Data(toLogEvent(entry)); err != nil {
					return
				}
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

// PublishLogs forwards every new log entry to the event bus for SSE clients.
func PublishLogs(bus *events.Bus) {
	logging.SetLogCallback(func(entry logging.LogEntry) {
		bus.Publish(toLogEvent(entry))
	})
}
