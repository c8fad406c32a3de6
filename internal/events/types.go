package events

// Event type constants for kelindar/event.
const (
	TypeCameraState uint32 = iota + 1
	TypeBurstCompleted
	TypeBurstDiscarded
	TypeSettingsApplied
	TypeDeviceDiscovery
	TypeExportFinished
	TypeAcquisitionFault
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CameraScoped is implemented by events that belong to one camera.
type CameraScoped interface {
	Camera() string
}

// CameraStateChangedEvent is published on every controller state transition.
type CameraStateChangedEvent struct {
	CameraID  string `json:"camera_id" example:"cam0" doc:"Camera identifier"`
	From      string `json:"from" example:"streaming" doc:"Previous state"`
	To        string `json:"to" example:"triggered" doc:"New state"`
	Source    string `json:"trigger_source,omitempty" example:"Software" doc:"Trigger source when arming"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraStateChangedEvent.
func (e CameraStateChangedEvent) Type() uint32 { return TypeCameraState }

// Camera implements CameraScoped.
func (e CameraStateChangedEvent) Camera() string { return e.CameraID }

// BurstCompletedEvent is published when a burst was handed to the consumers.
type BurstCompletedEvent struct {
	CameraID   string  `json:"camera_id" example:"cam0" doc:"Camera identifier"`
	Frames     int     `json:"frames" example:"10" doc:"Number of frames in the burst"`
	Directory  string  `json:"directory" example:"output/cam0/_3" doc:"Output directory"`
	Reason     string  `json:"reason" example:"quantity" doc:"Why acquisition stopped"`
	DurationMs float64 `json:"duration_ms" example:"412.5" doc:"Wall-clock acquisition time"`
	Timestamp  string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for BurstCompletedEvent.
func (e BurstCompletedEvent) Type() uint32   { return TypeBurstCompleted }
func (e BurstCompletedEvent) Camera() string { return e.CameraID }

// BurstDiscardedEvent is published when a burst had too few frames to keep.
type BurstDiscardedEvent struct {
	CameraID  string `json:"camera_id" example:"cam0" doc:"Camera identifier"`
	Frames    int    `json:"frames" example:"3" doc:"Frames captured"`
	Minimum   int    `json:"minimum" example:"5" doc:"Minimum frames required"`
	Reason    string `json:"reason" example:"stopped" doc:"Why acquisition stopped"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for BurstDiscardedEvent.
func (e BurstDiscardedEvent) Type() uint32   { return TypeBurstDiscarded }
func (e BurstDiscardedEvent) Camera() string { return e.CameraID }

// SettingsAppliedEvent is published after a user preset was applied.
type SettingsAppliedEvent struct {
	CameraID          string  `json:"camera_id" example:"cam0" doc:"Camera identifier"`
	AchievedFrameRate float64 `json:"achieved_frame_rate" example:"240" doc:"Frame rate the sensor reports for the trigger preset"`
	Timestamp         string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SettingsAppliedEvent.
func (e SettingsAppliedEvent) Type() uint32   { return TypeSettingsApplied }
func (e SettingsAppliedEvent) Camera() string { return e.CameraID }

// DeviceDiscoveryEvent represents a camera being attached or lost.
type DeviceDiscoveryEvent struct {
	CameraID  string `json:"camera_id" example:"cam0" doc:"Camera identifier"`
	Model     string `json:"model" example:"MER2-302-56U3M" doc:"Camera model"`
	Family    string `json:"family" example:"MER2" doc:"Camera family used for quirks"`
	Action    string `json:"action" example:"added" doc:"Action type: added, removed, failed"`
	Error     string `json:"error,omitempty" doc:"Open failure, if any"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceDiscoveryEvent.
func (e DeviceDiscoveryEvent) Type() uint32   { return TypeDeviceDiscovery }
func (e DeviceDiscoveryEvent) Camera() string { return e.CameraID }

// ExportFinishedEvent is published when a background sink finished writing a burst.
type ExportFinishedEvent struct {
	CameraID  string `json:"camera_id" example:"cam0" doc:"Camera identifier"`
	Kind      string `json:"kind" example:"images" doc:"Sink kind: images, fits, video"`
	Path      string `json:"path" example:"output/cam0/_3" doc:"Written file or directory"`
	Error     string `json:"error,omitempty" doc:"Failure, if any"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ExportFinishedEvent.
func (e ExportFinishedEvent) Type() uint32   { return TypeExportFinished }
func (e ExportFinishedEvent) Camera() string { return e.CameraID }

// AcquisitionFaultEvent reports device errors seen while pulling frames.
type AcquisitionFaultEvent struct {
	CameraID  string `json:"camera_id" example:"cam0" doc:"Camera identifier"`
	Loop      string `json:"loop" example:"acquisition" doc:"Loop that saw the fault: preview or acquisition"`
	Error     string `json:"error" doc:"Device error"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for AcquisitionFaultEvent.
func (e AcquisitionFaultEvent) Type() uint32   { return TypeAcquisitionFault }
func (e AcquisitionFaultEvent) Camera() string { return e.CameraID }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"camera" doc:"Source module"`
	CameraID   string         `json:"camera_id,omitempty" example:"cam0" doc:"Camera the entry relates to"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32   { return TypeLogEntry }
func (e LogEntryEvent) Camera() string { return e.CameraID }
