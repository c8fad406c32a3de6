package models

import (
	"time"

	"github.com/smazurov/burstcam/internal/camera"
	"github.com/smazurov/burstcam/internal/ffmpeg"
	"github.com/smazurov/burstcam/internal/frame"
	"github.com/smazurov/burstcam/internal/metrics"
	"github.com/smazurov/burstcam/internal/preset"
	"github.com/smazurov/burstcam/internal/process"
	"github.com/smazurov/burstcam/internal/sink"
	"github.com/smazurov/burstcam/internal/version"
)

// HealthData reports service health. Status is "degraded" when no camera
// is open.
type HealthData struct {
	Status  string            `json:"status" example:"ok" enum:"ok,degraded" doc:"Service status"`
	Message string            `json:"message" example:"API is healthy" doc:"Status message"`
	Cameras int               `json:"cameras" example:"2" doc:"Number of open cameras"`
	States  map[string]string `json:"states" doc:"Controller state per camera"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// Camera models
type CameraPath struct {
	CameraID string `path:"camera_id" example:"cam0" doc:"Camera identifier"`
}

type CameraListData struct {
	Cameras []camera.Status `json:"cameras" doc:"Open cameras"`
	Count   int             `json:"count" example:"2" doc:"Number of open cameras"`
}

type CameraListResponse struct {
	Body CameraListData
}

type CameraResponse struct {
	Body camera.Status
}

type CameraMetricsData struct {
	CameraID       string                 `json:"camera_id" example:"cam0" doc:"Camera identifier"`
	Metrics        *metrics.CameraMetrics `json:"metrics,omitempty" doc:"Counters since start"`
	PreviewDropped uint64                 `json:"preview_dropped_total" doc:"Preview frames this camera's queue dropped"`
}

type CameraMetricsResponse struct {
	Body CameraMetricsData
}

// Trigger models
type TriggerRequest struct {
	CameraPath
	Body *struct {
		Source string `json:"source,omitempty" enum:"Software,Line0,Line2,Line3" default:"Software" example:"Software" doc:"Trigger source"`
	} `required:"false"`
}

// Settings models
type SettingsRequest struct {
	CameraPath
	Body preset.Preset
}

type SettingsData struct {
	AchievedFrameRate float64 `json:"achieved_frame_rate" example:"240" doc:"Frame rate the sensor reports for the new trigger preset"`
	Error             string  `json:"error,omitempty" doc:"Device errors while applying, the settings may be partially applied"`
}

type SettingsResponse struct {
	Body SettingsData
}

// Preset models
type PresetListData struct {
	Presets map[string]preset.Preset `json:"presets" doc:"Stored presets by name"`
}

type PresetListResponse struct {
	Body PresetListData
}

type ApplyPresetRequest struct {
	CameraPath
	Name string `path:"name" example:"fast" doc:"Preset name"`
}

type SavePresetRequest struct {
	Name string `path:"name" example:"fast" doc:"Preset name"`
	Body struct {
		CameraID string `json:"camera_id" example:"cam0" doc:"Camera whose trigger preset is saved"`
	}
}

type DeletePresetRequest struct {
	Name string `path:"name" example:"fast" doc:"Preset name"`
}

// Transform models
type TransformRequest struct {
	CameraPath
	Body struct {
		Action string `json:"action" enum:"rotate_left,rotate_right,flip_h,flip_v,crosshair" example:"rotate_left" doc:"Transform toggle"`
	}
}

type TransformResponse struct {
	Body frame.Transform
}

// Colour models
type ColorRequest struct {
	CameraPath
	Body struct {
		Color bool `json:"color" doc:"Convert frames to RGB"`
	}
}

// Preview models
type PreviewResponse struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// Burst models
type BurstData struct {
	CameraID   string           `json:"camera_id" example:"cam0" doc:"Camera identifier"`
	Dir        string           `json:"dir" example:"output/cam0/_3" doc:"Burst directory"`
	Frames     int              `json:"frames" example:"10" doc:"Frames captured"`
	Timestamps []float64        `json:"timestamps" doc:"Frame timestamps relative to the first frame (µs)"`
	Reason     frame.ExitReason `json:"reason" example:"quantity" doc:"Why acquisition ended"`
	Preset     preset.Preset    `json:"preset" doc:"Trigger preset used for the burst"`
	StartedAt  time.Time        `json:"started_at" doc:"Arrival of the first frame"`
	Duration   string           `json:"duration" example:"41.6ms" doc:"Time from first to last frame"`
	ReceivedAt time.Time        `json:"received_at" doc:"When the burst was handed off"`
}

type BurstResponse struct {
	Body BurstData
}

type BurstPath struct {
	CameraPath
	BurstID string `path:"burst_id" example:"_3" doc:"Saved burst identifier"`
}

type BurstListData struct {
	Bursts []sink.SavedBurst `json:"bursts" doc:"Bursts saved on disk, oldest first"`
}

type BurstListResponse struct {
	Body BurstListData
}

type FITSExportRequest struct {
	CameraPath
	Burst string `query:"burst" example:"_3" doc:"Saved burst to export (default: latest burst)"`
}

// Export models
type VideoExportRequest struct {
	CameraPath
	Body struct {
		Start     int              `json:"start,omitempty" minimum:"0" example:"1" doc:"First frame, 1-based (0 = first)"`
		End       int              `json:"end,omitempty" minimum:"0" example:"10" doc:"Last frame, 1-based, inclusive (0 = last)"`
		FrameRate float64          `json:"frame_rate,omitempty" minimum:"0" example:"10" doc:"Output frame rate (default 10)"`
		Codec     ffmpeg.CodecType `json:"codec,omitempty" enum:"h264,h265,mjpeg,ffv1" example:"h264" doc:"Output codec"`
		CRF       int              `json:"crf,omitempty" minimum:"0" maximum:"51" doc:"Constant rate factor override"`
		Output    string           `json:"output,omitempty" doc:"Output file name inside the burst directory"`
		Burst     string           `json:"burst,omitempty" example:"_3" doc:"Saved burst to export (default: latest burst)"`
	}
}

type ExportData struct {
	Path string `json:"path" example:"output/cam0/_3/video_(10)frames.mp4" doc:"Written file"`
}

type ExportResponse struct {
	Body ExportData
}

type JobListData struct {
	Jobs []*process.JobInfo `json:"jobs" doc:"Export jobs"`
}

type JobListResponse struct {
	Body JobListData
}

// Codec models
type CodecListData struct {
	Codecs []ffmpeg.Codec `json:"codecs" doc:"Video codecs available for export"`
}

type CodecListResponse struct {
	Body CodecListData
}

// Discovery models
type DiscoverData struct {
	Cameras int `json:"cameras" example:"2" doc:"Number of open cameras after discovery"`
}

type DiscoverResponse struct {
	Body DiscoverData
}
