// Package metrics provides Prometheus metrics for cameras, bursts, and exports.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "burstcam"

// Burst outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeDiscarded = "discarded"
)

var (
	cameraState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "state",
		Help:      "Current controller state, 1 for the active state",
	}, []string{"camera", "state"})

	achievedFrameRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "camera",
		Name:      "achieved_frame_rate",
		Help:      "Frame rate the sensor reported for the trigger preset",
	}, []string{"camera"})

	burstsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "acquisition",
		Name:      "bursts_total",
		Help:      "Acquisition runs by outcome",
	}, []string{"camera", "outcome"})

	exitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "acquisition",
		Name:      "exits_total",
		Help:      "Acquisition loop exits by reason",
	}, []string{"camera", "reason"})

	burstFrames = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "acquisition",
		Name:      "burst_frames",
		Help:      "Frames captured per acquisition run",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"camera"})

	pullErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "device",
		Name:      "pull_errors_total",
		Help:      "Device errors returned while pulling frames",
	}, []string{"camera", "loop"})

	previewDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "preview",
		Name:      "dropped_frames_total",
		Help:      "Preview frames dropped because the consumer was behind",
	}, []string{"camera"})

	// Local cache for the status API.
	cameraCache   = make(map[string]*CameraMetrics)
	cameraCacheMu sync.RWMutex
)

// States tracked by the state gauge.
var states = []string{"idle", "streaming", "triggered", "closed"}

// CameraMetrics holds current counter values for one camera.
type CameraMetrics struct {
	State             string  `json:"state"`
	AchievedFrameRate float64 `json:"achieved_frame_rate"`
	BurstsCompleted   int     `json:"bursts_completed"`
	BurstsDiscarded   int     `json:"bursts_discarded"`
	LastBurstFrames   int     `json:"last_burst_frames"`
	PullErrors        int     `json:"pull_errors"`
	PreviewDropped    int     `json:"preview_dropped"`
}

// Handler returns the Prometheus HTTP handler for all promauto-registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetCameraState marks state as the active state of a camera.
func SetCameraState(camera, state string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		cameraState.WithLabelValues(camera, s).Set(v)
	}
	updateCache(camera, func(m *CameraMetrics) { m.State = state })
}

// SetAchievedFrameRate records the frame rate reported after applying settings.
func SetAchievedFrameRate(camera string, fps float64) {
	achievedFrameRate.WithLabelValues(camera).Set(fps)
	updateCache(camera, func(m *CameraMetrics) { m.AchievedFrameRate = fps })
}

// RecordAcquisitionExit counts why an acquisition run ended.
func RecordAcquisitionExit(camera, reason string) {
	exitsTotal.WithLabelValues(camera, reason).Inc()
}

// RecordBurst counts a finished burst with its outcome and size.
func RecordBurst(camera, outcome string, frames int) {
	burstsTotal.WithLabelValues(camera, outcome).Inc()
	burstFrames.WithLabelValues(camera).Observe(float64(frames))
	updateCache(camera, func(m *CameraMetrics) {
		m.LastBurstFrames = frames
		if outcome == OutcomeCompleted {
			m.BurstsCompleted++
		} else {
			m.BurstsDiscarded++
		}
	})
}

// IncPullErrors counts a device error seen by the named loop.
func IncPullErrors(camera, loop string) {
	pullErrors.WithLabelValues(camera, loop).Inc()
	updateCache(camera, func(m *CameraMetrics) { m.PullErrors++ })
}

// IncPreviewDropped counts a dropped preview frame.
func IncPreviewDropped(camera string) {
	previewDropped.WithLabelValues(camera).Inc()
	updateCache(camera, func(m *CameraMetrics) { m.PreviewDropped++ })
}

// DeleteCameraMetrics removes the gauges and cached values of a camera.
func DeleteCameraMetrics(camera string) {
	for _, s := range states {
		cameraState.DeleteLabelValues(camera, s)
	}
	achievedFrameRate.DeleteLabelValues(camera)

	cameraCacheMu.Lock()
	delete(cameraCache, camera)
	cameraCacheMu.Unlock()
}

// GetCameraMetrics returns a copy of the cached values for a camera.
func GetCameraMetrics(camera string) *CameraMetrics {
	cameraCacheMu.RLock()
	defer cameraCacheMu.RUnlock()
	if m, ok := cameraCache[camera]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func updateCache(camera string, update func(*CameraMetrics)) {
	cameraCacheMu.Lock()
	defer cameraCacheMu.Unlock()
	m, ok := cameraCache[camera]
	if !ok {
		m = &CameraMetrics{}
		cameraCache[camera] = m
	}
	update(m)
}
