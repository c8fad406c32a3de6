package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetCameraStateIsExclusive(t *testing.T) {
	camera := "state-cam"
	defer DeleteCameraMetrics(camera)

	SetCameraState(camera, "streaming")
	SetCameraState(camera, "triggered")

	if v := testutil.ToFloat64(cameraState.WithLabelValues(camera, "triggered")); v != 1 {
		t.Errorf("triggered gauge = %v, want 1", v)
	}
	if v := testutil.ToFloat64(cameraState.WithLabelValues(camera, "streaming")); v != 0 {
		t.Errorf("streaming gauge = %v, want 0", v)
	}
	if m := GetCameraMetrics(camera); m == nil || m.State != "triggered" {
		t.Errorf("cached state = %+v, want triggered", m)
	}
}

func TestRecordBurstUpdatesCounters(t *testing.T) {
	camera := "burst-cam"
	defer DeleteCameraMetrics(camera)

	before := testutil.ToFloat64(burstsTotal.WithLabelValues(camera, OutcomeCompleted))
	RecordBurst(camera, OutcomeCompleted, 10)
	RecordBurst(camera, OutcomeDiscarded, 2)

	if got := testutil.ToFloat64(burstsTotal.WithLabelValues(camera, OutcomeCompleted)) - before; got != 1 {
		t.Errorf("completed bursts delta = %v, want 1", got)
	}

	m := GetCameraMetrics(camera)
	if m == nil {
		t.Fatal("expected cached metrics")
	}
	if m.BurstsCompleted != 1 || m.BurstsDiscarded != 1 {
		t.Errorf("cached bursts = %d/%d, want 1/1", m.BurstsCompleted, m.BurstsDiscarded)
	}
	if m.LastBurstFrames != 2 {
		t.Errorf("LastBurstFrames = %d, want 2", m.LastBurstFrames)
	}

	// Returned value is a copy.
	m.BurstsCompleted = 99
	if GetCameraMetrics(camera).BurstsCompleted != 1 {
		t.Error("cache was modified through returned copy")
	}
}

func TestDeleteCameraMetrics(t *testing.T) {
	camera := "gone-cam"
	SetAchievedFrameRate(camera, 240)
	DeleteCameraMetrics(camera)
	if m := GetCameraMetrics(camera); m != nil {
		t.Error("expected nil after delete")
	}
}

func TestCounterConcurrency(t *testing.T) {
	camera := "concurrent-cam"
	defer DeleteCameraMetrics(camera)

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncPreviewDropped(camera)
			IncPullErrors(camera, "preview")
			_ = GetCameraMetrics(camera)
		}()
	}
	wg.Wait()

	m := GetCameraMetrics(camera)
	if m.PreviewDropped != 100 || m.PullErrors != 100 {
		t.Errorf("got dropped=%d errors=%d, want 100/100", m.PreviewDropped, m.PullErrors)
	}
}

func TestObserveExportCountsFailures(t *testing.T) {
	before := testutil.ToFloat64(exportFailures.WithLabelValues("video"))
	ObserveExport("video", time.Second, errors.New("ffmpeg exited"))
	ObserveExport("video", time.Second, nil)
	if got := testutil.ToFloat64(exportFailures.WithLabelValues("video")) - before; got != 1 {
		t.Errorf("failures delta = %v, want 1", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	RecordAcquisitionExit("handler-cam", "quantity")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "burstcam_acquisition_exits_total") {
		t.Error("expected burstcam_acquisition_exits_total in metrics output")
	}
}
