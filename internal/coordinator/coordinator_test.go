package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/burstcam/internal/camera"
	"github.com/smazurov/burstcam/internal/device"
	"github.com/smazurov/burstcam/internal/device/sim"
	"github.com/smazurov/burstcam/internal/events"
	"github.com/smazurov/burstcam/internal/preset"
	"github.com/smazurov/burstcam/internal/sink"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func simCamera(id string) sim.Config {
	return sim.Config{ID: id, Model: "MER2-302-56U3M", SensorWidth: 64, SensorHeight: 32, FramesPerTrigger: 12, TickStep: 1000}
}

type discoveryRecorder struct {
	mu     sync.Mutex
	events []events.DeviceDiscoveryEvent
	seen   chan struct{}
}

func newDiscoveryRecorder() *discoveryRecorder {
	return &discoveryRecorder{seen: make(chan struct{}, 16)}
}

func (r *discoveryRecorder) record(e events.DeviceDiscoveryEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.seen <- struct{}{}:
	default:
	}
}

// wait blocks until n events arrived; the bus delivers asynchronously.
func (r *discoveryRecorder) wait(t *testing.T, n int) []string {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		if got := r.actions(); len(got) >= n {
			return got
		}
		select {
		case <-r.seen:
		case <-timeout:
			t.Fatalf("discovery events = %v, want %d", r.actions(), n)
		}
	}
}

func (r *discoveryRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.CameraID + ":" + e.Action
	}
	return out
}

func newTestCoordinator(t *testing.T, enum *sim.Enumerator, mutate func(*Options)) (*Coordinator, *events.Bus) {
	t.Helper()
	bus := events.New()
	opts := Options{
		Enumerator: enum,
		Camera: camera.Options{
			OutputDir: t.TempDir(),
			MinFrames: 5,
		},
		OpenRetry: 500 * time.Millisecond,
		Bus:       bus,
		Logger:    newTestLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	c := New(opts)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, bus
}

func TestStartOpensEveryCamera(t *testing.T) {
	enum := sim.NewEnumerator(simCamera("cam0"), simCamera("cam1"))
	c, bus := newTestCoordinator(t, enum, nil)
	rec := newDiscoveryRecorder()
	defer bus.Subscribe(rec.record)()

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	cams := c.Cameras()
	if len(cams) != 2 || cams[0].ID() != "cam0" || cams[1].ID() != "cam1" {
		t.Fatalf("cameras = %v, want cam0, cam1", cams)
	}
	got := rec.wait(t, 2)
	if len(got) != 2 || got[0] != "cam0:added" || got[1] != "cam1:added" {
		t.Errorf("discovery events = %v", got)
	}

	// A second discovery finds nothing new.
	if n, err := c.Discover(context.Background()); err != nil || n != 2 {
		t.Errorf("Discover = (%d, %v), want (2, nil)", n, err)
	}
}

func TestOpenRetriesFlakyDevice(t *testing.T) {
	enum := sim.NewEnumerator(simCamera("cam0"))
	enum.FailNextOpens(2)
	c, _ := newTestCoordinator(t, enum, nil)

	if n, err := c.Discover(context.Background()); err != nil || n != 1 {
		t.Fatalf("Discover = (%d, %v), want (1, nil)", n, err)
	}
}

func TestOpenGivesUp(t *testing.T) {
	enum := sim.NewEnumerator(simCamera("cam0"))
	enum.FailNextOpens(1000)
	c, bus := newTestCoordinator(t, enum, func(o *Options) { o.OpenRetry = 100 * time.Millisecond })
	rec := newDiscoveryRecorder()
	defer bus.Subscribe(rec.record)()

	n, err := c.Discover(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Discover = (%d, %v), want (0, nil)", n, err)
	}
	if got := rec.wait(t, 1); len(got) != 1 || got[0] != "cam0:failed" {
		t.Errorf("discovery events = %v, want [cam0:failed]", got)
	}
}

func TestDispatchUnknownCamera(t *testing.T) {
	c, _ := newTestCoordinator(t, sim.NewEnumerator(), nil)
	err := c.Dispatch("missing", func(*camera.Controller) error { return nil })
	if !errors.Is(err, camera.ErrUnknownCamera) {
		t.Errorf("error = %v, want ErrUnknownCamera", err)
	}
	if _, err := c.ExportFITS("missing", ""); !errors.Is(err, camera.ErrUnknownCamera) {
		t.Errorf("ExportFITS error = %v, want ErrUnknownCamera", err)
	}
}

func TestExportWithoutBurst(t *testing.T) {
	c, _ := newTestCoordinator(t, sim.NewEnumerator(simCamera("cam0")), nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ExportFITS("cam0", ""); !errors.Is(err, ErrNoBurst) {
		t.Errorf("error = %v, want ErrNoBurst", err)
	}
}

func TestBurstReachesSinks(t *testing.T) {
	c, bus := newTestCoordinator(t, sim.NewEnumerator(simCamera("cam0")), func(o *Options) { o.FITS = true })
	exports := make(chan events.ExportFinishedEvent, 4)
	defer bus.Subscribe(func(e events.ExportFinishedEvent) { exports <- e })()

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := c.Dispatch("cam0", func(ctrl *camera.Controller) error {
		if err := ctrl.SwitchRecording(context.Background()); err != nil {
			return err
		}
		return ctrl.SwitchTrigger(context.Background(), device.TriggerSourceSoftware)
	})
	if err != nil {
		t.Fatal(err)
	}

	kinds := map[string]events.ExportFinishedEvent{}
	for len(kinds) < 2 {
		select {
		case e := <-exports:
			if e.Error != "" {
				t.Fatalf("%s export failed: %s", e.Kind, e.Error)
			}
			kinds[e.Kind] = e
		case <-time.After(3 * time.Second):
			t.Fatalf("exports seen: %v", kinds)
		}
	}

	entry, ok := c.Archive().Latest("cam0")
	if !ok || entry.Burst.Len() != 10 {
		t.Fatalf("archive entry = %+v, %v", entry, ok)
	}
	if _, err := os.Stat(filepath.Join(entry.Dir, sink.FITSFile)); err != nil {
		t.Errorf("FITS cube missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(entry.Dir, camera.PresetFile)); err != nil {
		t.Errorf("preset snapshot missing: %v", err)
	}
	if _, err := c.ExportFITS("cam0", ""); err != nil {
		t.Errorf("ExportFITS failed: %v", err)
	}
}

func TestRemoveClosesCamera(t *testing.T) {
	enum := sim.NewEnumerator(simCamera("cam0"))
	c, _ := newTestCoordinator(t, enum, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.Remove(context.Background(), "cam0"); err != nil {
		t.Fatal(err)
	}
	dev, _ := enum.Lookup("cam0")
	if !dev.Closed() {
		t.Error("device should be closed")
	}
	if _, err := c.Camera("cam0"); !errors.Is(err, camera.ErrUnknownCamera) {
		t.Errorf("error = %v, want ErrUnknownCamera", err)
	}
}

func TestUserPresetsLoadedAndSaved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	fast := preset.Preset{Width: 32, Height: 8, FrameRate: 1000, ExposureTime: 500, Gain: 6, FramesQuantity: 20}
	if err := preset.SaveFile(path, map[string]preset.Preset{"fast": fast}); err != nil {
		t.Fatal(err)
	}

	c, _ := newTestCoordinator(t, sim.NewEnumerator(simCamera("cam0")), func(o *Options) { o.PresetsFile = path })
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctrl, _ := c.Camera("cam0")
	if got, err := ctrl.Presets().Get("fast"); err != nil || got != fast {
		t.Fatalf("fast preset = %+v, %v", got, err)
	}

	if err := c.SavePreset("cam0", "mine"); err != nil {
		t.Fatal(err)
	}
	onDisk, err := preset.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := onDisk["mine"]; !ok || len(onDisk) != 2 {
		t.Errorf("file presets = %v, want fast and mine", onDisk)
	}

	if err := c.DeletePreset("fast"); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Presets().Get("fast"); err == nil {
		t.Error("deleted preset still in camera store")
	}
	if err := c.SavePreset("cam0", preset.Default); err == nil {
		t.Error("saving over a built-in preset should fail")
	}
}

func TestUserPresetsReloadOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	if err := preset.SaveFile(path, map[string]preset.Preset{"a": {Width: 16, Height: 2}}); err != nil {
		t.Fatal(err)
	}
	c, _ := newTestCoordinator(t, sim.NewEnumerator(simCamera("cam0")), func(o *Options) { o.PresetsFile = path })
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := preset.SaveFile(path, map[string]preset.Preset{"b": {Width: 32, Height: 4}}); err != nil {
		t.Fatal(err)
	}
	c.presets.watcher.Reload()

	ctrl, _ := c.Camera("cam0")
	if _, err := ctrl.Presets().Get("a"); err == nil {
		t.Error("preset a should be removed after reload")
	}
	if _, err := ctrl.Presets().Get("b"); err != nil {
		t.Errorf("preset b missing after reload: %v", err)
	}
}

func TestPreviewQueuePerCamera(t *testing.T) {
	c, _ := newTestCoordinator(t, sim.NewEnumerator(simCamera("cam0"), simCamera("cam1")), func(o *Options) {
		o.PreviewFPS = 25
	})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, ctrl := range c.Cameras() {
		if err := ctrl.SwitchRecording(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	counts := map[string]int{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range []string{"cam0", "cam1"} {
		frames, unsub := c.Preview().Subscribe(id)
		defer unsub()
		wg.Add(1)
		go func() {
			defer wg.Done()
			timeout := time.After(time.Second)
			for {
				select {
				case _, ok := <-frames:
					if !ok {
						return
					}
					mu.Lock()
					counts[id]++
					mu.Unlock()
				case <-timeout:
					return
				}
			}
		}()
	}
	wg.Wait()

	// Each camera is throttled on its own, so both get close to the full rate.
	for _, id := range []string{"cam0", "cam1"} {
		if n := counts[id]; n < 15 || n > 30 {
			t.Errorf("%s delivered %d preview frames in 1s, want about 25", id, n)
		}
	}

	if err := c.Remove(context.Background(), "cam1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Preview().Latest("cam1"); ok {
		t.Error("removed camera still has a preview frame")
	}
}

func TestSavedBurstSurvivesRestart(t *testing.T) {
	out := t.TempDir()
	first, bus := newTestCoordinator(t, sim.NewEnumerator(simCamera("cam0")), func(o *Options) { o.Camera.OutputDir = out })
	saved := make(chan events.ExportFinishedEvent, 4)
	defer bus.Subscribe(func(e events.ExportFinishedEvent) {
		if e.Kind == sink.KindImages {
			saved <- e
		}
	})()

	if err := first.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := first.Dispatch("cam0", func(ctrl *camera.Controller) error {
		if err := ctrl.SwitchRecording(context.Background()); err != nil {
			return err
		}
		return ctrl.SwitchTrigger(context.Background(), device.TriggerSourceSoftware)
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-saved:
		if e.Error != "" {
			t.Fatalf("saving images failed: %s", e.Error)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("burst images were not saved")
	}
	ctrl, _ := first.Camera("cam0")
	ctrl.Wait()
	if err := first.Close(context.Background()); err != nil {
		t.Fatal(err)
	}

	second, _ := newTestCoordinator(t, sim.NewEnumerator(simCamera("cam0")), func(o *Options) { o.Camera.OutputDir = out })
	if err := second.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := second.ExportFITS("cam0", ""); !errors.Is(err, ErrNoBurst) {
		t.Errorf("latest burst after restart: error = %v, want ErrNoBurst", err)
	}

	bursts, err := second.Bursts("cam0")
	if err != nil {
		t.Fatal(err)
	}
	if len(bursts) != 1 || bursts[0].ID != "_0" || bursts[0].Frames != 10 {
		t.Fatalf("saved bursts = %+v", bursts)
	}

	entry, err := second.Burst("cam0", "_0")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Burst.Len() != 10 || entry.Burst.Timestamps[0] != 0 || entry.Burst.CameraID != "cam0" {
		t.Errorf("loaded burst has %d frames, first timestamp %v", entry.Burst.Len(), entry.Burst.Timestamps[0])
	}
	path, err := second.ExportFITS("cam0", "_0")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != bursts[0].Dir {
		t.Errorf("FITS written to %s, want inside %s", path, bursts[0].Dir)
	}

	if _, err := second.Burst("cam0", "_7"); !errors.Is(err, ErrNoBurst) {
		t.Errorf("missing burst error = %v, want ErrNoBurst", err)
	}
	if err := second.DeleteBurst("cam0", "../cam0"); err == nil {
		t.Error("path outside the camera directory should be rejected")
	}
	if err := second.DeleteBurst("cam0", "_0"); err != nil {
		t.Fatal(err)
	}
	if bursts, _ := second.Bursts("cam0"); len(bursts) != 0 {
		t.Errorf("bursts after delete = %+v", bursts)
	}
}

func TestEmptyQuirksAreNotReplaced(t *testing.T) {
	cfg := sim.Config{ID: "mer", Model: "MER-131-210U3M", SensorWidth: 64, SensorHeight: 32, FramesPerTrigger: 1}
	enum := sim.NewEnumerator(cfg)
	c, _ := newTestCoordinator(t, enum, func(o *Options) { o.Camera.Quirks = camera.Quirks{} })
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := c.Dispatch("mer", func(ctrl *camera.Controller) error {
		if err := ctrl.SwitchRecording(context.Background()); err != nil {
			return err
		}
		return ctrl.SwitchTrigger(context.Background(), device.TriggerSourceLine0)
	})
	if err != nil {
		t.Fatal(err)
	}

	// With the legacy list cleared, a MER camera is armed like a current one.
	dev, _ := enum.Lookup("mer")
	selector := false
	for _, call := range dev.SetCalls() {
		if call.Name == device.FeatureTriggerSelector {
			selector = true
		}
	}
	if !selector {
		t.Error("empty quirks were replaced: trigger selector never set")
	}
}
