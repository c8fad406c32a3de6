package coordinator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/smazurov/burstcam/internal/camera"
	"github.com/smazurov/burstcam/internal/events"
	"github.com/smazurov/burstcam/internal/metrics"
	"github.com/smazurov/burstcam/internal/sink"
)

// outputRoot mirrors the controller's default.
func (c *Coordinator) outputRoot() string {
	if c.opts.Camera.OutputDir == "" {
		return "output"
	}
	return c.opts.Camera.OutputDir
}

// Bursts lists the bursts of camera id saved on disk.
func (c *Coordinator) Bursts(id string) ([]sink.SavedBurst, error) {
	if _, err := c.Camera(id); err != nil {
		return nil, err
	}
	return sink.ListBursts(c.outputRoot(), id)
}

// burst resolves a burst of camera id. An empty burstID selects the latest
// burst in memory; otherwise the saved burst directory is used, loading it
// from disk unless it is the latest one.
func (c *Coordinator) burst(id, burstID string) (sink.Entry, error) {
	if _, err := c.Camera(id); err != nil {
		return sink.Entry{}, err
	}
	latest, hasLatest := c.archive.Latest(id)
	if burstID == "" {
		if !hasLatest {
			return sink.Entry{}, ErrNoBurst
		}
		return latest, nil
	}

	dir, err := c.burstDir(id, burstID)
	if err != nil {
		return sink.Entry{}, err
	}
	if hasLatest && filepath.Clean(latest.Dir) == filepath.Clean(dir) {
		return latest, nil
	}
	b, err := sink.LoadBurst(dir)
	if err != nil {
		if errors.Is(err, sink.ErrBurstNotFound) {
			return sink.Entry{}, camera.NewError(ErrCodeNoBurst, err.Error(), err)
		}
		return sink.Entry{}, err
	}
	b.CameraID = id
	c.logger.Debug("Loaded burst from disk", "camera", id, "dir", dir, "frames", b.Len())
	return sink.Entry{Burst: b, Dir: dir, ReceivedAt: b.StartedAt}, nil
}

func (c *Coordinator) burstDir(id, burstID string) (string, error) {
	dir, err := sink.BurstDir(c.outputRoot(), id, burstID)
	switch {
	case errors.Is(err, sink.ErrBurstNotFound):
		return "", camera.NewError(ErrCodeNoBurst, fmt.Sprintf("burst %q of camera %q not found", burstID, id), err)
	case err != nil:
		return "", camera.NewError(ErrCodeInvalidBurst, err.Error(), err)
	}
	return dir, nil
}

// Burst returns the latest burst of camera id, or the saved burst burstID.
func (c *Coordinator) Burst(id, burstID string) (sink.Entry, error) {
	return c.burst(id, burstID)
}

// DeleteBurst removes saved burst burstID of camera id from disk and
// forgets it if it is the latest burst.
func (c *Coordinator) DeleteBurst(id, burstID string) error {
	if _, err := c.Camera(id); err != nil {
		return err
	}
	dir, err := c.burstDir(id, burstID)
	if err != nil {
		return err
	}
	if latest, ok := c.archive.Latest(id); ok && filepath.Clean(latest.Dir) == filepath.Clean(dir) {
		c.archive.Forget(id)
	}
	if err := sink.DeleteBurst(dir); err != nil {
		return err
	}
	c.logger.Info("Burst deleted", "camera", id, "dir", dir)
	return nil
}

// ExportVideo encodes a burst of camera id and returns the file written.
// An empty burstID selects the latest burst.
func (c *Coordinator) ExportVideo(ctx context.Context, id, burstID string, req sink.VideoRequest) (string, error) {
	entry, err := c.burst(id, burstID)
	if err != nil {
		return "", err
	}
	return c.video.Export(ctx, entry.Burst, entry.Dir, req)
}

// ExportFITS writes a burst of camera id as a FITS cube, even when the
// FITS sink is disabled. An empty burstID selects the latest burst.
func (c *Coordinator) ExportFITS(id, burstID string) (string, error) {
	entry, err := c.burst(id, burstID)
	if err != nil {
		return "", err
	}

	start := time.Now()
	path := filepath.Join(entry.Dir, sink.FITSFile)
	err = sink.WriteFITSFile(path, entry.Burst)
	metrics.ObserveExport(sink.KindFITS, time.Since(start), err)

	ev := events.ExportFinishedEvent{
		CameraID:  id,
		Kind:      sink.KindFITS,
		Path:      path,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.bus.Publish(ev)
	return path, err
}
