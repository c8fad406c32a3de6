package sink

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/burstcam/internal/events"
	"github.com/smazurov/burstcam/internal/frame"
	"github.com/smazurov/burstcam/internal/logging"
	"github.com/smazurov/burstcam/internal/metrics"
	"golang.org/x/image/tiff"
)

// Image formats accepted by DiskSaver.
const (
	FormatPNG  = "png"
	FormatTIFF = "tiff"
)

// DefaultWorkers is the number of concurrent image encoders per burst.
const DefaultWorkers = 4

// Sink kinds reported in metrics and events.
const (
	KindImages = "images"
	KindFITS   = "fits"
	KindVideo  = "video"
)

// FrameFileName returns the file name of frame i (0-based) taken ts
// microseconds after the first frame of its burst.
func FrameFileName(i int, ts float64, ext string) string {
	return fmt.Sprintf("Frame%d__T%sus.%s", i+1, strconv.FormatFloat(ts, 'f', -1, 64), ext)
}

// EncodeImage writes img to w in the given format.
func EncodeImage(w io.Writer, img image.Image, format string) error {
	switch format {
	case FormatPNG, "":
		return png.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}
}

// DiskOptions configures a DiskSaver.
type DiskOptions struct {
	Format  string
	Workers int
	Bus     *events.Bus
	Logger  *slog.Logger
}

// DiskSaver writes every frame of a burst as an image file in the burst directory.
type DiskSaver struct {
	format  string
	workers int
	bus     *events.Bus
	logger  *slog.Logger
}

// NewDiskSaver creates a saver. Unknown formats fall back to PNG.
func NewDiskSaver(opts DiskOptions) *DiskSaver {
	if opts.Format != FormatTIFF {
		opts.Format = FormatPNG
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("sink")
	}
	return &DiskSaver{
		format:  opts.Format,
		workers: opts.Workers,
		bus:     opts.Bus,
		logger:  opts.Logger,
	}
}

// Format returns the image format written by the saver.
func (s *DiskSaver) Format() string { return s.format }

// OnBurstReady implements camera.BurstConsumer.
func (s *DiskSaver) OnBurstReady(burst *frame.Burst, dir string) {
	start := time.Now()
	n, err := s.Save(context.Background(), burst, dir)
	metrics.ObserveExport(KindImages, time.Since(start), err)

	ev := events.ExportFinishedEvent{
		CameraID:  burst.CameraID,
		Kind:      KindImages,
		Path:      dir,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		s.logger.Error("Failed to save burst images", "camera", burst.CameraID, "dir", dir, "saved", n, "error", err)
		ev.Error = err.Error()
	} else {
		s.logger.Info("Burst images saved", "camera", burst.CameraID, "dir", dir, "frames", n, "elapsed", time.Since(start))
	}
	s.bus.Publish(ev)
}

// Save writes the frames of burst into dir using the configured number of
// workers. It returns the number of files written and the first error.
func (s *DiskSaver) Save(ctx context.Context, burst *frame.Burst, dir string) (int, error) {
	jobs := make(chan int)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		saved    int
		firstErr error
	)

	for range min(s.workers, burst.Len()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				path := filepath.Join(dir, FrameFileName(i, burst.Timestamps[i], s.format))
				err := writeImage(path, burst.Frames[i].Image, s.format)

				mu.Lock()
				if err != nil && firstErr == nil {
					firstErr = err
				} else if err == nil {
					saved++
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for i := range burst.Len() {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	return saved, firstErr
}

func writeImage(path string, img image.Image, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := EncodeImage(w, img, format); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
