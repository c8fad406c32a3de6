package sink

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/smazurov/burstcam/internal/events"
	"github.com/smazurov/burstcam/internal/frame"
	"github.com/smazurov/burstcam/internal/logging"
	"github.com/smazurov/burstcam/internal/metrics"
)

// FITSFile is the name of the cube written beside each burst.
const FITSFile = "burst.fits"

// WriteFITS streams burst as an 8-bit FITS cube to w. Mono bursts have
// axes (width, height, frames); colour bursts (width, height, 3, frames)
// with planar channels. Relative timestamps go into a TIMES binary table.
func WriteFITS(w io.Writer, burst *frame.Burst) error {
	if burst.Len() == 0 {
		return errors.New("empty burst")
	}
	first := burst.Frames[0]
	width, height, channels := first.Width(), first.Height(), first.Channels

	dims := []int{width, height}
	if channels == 3 {
		dims = append(dims, 3)
	}
	dims = append(dims, burst.Len())

	plane := width * height
	buf := make([]byte, 0, plane*channels*burst.Len())
	for i, f := range burst.Frames {
		if f.Width() != width || f.Height() != height || f.Channels != channels {
			return fmt.Errorf("frame %d is %dx%d/%d, cube is %dx%d/%d",
				i+1, f.Width(), f.Height(), f.Channels, width, height, channels)
		}
		buf = appendPlanes(buf, f.Image, channels)
	}

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()

	im := fitsio.NewImage(8, dims)
	defer im.Close()
	if err := im.Header().Append(burstCards(burst)...); err != nil {
		return err
	}
	if err := im.Write(buf); err != nil {
		return err
	}
	if err := fits.Write(im); err != nil {
		return err
	}

	table, err := fitsio.NewTable("TIMES", []fitsio.Column{
		{Name: "FRAME", Format: "J"},
		{Name: "TIME", Format: "D", Unit: "us"},
	}, fitsio.BINARY_TBL)
	if err != nil {
		return err
	}
	defer table.Close()
	for i, ts := range burst.Timestamps {
		frameNo := int32(i + 1)
		if err := table.Write(&frameNo, &ts); err != nil {
			return err
		}
	}
	return fits.Write(table)
}

func burstCards(burst *frame.Burst) []fitsio.Card {
	p := burst.Preset
	cards := []fitsio.Card{
		{Name: "CAMERA", Value: burst.CameraID, Comment: "camera identifier"},
		{Name: "NFRAMES", Value: burst.Len(), Comment: "frames in burst"},
		{Name: "EXPTIME", Value: p.ExposureTime / 1e6, Comment: "exposure time [s]"},
		{Name: "GAIN", Value: p.Gain, Comment: "analog gain [dB]"},
		{Name: "FRATE", Value: p.FrameRate, Comment: "requested frame rate [fps]"},
		{Name: "TRIGDLY", Value: p.TriggerDelay, Comment: "trigger delay [us]"},
		{Name: "ROIX", Value: p.OffsetX, Comment: "ROI horizontal offset"},
		{Name: "ROIY", Value: p.OffsetY, Comment: "ROI vertical offset"},
		{Name: "REASON", Value: string(burst.Reason), Comment: "acquisition exit reason"},
	}
	if !burst.StartedAt.IsZero() {
		cards = append(cards, fitsio.Card{
			Name:    "DATE-OBS",
			Value:   burst.StartedAt.UTC().Format("2006-01-02T15:04:05.000"),
			Comment: "first frame arrival (UTC)",
		})
	}
	return cards
}

// appendPlanes appends img row-major, one plane per channel.
func appendPlanes(buf []byte, img image.Image, channels int) []byte {
	b := img.Bounds()
	switch src := img.(type) {
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := src.PixOffset(b.Min.X, y)
			buf = append(buf, src.Pix[off:off+b.Dx()]...)
		}
		return buf
	case *image.NRGBA:
		for c := range channels {
			for y := b.Min.Y; y < b.Max.Y; y++ {
				off := src.PixOffset(b.Min.X, y)
				for x := range b.Dx() {
					buf = append(buf, src.Pix[off+x*4+c])
				}
			}
		}
		return buf
	}

	for c := range channels {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				v := [3]uint32{r, g, bl}[c]
				buf = append(buf, byte(v>>8))
			}
		}
	}
	return buf
}

// FITSWriter writes a FITS cube into each burst directory.
type FITSWriter struct {
	bus    *events.Bus
	logger *slog.Logger
}

// NewFITSWriter creates a writer. bus may be nil.
func NewFITSWriter(bus *events.Bus, logger *slog.Logger) *FITSWriter {
	if logger == nil {
		logger = logging.GetLogger("sink")
	}
	return &FITSWriter{bus: bus, logger: logger}
}

// OnBurstReady implements camera.BurstConsumer.
func (fw *FITSWriter) OnBurstReady(burst *frame.Burst, dir string) {
	path := filepath.Join(dir, FITSFile)
	start := time.Now()
	err := WriteFITSFile(path, burst)
	metrics.ObserveExport(KindFITS, time.Since(start), err)

	ev := events.ExportFinishedEvent{
		CameraID:  burst.CameraID,
		Kind:      KindFITS,
		Path:      path,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		fw.logger.Error("Failed to write FITS cube", "camera", burst.CameraID, "path", path, "error", err)
		ev.Error = err.Error()
	} else {
		fw.logger.Info("FITS cube written", "camera", burst.CameraID, "path", path)
	}
	fw.bus.Publish(ev)
}

// WriteFITSFile writes burst to path, removing a partial file on failure.
func WriteFITSFile(path string, burst *frame.Burst) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	err = WriteFITS(w, burst)
	if err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write FITS cube: %w", err)
	}
	return nil
}
