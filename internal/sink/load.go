package sink

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"time"

	"golang.org/x/image/tiff"

	"github.com/smazurov/burstcam/internal/frame"
	"github.com/smazurov/burstcam/internal/preset"
)

// PresetFile is the name of the preset snapshot written beside each burst.
const PresetFile = "preset.toml"

// ErrBurstNotFound is returned when a saved burst directory does not exist.
var ErrBurstNotFound = errors.New("burst not found")

var (
	burstIDPattern   = regexp.MustCompile(`^_(\d+)$`)
	frameFilePattern = regexp.MustCompile(`^Frame(\d+)__T(.+)us\.(png|tiff)$`)
)

// SavedBurst describes a burst directory on disk.
type SavedBurst struct {
	ID      string    `json:"id" example:"_3" doc:"Burst identifier, the directory name"`
	Dir     string    `json:"dir" example:"output/cam0/_3" doc:"Burst directory"`
	Frames  int       `json:"frames" example:"10" doc:"Frame image files in the directory"`
	ModTime time.Time `json:"modified" doc:"Last modification of the directory"`
}

// BurstDir returns the directory of saved burst id of a camera. The id is
// the directory name as allocated by NextDir, e.g. "_3".
func BurstDir(root, cameraID, id string) (string, error) {
	if !burstIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid burst id %q", id)
	}
	dir := filepath.Join(root, cameraID, id)
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return "", fmt.Errorf("%w: %s", ErrBurstNotFound, dir)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat burst directory: %w", err)
	}
	return dir, nil
}

// ListBursts returns the saved bursts of a camera ordered by id.
func ListBursts(root, cameraID string) ([]SavedBurst, error) {
	base := filepath.Join(root, cameraID)
	entries, err := os.ReadDir(base)
	if errors.Is(err, fs.ErrNotExist) {
		return []SavedBurst{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", base, err)
	}

	type numbered struct {
		n int
		b SavedBurst
	}
	var found []numbered
	for _, e := range entries {
		m := burstIDPattern.FindStringSubmatch(e.Name())
		if m == nil || !e.IsDir() {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		dir := filepath.Join(base, e.Name())
		files, err := frameFiles(dir)
		if err != nil {
			return nil, err
		}
		sb := SavedBurst{ID: e.Name(), Dir: dir, Frames: len(files)}
		if info, err := e.Info(); err == nil {
			sb.ModTime = info.ModTime()
		}
		found = append(found, numbered{n, sb})
	}
	slices.SortFunc(found, func(a, b numbered) int { return a.n - b.n })

	out := make([]SavedBurst, len(found))
	for i, f := range found {
		out[i] = f.b
	}
	return out, nil
}

type frameFile struct {
	index int
	ts    float64
	name  string
	ext   string
}

// frameFiles lists the frame images of dir ordered by frame number.
func frameFiles(dir string) ([]frameFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var files []frameFile
	for _, e := range entries {
		m := frameFilePattern.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		index, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		ts, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		files = append(files, frameFile{index: index, ts: ts, name: e.Name(), ext: m[3]})
	}
	slices.SortFunc(files, func(a, b frameFile) int { return a.index - b.index })
	return files, nil
}

// LoadBurst rebuilds a burst from the frame images and preset snapshot in
// dir. The camera id is taken from the parent directory. Timestamps are
// rebased to the first frame and kept non-decreasing.
func LoadBurst(dir string) (*frame.Burst, error) {
	files, err := frameFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no frame images in %s", ErrBurstNotFound, dir)
	}

	burst := &frame.Burst{CameraID: filepath.Base(filepath.Dir(dir))}
	if info, err := os.Stat(dir); err == nil {
		burst.StartedAt = info.ModTime()
	}
	if p, err := preset.Read(filepath.Join(dir, PresetFile)); err == nil {
		burst.Preset = p
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	origin, last := files[0].ts, 0.0
	for _, ff := range files {
		f, err := readFrame(filepath.Join(dir, ff.name), ff.ext)
		if err != nil {
			return nil, err
		}
		f.FrameID = uint64(ff.index)
		ts := max(ff.ts-origin, last)
		last = ts
		burst.Append(f, ts)
	}
	burst.Duration = time.Duration(last * float64(time.Microsecond))
	return burst, nil
}

func readFrame(path, ext string) (*frame.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var img image.Image
	r := bufio.NewReader(file)
	switch ext {
	case FormatTIFF:
		img, err = tiff.Decode(r)
	default:
		img, err = png.Decode(r)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if gray, ok := img.(*image.Gray); ok {
		return &frame.Frame{Image: gray, Channels: 1}, nil
	}
	rgba := image.NewNRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return &frame.Frame{Image: rgba, Channels: 3}, nil
}

// DeleteBurst removes a saved burst directory and everything in it.
func DeleteBurst(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete burst %s: %w", dir, err)
	}
	return nil
}
