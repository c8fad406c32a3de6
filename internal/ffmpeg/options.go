package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultBinary is used when Params.Binary is empty.
const DefaultBinary = "ffmpeg"

// DefaultFrameRate is the playback rate of exported videos.
const DefaultFrameRate = 10

// CodecType names an export codec.
type CodecType string

// Export codecs.
const (
	CodecH264  CodecType = "h264"
	CodecH265  CodecType = "h265"
	CodecMJPEG CodecType = "mjpeg"
	CodecFFV1  CodecType = "ffv1"
)

// Codec describes an export codec and the container it writes.
type Codec struct {
	Key         CodecType `json:"key"`
	Name        string    `json:"name"`
	Encoder     string    `json:"encoder"`
	Extension   string    `json:"extension"`
	PixelFormat string    `json:"pixel_format"`
	Lossless    bool      `json:"lossless"`
	DefaultCRF  int       `json:"default_crf,omitempty"`
	// EvenSize codecs need even frame dimensions for chroma subsampling.
	EvenSize bool `json:"-"`
}

// AllCodecs lists every supported export codec. The first entry is the default.
var AllCodecs = []Codec{
	{
		Key:         CodecH264,
		Name:        "H.264",
		Encoder:     "libx264",
		Extension:   ".mp4",
		PixelFormat: "yuv420p",
		DefaultCRF:  18,
		EvenSize:    true,
	},
	{
		Key:         CodecH265,
		Name:        "H.265",
		Encoder:     "libx265",
		Extension:   ".mp4",
		PixelFormat: "yuv420p",
		DefaultCRF:  22,
		EvenSize:    true,
	},
	{
		Key:         CodecMJPEG,
		Name:        "Motion JPEG",
		Encoder:     "mjpeg",
		Extension:   ".avi",
		PixelFormat: "yuvj422p",
	},
	{
		Key:         CodecFFV1,
		Name:        "FFV1 (lossless)",
		Encoder:     "ffv1",
		Extension:   ".mkv",
		PixelFormat: "",
		Lossless:    true,
	},
}

// GetCodec returns the codec with the given key. An empty key selects the default.
func GetCodec(key CodecType) (*Codec, error) {
	if key == "" {
		return &AllCodecs[0], nil
	}
	for i := range AllCodecs {
		if AllCodecs[i].Key == key {
			return &AllCodecs[i], nil
		}
	}
	keys := make([]string, len(AllCodecs))
	for i, c := range AllCodecs {
		keys[i] = string(c.Key)
	}
	return nil, fmt.Errorf("unknown codec %q (supported: %s)", key, strings.Join(keys, ", "))
}

// Validate checks that p describes a runnable export.
func (p *Params) Validate() error {
	if p.InputPattern == "" {
		return errors.New("input pattern is required")
	}
	if p.Output == "" {
		return errors.New("output path is required")
	}
	if p.FrameRate < 0 {
		return fmt.Errorf("invalid frame rate %v", p.FrameRate)
	}
	if p.Frames < 0 || p.StartNumber < 0 {
		return fmt.Errorf("invalid frame range start=%d frames=%d", p.StartNumber, p.Frames)
	}
	if p.CRF < 0 || p.CRF > 51 {
		return fmt.Errorf("crf %d out of range [0, 51]", p.CRF)
	}
	_, err := GetCodec(p.Codec)
	return err
}
