package ffmpeg

// Params describes an image sequence to video export.
type Params struct {
	// Binary is the ffmpeg command prefix, e.g. "ffmpeg" or "nice -n 10 ffmpeg".
	Binary string

	// Input
	InputPattern string  // frames/%06d.png
	StartNumber  int     // first index matched by InputPattern
	Frames       int     // frames to encode (0 = all)
	FrameRate    float64 // output frame rate

	// Encoder
	Codec       CodecType
	CRF         int    // quality for CRF capable codecs (0 = codec default)
	Preset      string // x264/x265 preset (empty = codec default)
	PixelFormat string // overrides the codec pixel format

	// Output
	Output string
}
