package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smazurov/burstcam/internal/process"
)

// Base returns the ffmpeg command with standard flags.
func Base(binary string) string {
	if binary == "" {
		binary = DefaultBinary
	}
	return binary + " -hide_banner -nostdin -loglevel level+info"
}

// BuildExportCommand builds the command that encodes an image sequence.
func BuildExportCommand(p *Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	codec, _ := GetCodec(p.Codec)

	fps := p.FrameRate
	if fps == 0 {
		fps = DefaultFrameRate
	}

	var cmd strings.Builder
	cmd.WriteString(Base(p.Binary))
	cmd.WriteString(" -y")

	// Input
	cmd.WriteString(" -framerate " + strconv.FormatFloat(fps, 'f', -1, 64))
	if p.StartNumber > 0 {
		cmd.WriteString(fmt.Sprintf(" -start_number %d", p.StartNumber))
	}
	cmd.WriteString(" -i " + process.Quote(p.InputPattern))
	if p.Frames > 0 {
		cmd.WriteString(fmt.Sprintf(" -frames:v %d", p.Frames))
	}

	if codec.EvenSize {
		cmd.WriteString(` -vf "pad=ceil(iw/2)*2:ceil(ih/2)*2"`)
	}

	// Encoder
	cmd.WriteString(" -c:v " + codec.Encoder)
	if p.Preset != "" && (codec.Key == CodecH264 || codec.Key == CodecH265) {
		cmd.WriteString(" -preset " + p.Preset)
	}
	crf := p.CRF
	if crf == 0 {
		crf = codec.DefaultCRF
	}
	if crf > 0 {
		cmd.WriteString(fmt.Sprintf(" -crf %d", crf))
	}
	if codec.Key == CodecMJPEG {
		cmd.WriteString(" -q:v 2")
	}

	pixFmt := p.PixelFormat
	if pixFmt == "" {
		pixFmt = codec.PixelFormat
	}
	if pixFmt != "" {
		cmd.WriteString(" -pix_fmt " + pixFmt)
	}

	cmd.WriteString(" " + process.Quote(p.Output))
	return cmd.String(), nil
}
