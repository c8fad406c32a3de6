// Package ffmpeg builds ffmpeg command lines for burst video export and
// parses ffmpeg log output.
package ffmpeg
