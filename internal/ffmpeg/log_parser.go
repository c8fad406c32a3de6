package ffmpeg

import (
	"strconv"
	"strings"
)

// levels are the tags ffmpeg prints with -loglevel level+...
var levels = map[string]bool{
	"quiet": true, "panic": true, "fatal": true, "error": true, "warning": true,
	"info": true, "verbose": true, "debug": true, "trace": true,
}

// cutLevel strips a leading "[level] " tag from s.
func cutLevel(s string) (level, rest string, ok bool) {
	tag, rest, found := strings.Cut(s, "] ")
	if !found || !strings.HasPrefix(tag, "[") || !levels[tag[1:]] {
		return "", s, false
	}
	return tag[1:], rest, true
}

// ParseLogLevel splits an ffmpeg output line into its level and message.
// Lines look like "[level] msg" or "[component @ 0x...] [level] msg"; the
// component prefix is kept in the message. Encoder progress lines
// ("frame=  12 fps=...") are reported at debug so exports do not flood
// the log. Untagged lines are info.
func ParseLogLevel(line string) (level, msg string) {
	if _, ok := ParseProgress(line); ok {
		return "debug", line
	}
	if level, rest, ok := cutLevel(line); ok {
		return level, rest
	}

	component, rest, found := strings.Cut(line, "] ")
	if found && strings.HasPrefix(component, "[") {
		if level, msg, ok := cutLevel(rest); ok {
			return level, component + "] " + msg
		}
	}
	return "info", line
}

// ParseProgress returns the encoded frame count of a progress line.
func ParseProgress(line string) (int, bool) {
	after, found := strings.CutPrefix(strings.TrimSpace(line), "frame=")
	if !found {
		return 0, false
	}
	fields := strings.Fields(after)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return n, true
}
