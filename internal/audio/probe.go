package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const probeTimeout = 30 * time.Second

// StreamInfo describes the audio stream ffprobe selected for a file.
type StreamInfo struct {
	Container  string  // container short name, e.g. "flac", "ogg"
	Codec      string  // codec name, e.g. "mp3", "opus"
	CodecLong  string  // codec long name for verbose output
	SampleRate int
	Channels   int
	SampleFmt  string
	BitDepth   int // 0 when the codec has no fixed bit depth
	Duration   float64
}

// ffprobe JSON shapes, only the fields we read.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecName     string `json:"codec_name"`
	CodecLongName string `json:"codec_long_name"`
	SampleRate    string `json:"sample_rate"`
	Channels      int    `json:"channels"`
	SampleFmt     string `json:"sample_fmt"`
	BitsPerSample int    `json:"bits_per_raw_sample,string"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// Probe runs ffprobe on the file and returns the first audio stream's
// parameters.
func (m *Meter) Probe(path string) (StreamInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffprobe,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,codec_long_name,sample_rate,channels,sample_fmt,bits_per_raw_sample",
		"-show_entries", "format=format_name,duration",
		"-print_format", "json",
		path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return StreamInfo{}, fmt.Errorf("probe: %s", firstLine(stderr.String(), err))
	}
	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(raw []byte) (StreamInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return StreamInfo{}, fmt.Errorf("probe: parse output: %w", err)
	}
	if len(out.Streams) == 0 {
		return StreamInfo{}, fmt.Errorf("probe: no audio stream")
	}
	s := out.Streams[0]

	rate, err := strconv.Atoi(s.SampleRate)
	if err != nil || rate <= 0 {
		return StreamInfo{}, fmt.Errorf("probe: bad sample rate %q", s.SampleRate)
	}
	if s.Channels <= 0 {
		return StreamInfo{}, fmt.Errorf("probe: bad channel count %d", s.Channels)
	}

	duration, _ := strconv.ParseFloat(out.Format.Duration, 64)

	return StreamInfo{
		Container:  containerName(out.Format.FormatName),
		Codec:      s.CodecName,
		CodecLong:  s.CodecLongName,
		SampleRate: rate,
		Channels:   s.Channels,
		SampleFmt:  s.SampleFmt,
		BitDepth:   s.BitsPerSample,
		Duration:   duration,
	}, nil
}

// containerName reduces ffprobe's comma-separated demuxer alias list
// ("mov,mp4,m4a,3gp,3g2,mj2") to its first name.
func containerName(formatName string) string {
	if i := strings.IndexByte(formatName, ','); i >= 0 {
		return formatName[:i]
	}
	return formatName
}

// firstLine picks the first non-empty stderr line so a subprocess
// failure reports ffmpeg's own message instead of "exit status 1".
func firstLine(stderr string, fallback error) string {
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return fallback.Error()
}
