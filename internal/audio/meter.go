// Package audio measures files through ffmpeg subprocesses: ffprobe
// supplies stream parameters and ffmpeg decodes to raw PCM, which is
// fed to the loudness accumulator at the file's native sample rate.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"

	"golang.org/x/sync/errgroup"

	"github.com/TheRealFlorita/LoudGain/internal/ebur128"
	"github.com/TheRealFlorita/LoudGain/internal/processor"
)

// decodeBuf is the PCM read chunk, a multiple of every frame size we
// can hit (2 bytes per sample, up to 8 channels).
const decodeBuf = 64 * 1024

// Meter decodes and measures audio files. It is safe for concurrent
// use: each Measure call runs its own subprocesses and accumulator.
type Meter struct {
	ffmpeg  string
	ffprobe string

	// Diagnostic, when set, receives per-stream info lines.
	Diagnostic func(format string, args ...any)
}

// NewMeter resolves the ffmpeg and ffprobe binaries. Empty paths mean
// lookup on PATH.
func NewMeter(ffmpegBin, ffprobeBin string) (*Meter, error) {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	ffmpegBin, err := exec.LookPath(ffmpegBin)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobeBin, err = exec.LookPath(ffprobeBin)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	return &Meter{ffmpeg: ffmpegBin, ffprobe: ffprobeBin}, nil
}

// Measure probes the file, decodes it to s16le PCM at its native
// sample rate and channel count, and returns the finished measurement
// with a live accumulator for album aggregation.
func (m *Meter) Measure(path string) (processor.TrackScan, error) {
	info, err := m.Probe(path)
	if err != nil {
		return processor.TrackScan{}, err
	}
	if m.Diagnostic != nil {
		m.Diagnostic("[%s] Stream #0: %s, %s %d Hz, %d ch", path,
			info.CodecLong, info.SampleFmt, info.SampleRate, info.Channels)
	}

	acc, err := ebur128.New(info.Channels, info.SampleRate)
	if err != nil {
		return processor.TrackScan{}, err
	}

	if err := m.decodeInto(path, info, acc); err != nil {
		acc.Release()
		return processor.TrackScan{}, err
	}

	loudness, err := acc.Loudness()
	if err != nil {
		acc.Release()
		return processor.TrackScan{}, err
	}
	lra, err := acc.Range()
	if err != nil {
		acc.Release()
		return processor.TrackScan{}, err
	}

	return processor.TrackScan{
		Container: info.Container,
		Codec:     info.Codec,
		Loudness:  loudness,
		Range:     lra,
		Peak:      acc.TruePeak(),
		Acc:       acc,
	}, nil
}

// decodeInto streams the file's first audio stream through ffmpeg into
// the accumulator.
func (m *Meter) decodeInto(path string, info StreamInfo, acc *ebur128.Accumulator) error {
	cmd := exec.Command(m.ffmpeg,
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-map", "0:a:0",
		"-vn",
		"-c:a", "pcm_s16le",
		"-ar", fmt.Sprint(info.SampleRate),
		"-ac", fmt.Sprint(info.Channels),
		"-f", "s16le",
		"-")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	var errText []byte
	var g errgroup.Group
	g.Go(func() error { return feedPCM(stdout, acc) })
	g.Go(func() error {
		errText, _ = io.ReadAll(stderr)
		return nil
	})
	feedErr := g.Wait()
	waitErr := cmd.Wait()

	if feedErr != nil {
		return fmt.Errorf("decode: %w", feedErr)
	}
	if waitErr != nil {
		return fmt.Errorf("decode: %s", firstLine(string(errText), waitErr))
	}
	return nil
}

// feedPCM converts the little-endian s16 byte stream to samples in
// decodeBuf-sized chunks. Reads land on arbitrary byte boundaries, so
// bytes short of a whole frame (2 bytes x channels) carry over to the
// next iteration; the accumulator only ever sees whole frames. A
// leftover partial frame at EOF means a truncated stream.
func feedPCM(r io.Reader, acc *ebur128.Accumulator) error {
	frame := 2 * acc.Channels()
	buf := make([]byte, decodeBuf)
	samples := make([]int16, decodeBuf/2)
	carry := 0

	for {
		n, err := r.Read(buf[carry:])
		n += carry
		carry = 0

		full := n - n%frame
		for i := 0; i < full; i += 2 {
			samples[i/2] = int16(binary.LittleEndian.Uint16(buf[i:]))
		}
		if full > 0 {
			if addErr := acc.AddInt16(samples[:full/2]); addErr != nil {
				return addErr
			}
		}
		if n > full {
			carry = copy(buf, buf[full:n])
		}

		if err == io.EOF {
			if carry != 0 {
				return fmt.Errorf("truncated sample stream")
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Combine merges the member accumulators into album loudness and
// range. Every accumulator must have come from this package's Measure.
func (m *Meter) Combine(accs []processor.Accumulator) (float64, float64, error) {
	members := make([]*ebur128.Accumulator, len(accs))
	for i, a := range accs {
		acc, ok := a.(*ebur128.Accumulator)
		if !ok {
			return 0, 0, fmt.Errorf("combine: foreign accumulator %T", a)
		}
		members[i] = acc
	}
	loudness, err := ebur128.CombineLoudness(members)
	if err != nil {
		return 0, 0, err
	}
	lra, err := ebur128.CombineRange(members)
	if err != nil {
		return 0, 0, err
	}
	return loudness, lra, nil
}
