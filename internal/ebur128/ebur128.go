// Package ebur128 implements gated loudness measurement per ITU-R
// BS.1770-4 and EBU R 128: integrated loudness, loudness range
// (EBU Tech 3342) and true peak.
//
// An Accumulator is fed interleaved PCM for one track. Album-scope
// statistics come from CombineLoudness/CombineRange, which re-gate the
// pooled measurement blocks of several accumulators, so combining a
// single accumulator reproduces its own values exactly.
package ebur128

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	// energyOffset is the -0.691 LKFS calibration constant from BS.1770.
	energyOffset = -0.691

	// absoluteGateLUFS discards blocks below -70 LUFS before any
	// relative gating.
	absoluteGateLUFS = -70.0

	// momentary blocks are 400 ms hopped every 100 ms; short-term
	// blocks are 3 s hopped every 1 s.
	subBlocksPerSecond = 10
	momentarySubBlocks = 4
	shortTermSubBlocks = 30
	shortTermHop       = 10
)

var (
	// ErrNoAudio is returned when not enough audio was fed to form a
	// single measurement block.
	ErrNoAudio = errors.New("ebur128: no measurement blocks recorded")

	errReleased = errors.New("ebur128: accumulator released")
)

// channelWeight returns the BS.1770 summation weight for channel index
// ch: front channels count as unity, surround channels are boosted
// +1.5 dB (factor 1.41). LFE handling is out of scope for a stereo and
// front-weighted library scanner; five channels and above use the
// surround weight.
func channelWeight(ch int) float64 {
	if ch < 3 {
		return 1.0
	}
	return 1.41
}

// Accumulator measures one track. It is not safe for concurrent use;
// the scan pipeline guarantees a single writer per track.
type Accumulator struct {
	channels   int
	sampleRate int

	filters []kWeighting // one per channel
	interp  *interpolator

	// sub-block accumulation: running sum of squared K-weighted
	// samples per channel within the current 100 ms slice.
	subLen    int // samples per sub-block per channel
	subFill   int
	subSquare []float64

	// ring of the most recent short-term window of per-channel
	// sub-block mean squares.
	ring    [][]float64
	ringLen int
	hopdown int

	// recorded block energies (weighted channel sums), the combinable
	// state for album aggregation.
	momentary []float64
	shortTerm []float64

	released bool
}

// New creates an accumulator for interleaved PCM with the given layout.
func New(channels, sampleRate int) (*Accumulator, error) {
	if channels < 1 || channels > 8 {
		return nil, fmt.Errorf("ebur128: unsupported channel count %d", channels)
	}
	if sampleRate < 8000 {
		return nil, fmt.Errorf("ebur128: unsupported sample rate %d", sampleRate)
	}

	filters := make([]kWeighting, channels)
	for ch := range filters {
		filters[ch] = newKWeighting(sampleRate)
	}

	ring := make([][]float64, shortTermSubBlocks)
	for i := range ring {
		ring[i] = make([]float64, channels)
	}

	return &Accumulator{
		channels:   channels,
		sampleRate: sampleRate,
		filters:    filters,
		interp:     newInterpolator(channels, oversampleFactor(sampleRate)),
		subLen:     sampleRate / subBlocksPerSecond,
		subSquare:  make([]float64, channels),
		ring:       ring,
	}, nil
}

// Channels reports the channel layout the accumulator was created with.
func (a *Accumulator) Channels() int { return a.channels }

// SampleRate reports the sample rate the accumulator was created with.
func (a *Accumulator) SampleRate() int { return a.sampleRate }

// AddInt16 feeds interleaved signed 16-bit samples. The slice length
// must be a multiple of the channel count.
func (a *Accumulator) AddInt16(samples []int16) error {
	if a.released {
		return errReleased
	}
	if len(samples)%a.channels != 0 {
		return fmt.Errorf("ebur128: %d samples not a multiple of %d channels", len(samples), a.channels)
	}

	for i := 0; i < len(samples); i += a.channels {
		for ch := 0; ch < a.channels; ch++ {
			s := float64(samples[i+ch]) / 32768.0
			a.interp.push(ch, s)
			w := a.filters[ch].process(s)
			a.subSquare[ch] += w * w
		}
		a.subFill++
		if a.subFill == a.subLen {
			a.closeSubBlock()
		}
	}
	return nil
}

// closeSubBlock records the finished 100 ms slice and emits any
// measurement blocks that became complete with it.
func (a *Accumulator) closeSubBlock() {
	slot := a.ring[a.ringLen%shortTermSubBlocks]
	for ch := range slot {
		slot[ch] = a.subSquare[ch] / float64(a.subLen)
		a.subSquare[ch] = 0
	}
	a.ringLen++
	a.subFill = 0

	if a.ringLen >= momentarySubBlocks {
		a.momentary = append(a.momentary, a.windowEnergy(momentarySubBlocks))
	}
	if a.ringLen >= shortTermSubBlocks {
		if a.hopdown == 0 {
			a.shortTerm = append(a.shortTerm, a.windowEnergy(shortTermSubBlocks))
			a.hopdown = shortTermHop
		}
		a.hopdown--
	}
}

// windowEnergy is the weighted mean-square energy over the last n
// sub-blocks.
func (a *Accumulator) windowEnergy(n int) float64 {
	var energy float64
	for ch := 0; ch < a.channels; ch++ {
		var sum float64
		for i := a.ringLen - n; i < a.ringLen; i++ {
			sum += a.ring[i%shortTermSubBlocks][ch]
		}
		energy += channelWeight(ch) * sum / float64(n)
	}
	return energy
}

// Loudness returns the gated integrated loudness of the track in LUFS.
func (a *Accumulator) Loudness() (float64, error) {
	if a.released {
		return 0, errReleased
	}
	return gatedLoudness(a.momentary)
}

// Range returns the loudness range of the track in LU.
func (a *Accumulator) Range() (float64, error) {
	if a.released {
		return 0, errReleased
	}
	return loudnessRange(a.shortTerm)
}

// TruePeak returns the highest oversampled peak seen so far, linear.
func (a *Accumulator) TruePeak() float64 {
	return a.interp.peak
}

// Release drops the recorded block energies and filter state. The
// accumulator is owned by exactly one track record; the pipeline
// releases it once album aggregation for the owning folder is done so
// a wave's worth of accumulators is all that stays resident.
func (a *Accumulator) Release() {
	a.momentary = nil
	a.shortTerm = nil
	a.ring = nil
	a.filters = nil
	a.interp = nil
	a.released = true
}

// CombineLoudness computes one integrated loudness over the blocks of
// all given accumulators, the album-scope equivalent of Loudness.
func CombineLoudness(accs []*Accumulator) (float64, error) {
	return gatedLoudness(pooledBlocks(accs, func(a *Accumulator) []float64 { return a.momentary }))
}

// CombineRange computes one loudness range over the blocks of all
// given accumulators.
func CombineRange(accs []*Accumulator) (float64, error) {
	return loudnessRange(pooledBlocks(accs, func(a *Accumulator) []float64 { return a.shortTerm }))
}

func pooledBlocks(accs []*Accumulator, blocks func(*Accumulator) []float64) []float64 {
	var total int
	for _, a := range accs {
		total += len(blocks(a))
	}
	pooled := make([]float64, 0, total)
	for _, a := range accs {
		pooled = append(pooled, blocks(a)...)
	}
	return pooled
}

func loudnessOf(energy float64) float64 {
	return energyOffset + 10.0*math.Log10(energy)
}

func energyOf(loudness float64) float64 {
	return math.Pow(10.0, (loudness-energyOffset)/10.0)
}

// gatedLoudness applies the two-stage gate from BS.1770-4: drop blocks
// below -70 LUFS, then drop blocks more than 10 LU below the mean of
// the survivors, and average what remains.
func gatedLoudness(blocks []float64) (float64, error) {
	absGate := energyOf(absoluteGateLUFS)

	var sum float64
	var n int
	for _, e := range blocks {
		if e > absGate {
			sum += e
			n++
		}
	}
	if n == 0 {
		return math.Inf(-1), ErrNoAudio
	}

	relGate := (sum / float64(n)) * math.Pow(10.0, -10.0/10.0)
	sum, n = 0, 0
	for _, e := range blocks {
		if e > absGate && e > relGate {
			sum += e
			n++
		}
	}
	if n == 0 {
		return math.Inf(-1), ErrNoAudio
	}
	return loudnessOf(sum / float64(n)), nil
}

// loudnessRange implements EBU Tech 3342: absolute gate at -70 LUFS,
// relative gate 20 LU below the mean of the survivors, range is the
// spread between the 10th and 95th percentile of the gated short-term
// loudness distribution.
func loudnessRange(blocks []float64) (float64, error) {
	absGate := energyOf(absoluteGateLUFS)

	var sum float64
	gated := make([]float64, 0, len(blocks))
	for _, e := range blocks {
		if e > absGate {
			gated = append(gated, e)
			sum += e
		}
	}
	if len(gated) == 0 {
		return 0, ErrNoAudio
	}

	relGate := (sum / float64(len(gated))) * math.Pow(10.0, -20.0/10.0)
	kept := gated[:0]
	for _, e := range gated {
		if e > relGate {
			kept = append(kept, e)
		}
	}
	if len(kept) < 2 {
		return 0, nil
	}

	sort.Float64s(kept)
	lo := kept[int(math.Round(0.10*float64(len(kept)-1)))]
	hi := kept[int(math.Round(0.95*float64(len(kept)-1)))]
	return loudnessOf(hi) - loudnessOf(lo), nil
}
