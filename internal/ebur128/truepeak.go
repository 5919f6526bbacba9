package ebur128

import "math"

// interpolator estimates inter-sample (true) peaks by polyphase FIR
// upsampling, per ITU-R BS.1770-4 annex 2. Material at 96 kHz or above
// already resolves inter-sample excursions well enough that a lower
// oversampling factor suffices.
type interpolator struct {
	factor     int
	tapsPerPhs int
	phases     [][]float64 // phases[p][j] applies to input sample n-j
	history    [][]float64 // per channel, most recent sample first
	peak       float64
}

func oversampleFactor(sampleRate int) int {
	switch {
	case sampleRate < 96000:
		return 4
	case sampleRate < 192000:
		return 2
	default:
		return 1
	}
}

func newInterpolator(channels, factor int) *interpolator {
	const tapsPerPhase = 12
	taps := tapsPerPhase * factor
	center := float64(taps-1) / 2.0

	// Hann-windowed sinc low pass at the original Nyquist frequency,
	// split into one sub-filter per output phase.
	phases := make([][]float64, factor)
	for p := range phases {
		phases[p] = make([]float64, tapsPerPhase)
	}
	for i := 0; i < taps; i++ {
		t := (float64(i) - center) / float64(factor)
		sinc := 1.0
		if t != 0 {
			sinc = math.Sin(math.Pi*t) / (math.Pi * t)
		}
		window := 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(taps-1)))
		phases[i%factor][i/factor] = sinc * window
	}

	history := make([][]float64, channels)
	for ch := range history {
		history[ch] = make([]float64, tapsPerPhase)
	}

	return &interpolator{
		factor:     factor,
		tapsPerPhs: tapsPerPhase,
		phases:     phases,
		history:    history,
	}
}

// push feeds one sample for channel ch and folds the interpolated
// excursions into the running peak.
func (ip *interpolator) push(ch int, sample float64) {
	h := ip.history[ch]
	copy(h[1:], h[:len(h)-1])
	h[0] = sample

	if abs := math.Abs(sample); abs > ip.peak {
		ip.peak = abs
	}
	for p := 1; p < ip.factor; p++ {
		var v float64
		coef := ip.phases[p]
		for j := 0; j < ip.tapsPerPhs; j++ {
			v += h[j] * coef[j]
		}
		if abs := math.Abs(v); abs > ip.peak {
			ip.peak = abs
		}
	}
}
