package ebur128

import "math"

// biquad is a direct form I second-order IIR section.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64

	// per-channel state
	x1, x2 float64
	y1, y2 float64
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// kWeighting is the two-stage pre-filter from ITU-R BS.1770-4: a high
// shelf modelling the acoustic effect of the head followed by a simple
// high pass (the RLB curve). The reference coefficients in the standard
// are given for 48 kHz; both stages are re-derived for the actual sample
// rate so files do not need resampling before measurement.
type kWeighting struct {
	shelf biquad
	hp    biquad
}

func newKWeighting(sampleRate int) kWeighting {
	fs := float64(sampleRate)

	// Stage 1: spherical-head high shelf.
	const (
		shelfF0 = 1681.974450955533
		shelfG  = 3.999843853973347
		shelfQ  = 0.7071752369554196
	)
	k := math.Tan(math.Pi * shelfF0 / fs)
	vh := math.Pow(10.0, shelfG/20.0)
	vb := math.Pow(vh, 0.4996667741545416)
	a0 := 1.0 + k/shelfQ + k*k
	shelf := biquad{
		b0: (vh + vb*k/shelfQ + k*k) / a0,
		b1: 2.0 * (k*k - vh) / a0,
		b2: (vh - vb*k/shelfQ + k*k) / a0,
		a1: 2.0 * (k*k - 1.0) / a0,
		a2: (1.0 - k/shelfQ + k*k) / a0,
	}

	// Stage 2: RLB high pass.
	const (
		hpF0 = 38.13547087602444
		hpQ  = 0.5003270373238773
	)
	k = math.Tan(math.Pi * hpF0 / fs)
	a0 = 1.0 + k/hpQ + k*k
	hp := biquad{
		b0: 1.0,
		b1: -2.0,
		b2: 1.0,
		a1: 2.0 * (k*k - 1.0) / a0,
		a2: (1.0 - k/hpQ + k*k) / a0,
	}

	return kWeighting{shelf: shelf, hp: hp}
}

func (kw *kWeighting) process(x float64) float64 {
	return kw.hp.process(kw.shelf.process(x))
}
