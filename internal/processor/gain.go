package processor

import "math"

const (
	// ReferenceLoudness is the ReplayGain 2.0 target, LUFS.
	ReferenceLoudness = -18.0

	// opusPregainAdjust shifts the effective pregain so Opus tracks
	// land on their mandated -23 LUFS reference.
	opusPregainAdjust = -5.0
)

// GainFor converts a measured loudness into the normalization gain in
// dB for the given pregain.
func GainFor(loudness, pregain float64) float64 {
	return (ReferenceLoudness - loudness) + pregain
}

// ReferenceFor is the reference loudness actually used once pregain is
// applied, reported alongside results for traceability.
func ReferenceFor(pregain float64) float64 {
	return ReferenceLoudness + pregain
}

// correctClipping predicts the post-gain peak against the ceiling and,
// if prevention is on, lowers the gain onto the ceiling. A non-positive
// peak never counts as clipping (the logarithm is undefined there).
// Once corrected, the gained peak sits exactly on the ceiling, so a
// second pass is a no-op.
func correctClipping(m *Measurement, maxTruePeak float64, prevent bool) {
	ceiling := math.Pow(10.0, maxTruePeak/20.0)
	gained := m.Peak * math.Pow(10.0, m.Gain/20.0)

	if m.Peak > 0 && gained > ceiling {
		m.Clips = true
		if prevent {
			m.Gain -= 20.0 * math.Log10(gained/ceiling)
			m.Clips = false
			m.ClipCorrected = true
		}
	}
	m.NewPeak = m.Peak * math.Pow(10.0, m.Gain/20.0)
}

// Finalize runs clipping detection and prevention on the track scope
// and, when album values are present, independently on the album
// scope. Album gain always derives from the raw measured loudness, so
// track-scope correction never feeds into the album numbers.
func (t *TrackRecord) Finalize(cfg Config) {
	correctClipping(&t.Track, cfg.MaxTruePeak, cfg.PreventClipping)
	if t.albumSet {
		correctClipping(&t.Album, cfg.MaxTruePeak, cfg.PreventClipping)
	}
}
