package processor

// CodecOpus is the codec whose normalization standard mandates a
// fixed -23 LUFS reference, 5 LU below the ReplayGain 2.0 target.
const CodecOpus = "opus"

// Accumulator is the opaque per-track measurement state produced by a
// meter. The pipeline only ever releases it; combining happens through
// the meter that produced it.
type Accumulator interface {
	Release()
}

// TrackScan is the result of measuring one file.
type TrackScan struct {
	Container string  // container short name
	Codec     string  // codec name
	Loudness  float64 // integrated loudness, LUFS
	Range     float64 // loudness range, LU
	Peak      float64 // true peak, linear
	Acc       Accumulator
}

// Meter decodes and measures audio files. Implementations must be
// safe for concurrent Measure calls from multiple workers; Combine is
// only ever called for accumulators whose scans have completed.
type Meter interface {
	// Measure decodes path and returns its loudness values together
	// with the combinable accumulator, or a decode/measurement error.
	Measure(path string) (TrackScan, error)

	// Combine pools the measurement blocks of several accumulators
	// into one integrated loudness and one loudness range. For a
	// single accumulator it reproduces that accumulator's own values.
	Combine(accs []Accumulator) (loudness, lra float64, err error)
}
