package processor

import (
	"errors"
	"sync/atomic"

	"github.com/TheRealFlorita/LoudGain/internal/pool"
)

// Config is the plain configuration value the pipeline receives from
// the CLI.
type Config struct {
	AlbumMode       bool
	Pregain         float64 // dB/LU, clamped to ±32
	PreventClipping bool
	MaxTruePeak     float64 // clip ceiling, dBTP
	Workers         int     // 0 = auto

	// WaveCeiling caps the track count of a batch wave; it bounds how
	// many accumulators are resident at once. AtomicFolderLimit is
	// the size up to which a folder is scanned as one unit of work.
	WaveCeiling       int
	AtomicFolderLimit int

	// Verbose enables per-stream diagnostics from the meter.
	Verbose bool
}

const (
	defaultWaveCeiling       = 2000
	defaultAtomicFolderLimit = 1000

	// folderFanout decides between the per-folder fast path and batch
	// waves: libraries with more than folderFanout × workers folders
	// interleave whole folders across workers instead.
	folderFanout = 5
)

func (c Config) normalized() Config {
	if c.WaveCeiling <= 0 {
		c.WaveCeiling = defaultWaveCeiling
	}
	if c.AtomicFolderLimit <= 0 {
		c.AtomicFolderLimit = defaultAtomicFolderLimit
	}
	if c.Pregain > 32 {
		c.Pregain = 32
	} else if c.Pregain < -32 {
		c.Pregain = -32
	}
	if c.MaxTruePeak > 32 {
		c.MaxTruePeak = 32
	} else if c.MaxTruePeak < -32 {
		c.MaxTruePeak = -32
	}
	return c
}

// Output consumes finalized results and diagnostics. Implementations
// must serialize calls internally: many workers finish concurrently.
type Output interface {
	// Track emits the track-scope result (album fields included when
	// aggregation contributed them).
	Track(rec *TrackRecord)
	// Album emits the album-scope result for an aggregated folder.
	Album(f *FolderRecord)
	// Diagnostic emits one line per failed file or folder.
	Diagnostic(format string, args ...any)
}

// Tagger persists normalization metadata for a finalized record.
// A nil Tagger skips tag writing entirely.
type Tagger interface {
	Write(rec *TrackRecord, albumMode bool) error
	Remove(path string) error
}

// Events carries optional progress callbacks for a UI. Callbacks are
// invoked from worker goroutines and from the controller.
type Events struct {
	TrackDone  func(path string, err error)
	FolderDone func(dir string, err error)
}

// Stats summarizes a run. A run counts as clean only if every
// scheduled unit succeeded.
type Stats struct {
	Tracks         int
	TrackFailures  int
	Folders        int
	FolderFailures int
	TagFailures    int
}

// Clean reports whether every scheduled unit succeeded.
func (s Stats) Clean() bool {
	return s.TrackFailures == 0 && s.FolderFailures == 0 && s.TagFailures == 0
}

// ErrNothingToDo is the run-level abort for an empty schedule.
var ErrNothingToDo = errors.New("no audio files to process")

// Runner is the batching controller: it partitions pre-grouped
// folders into bounded waves, submits scan tasks and triggers folder
// aggregation once a folder's scans are complete. The controller
// goroutine is not a worker; it blocks on the pool's idle barrier at
// wave boundaries.
type Runner struct {
	cfg    Config
	meter  Meter
	out    Output
	tagger Tagger
	events Events

	trackFailures atomic.Int64
	tagFailures   atomic.Int64
}

// NewRunner wires the pipeline's collaborators together.
func NewRunner(cfg Config, meter Meter, out Output, tagger Tagger, events Events) *Runner {
	return &Runner{cfg: cfg.normalized(), meter: meter, out: out, tagger: tagger, events: events}
}

// Run scans every folder and, in album mode, aggregates each. It
// returns ErrNothingToDo when no tracks were scheduled; individual
// scan or aggregation failures are reported through the output sink
// and reflected in the stats instead.
func (r *Runner) Run(folders []*FolderRecord) (Stats, error) {
	stats := Stats{Folders: len(folders)}
	for _, f := range folders {
		stats.Tracks += len(f.Tracks)
	}
	if stats.Tracks == 0 {
		return stats, ErrNothingToDo
	}

	p := pool.New(r.cfg.Workers)
	defer p.Stop()

	if !r.cfg.AlbumMode {
		r.runTrackMode(p, folders)
	} else if len(folders) > folderFanout*p.Workers() {
		stats.FolderFailures = r.runFolderFanout(p, folders)
	} else {
		stats.FolderFailures = r.runWaves(p, folders)
	}

	p.Stop()
	stats.TrackFailures = int(r.trackFailures.Load())
	stats.TagFailures = int(r.tagFailures.Load())
	return stats, nil
}

// runTrackMode submits one independent scan task per track; records
// are finalized and emitted as their scans complete.
func (r *Runner) runTrackMode(p *pool.Pool, folders []*FolderRecord) {
	for _, f := range folders {
		for _, t := range f.Tracks {
			t := t
			p.Submit(func(w *pool.Worker) error {
				if r.scanTrack(t) {
					r.emitTrack(t)
				}
				t.ReleaseAccumulator()
				return nil
			})
		}
	}
	p.AwaitIdle()
}

// runFolderFanout handles libraries with many folders: small folders
// are one atomic unit of work each so whole albums interleave across
// workers; oversized folders are scanned track-parallel behind an idle
// barrier, isolating one big album's memory footprint at a time.
func (r *Runner) runFolderFanout(p *pool.Pool, folders []*FolderRecord) int {
	var folderFailures atomic.Int64
	for _, f := range folders {
		f := f
		if len(f.Tracks) <= r.cfg.AtomicFolderLimit {
			p.Submit(func(w *pool.Worker) error {
				for _, t := range f.Tracks {
					r.scanTrack(t)
				}
				if !r.finishFolder(f) {
					folderFailures.Add(1)
				}
				return nil
			})
		} else {
			r.submitScans(p, f)
			p.AwaitIdle()
			if !r.finishFolder(f) {
				folderFailures.Add(1)
			}
		}
	}
	p.AwaitIdle()
	return int(folderFailures.Load())
}

// runWaves batches folders into waves capped at the configured track
// ceiling. A wave's scans are all in flight before the barrier, and
// its aggregation completes before the next wave submits, which is
// what bounds peak resident accumulators to one wave's worth.
func (r *Runner) runWaves(p *pool.Pool, folders []*FolderRecord) int {
	folderFailures := 0
	flush := func(wave []*FolderRecord) {
		if len(wave) == 0 {
			return
		}
		p.AwaitIdle()
		for _, f := range wave {
			if !r.finishFolder(f) {
				folderFailures++
			}
		}
	}

	var wave []*FolderRecord
	waveTracks := 0
	for _, f := range folders {
		if waveTracks+len(f.Tracks) >= r.cfg.WaveCeiling && len(wave) > 0 {
			flush(wave)
			wave = wave[:0]
			waveTracks = 0
		}
		wave = append(wave, f)
		waveTracks += len(f.Tracks)
		r.submitScans(p, f)
	}
	flush(wave)
	return folderFailures
}

func (r *Runner) submitScans(p *pool.Pool, f *FolderRecord) {
	for _, t := range f.Tracks {
		t := t
		p.Submit(func(w *pool.Worker) error {
			r.scanTrack(t)
			return nil
		})
	}
}

// scanTrack runs one scan and reports its outcome. It is the only
// writer of the record's track-scope fields.
func (r *Runner) scanTrack(t *TrackRecord) bool {
	err := t.Scan(r.meter, r.cfg.Pregain)
	if err != nil {
		r.trackFailures.Add(1)
		r.out.Diagnostic("file scan failed [%s]: %v", t.Path, err)
	}
	if r.events.TrackDone != nil {
		r.events.TrackDone(t.Path, err)
	}
	return err == nil
}

// finishFolder aggregates a folder whose scans are complete, emits
// results and releases every member's accumulator. On aggregation
// failure the successfully scanned members still get track-level
// output, just without album fields.
func (r *Runner) finishFolder(f *FolderRecord) bool {
	err := f.Aggregate(r.meter, r.cfg, r.out.Diagnostic)
	if err != nil {
		r.out.Diagnostic("album scan failed: %v", err)
		for _, t := range f.Tracks {
			if t.Status == StatusSucceeded {
				r.emitTrack(t)
			}
		}
	} else {
		for _, t := range f.Tracks {
			r.emitTrack(t)
		}
		r.out.Album(f)
	}

	f.release()
	if r.events.FolderDone != nil {
		r.events.FolderDone(f.Dir, err)
	}
	return err == nil
}

// emitTrack finalizes gain correction, persists tags and hands the
// record to the output sink.
func (r *Runner) emitTrack(t *TrackRecord) {
	t.Finalize(r.cfg)
	if r.tagger != nil {
		// Album tags are only written when aggregation succeeded.
		if err := r.tagger.Write(t, r.cfg.AlbumMode && t.HasAlbum()); err != nil {
			r.tagFailures.Add(1)
			r.out.Diagnostic("tag write failed [%s]: %v", t.Path, err)
		}
	}
	r.out.Track(t)
}

// RemoveTags deletes normalization metadata from every path using the
// pool, mirroring the scan scheduling for the delete tag mode.
func (r *Runner) RemoveTags(paths []string) (Stats, error) {
	stats := Stats{Tracks: len(paths)}
	if len(paths) == 0 {
		return stats, ErrNothingToDo
	}
	if r.tagger == nil {
		return stats, errors.New("no tagger configured")
	}

	p := pool.New(r.cfg.Workers)
	defer p.Stop()

	var failures atomic.Int64
	for _, path := range paths {
		path := path
		p.Submit(func(w *pool.Worker) error {
			if err := r.tagger.Remove(path); err != nil {
				failures.Add(1)
				r.out.Diagnostic("tag removal failed [%s]: %v", path, err)
			}
			if r.events.TrackDone != nil {
				r.events.TrackDone(path, nil)
			}
			return nil
		})
	}
	p.Stop()

	stats.TagFailures = int(failures.Load())
	return stats, nil
}
