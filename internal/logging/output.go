// Package logging renders scan results: human-readable result blocks,
// tab-delimited listing for scripts, and a CSV file. One Report fans a
// result out to every enabled sink; it serializes internally because
// results arrive from many workers at once.
package logging

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync"

	"github.com/TheRealFlorita/LoudGain/internal/cli"
	"github.com/TheRealFlorita/LoudGain/internal/processor"
	"github.com/TheRealFlorita/LoudGain/internal/tags"
)

// Options selects the sinks a Report writes to.
type Options struct {
	Human    bool   // result blocks on stdout (verbosity >= 2)
	Tab      bool   // tab-delimited rows on stdout
	WarnClip bool   // warn on stderr when an uncorrected gain would clip
	Unit     string // "dB" or "LU"

	Stdout io.Writer // defaults to os.Stdout
	Stderr io.Writer // defaults to os.Stderr
}

// Report implements the pipeline's output sink.
type Report struct {
	mu   sync.Mutex
	opts Options

	csv     *csv.Writer
	csvFile *os.File
}

// NewReport builds a report for the given sinks.
func NewReport(opts Options) *Report {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Unit == "" {
		opts.Unit = "dB"
	}
	return &Report{opts: opts}
}

// Redirect points the stream sinks at different writers. It runs
// before any result is emitted, so no lock is held.
func (r *Report) Redirect(stdout, stderr io.Writer) {
	r.opts.Stdout = stdout
	r.opts.Stderr = stderr
}

// OpenCSV attaches a CSV file sink and writes its header row.
func (r *Report) OpenCSV(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	r.csvFile = f
	r.csv = csv.NewWriter(f)
	return r.csv.Write([]string{
		"Type", "Location",
		"Loudness [LUFs]", "Range [" + r.opts.Unit + "]",
		"True Peak", "True Peak [dBTP]",
		"Reference [LUFs]",
		"Will clip", "Clip prevent",
		"Gain [" + r.opts.Unit + "]",
		"New Peak", "New Peak [dBTP]",
	})
}

// Close flushes and closes the CSV sink if one is open.
func (r *Report) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.csv == nil {
		return nil
	}
	r.csv.Flush()
	err := r.csv.Error()
	if cerr := r.csvFile.Close(); err == nil {
		err = cerr
	}
	r.csv = nil
	r.csvFile = nil
	return err
}

// Header prints the column header row for the tab sink. It runs once,
// before any scan task is submitted.
func (r *Report) Header() {
	if r.opts.Tab {
		fmt.Fprintln(r.opts.Stdout,
			"File\tLoudness\tRange\tTrue_Peak\tTrue_Peak_dBTP\tReference\tWill_clip\tClip_prevent\tGain\tNew_Peak\tNew_Peak_dBTP")
	}
}

// Track emits the track-scope result to every sink.
func (r *Report) Track(rec *processor.TrackRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emit("File", rec.Path, rec.Reference, rec.Track, rec.Opus())
}

// Album emits the album-scope result once per aggregated folder. All
// members carry identical album values, so the first one stands in for
// the folder.
func (r *Report) Album(f *processor.FolderRecord) {
	rec := f.Tracks[0]
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emit("Album", f.Dir, rec.Reference, rec.Album, rec.Opus())
}

// Diagnostic reports one failure or warning line on stderr.
func (r *Report) Diagnostic(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.opts.Stderr, "%s %s\n",
		cli.ErrorStyle.Render("Error:"), fmt.Sprintf(format, args...))
}

func (r *Report) emit(kind, location string, reference float64, m processor.Measurement, opus bool) {
	if r.opts.WarnClip && m.Clips && !m.ClipCorrected {
		fmt.Fprintf(r.opts.Stderr, "%s %s\n",
			cli.WarnStyle.Render("Warning:"),
			fmt.Sprintf("the gain for %s would clip (use -p to prevent it)", location))
	}

	if r.csv != nil {
		r.csv.Write([]string{
			kind, location,
			format2(m.Loudness), format2(m.Range),
			format6(m.Peak), format2(dbtp(m.Peak)),
			format2(reference),
			yesNo(m.Clips), yesNo(m.ClipCorrected),
			format2(m.Gain),
			format6(m.NewPeak), format2(dbtp(m.NewPeak)),
		})
		r.csv.Flush()
	}

	if r.opts.Tab {
		fmt.Fprintf(r.opts.Stdout,
			"%s\t%s LUFS\t%s %s\t%s\t%s dBTP\t%s LUFS\t%s\t%s\t%s %s\t%s\t%s dBTP\n",
			location,
			format2(m.Loudness),
			format2(m.Range), r.opts.Unit,
			format6(m.Peak), format2(dbtp(m.Peak)),
			format2(reference),
			yesNo(m.Clips), yesNo(m.ClipCorrected),
			format2(m.Gain), r.opts.Unit,
			format6(m.NewPeak), format2(dbtp(m.NewPeak)))
		return
	}

	if r.opts.Human {
		label := "Track"
		if kind == "Album" {
			label = "Album"
		}
		gain := format2(m.Gain) + " dB"
		if opus && kind != "Album" {
			gain += fmt.Sprintf(" (%d)", tags.Q78(m.Gain))
		}
		if m.ClipCorrected {
			gain += " (corrected to prevent clipping)"
		}
		fmt.Fprintf(r.opts.Stdout,
			"\n%s: %s\n Loudness: %s LUFS\n Range:    %s dB\n Peak:     %s (%s dBTP)\n Gain:     %s\n",
			label, location,
			format2(m.Loudness),
			format2(m.Range),
			format6(m.NewPeak), format2(dbtp(m.NewPeak)),
			gain)
	}
}

// dbtp converts a linear peak to dBTP. Silence has no defined level.
func dbtp(peak float64) float64 {
	if peak <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(peak)
}

func format2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
func format6(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}
