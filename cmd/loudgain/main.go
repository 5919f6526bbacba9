package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/TheRealFlorita/LoudGain/internal/audio"
	"github.com/TheRealFlorita/LoudGain/internal/cli"
	"github.com/TheRealFlorita/LoudGain/internal/library"
	"github.com/TheRealFlorita/LoudGain/internal/logging"
	"github.com/TheRealFlorita/LoudGain/internal/processor"
	"github.com/TheRealFlorita/LoudGain/internal/tags"
	"github.com/TheRealFlorita/LoudGain/internal/ui"
)

var (
	version = "0.1.0"
)

// CLI defines the command-line interface
type CLI struct {
	Track            bool     `short:"t" help:"Calculate track gain (default)."`
	Album            bool     `short:"a" help:"Calculate album gain (per folder), as well as track gain."`
	IgnoreClipping   bool     `short:"i" help:"Ignore clipping warning."`
	PreventClipping  bool     `short:"p" help:"Lower track/album gain to avoid clipping (<= -1 dBTP)."`
	MaxTruePeakLevel *float64 `short:"P" placeholder:"n" help:"Avoid clipping. Max true peak level = n dBTP (default -1.0, implies -p)."`
	PreGain          float64  `short:"G" default:"0" placeholder:"n" help:"Apply n dB/LU pre-gain value (-5 gives -23 LUFS, 5 gives -13 LUFS)."`
	Tagmode          string   `short:"S" default:"s" help:"Tag mode: d=delete tags, i=write tags, e=extra tags, s=skip writing tags (default)."`
	SkipTaggedFiles  bool     `help:"Skip files that already carry a conforming set of ReplayGain tags."`
	Lufs             bool     `short:"u" help:"Report and tag gain and range in LU instead of dB."`
	Lowercase        bool     `short:"l" help:"Write lowercase tags (MP3/ID3v2 only)."`
	Striptags        bool     `short:"s" help:"Strip the ID3v1 tag block (MP3 only)."`
	Id3v2version     int      `short:"I" name:"id3v2version" default:"4" help:"Write ID3v2.3 or ID3v2.4 tags (MP3 only)."`
	Multithread      int      `short:"M" default:"0" placeholder:"n" help:"Scan files with n parallel workers (0 = auto)."`
	OutputTab        bool     `short:"o" help:"Tab-delimited list output."`
	OutputCsv        string   `short:"O" type:"path" placeholder:"file" help:"Write results to a CSV file."`
	Recursive        bool     `short:"r" help:"Scan directory arguments recursively."`
	Extensions       string   `short:"E" placeholder:"list" help:"Comma-separated list of file extensions to scan."`
	Verbosity        int      `short:"V" default:"2" help:"Verbosity level (0-3)."`
	Quiet            bool     `short:"q" help:"Low verbosity level. Equal to -V 1."`
	NoUI             bool     `name:"no-ui" help:"Disable the progress display."`
	Version          bool     `help:"Show version information"`
	Paths            []string `arg:"" name:"paths" optional:"" type:"path" help:"Audio files and folders to scan."`
}

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("loudgain"),
		kong.Description("ReplayGain 2.0 loudness scanner and tagger"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	// Handle version flag
	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(0)
	}

	// Validate input
	if len(cliArgs.Paths) == 0 {
		cli.PrintError("No input files or folders specified")
		ctx.PrintUsage(false)
		os.Exit(1)
	}

	verbosity := cliArgs.Verbosity
	if cliArgs.Quiet {
		verbosity = 1
	}

	mode, err := tags.ParseMode(cliArgs.Tagmode)
	if err != nil {
		fatal(err)
	}

	cfg := processor.Config{
		AlbumMode:       cliArgs.Album,
		Pregain:         cliArgs.PreGain,
		PreventClipping: cliArgs.PreventClipping,
		MaxTruePeak:     -1.0,
		Workers:         cliArgs.Multithread,
		Verbose:         verbosity >= 3,
	}
	if cliArgs.MaxTruePeakLevel != nil {
		// Setting a ceiling implies clipping prevention.
		cfg.MaxTruePeak = *cliArgs.MaxTruePeakLevel
		cfg.PreventClipping = true
	}

	meter, err := audio.NewMeter("", "")
	if err != nil {
		fatal(err)
	}
	tagger, err := tags.New(tags.Settings{
		Mode:          mode,
		LowercaseTags: cliArgs.Lowercase,
		StripTags:     cliArgs.Striptags,
		ID3v2Version:  cliArgs.Id3v2version,
		UnitLU:        cliArgs.Lufs,
	})
	if err != nil {
		fatal(err)
	}

	files, err := library.Discover(cliArgs.Paths, library.Options{
		Recursive:  cliArgs.Recursive,
		Extensions: library.ParseExtensions(cliArgs.Extensions),
	})
	if err != nil {
		fatal(err)
	}
	if cliArgs.SkipTaggedFiles && mode != tags.ModeDelete {
		files = withoutTagged(files, tagger, cfg.AlbumMode)
	}

	var folders []*processor.FolderRecord
	for _, group := range library.GroupByFolder(files) {
		f, err := processor.NewFolderRecord(group)
		if err != nil {
			fatal(err)
		}
		folders = append(folders, f)
	}

	report := logging.NewReport(logging.Options{
		Human:    verbosity >= 2 && !cliArgs.OutputTab,
		Tab:      cliArgs.OutputTab,
		WarnClip: !cliArgs.IgnoreClipping && !cfg.PreventClipping,
		Unit:     tagger.Unit(),
	})
	if cliArgs.OutputCsv != "" {
		if err := report.OpenCSV(cliArgs.OutputCsv); err != nil {
			fatal(err)
		}
	}

	useUI := !cliArgs.NoUI && !cliArgs.OutputTab && mode != tags.ModeDelete && verbosity > 0

	start := time.Now()
	var stats processor.Stats
	var runErr error
	switch {
	case mode == tags.ModeDelete:
		runner := processor.NewRunner(cfg, meter, report, tagger, processor.Events{})
		stats, runErr = runner.RemoveTags(files)
	case useUI:
		stats, runErr = runWithUI(cfg, meter, report, tagger, folders, start)
	default:
		if verbosity >= 3 {
			meter.Diagnostic = func(format string, args ...any) {
				fmt.Printf(format+"\n", args...)
			}
		}
		report.Header()
		runner := processor.NewRunner(cfg, meter, report, tagger, processor.Events{})
		stats, runErr = runner.Run(folders)
	}

	report.Close()
	if runErr != nil {
		cli.PrintError(runErr.Error())
		os.Exit(1)
	}

	if verbosity > 0 && !useUI {
		printElapsed(time.Since(start))
	}
	if !stats.Clean() {
		os.Exit(1)
	}
}

// runWithUI runs the pipeline behind an inline Bubble Tea progress
// display. Result blocks and diagnostics are streamed above the UI via
// the program's println facility; progress events travel through the
// model's event channel from the worker goroutines.
func runWithUI(cfg processor.Config, meter *audio.Meter, report *logging.Report,
	tagger *tags.Tagger, folders []*processor.FolderRecord, start time.Time) (processor.Stats, error) {

	tracks := 0
	for _, f := range folders {
		tracks += len(f.Tracks)
	}

	model := ui.NewModel(tracks, len(folders), cfg.AlbumMode)
	p := tea.NewProgram(model)

	w := programWriter{p: p}
	report.Redirect(w, w)
	if cfg.Verbose {
		meter.Diagnostic = func(format string, args ...any) {
			p.Printf(format, args...)
		}
	}

	events := processor.Events{
		TrackDone: func(path string, err error) {
			model.EventChan <- ui.TrackDoneMsg{Path: path, Err: err}
		},
		FolderDone: func(dir string, err error) {
			model.EventChan <- ui.FolderDoneMsg{Dir: dir, Err: err}
		},
	}
	runner := processor.NewRunner(cfg, meter, report, tagger, events)

	go func() {
		report.Header()
		stats, err := runner.Run(folders)
		model.EventChan <- ui.RunDoneMsg{Stats: stats, Elapsed: time.Since(start), Err: err}
	}()

	final, err := p.Run()
	if err != nil {
		return processor.Stats{}, fmt.Errorf("progress display: %w", err)
	}
	m := final.(ui.Model)
	if !m.Done {
		return processor.Stats{}, fmt.Errorf("interrupted")
	}
	return m.Stats, m.RunErr
}

// withoutTagged drops files that already carry the full set of tags
// the current mode would write.
func withoutTagged(files []string, tagger *tags.Tagger, albumMode bool) []string {
	kept := files[:0]
	for _, f := range files {
		if !tagger.HasTags(f, albumMode) {
			kept = append(kept, f)
		}
	}
	return kept
}

func printElapsed(d time.Duration) {
	seconds := d.Seconds()
	if seconds < 60 {
		fmt.Printf("Finished in %.2f seconds\n", seconds)
	} else {
		du := int(seconds + 0.5)
		fmt.Printf("Finished in %dm:%ds\n", du/60, du%60)
	}
}

func fatal(err error) {
	cli.PrintError(err.Error())
	os.Exit(1)
}

// programWriter forwards sink output through the running Bubble Tea
// program so streamed result blocks print above the progress display.
type programWriter struct {
	p *tea.Program
}

func (w programWriter) Write(b []byte) (int, error) {
	w.p.Println(strings.TrimRight(string(b), "\n"))
	return len(b), nil
}
