package processor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeResult describes what the fake meter yields for one path.
type fakeResult struct {
	container string
	codec     string
	loudness  float64
	lra       float64
	peak      float64
	delay     time.Duration
	err       error
}

type fakeAcc struct {
	loudness float64
	lra      float64
	release  func()
	released bool
}

func (a *fakeAcc) Release() {
	if !a.released {
		a.released = true
		if a.release != nil {
			a.release()
		}
	}
}

// fakeMeter is a synthetic measurement collaborator. It tracks how
// many accumulators are alive (for the residency property) and
// whether Combine ever ran while a scan was still in flight (for the
// all-scanned-before-aggregation property).
type fakeMeter struct {
	mu      sync.Mutex
	results map[string]fakeResult

	live    atomic.Int64
	maxLive atomic.Int64
	pending atomic.Int64

	combineCalls    atomic.Int64
	combineTooEarly atomic.Bool
}

func newFakeMeter() *fakeMeter {
	return &fakeMeter{results: make(map[string]fakeResult)}
}

func (m *fakeMeter) set(path string, res fakeResult) {
	m.mu.Lock()
	m.results[path] = res
	m.mu.Unlock()
}

func (m *fakeMeter) Measure(path string) (TrackScan, error) {
	m.pending.Add(1)
	defer m.pending.Add(-1)

	m.mu.Lock()
	res, ok := m.results[path]
	m.mu.Unlock()
	if !ok {
		return TrackScan{}, fmt.Errorf("no fixture for %s", path)
	}
	if res.delay > 0 {
		time.Sleep(res.delay)
	}
	if res.err != nil {
		return TrackScan{}, res.err
	}

	live := m.live.Add(1)
	for {
		max := m.maxLive.Load()
		if live <= max || m.maxLive.CompareAndSwap(max, live) {
			break
		}
	}

	container := res.container
	if container == "" {
		container = "flac"
	}
	codec := res.codec
	if codec == "" {
		codec = "flac"
	}
	return TrackScan{
		Container: container,
		Codec:     codec,
		Loudness:  res.loudness,
		Range:     res.lra,
		Peak:      res.peak,
		Acc: &fakeAcc{
			loudness: res.loudness,
			lra:      res.lra,
			release:  func() { m.live.Add(-1) },
		},
	}, nil
}

// Combine averages the member energies, which reduces to the identity
// for a single accumulator.
func (m *fakeMeter) Combine(accs []Accumulator) (float64, float64, error) {
	m.combineCalls.Add(1)
	if m.pending.Load() > 0 {
		m.combineTooEarly.Store(true)
	}
	if len(accs) == 0 {
		return 0, 0, errors.New("no accumulators")
	}

	var energy, lra float64
	for _, acc := range accs {
		fa, ok := acc.(*fakeAcc)
		if !ok || fa.released {
			return 0, 0, errors.New("bad accumulator")
		}
		energy += math.Pow(10.0, fa.loudness/10.0)
		if fa.lra > lra {
			lra = fa.lra
		}
	}
	return 10.0 * math.Log10(energy/float64(len(accs))), lra, nil
}

// captureOutput is a thread-safe Output sink for tests.
type captureOutput struct {
	mu          sync.Mutex
	tracks      []*TrackRecord
	albums      []string
	diagnostics []string
}

func (c *captureOutput) Track(rec *TrackRecord) {
	c.mu.Lock()
	c.tracks = append(c.tracks, rec)
	c.mu.Unlock()
}

func (c *captureOutput) Album(f *FolderRecord) {
	c.mu.Lock()
	c.albums = append(c.albums, f.Dir)
	c.mu.Unlock()
}

func (c *captureOutput) Diagnostic(format string, args ...any) {
	c.mu.Lock()
	c.diagnostics = append(c.diagnostics, fmt.Sprintf(format, args...))
	c.mu.Unlock()
}

func (c *captureOutput) trackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks)
}

func (c *captureOutput) albumCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.albums)
}

// makeFolder registers count fixture tracks under dir and returns the
// folder record.
func makeFolder(t *testing.T, m *fakeMeter, dir string, count int, res fakeResult) *FolderRecord {
	t.Helper()
	paths := make([]string, count)
	for i := range paths {
		paths[i] = fmt.Sprintf("%s/track%02d.flac", dir, i+1)
		m.set(paths[i], res)
	}
	f, err := NewFolderRecord(paths)
	if err != nil {
		t.Fatalf("NewFolderRecord failed: %v", err)
	}
	return f
}

func approx(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v ± %v", name, got, want, tol)
	}
}
