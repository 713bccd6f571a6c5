// Package tempo analyses the tempo of parsed MIDI files and converts user
// tempo targets into playback time-scaling factors.
package tempo

import (
	"fmt"
	"log/slog"
	"math/big"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/zurustar/drumpractice/pkg/logger"
	"github.com/zurustar/drumpractice/pkg/midifile"
)

// DefaultBPM is returned whenever a file has no usable tempo information.
// It corresponds to the MIDI default tempo of 500000 microseconds per quarter.
var DefaultBPM = midifile.TempoToBPM(midifile.DefaultTempo)

// Breakpoint is a tempo change at an absolute tick position.
type Breakpoint struct {
	Tick  uint64
	Tempo uint32 // microseconds per quarter note
}

// Breakpoints collects the tempo changes of track in timeline order.
func Breakpoints(track *midifile.Track) []Breakpoint {
	var points []Breakpoint
	var abs uint64
	for _, ev := range track.Events {
		abs += uint64(ev.Delta)
		if ev.Kind == midifile.KindSetTempo {
			points = append(points, Breakpoint{Tick: abs, Tempo: ev.Tempo})
		}
	}
	return points
}

// EstimateBPM reduces all tempo changes of track into one BPM value,
// weighting each tempo by the number of seconds it is in force.
//
// Tempo changes are closed by a sentinel at the end of the track. Files
// without tempo events, or whose tempo segments have no length, report
// DefaultBPM.
//
// A segment of n ticks at tempo t lasts n*t/(1e6*PPQN) seconds at
// 6e7/t BPM, so its weighted contribution is 60*n/PPQN and the average is
// 6e7*sum(n) / sum(n*t). The ratio is evaluated exactly and rounded once,
// which makes files with a single repeated tempo report that tempo's BPM
// bit for bit.
func EstimateBPM(track *midifile.Track) float64 {
	points := Breakpoints(track)
	if len(points) == 0 || track.PPQN == 0 {
		return DefaultBPM
	}

	total := track.TotalTicks()

	ticks := new(big.Int)
	micros := new(big.Int)
	var seg big.Int
	for i, p := range points {
		next := total
		if i+1 < len(points) {
			next = points[i+1].Tick
		}
		if next <= p.Tick {
			continue
		}
		n := new(big.Int).SetUint64(next - p.Tick)
		ticks.Add(ticks, n)
		seg.Mul(n, new(big.Int).SetUint64(uint64(p.Tempo)))
		micros.Add(micros, &seg)
	}

	if micros.Sign() == 0 {
		return DefaultBPM
	}

	num := new(big.Int).Mul(ticks, big.NewInt(60_000_000))
	bpm, _ := new(big.Rat).SetFrac(num, micros).Float64()
	return bpm
}

// Loader returns the parsed track for a path.
type Loader func(path string) (*midifile.Track, error)

// Estimator memoises EstimateBPM per file.
//
// MIDI files are assumed not to change while the process runs, so cached
// values are never invalidated.
type Estimator struct {
	load  Loader
	log   *slog.Logger
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]float64
}

// EstimatorOption configures an Estimator.
type EstimatorOption func(*Estimator)

// WithLogger sets the logger used for estimation results and failures.
func WithLogger(log *slog.Logger) EstimatorOption {
	return func(e *Estimator) {
		if log != nil {
			e.log = log
		}
	}
}

// NewEstimator creates an Estimator. A nil loader reads files from disk.
func NewEstimator(load Loader, opts ...EstimatorOption) *Estimator {
	if load == nil {
		load = midifile.ReadFile
	}
	e := &Estimator{
		load:  load,
		log:   logger.GetLogger(),
		cache: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EstimateOriginalBPM returns the time-weighted average BPM of the file at
// path. It never fails: unreadable files report DefaultBPM.
func (e *Estimator) EstimateOriginalBPM(path string) float64 {
	key := NormalizePath(path)

	e.mu.RLock()
	bpm, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return bpm
	}

	v, _, _ := e.group.Do(key, func() (any, error) {
		return e.estimate(path, key), nil
	})
	return v.(float64)
}

// Cached reports whether a value for path is already memoised.
func (e *Estimator) Cached(path string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.cache[NormalizePath(path)]
	return ok
}

func (e *Estimator) estimate(path, key string) float64 {
	e.mu.RLock()
	bpm, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return bpm
	}

	bpm, err := e.compute(path)
	if err != nil {
		e.log.Warn("Error estimating MIDI BPM, using fallback", "path", path, "error", err, "bpm", DefaultBPM)
		bpm = DefaultBPM
	} else {
		e.log.Info("Estimated BPM", "path", path, "bpm", fmt.Sprintf("%.2f", bpm))
	}

	e.mu.Lock()
	e.cache[key] = bpm
	e.mu.Unlock()
	return bpm
}

func (e *Estimator) compute(path string) (bpm float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while estimating: %v", r)
		}
	}()

	track, err := e.load(path)
	if err != nil {
		return 0, err
	}
	return EstimateBPM(track), nil
}

// NormalizePath returns the cache key for path: absolute and cleaned.
func NormalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
