// Package player ties the MIDI parser, tempo analysis and the playback
// scheduler together behind the operations a controller needs: load a
// file, report its original tempo, turn tempo text into a factor, play,
// stop and mute.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zurustar/drumpractice/pkg/fileutil"
	"github.com/zurustar/drumpractice/pkg/logger"
	"github.com/zurustar/drumpractice/pkg/midifile"
	"github.com/zurustar/drumpractice/pkg/playback"
	"github.com/zurustar/drumpractice/pkg/tempo"
)

// ErrStartFailed is returned by Play when the sink refused to start.
var ErrStartFailed = errors.New("playback could not start")

// Info summarises a loaded MIDI file.
type Info struct {
	Path         string // resolved path on disk
	Name         string
	PPQN         uint16
	Tracks       int
	Events       int
	TempoChanges int
	OriginalBPM  float64
	Duration     time.Duration // at the original tempo
}

// Player is the controller-facing side of the drum practice player.
// It is safe for concurrent use.
type Player struct {
	log       *slog.Logger
	read      tempo.Loader
	sched     *playback.Scheduler
	estimator *tempo.Estimator

	group  singleflight.Group
	mu     sync.RWMutex
	tracks map[string]*midifile.Track
}

type options struct {
	log         *slog.Logger
	read        tempo.Loader
	stopTimeout time.Duration
	clock       playback.Clock
	onEnd       func(playback.State)
}

// Option configures a Player.
type Option func(*options)

// WithLogger sets the logger shared by the player and its components.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithReader replaces the function used to parse MIDI files.
func WithReader(read tempo.Loader) Option {
	return func(o *options) { o.read = read }
}

// WithStopTimeout bounds how long Stop waits for the playback worker.
func WithStopTimeout(d time.Duration) Option {
	return func(o *options) { o.stopTimeout = d }
}

// WithClock sets the clock used for inter-event waits.
func WithClock(c playback.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithOnEnd registers a callback run when a session finishes or is stopped.
func WithOnEnd(fn func(playback.State)) Option {
	return func(o *options) { o.onEnd = fn }
}

// New creates a Player that sends events to sink.
func New(sink playback.Sink, opts ...Option) *Player {
	o := options{
		log:         logger.GetLogger(),
		read:        midifile.ReadFile,
		stopTimeout: playback.DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.GetLogger()
	}

	p := &Player{
		log:    o.log,
		read:   o.read,
		tracks: make(map[string]*midifile.Track),
	}

	schedOpts := []playback.Option{
		playback.WithLogger(o.log),
		playback.WithStopTimeout(o.stopTimeout),
	}
	if o.clock != nil {
		schedOpts = append(schedOpts, playback.WithClock(o.clock))
	}
	if o.onEnd != nil {
		schedOpts = append(schedOpts, playback.WithOnEnd(o.onEnd))
	}
	p.sched = playback.NewScheduler(sink, schedOpts...)
	p.estimator = tempo.NewEstimator(p.track, tempo.WithLogger(o.log))
	return p
}

// track returns the parsed file at path, parsing it at most once.
func (p *Player) track(path string) (*midifile.Track, error) {
	actual, err := fileutil.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", midifile.ErrNotFound, path)
	}
	key := tempo.NormalizePath(actual)

	p.mu.RLock()
	tr, ok := p.tracks[key]
	p.mu.RUnlock()
	if ok {
		return tr, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		tr, err := p.read(actual)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.tracks[key] = tr
		p.mu.Unlock()
		p.log.Debug("MIDI file parsed", "path", actual, "events", len(tr.Events), "ppqn", tr.PPQN)
		return tr, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*midifile.Track), nil
}

// Load parses the file at path and summarises it. The file name is
// matched case-insensitively.
func (p *Player) Load(path string) (Info, error) {
	actual, err := fileutil.Resolve(path)
	if err != nil {
		p.log.Error("MIDI file not found", "path", path)
		return Info{}, fmt.Errorf("%w: %s", midifile.ErrNotFound, path)
	}
	tr, err := p.track(actual)
	if err != nil {
		p.log.Error("Failed to load MIDI file", "path", actual, "error", err)
		return Info{}, err
	}
	return Info{
		Path:         actual,
		Name:         tr.Name,
		PPQN:         tr.PPQN,
		Tracks:       tr.TrackCount,
		Events:       len(tr.Events),
		TempoChanges: tr.TempoChanges(),
		OriginalBPM:  p.estimator.EstimateOriginalBPM(actual),
		Duration:     tempo.Duration(tr),
	}, nil
}

// EstimateOriginalBPM returns the file's time-weighted average BPM, or
// tempo.DefaultBPM if it cannot be read.
func (p *Player) EstimateOriginalBPM(path string) float64 {
	return p.estimator.EstimateOriginalBPM(path)
}

// ComputeTempoFactor converts tempo text into a playback factor. A non-nil
// error is a warning: the returned factor is still usable.
func (p *Player) ComputeTempoFactor(path, text string, mode tempo.Mode) (float64, error) {
	factor, err := tempo.Factor(path, text, mode, p.estimator.EstimateOriginalBPM)
	if err != nil {
		p.log.Warn("Invalid tempo input, playing at original tempo", "input", text, "mode", mode, "error", err)
		return factor, err
	}
	p.log.Debug("Tempo factor computed", "input", text, "mode", mode, "factor", factor)
	return factor, nil
}

// Play starts playing the file at path scaled by factor. A request made
// while another session is playing is ignored with a warning and returns
// nil.
func (p *Player) Play(path string, factor float64) error {
	tr, err := p.track(path)
	if err != nil {
		p.log.Error("Cannot play MIDI file", "path", path, "error", err)
		return err
	}

	busy := p.sched.State() == playback.StatePlaying
	if !p.sched.Play(tr, factor) {
		if busy || p.sched.State() == playback.StatePlaying {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrStartFailed, path)
	}
	return nil
}

// Stop stops playback. It is a no-op, with a warning, when idle.
func (p *Player) Stop() {
	p.sched.Stop()
}

// SetMuteDrums mutes or unmutes the drum channel, effective immediately.
func (p *Player) SetMuteDrums(mute bool) { p.sched.SetMuteDrums(mute) }

// SetMuteOthers mutes or unmutes every channel except the drum channel.
func (p *Player) SetMuteOthers(mute bool) { p.sched.SetMuteOthers(mute) }

// MuteDrums reports whether drums are muted.
func (p *Player) MuteDrums() bool { return p.sched.MuteDrums() }

// MuteOthers reports whether non-drum channels are muted.
func (p *Player) MuteOthers() bool { return p.sched.MuteOthers() }

// State reports whether a session is playing.
func (p *Player) State() playback.State { return p.sched.State() }

// LastOutcome reports how the previous session ended.
func (p *Player) LastOutcome() playback.State { return p.sched.LastOutcome() }

// Wait blocks until the current session ends or ctx is done.
func (p *Player) Wait(ctx context.Context) error { return p.sched.Wait(ctx) }
