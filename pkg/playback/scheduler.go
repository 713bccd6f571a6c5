package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zurustar/drumpractice/pkg/logger"
	"github.com/zurustar/drumpractice/pkg/midifile"
)

// DefaultStopTimeout bounds how long Stop waits for the worker to exit
// before the sink is released anyway.
const DefaultStopTimeout = time.Second

// ErrNoTrack is logged when Play is given nothing to play.
var ErrNoTrack = errors.New("no track to play")

// State is the lifecycle state of a scheduler or the outcome of a session.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateFinished
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// session is one run of the worker over a track.
type session struct {
	factor   float64
	cancel   context.CancelFunc
	done     chan struct{} // closed when the worker returns
	released chan struct{} // closed once the sink has been released
	end      sync.Once
}

// Scheduler plays one track at a time.
//
// Mute flags may be changed at any time and take effect from the next
// dispatched event.
type Scheduler struct {
	sink        Sink
	log         *slog.Logger
	clock       Clock
	stopTimeout time.Duration
	onEnd       func(State)

	muteDrums  atomic.Bool
	muteOthers atomic.Bool

	mu   sync.Mutex
	cur  *session
	last State
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStopTimeout sets how long Stop waits for the worker before forcing
// the sink release. Non-positive values keep the default.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// WithClock replaces the clock used for inter-event waits.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithOnEnd registers a callback run once per session with its outcome
// (StateFinished or StateStopped). It runs on whichever goroutine released
// the session and must not call back into Play or Stop synchronously.
func WithOnEnd(fn func(State)) Option {
	return func(s *Scheduler) {
		s.onEnd = fn
	}
}

// NewScheduler creates an idle scheduler dispatching to sink.
func NewScheduler(sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink:        sink,
		log:         logger.GetLogger(),
		clock:       SystemClock,
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetMuteDrums silences note events on the drum channel.
func (s *Scheduler) SetMuteDrums(mute bool) { s.muteDrums.Store(mute) }

// SetMuteOthers silences note events on every channel except the drum channel.
func (s *Scheduler) SetMuteOthers(mute bool) { s.muteOthers.Store(mute) }

// MuteDrums reports the drum mute flag.
func (s *Scheduler) MuteDrums() bool { return s.muteDrums.Load() }

// MuteOthers reports the accompaniment mute flag.
func (s *Scheduler) MuteOthers() bool { return s.muteOthers.Load() }

// State returns StatePlaying while a session holds the sink, StateIdle
// otherwise.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		return StatePlaying
	}
	return StateIdle
}

// LastOutcome returns how the most recent session ended, or StateIdle if
// none has.
func (s *Scheduler) LastOutcome() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Play starts a session for track scaled by factor and returns immediately.
// It returns false without touching the running session if one is active,
// or if the sink could not be started.
func (s *Scheduler) Play(track *midifile.Track, factor float64) bool {
	if track == nil || track.PPQN == 0 {
		s.log.Error("Cannot start playback", "error", ErrNoTrack)
		return false
	}
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		s.log.Warn("Invalid tempo factor, using 1.0", "factor", factor)
		factor = 1.0
	}

	s.mu.Lock()
	if s.cur != nil {
		s.mu.Unlock()
		s.log.Warn("Playback already in progress, ignoring play request")
		return false
	}
	if err := s.sink.Start(); err != nil {
		s.mu.Unlock()
		s.log.Error("Failed to start synthesis sink", "error", err)
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		factor:   factor,
		cancel:   cancel,
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}
	s.cur = sess
	s.mu.Unlock()

	s.log.Info("Playback started", "track", track.Name, "events", len(track.Events), "factor", factor)
	go s.run(ctx, sess, track)
	return true
}

// Stop cancels the active session and waits up to the stop timeout for the
// worker to exit, releasing the sink either way. It returns false if
// nothing was playing.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	sess := s.cur
	s.mu.Unlock()
	if sess == nil {
		s.log.Warn("Stop requested but nothing is playing")
		return false
	}

	sess.cancel()

	// The stop timeout is wall-clock time even with an injected clock.
	t := time.NewTimer(s.stopTimeout)
	defer t.Stop()
	select {
	case <-sess.done:
	case <-t.C:
		s.log.Warn("Playback worker did not stop in time, releasing sink", "timeout", s.stopTimeout)
	}

	s.finish(sess, StateStopped)
	return true
}

// Wait blocks until the active session, if any, has been released.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	sess := s.cur
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	select {
	case <-sess.released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, sess *session, track *midifile.Track) {
	defer close(sess.done)

	outcome := StateFinished
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Playback worker panicked", "panic", r)
			outcome = StateStopped
		}
		s.finish(sess, outcome)
	}()

	tempo := midifile.DefaultTempo
	ppqn := float64(track.PPQN)

	for _, ev := range track.Events {
		if ctx.Err() != nil {
			outcome = StateStopped
			return
		}

		if ev.Delta > 0 {
			secs := float64(ev.Delta) * float64(tempo) / (1_000_000 * ppqn) * sess.factor
			if !s.sleep(ctx, time.Duration(secs*float64(time.Second))) {
				outcome = StateStopped
				return
			}
		}
		if ctx.Err() != nil {
			outcome = StateStopped
			return
		}

		s.dispatch(ev)

		if ev.Kind == midifile.KindSetTempo && ev.Tempo > 0 {
			tempo = ev.Tempo
		}
	}
}

// sleep waits for d or until ctx is cancelled. It reports whether the full
// wait elapsed.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := s.clock.NewTimer(d)
	select {
	case <-t.C():
		return true
	case <-ctx.Done():
		t.Stop()
		return false
	}
}

func (s *Scheduler) dispatch(ev midifile.Event) {
	switch ev.Kind {
	case midifile.KindNoteOn, midifile.KindNoteOff:
		if Suppressed(ev.Kind, ev.Channel, s.muteDrums.Load(), s.muteOthers.Load()) {
			return
		}
		if ev.Kind == midifile.KindNoteOn {
			s.sink.NoteOn(ev.Channel, ev.Note, ev.Velocity)
		} else {
			s.sink.NoteOff(ev.Channel, ev.Note)
		}
	case midifile.KindProgramChange:
		s.sink.ProgramChange(ev.Channel, ev.Program)
	}
}

// finish releases the session's sink exactly once and clears it from the
// scheduler.
func (s *Scheduler) finish(sess *session, outcome State) {
	sess.end.Do(func() {
		if err := s.sink.Stop(); err != nil {
			s.log.Error("Failed to release synthesis sink", "error", err)
		}

		s.mu.Lock()
		if s.cur == sess {
			s.cur = nil
		}
		s.last = outcome
		s.mu.Unlock()

		close(sess.released)
		s.log.Info("Playback ended", "outcome", outcome.String())

		if s.onEnd != nil {
			s.onEnd(outcome)
		}
	})
}
