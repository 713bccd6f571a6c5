package tempo

import (
	"sort"
	"time"

	"github.com/zurustar/drumpractice/pkg/midifile"
)

// Map converts tick positions to real time at the file's original tempo.
type Map struct {
	ppqn        uint16
	points      []Breakpoint
	secondsAtBP []float64 // pre-calculated seconds at each breakpoint
}

// NewMap builds a Map for track. The MIDI default tempo applies until the
// first tempo change.
func NewMap(track *midifile.Track) *Map {
	points := Breakpoints(track)
	if len(points) == 0 || points[0].Tick > 0 {
		points = append([]Breakpoint{{Tick: 0, Tempo: midifile.DefaultTempo}}, points...)
	}
	m := &Map{ppqn: track.PPQN, points: points}
	m.precalculate()
	return m
}

// precalculate computes the elapsed seconds at each tempo change so that
// Seconds only has to walk one segment.
func (m *Map) precalculate() {
	m.secondsAtBP = make([]float64, len(m.points))
	for i := 1; i < len(m.points); i++ {
		prev := m.points[i-1]
		m.secondsAtBP[i] = m.secondsAtBP[i-1] + m.segmentSeconds(m.points[i].Tick-prev.Tick, prev.Tempo)
	}
}

func (m *Map) segmentSeconds(ticks uint64, tempo uint32) float64 {
	if m.ppqn == 0 {
		return 0
	}
	return float64(ticks) * float64(tempo) / (1_000_000 * float64(m.ppqn))
}

// Seconds returns the real time elapsed from the start of the file to tick.
func (m *Map) Seconds(tick uint64) float64 {
	i := sort.Search(len(m.points), func(i int) bool {
		return m.points[i].Tick > tick
	}) - 1
	if i < 0 {
		i = 0
	}
	p := m.points[i]
	return m.secondsAtBP[i] + m.segmentSeconds(tick-p.Tick, p.Tempo)
}

// TempoAt returns the tempo in force at tick.
func (m *Map) TempoAt(tick uint64) uint32 {
	i := sort.Search(len(m.points), func(i int) bool {
		return m.points[i].Tick > tick
	}) - 1
	if i < 0 {
		i = 0
	}
	return m.points[i].Tempo
}

// Duration returns the original playing time of track.
func Duration(track *midifile.Track) time.Duration {
	secs := NewMap(track).Seconds(track.TotalTicks())
	return time.Duration(secs * float64(time.Second))
}

// Scaled returns d stretched by a playback tempo factor.
func Scaled(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}
