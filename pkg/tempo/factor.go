package tempo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidInput marks tempo text that could not be used. Factor still
// returns the identity factor alongside it; callers show it as a warning.
var ErrInvalidInput = errors.New("invalid tempo input")

// ErrUnknownMode is returned by ParseMode for unrecognised names.
var ErrUnknownMode = errors.New("unknown tempo mode")

// Mode selects how tempo text is interpreted.
type Mode int

const (
	// ModeBPM interprets the input as a target tempo in beats per minute.
	ModeBPM Mode = iota
	// ModePercentage interprets the input as a percentage of the original speed.
	ModePercentage
)

// Modes lists all modes in display order.
var Modes = []Mode{ModeBPM, ModePercentage}

func (m Mode) String() string {
	switch m {
	case ModeBPM:
		return "BPM"
	case ModePercentage:
		return "Percentage"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Next returns the following mode, wrapping around.
func (m Mode) Next() Mode {
	return Modes[(int(m)+1)%len(Modes)]
}

// ParseMode parses a mode name as accepted on the command line and in config.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bpm", "":
		return ModeBPM, nil
	case "percentage", "percent", "pct", "%":
		return ModePercentage, nil
	}
	return ModeBPM, fmt.Errorf("%w: %q (must be bpm or percent)", ErrUnknownMode, s)
}

// IdentityFactor plays at the original tempo.
const IdentityFactor = 1.0

// Factor turns user tempo text into a multiplier for inter-event waits.
// A factor below 1 plays faster than the original, above 1 slower.
//
// The returned factor is always finite and strictly positive. Blank input
// means the original tempo. Unusable input also yields IdentityFactor,
// together with an error wrapping ErrInvalidInput that should be reported
// as a warning rather than treated as a failure.
//
// estimate is only called in ModeBPM with a positive target.
func Factor(path, input string, mode Mode, estimate func(string) float64) (float64, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return IdentityFactor, nil
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return IdentityFactor, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, text)
	}
	if value <= 0 {
		return IdentityFactor, fmt.Errorf("%w: %q must be greater than zero", ErrInvalidInput, text)
	}

	var factor float64
	switch mode {
	case ModePercentage:
		factor = 100.0 / value
	case ModeBPM:
		if estimate == nil {
			return IdentityFactor, fmt.Errorf("%w: no original tempo available", ErrInvalidInput)
		}
		factor = estimate(path) / value
	default:
		return IdentityFactor, fmt.Errorf("%w: %v", ErrUnknownMode, mode)
	}

	if !ValidFactor(factor) {
		return IdentityFactor, fmt.Errorf("%w: %q gives unusable factor %v", ErrInvalidInput, text, factor)
	}
	return factor, nil
}

// ValidFactor reports whether f can be used to scale playback.
func ValidFactor(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
