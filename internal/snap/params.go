package snap

import (
	"fmt"
	"time"
)

// Variant selects how snap targets are found.
type Variant string

const (
	// VariantBounds snaps the dragged entity onto the nearest board's surface.
	VariantBounds Variant = "bounds"
	// VariantConnectors snaps the ends of a word chain onto open connection points.
	VariantConnectors Variant = "connectors"
)

// Defaults.
const (
	DefaultMaxDistance          = 0.14
	DefaultDuration             = 25 * time.Millisecond
	DefaultEpsilon              = 100 * time.Nanosecond
	DefaultFrameRateHz          = 90
	DefaultOrientationTolerance = 0.05
)

// Params tunes the snap routine.
type Params struct {
	Variant Variant
	// MaxDistance is the exclusive admissibility threshold. The bounds variant
	// compares it against the squared distance to the board surface, the
	// connectors variant against the plain distance between points.
	MaxDistance float64
	// Duration of the ease-in animation.
	Duration time.Duration
	// Epsilon is the quiescence window: a trigger arriving no later than
	// Epsilon after the last move is deferred.
	Epsilon time.Duration
	// FrameInterval is the wait between animation steps.
	FrameInterval time.Duration
	// OrientationTolerance bounds how far |dot| of the two connector
	// directions may stray from 1.
	OrientationTolerance float64
	// ForceLanding writes the exact target pose after the last timed step.
	ForceLanding bool
}

// DefaultParams returns the stock tuning with the given variant.
func DefaultParams(v Variant) Params {
	return Params{
		Variant:              v,
		MaxDistance:          DefaultMaxDistance,
		Duration:             DefaultDuration,
		Epsilon:              DefaultEpsilon,
		FrameInterval:        FrameInterval(DefaultFrameRateHz),
		OrientationTolerance: DefaultOrientationTolerance,
		ForceLanding:         true,
	}
}

// FrameInterval converts a frame rate to the step interval.
func FrameInterval(hz int) time.Duration {
	if hz <= 0 {
		hz = DefaultFrameRateHz
	}
	return time.Second / time.Duration(hz)
}

// ParseVariant accepts "bounds" or "connectors"; empty means connectors.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "", VariantConnectors:
		return VariantConnectors, nil
	case VariantBounds:
		return VariantBounds, nil
	default:
		return "", fmt.Errorf("unknown snap variant %q", s)
	}
}

// Validate checks the params are usable.
func (p Params) Validate() error {
	if p.Variant != VariantBounds && p.Variant != VariantConnectors {
		return fmt.Errorf("unknown snap variant %q", p.Variant)
	}
	if p.MaxDistance <= 0 {
		return fmt.Errorf("max snap distance must be positive, got %v", p.MaxDistance)
	}
	if p.Duration < 0 || p.Epsilon < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if p.FrameInterval <= 0 {
		return fmt.Errorf("frame interval must be positive, got %v", p.FrameInterval)
	}
	if p.OrientationTolerance < 0 || p.OrientationTolerance > 1 {
		return fmt.Errorf("orientation tolerance must be within [0, 1], got %v", p.OrientationTolerance)
	}
	return nil
}
