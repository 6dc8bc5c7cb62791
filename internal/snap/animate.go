package snap

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/hpungsan/poetrybox/internal/clock"
)

// Ease is the quartic ease-in curve, t^4 clamped to [0, 1].
func Ease(t float64) float64 {
	a := t * t * t * t
	if a > 1 {
		return 1
	}
	return a
}

// QuarticLerp interpolates each axis independently: start*(1-a) + end*a.
func QuarticLerp(start, end mgl64.Vec3, t float64) mgl64.Vec3 {
	a := Ease(t)
	var out mgl64.Vec3
	for i := range out {
		out[i] = start[i]*(1-a) + end[i]*a
	}
	return out
}

// StepFunc writes one animation sample. pos is the new pose, delta the
// change since the previous sample.
type StepFunc func(ctx context.Context, pos, delta mgl64.Vec3) error

// Animator drives an eased move on a clock. The elapsed time is read from the
// clock on every step, so a slow frame skips ahead rather than stretching
// the animation.
type Animator struct {
	Clock        clock.Clock
	Duration     time.Duration
	Interval     time.Duration
	ForceLanding bool
}

// Run samples the move from start to end until Duration has elapsed and
// returns the number of samples written.
func (a Animator) Run(ctx context.Context, start, end mgl64.Vec3, step StepFunc) (int, error) {
	steps := 0
	prev := start
	begin := a.Clock.Now()

	for a.Duration > 0 {
		elapsed := a.Clock.Now().Sub(begin)
		if elapsed > a.Duration {
			break
		}
		t := float64(elapsed) / float64(a.Duration)
		pos := QuarticLerp(start, end, t)
		if err := step(ctx, pos, pos.Sub(prev)); err != nil {
			return steps, err
		}
		steps++
		prev = pos

		select {
		case <-ctx.Done():
			return steps, ctx.Err()
		case <-a.Clock.After(a.Interval):
		}
	}

	if a.ForceLanding && prev != end {
		if err := step(ctx, end, end.Sub(prev)); err != nil {
			return steps, err
		}
		steps++
	}
	return steps, nil
}
