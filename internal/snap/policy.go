package snap

import (
	"fmt"
	"math"

	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/scene"
)

// Admit decides whether m may be snapped to. moving owns the moving reference
// point and target is the matched entity. A nil return admits the snap.
func Admit(p Params, m Match, moving, target scene.Entity) *errors.PoetryError {
	if !m.Found {
		return errors.NewSnapRejected(errors.ErrNoCandidates, "no snap candidates in the scene", nil)
	}
	if !(m.Distance < p.MaxDistance) {
		return errors.NewSnapRejected(errors.ErrOutOfRange,
			fmt.Sprintf("nearest target %s is out of range", m.TargetID),
			map[string]any{"target_id": m.TargetID, "distance": m.Distance, "max_distance": p.MaxDistance})
	}
	if p.Variant != VariantConnectors {
		return nil
	}

	dot, ok := alignment(moving, m.MovingSide, target, m.TargetSide)
	if !ok || !aligned(dot, p.OrientationTolerance) {
		return errors.NewSnapRejected(errors.ErrOrientationMismatch,
			fmt.Sprintf("connectors of %s and %s are not aligned", moving.ID, target.ID),
			map[string]any{"target_id": target.ID, "dot": dot})
	}

	if linked := target.Connectable.Linked(m.TargetSide); linked != "" && linked != moving.ID {
		return errors.NewSnapRejected(errors.ErrTargetOccupied,
			fmt.Sprintf("%s point of %s is taken by %s", m.TargetSide, target.ID, linked),
			map[string]any{"target_id": target.ID, "occupied_by": linked})
	}
	return nil
}

// alignment returns the dot product of the two connector-to-center directions.
// Those are the negated outward directions, and negating both leaves the dot
// product unchanged.
func alignment(moving scene.Entity, ms scene.Side, target scene.Entity, ts scene.Side) (float64, bool) {
	mo, ok := moving.OutwardWorld(ms)
	if !ok {
		return 0, false
	}
	to, ok := target.OutwardWorld(ts)
	if !ok {
		return 0, false
	}
	return mo.Dot(to), true
}

// aligned reports whether dot lies within tol of +1 or -1.
func aligned(dot, tol float64) bool {
	return math.Abs(math.Abs(dot)-1) <= tol
}
