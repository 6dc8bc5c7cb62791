package snap

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/hpungsan/poetrybox/internal/scene"
)

// Match is the result of a nearest-target search.
type Match struct {
	Found    bool
	TargetID string
	// Point is the world position being snapped to: the closest point on the
	// board, or the target's connection point.
	Point mgl64.Vec3
	// Reference is the world position on the moving side that lands on Point.
	Reference mgl64.Vec3
	// Distance is squared for board matches, plain for connector matches.
	Distance float64

	// Connector matches only.
	MovingID   string
	MovingSide scene.Side
	TargetSide scene.Side
}

func noMatch() Match {
	return Match{Distance: math.Inf(1)}
}

// NearestBoard finds the board whose surface lies closest to the moving
// entity's center. Ties keep the earlier board.
func NearestBoard(moving scene.Entity, boards []scene.Entity) Match {
	best := noMatch()
	for _, b := range boards {
		if b.ID == moving.ID || b.Kind != scene.KindBoard {
			continue
		}
		box := b.Bounds()
		d := box.DistanceSquared(moving.Position)
		if d < best.Distance {
			best = Match{
				Found:     true,
				TargetID:  b.ID,
				Point:     box.ClosestPoint(moving.Position),
				Reference: moving.Position,
				Distance:  d,
				MovingID:  moving.ID,
			}
		}
	}
	return best
}

// NearestConnector searches from both ends of the selected chain.
// The tail's out point is matched against candidate in points, then the
// head's in point against candidate out points. The closer of the two
// wins; on a tie the tail search is kept.
func NearestConnector(selection, candidates []scene.Entity) Match {
	members := make(map[string]bool, len(selection))
	for _, e := range selection {
		members[e.ID] = true
	}
	others := make([]scene.Entity, 0, len(candidates))
	for _, c := range candidates {
		if !members[c.ID] && c.Connectable != nil {
			others = append(others, c)
		}
	}

	head, tail, ok := chainEnds(selection, members)
	if !ok {
		return noMatch()
	}

	best := nearestTo(tail, scene.SideOut, others)
	if m := nearestTo(head, scene.SideIn, others); m.Distance < best.Distance {
		best = m
	}
	return best
}

// nearestTo matches the moving entity's point on side against the opposite
// points of candidates. The point may already be linked outside the
// selection; re-snapping a settled chain then lands on its own neighbour.
func nearestTo(moving scene.Entity, side scene.Side, candidates []scene.Entity) Match {
	best := noMatch()
	ref, ok := moving.PointWorld(side)
	if !ok {
		return best
	}
	want := side.Opposite()
	for _, c := range candidates {
		p, ok := c.PointWorld(want)
		if !ok {
			continue
		}
		d := p.Sub(ref).Len()
		if d < best.Distance {
			best = Match{
				Found:      true,
				TargetID:   c.ID,
				Point:      p,
				Reference:  ref,
				Distance:   d,
				MovingID:   moving.ID,
				MovingSide: side,
				TargetSide: want,
			}
		}
	}
	return best
}

// chainEnds returns the selection member with no selected predecessor and the
// one with no selected successor, scanning in selection order.
func chainEnds(selection []scene.Entity, members map[string]bool) (head, tail scene.Entity, ok bool) {
	var foundHead, foundTail bool
	for _, e := range selection {
		if e.Connectable == nil {
			continue
		}
		if !foundHead && !members[e.Connectable.Prev] {
			head, foundHead = e, true
		}
		if !foundTail && !members[e.Connectable.Next] {
			tail, foundTail = e, true
		}
	}
	return head, tail, foundHead && foundTail
}
