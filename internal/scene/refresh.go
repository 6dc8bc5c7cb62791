package scene

import (
	"github.com/hpungsan/poetrybox/internal/geom"
)

// LinkTolerance is how close two connection points must be to count as connected.
const LinkTolerance = 1e-3

// RefreshConnections recomputes links from geometry: links whose points have
// drifted apart are dropped, then every open out point is linked to the first
// open in point (insertion order) lying on top of it. Returns the number of
// links dropped plus created.
func RefreshConnections(s *Scene, tol float64) int {
	changed := 0

	for _, e := range s.Connectables() {
		next := e.Connectable.Next
		if next == "" {
			continue
		}
		n, ok := s.Get(next)
		if !ok || !pointsMeet(e, n, tol) {
			_ = s.Unlink(e.ID, SideOut)
			changed++
		}
	}

	for _, e := range s.Connectables() {
		cur, ok := s.Get(e.ID)
		if !ok || cur.Connectable.Next != "" {
			continue
		}
		if _, ok := cur.PointWorld(SideOut); !ok {
			continue
		}
		for _, cand := range s.Connectables() {
			if cand.ID == cur.ID || cand.Connectable.Prev != "" {
				continue
			}
			if !pointsMeet(cur, cand, tol) || wouldCycle(s, cur.ID, cand.ID) {
				continue
			}
			if err := s.Link(cur.ID, cand.ID); err == nil {
				changed++
				break
			}
		}
	}

	return changed
}

// DetachMoved drops the links between the entities in ids and neighbours
// outside ids whose connection points no longer meet. Links inside ids are
// kept, so a selection dragged together stays one chain. Returns the number
// of links dropped.
func DetachMoved(s *Scene, ids []string, tol float64) int {
	moving := make(map[string]bool, len(ids))
	for _, id := range ids {
		moving[id] = true
	}

	dropped := 0
	for _, id := range ids {
		e, ok := s.Get(id)
		if !ok || e.Connectable == nil {
			continue
		}
		if prev := e.Connectable.Prev; prev != "" && !moving[prev] {
			p, ok := s.Get(prev)
			if !ok || !pointsMeet(p, e, tol) {
				_ = s.Unlink(id, SideIn)
				dropped++
			}
		}
		if next := e.Connectable.Next; next != "" && !moving[next] {
			n, ok := s.Get(next)
			if !ok || !pointsMeet(e, n, tol) {
				_ = s.Unlink(id, SideOut)
				dropped++
			}
		}
	}
	return dropped
}

// pointsMeet reports whether prev's out point coincides with next's in point.
func pointsMeet(prev, next Entity, tol float64) bool {
	out, ok := prev.PointWorld(SideOut)
	if !ok {
		return false
	}
	in, ok := next.PointWorld(SideIn)
	if !ok {
		return false
	}
	return geom.Near(out, in, tol)
}

// wouldCycle reports whether linking prev -> next closes a loop.
func wouldCycle(s *Scene, prevID, nextID string) bool {
	seen := map[string]bool{}
	id := nextID
	for id != "" && !seen[id] {
		if id == prevID {
			return true
		}
		seen[id] = true
		e, ok := s.Get(id)
		if !ok || e.Connectable == nil {
			return false
		}
		id = e.Connectable.Next
	}
	return false
}

// Chains returns the linked runs of cards from head to tail. Heads are visited
// in insertion order; unlinked cards form chains of one.
func Chains(s *Scene) [][]Entity {
	cards := s.Snapshot(KindCard)
	byID := make(map[string]Entity, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}

	visited := map[string]bool{}
	var chains [][]Entity
	walk := func(start Entity) {
		var chain []Entity
		cur, ok := start, true
		for ok && !visited[cur.ID] {
			visited[cur.ID] = true
			chain = append(chain, cur)
			if cur.Connectable == nil || cur.Connectable.Next == "" {
				break
			}
			cur, ok = byID[cur.Connectable.Next]
		}
		chains = append(chains, chain)
	}

	for _, c := range cards {
		if isHead(c, byID) {
			walk(c)
		}
	}
	// Anything left sits on a cycle; start it at its first card in insertion order.
	for _, c := range cards {
		if !visited[c.ID] {
			walk(c)
		}
	}
	return chains
}

func isHead(c Entity, byID map[string]Entity) bool {
	if c.Connectable == nil || c.Connectable.Prev == "" {
		return true
	}
	_, ok := byID[c.Connectable.Prev]
	return !ok
}
