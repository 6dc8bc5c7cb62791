// Package scene is the live scene graph of a composition: word cards and boards,
// their poses, connection links and selection sets.
//
// Scene is safe for concurrent use. Reads return copies, so callers can hold a
// snapshot while the scene keeps moving.
package scene

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/hpungsan/poetrybox/internal/errors"
)

// EventType names a change published on the scene feed.
type EventType string

const (
	EventAdded    EventType = "added"
	EventMoved    EventType = "moved"
	EventRemoved  EventType = "removed"
	EventLinked   EventType = "linked"
	EventUnlinked EventType = "unlinked"
)

// Event is a single scene change.
type Event struct {
	Type     EventType  `json:"type"`
	ID       string     `json:"id"`
	Other    string     `json:"other,omitempty"`
	Position mgl64.Vec3 `json:"position"`
}

// Scene holds the entities of one composition in insertion order.
type Scene struct {
	mu         sync.RWMutex
	entities   map[string]*Entity
	order      []string
	selections map[string][]string
	dirty      map[string]bool
	removed    map[string]bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New returns an empty scene.
func New() *Scene {
	return &Scene{
		entities:   make(map[string]*Entity),
		selections: make(map[string][]string),
		dirty:      make(map[string]bool),
		removed:    make(map[string]bool),
		subs:       make(map[int]chan Event),
	}
}

// Load returns a scene populated with entities without marking them dirty.
func Load(entities []Entity) (*Scene, error) {
	s := New()
	for _, e := range entities {
		if _, ok := s.entities[e.ID]; ok {
			return nil, errors.NewAlreadyExists(e.ID)
		}
		c := e.Clone()
		s.entities[e.ID] = &c
		s.order = append(s.order, e.ID)
	}
	return s, nil
}

// Add inserts e. IDs must be unique.
func (s *Scene) Add(e Entity) error {
	if e.ID == "" {
		return errors.NewInvalidRequest("entity id is required")
	}
	s.mu.Lock()
	if _, ok := s.entities[e.ID]; ok {
		s.mu.Unlock()
		return errors.NewAlreadyExists(e.ID)
	}
	c := e.Clone()
	s.entities[e.ID] = &c
	s.order = append(s.order, e.ID)
	s.dirty[e.ID] = true
	delete(s.removed, e.ID)
	s.mu.Unlock()

	s.publish(Event{Type: EventAdded, ID: e.ID, Position: e.Position})
	return nil
}

// Remove deletes the entity, detaching any neighbours linked to it.
func (s *Scene) Remove(id string) error {
	s.mu.Lock()
	e, ok := s.entities[id]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFound(id)
	}
	if e.Connectable != nil {
		s.unlinkLocked(id, SideIn)
		s.unlinkLocked(id, SideOut)
	}
	for _, other := range s.entities {
		if other.BoardID == id {
			other.BoardID = ""
			s.dirty[other.ID] = true
		}
	}
	delete(s.entities, id)
	delete(s.selections, id)
	delete(s.dirty, id)
	s.removed[id] = true
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.publish(Event{Type: EventRemoved, ID: id})
	return nil
}

// Get returns a copy of the entity.
func (s *Scene) Get(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	return e.Clone(), true
}

// Len returns the number of entities.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Snapshot returns copies of the entities of the given kinds (all kinds when
// none are given) in insertion order.
func (s *Scene) Snapshot(kinds ...Kind) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entity, 0, len(s.order))
	for _, id := range s.order {
		e := s.entities[id]
		if len(kinds) > 0 && !hasKind(kinds, e.Kind) {
			continue
		}
		out = append(out, e.Clone())
	}
	return out
}

// Connectables returns copies of every entity that carries connection points.
func (s *Scene) Connectables() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entity, 0, len(s.order))
	for _, id := range s.order {
		if e := s.entities[id]; e.Connectable != nil {
			out = append(out, e.Clone())
		}
	}
	return out
}

// SetPosition writes the entity's world position.
func (s *Scene) SetPosition(id string, pos mgl64.Vec3) error {
	s.mu.Lock()
	e, ok := s.entities[id]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFound(id)
	}
	e.Position = pos
	s.dirty[id] = true
	s.mu.Unlock()

	s.publish(Event{Type: EventMoved, ID: id, Position: pos})
	return nil
}

// Translate moves the entity by delta.
func (s *Scene) Translate(id string, delta mgl64.Vec3) error {
	s.mu.Lock()
	e, ok := s.entities[id]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFound(id)
	}
	e.Position = e.Position.Add(delta)
	pos := e.Position
	s.dirty[id] = true
	s.mu.Unlock()

	s.publish(Event{Type: EventMoved, ID: id, Position: pos})
	return nil
}

// SetRotation writes the entity's orientation.
func (s *Scene) SetRotation(id string, q mgl64.Quat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return errors.NewNotFound(id)
	}
	e.Rotation = q.Normalize()
	s.dirty[id] = true
	return nil
}

// Touch records at as the entity's last-moved time.
func (s *Scene) Touch(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return errors.NewNotFound(id)
	}
	e.LastMoved = at
	s.dirty[id] = true
	return nil
}

// SetBoard records the board a card rests on. Empty boardID clears it.
func (s *Scene) SetBoard(id, boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return errors.NewNotFound(id)
	}
	if boardID != "" {
		b, ok := s.entities[boardID]
		if !ok {
			return errors.NewNotFound(boardID)
		}
		if b.Kind != KindBoard {
			return errors.NewInvalidRequest(fmt.Sprintf("%s is not a board", boardID))
		}
	}
	e.BoardID = boardID
	s.dirty[id] = true
	return nil
}

// Link attaches next after prev: prev's out point to next's in point.
// Either side already holding a different entity is a conflict; a point is
// never taken over implicitly.
func (s *Scene) Link(prevID, nextID string) error {
	if prevID == nextID {
		return errors.NewInvalidRequest("cannot link an entity to itself")
	}
	s.mu.Lock()
	prev, ok := s.entities[prevID]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFound(prevID)
	}
	next, ok := s.entities[nextID]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFound(nextID)
	}
	if prev.Connectable == nil || next.Connectable == nil {
		s.mu.Unlock()
		return errors.NewInvalidRequest("both entities must be connectable")
	}
	if prev.Connectable.Next == nextID && next.Connectable.Prev == prevID {
		s.mu.Unlock()
		return nil
	}
	if prev.Connectable.Next != "" || next.Connectable.Prev != "" {
		s.mu.Unlock()
		return errors.NewConflict(fmt.Sprintf("connection point already occupied linking %s -> %s", prevID, nextID))
	}
	prev.Connectable.Next = nextID
	next.Connectable.Prev = prevID
	s.dirty[prevID] = true
	s.dirty[nextID] = true
	s.mu.Unlock()

	s.publish(Event{Type: EventLinked, ID: prevID, Other: nextID})
	return nil
}

// Unlink detaches whatever is linked to the entity on side.
func (s *Scene) Unlink(id string, side Side) error {
	s.mu.Lock()
	e, ok := s.entities[id]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFound(id)
	}
	if e.Connectable == nil {
		s.mu.Unlock()
		return nil
	}
	other := s.unlinkLocked(id, side)
	s.mu.Unlock()

	if other != "" {
		s.publish(Event{Type: EventUnlinked, ID: id, Other: other})
	}
	return nil
}

// unlinkLocked clears the link on side and the matching back-reference.
// Returns the detached neighbour's ID.
func (s *Scene) unlinkLocked(id string, side Side) string {
	e := s.entities[id]
	other := e.Connectable.Linked(side)
	if other == "" {
		return ""
	}
	e.Connectable.setLinked(side, "")
	s.dirty[id] = true
	if o, ok := s.entities[other]; ok && o.Connectable != nil && o.Connectable.Linked(side.Opposite()) == id {
		o.Connectable.setLinked(side.Opposite(), "")
		s.dirty[other] = true
	}
	return other
}

// Select records companions that move together with primary.
func (s *Scene) Select(primary string, companions ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[primary]; !ok {
		return errors.NewNotFound(primary)
	}
	list := make([]string, 0, len(companions))
	seen := map[string]bool{primary: true}
	for _, c := range companions {
		if seen[c] {
			continue
		}
		if _, ok := s.entities[c]; !ok {
			return errors.NewNotFound(c)
		}
		seen[c] = true
		list = append(list, c)
	}
	if len(list) == 0 {
		delete(s.selections, primary)
		return nil
	}
	s.selections[primary] = list
	return nil
}

// Selection returns primary followed by its companions that still exist.
func (s *Scene) Selection(primary string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []string{primary}
	for _, c := range s.selections[primary] {
		if _, ok := s.entities[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Dirty returns the IDs changed since the last ClearDirty, in insertion order,
// plus the IDs removed since then.
func (s *Scene) Dirty() (changed, removed []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if s.dirty[id] {
			changed = append(changed, id)
		}
	}
	for id := range s.removed {
		removed = append(removed, id)
	}
	return changed, removed
}

// ClearDirty forgets recorded changes.
func (s *Scene) ClearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = make(map[string]bool)
	s.removed = make(map[string]bool)
}

// Subscribe returns a feed of scene changes. Slow subscribers miss events
// rather than stalling writers. Call the returned func to unsubscribe.
func (s *Scene) Subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Scene) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}
