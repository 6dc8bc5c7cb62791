package snap

import "sync"

// State is the interaction state derived from the gesture flags.
type State int

const (
	StateIdle State = iota
	StateDragging
	StateRotating
	StateSnapPending
	StateSnapping
)

func (s State) String() string {
	switch s {
	case StateDragging:
		return "dragging"
	case StateRotating:
		return "rotating"
	case StateSnapPending:
		return "snap_pending"
	case StateSnapping:
		return "snapping"
	default:
		return "idle"
	}
}

// Flags is a point-in-time view of the gesture flags.
type Flags struct {
	Dragging bool `json:"dragging"`
	Rotating bool `json:"rotating"`
	Snapping bool `json:"snapping"`
}

// Interaction guards the gesture flags. At most one snap may be in flight;
// every transition happens under the lock.
type Interaction struct {
	mu       sync.Mutex
	dragging bool
	rotating bool
	snapping bool
	pending  bool
}

// NewInteraction returns an idle interaction.
func NewInteraction() *Interaction {
	return &Interaction{}
}

// BeginDrag marks a drag gesture as active.
func (i *Interaction) BeginDrag() {
	i.mu.Lock()
	i.dragging = true
	i.pending = false
	i.mu.Unlock()
}

// BeginRotate marks a rotate gesture as active.
func (i *Interaction) BeginRotate() {
	i.mu.Lock()
	i.rotating = true
	i.pending = false
	i.mu.Unlock()
}

// EndGesture clears the gesture flags and leaves a snap pending.
func (i *Interaction) EndGesture() {
	i.mu.Lock()
	i.dragging = false
	i.rotating = false
	i.pending = true
	i.mu.Unlock()
}

// tryBeginSnap claims the snap slot. It fails without touching any flag when
// a snap is already running.
func (i *Interaction) tryBeginSnap() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.snapping {
		return false
	}
	i.snapping = true
	i.pending = false
	return true
}

// Reset clears every flag.
func (i *Interaction) Reset() {
	i.mu.Lock()
	i.dragging = false
	i.rotating = false
	i.snapping = false
	i.pending = false
	i.mu.Unlock()
}

// Flags returns the current flags.
func (i *Interaction) Flags() Flags {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Flags{Dragging: i.dragging, Rotating: i.rotating, Snapping: i.snapping}
}

// State returns the current state.
func (i *Interaction) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch {
	case i.snapping:
		return StateSnapping
	case i.dragging:
		return StateDragging
	case i.rotating:
		return StateRotating
	case i.pending:
		return StateSnapPending
	default:
		return StateIdle
	}
}
