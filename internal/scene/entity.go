package scene

import (
	"time"
	"unicode/utf8"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/hpungsan/poetrybox/internal/geom"
)

// Kind distinguishes the entity types that live in a composition.
type Kind string

const (
	KindCard  Kind = "card"
	KindBoard Kind = "board"
)

// Side labels a connection point. A card's in point receives the previous word,
// its out point leads to the next word.
type Side string

const (
	SideIn  Side = "in"
	SideOut Side = "out"
)

// Opposite returns the side a point of this side attaches to.
func (s Side) Opposite() Side {
	if s == SideIn {
		return SideOut
	}
	return SideIn
}

// Card sizing, in scene units (meters). Text is generated at 0.05 with a
// 0.01 extrusion; the card box adds padding around the text extents.
const (
	CardCharWidth  = 0.03
	CardTextHeight = 0.05
	CardTextDepth  = 0.01
	CardPadX       = 0.05
	CardPadY       = 0.02
	CardPadZ       = -0.005
)

// ConnectionPoint is an attachment position relative to its owning entity's center.
type ConnectionPoint struct {
	Side   Side       `json:"side"`
	Offset mgl64.Vec3 `json:"offset"`
	// Normal is the outward direction. Zero means the normalized Offset.
	Normal mgl64.Vec3 `json:"normal,omitempty"`
}

// Outward returns the unit outward direction of the point.
func (p ConnectionPoint) Outward() mgl64.Vec3 {
	if p.Normal != (mgl64.Vec3{}) {
		return geom.Normalize(p.Normal)
	}
	return geom.Normalize(p.Offset)
}

// Connectable is the optional capability of entities that link into word chains.
type Connectable struct {
	Points []ConnectionPoint `json:"points"`
	Prev   string            `json:"prev,omitempty"`
	Next   string            `json:"next,omitempty"`
}

// Point returns the first connection point on the given side.
func (c *Connectable) Point(side Side) (ConnectionPoint, bool) {
	for _, p := range c.Points {
		if p.Side == side {
			return p, true
		}
	}
	return ConnectionPoint{}, false
}

// Linked returns the ID attached on the given side, or "".
func (c *Connectable) Linked(side Side) string {
	if side == SideIn {
		return c.Prev
	}
	return c.Next
}

func (c *Connectable) setLinked(side Side, id string) {
	if side == SideIn {
		c.Prev = id
	} else {
		c.Next = id
	}
}

func (c *Connectable) clone() *Connectable {
	if c == nil {
		return nil
	}
	out := *c
	out.Points = append([]ConnectionPoint(nil), c.Points...)
	return &out
}

// Entity is a positioned object in a composition: a word card or a board.
type Entity struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Composition string     `json:"composition"`
	Word        string     `json:"word,omitempty"`
	Position    mgl64.Vec3 `json:"position"`
	// Rotation is the entity's orientation. The zero quaternion means identity.
	Rotation mgl64.Quat `json:"rotation"`
	Extents  mgl64.Vec3 `json:"extents"`
	// BoardID is the board a card last snapped onto.
	BoardID     string       `json:"board_id,omitempty"`
	Connectable *Connectable `json:"connectable,omitempty"`
	LastMoved   time.Time    `json:"last_moved"`
	CreatedAt   int64        `json:"created_at"`
}

// Orientation returns Rotation, or identity when Rotation is unset.
func (e Entity) Orientation() mgl64.Quat {
	if e.Rotation == (mgl64.Quat{}) {
		return mgl64.QuatIdent()
	}
	return e.Rotation.Normalize()
}

// Bounds returns the entity's world-space bounding box. Rotation is ignored:
// boards and cards are flat and only ever turned to face the viewer.
func (e Entity) Bounds() geom.AABB {
	return geom.BoxAround(e.Position, e.Extents)
}

// PointWorld returns the world position of the entity's connection point on side.
func (e Entity) PointWorld(side Side) (mgl64.Vec3, bool) {
	if e.Connectable == nil {
		return mgl64.Vec3{}, false
	}
	p, ok := e.Connectable.Point(side)
	if !ok {
		return mgl64.Vec3{}, false
	}
	return e.Position.Add(e.Orientation().Rotate(p.Offset)), true
}

// OutwardWorld returns the world-space outward direction of the point on side.
func (e Entity) OutwardWorld(side Side) (mgl64.Vec3, bool) {
	if e.Connectable == nil {
		return mgl64.Vec3{}, false
	}
	p, ok := e.Connectable.Point(side)
	if !ok {
		return mgl64.Vec3{}, false
	}
	return geom.Normalize(e.Orientation().Rotate(p.Outward())), true
}

// Clone returns a deep copy.
func (e Entity) Clone() Entity {
	e.Connectable = e.Connectable.clone()
	return e
}

// CardExtents sizes a card for word.
func CardExtents(word string) mgl64.Vec3 {
	n := utf8.RuneCountInString(word)
	width := float64(n)*CardCharWidth + CardPadX
	height := CardTextHeight + CardPadY
	depth := CardTextDepth + CardPadZ
	return mgl64.Vec3{width / 2, height / 2, depth / 2}
}

// CardPoints returns the in point on the left edge and the out point on the right edge.
func CardPoints(extents mgl64.Vec3) []ConnectionPoint {
	return []ConnectionPoint{
		{Side: SideIn, Offset: mgl64.Vec3{-extents[0], 0, 0}},
		{Side: SideOut, Offset: mgl64.Vec3{extents[0], 0, 0}},
	}
}

// NewCard builds a connectable word card centered at pos.
func NewCard(id, composition, word string, pos mgl64.Vec3) Entity {
	ext := CardExtents(word)
	return Entity{
		ID:          id,
		Kind:        KindCard,
		Composition: composition,
		Word:        word,
		Position:    pos,
		Extents:     ext,
		Connectable: &Connectable{Points: CardPoints(ext)},
	}
}

// NewBoard builds a board of the given full size centered at pos.
func NewBoard(id, composition string, pos, size mgl64.Vec3) Entity {
	return Entity{
		ID:          id,
		Kind:        KindBoard,
		Composition: composition,
		Position:    pos,
		Extents:     geom.Abs(size).Mul(0.5),
	}
}
