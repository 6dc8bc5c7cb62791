// Package reel models the word reel: a carousel of words on a circle that the
// user spins to bring a word to the front and picks it off as a card.
package reel

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/hpungsan/poetrybox/internal/errors"
)

const (
	// AnglePerCard is the spacing between neighbouring words (30 degrees).
	AnglePerCard = math.Pi / 6
	// Radius of the reel circle in scene units.
	Radius = 0.15
	// DragPerRadian converts a vertical drag distance into reel rotation.
	DragPerRadian = 100.0
)

// Card is a word slot on the reel. Angle is fixed when the reel is built;
// removing a word leaves the remaining slots where they were.
type Card struct {
	Word  string  `json:"word"`
	Angle float64 `json:"angle"`
}

// Position returns the slot's offset from the reel center: y toward the
// viewer, z up.
func (c Card) Position() mgl64.Vec3 {
	return mgl64.Vec3{0, Radius * math.Sin(c.Angle), Radius * math.Cos(c.Angle)}
}

// Reel is a word carousel.
type Reel struct {
	ID           string     `json:"id"`
	Composition  string     `json:"composition"`
	Title        string     `json:"title"`
	Cards        []Card     `json:"cards"`
	Rotation     float64    `json:"rotation"`
	ReplaceWords bool       `json:"replace_words"`
	Position     mgl64.Vec3 `json:"position"`
	CreatedAt    int64      `json:"created_at"`
	UpdatedAt    int64      `json:"updated_at"`
}

// New lays words out around the circle at AnglePerCard spacing. Long lists
// wrap past a full turn and overlap; visibility decides which show.
// When replace is true a picked word stays on the reel.
func New(id, composition, title string, words []string, replace bool) *Reel {
	r := &Reel{
		ID:           id,
		Composition:  composition,
		Title:        title,
		ReplaceWords: replace,
		Cards:        make([]Card, len(words)),
	}
	for i, w := range words {
		r.Cards[i] = Card{Word: w, Angle: AnglePerCard * float64(i)}
	}
	return r
}

// Spin turns the reel by a drag distance and returns the new rotation.
func (r *Reel) Spin(drag float64) float64 {
	r.Rotation += drag / DragPerRadian
	return r.Rotation
}

// IsVisible reports whether c lies within a quarter turn either side of the
// front of the reel.
func (r *Reel) IsVisible(c Card) bool {
	lo := r.Rotation - math.Pi/2
	hi := r.Rotation + math.Pi/2
	return c.Angle >= lo && c.Angle <= hi
}

// Visible returns the cards currently facing the viewer.
func (r *Reel) Visible() []Card {
	var out []Card
	for _, c := range r.Cards {
		if r.IsVisible(c) {
			out = append(out, c)
		}
	}
	return out
}

// Facing is the rotation applied to visible cards so they face the viewer
// while the reel turns about x.
func (r *Reel) Facing() mgl64.Quat {
	return mgl64.QuatRotate(-r.Rotation, mgl64.Vec3{1, 0, 0})
}

// Middle returns the index of the card closest to the front.
// Ties keep the earlier card.
func (r *Reel) Middle() (int, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range r.Cards {
		if d := math.Abs(c.Angle - r.Rotation); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, best >= 0
}

// Pick takes the middle word. Unless ReplaceWords is set the word leaves the reel.
func (r *Reel) Pick() (string, error) {
	i, ok := r.Middle()
	if !ok {
		return "", errors.NewInvalidRequest("reel is empty")
	}
	word := r.Cards[i].Word
	if !r.ReplaceWords {
		r.Cards = append(r.Cards[:i], r.Cards[i+1:]...)
	}
	return word, nil
}

// CardWorld returns where card c sits in the scene, given the reel's position.
func (r *Reel) CardWorld(c Card) mgl64.Vec3 {
	spin := mgl64.QuatRotate(r.Rotation, mgl64.Vec3{1, 0, 0})
	return r.Position.Add(spin.Rotate(c.Position()))
}
