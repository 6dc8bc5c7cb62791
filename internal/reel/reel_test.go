package reel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/poetrybox/internal/errors"
)

func words(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a' + i))
	}
	return out
}

func TestNew_Layout(t *testing.T) {
	r := New("r1", "default", "letters", words(4), true)
	require.Len(t, r.Cards, 4)

	assert.InDelta(t, 0, r.Cards[0].Angle, 1e-12)
	assert.InDelta(t, math.Pi/6, r.Cards[1].Angle, 1e-12)

	p := r.Cards[0].Position()
	assert.InDelta(t, 0, p[1], 1e-12)
	assert.InDelta(t, Radius, p[2], 1e-12)

	p = r.Cards[3].Position()
	assert.InDelta(t, Radius, p[1], 1e-12, "a quarter turn points toward the viewer")
	assert.InDelta(t, 0, p[2], 1e-12)
}

func TestVisible(t *testing.T) {
	r := New("r1", "default", "letters", words(12), true)

	var front []string
	for _, c := range r.Visible() {
		front = append(front, c.Word)
	}
	assert.Subset(t, front, []string{"a", "b", "c"})
	assert.NotContains(t, front, "e")
	assert.NotContains(t, front, "l")

	r.Spin(math.Pi * DragPerRadian)
	vis := r.Visible()
	require.NotEmpty(t, vis)
	for _, c := range vis {
		assert.GreaterOrEqual(t, c.Angle, math.Pi/2-1e-9)
		assert.LessOrEqual(t, c.Angle, 3*math.Pi/2+1e-9)
	}
}

func TestSpin(t *testing.T) {
	r := New("r1", "default", "letters", words(3), true)
	assert.InDelta(t, 0.5, r.Spin(50), 1e-12)
	assert.InDelta(t, 0.25, r.Spin(-25), 1e-12)
}

func TestPick(t *testing.T) {
	t.Run("replace keeps word", func(t *testing.T) {
		r := New("r1", "default", "letters", words(3), true)
		r.Spin(AnglePerCard * DragPerRadian)
		w, err := r.Pick()
		require.NoError(t, err)
		assert.Equal(t, "b", w)
		assert.Len(t, r.Cards, 3)
	})

	t.Run("consume removes word", func(t *testing.T) {
		r := New("r1", "default", "letters", words(3), false)
		r.Spin(AnglePerCard * DragPerRadian)
		w, err := r.Pick()
		require.NoError(t, err)
		assert.Equal(t, "b", w)
		require.Len(t, r.Cards, 2)

		// Slots keep their angles: back at the start a is in front again.
		r.Spin(-AnglePerCard * DragPerRadian)
		w, err = r.Pick()
		require.NoError(t, err)
		assert.Equal(t, "a", w)
	})

	t.Run("empty", func(t *testing.T) {
		r := New("r1", "default", "none", nil, false)
		_, err := r.Pick()
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	})
}

func TestCardWorld(t *testing.T) {
	r := New("r1", "default", "letters", words(4), true)
	r.Position[0] = 1
	// Spinning by one slot brings b to the top.
	r.Spin(AnglePerCard * DragPerRadian)
	p := r.CardWorld(r.Cards[1])
	assert.InDelta(t, 1, p[0], 1e-9)
	assert.InDelta(t, 0, math.Abs(p[1]), 1e-9)
	assert.InDelta(t, Radius, math.Abs(p[2]), 1e-9)
}
