package ops

import (
	"context"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/poetrybox/internal/clock"
	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/db"
	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/scene"
	"github.com/hpungsan/poetrybox/internal/snap"
)

func testSession() *Session {
	return &Session{
		Clock: clock.NewFake(time.Date(2024, 8, 13, 9, 0, 0, 0, time.UTC)),
		Gate:  snap.NewInteraction(),
	}
}

// TestFullWorkflow exercises a composition end to end:
// reel → pick → drag (snap into a chain) → compose → remove → compose.
func TestFullWorkflow(t *testing.T) {
	database := openTestDB(t)
	cfg := config.DefaultConfig()
	cfg.ConsumeWords = true
	sess := testSession()
	ctx := context.Background()

	// 1. Reel and two picks.
	r, err := ReelCreate(database, cfg, ReelCreateInput{Composition: "night", Words: []string{"moon", "sings"}})
	require.NoError(t, err)
	first, err := ReelPick(database, ReelPickInput{ID: r.ID})
	require.NoError(t, err)
	require.Equal(t, "moon", first.Card.Word)
	second, err := ReelPick(database, ReelPickInput{ID: r.ID})
	require.NoError(t, err)
	require.Equal(t, "sings", second.Card.Word)

	// 2. Lay "moon" out on its own, well away from the reel.
	moonOut, err := Drag(ctx, database, cfg, sess, DragInput{
		ID:          first.Card.ID,
		Translation: Vec{-0.5, 0, 0},
		Settle:      time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, snap.OutcomeRejected, moonOut.Snap.Outcome)
	moon := moonOut.Moved[0]

	// 3. Drag "sings" to 5 cm right of "moon" over a few updates; it snaps.
	sings, err := db.GetEntity(database, second.Card.ID)
	require.NoError(t, err)
	target := cardRightOf(moon, "", "sings", 0.05).Position
	dragOut, err := Drag(ctx, database, cfg, sess, DragInput{
		ID:          sings.ID,
		Translation: Vec(target.Sub(sings.Position)),
		Steps:       4,
		Settle:      time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, snap.OutcomeSnapped, dragOut.Snap.Outcome, dragOut.Snap.String())
	assert.Equal(t, moon.ID, dragOut.Snap.TargetID)
	assert.Equal(t, scene.SideOut, dragOut.Snap.TargetSide)
	assert.Equal(t, snap.VariantConnectors, dragOut.Params.Variant)
	require.NotNil(t, dragOut.Snap.Distance)
	assert.InDelta(t, 0.05, *dragOut.Snap.Distance, 1e-9)

	// The flags are clear once the drag returns.
	assert.Equal(t, snap.StateIdle, sess.Gate.State())

	// 4. The link and the landed pose are persisted.
	stored, err := db.GetEntity(database, sings.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Connectable)
	assert.Equal(t, moon.ID, stored.Connectable.Prev)
	in, _ := stored.PointWorld(scene.SideIn)
	out, _ := moon.PointWorld(scene.SideOut)
	assert.InDelta(t, 0, in.Sub(out).Len(), 1e-9)

	// 5. Compose reads the chain as one line.
	poem, err := Compose(database, ComposeInput{Composition: "night", Format: "text"})
	require.NoError(t, err)
	require.Len(t, poem.Lines, 1)
	assert.Equal(t, "moon sings", poem.Lines[0].Text)
	assert.Equal(t, "moon sings\n", poem.Poem)

	// 6. Remove "moon"; "sings" is detached and reads alone.
	rm, err := EntityRemove(database, EntityRemoveInput{ID: moon.ID})
	require.NoError(t, err)
	assert.Contains(t, rm.Detached, sings.ID)

	poem, err = Compose(database, ComposeInput{Composition: "night"})
	require.NoError(t, err)
	assert.Equal(t, "# night\n\nsings\n", poem.Poem)

	_, err = db.GetEntity(database, moon.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestDrag_BoundsSnapOntoBoard(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	board, err := BoardSpawn(database, BoardSpawnInput{Composition: "wall", Position: &Vec{0, 1, -0.6}})
	require.NoError(t, err)
	assert.Equal(t, mgl64.Vec3{0.3, 0.2, 0.005}, board.Board.Extents)

	// Released 0.2 in front of the board face: squared distance 0.04.
	card := scene.NewCard("01CARD", "wall", "sea", mgl64.Vec3{0, 1, -0.2})
	seed(t, database, "wall", card)

	out, err := Drag(ctx, database, nil, testSession(), DragInput{
		ID:          card.ID,
		Translation: Vec{0, 0, -0.195},
		Settle:      time.Millisecond,
		Variant:     "bounds",
	})
	require.NoError(t, err)
	require.Equal(t, snap.OutcomeSnapped, out.Snap.Outcome, out.Snap.String())
	assert.Equal(t, board.Board.ID, out.Snap.TargetID)
	assert.InDelta(t, -0.595, out.Moved[0].Position[2], 1e-9)

	stored, err := db.GetEntity(database, card.ID)
	require.NoError(t, err)
	assert.Equal(t, board.Board.ID, stored.BoardID)
	assert.InDelta(t, -0.595, stored.Position[2], 1e-9)

	// Compose can be limited to the board.
	poem, err := Compose(database, ComposeInput{Composition: "wall", BoardID: board.Board.ID, Format: "text"})
	require.NoError(t, err)
	assert.Equal(t, "sea\n", poem.Poem)
}

func TestDrag_RejectedStaysWhereReleased(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	_, err := BoardSpawn(database, BoardSpawnInput{Composition: "wall", Position: &Vec{0, 1, -0.6}})
	require.NoError(t, err)
	card := scene.NewCard("01FAR", "wall", "far", mgl64.Vec3{0, 1, 1})
	seed(t, database, "wall", card)

	out, err := Drag(ctx, database, nil, testSession(), DragInput{
		ID:          card.ID,
		Translation: Vec{0.1, 0, 0},
		Settle:      time.Millisecond,
		Variant:     "bounds",
	})
	require.NoError(t, err)
	assert.Equal(t, snap.OutcomeRejected, out.Snap.Outcome)
	assert.Equal(t, errors.ErrOutOfRange, out.Snap.Reason)

	stored, err := db.GetEntity(database, card.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, stored.Position[0], 1e-12)
	assert.Empty(t, stored.BoardID)
}

func TestDrag_AwayBreaksLine(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	_, moon, sings := seedChain(t, database, "night")

	out, err := Drag(ctx, database, nil, testSession(), DragInput{
		ID:          sings.ID,
		Translation: Vec{0, -0.3, 0},
		Settle:      time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, snap.OutcomeRejected, out.Snap.Outcome)

	stored, err := db.GetEntity(database, sings.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Connectable.Prev)

	poem, err := Compose(database, ComposeInput{Composition: "night", Format: "text"})
	require.NoError(t, err)
	assert.Equal(t, "moon\nsings\n", poem.Poem)

	// moon's out point is free again.
	third := cardRightOf(moon, "01SEA", "sea", 0.1)
	seed(t, database, "night", third)
	out, err = Drag(ctx, database, nil, testSession(), DragInput{
		ID:          third.ID,
		Translation: Vec{-0.08, 0, 0},
		Settle:      time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, snap.OutcomeSnapped, out.Snap.Outcome, "reason %v", out.Snap.Reason)
	assert.Equal(t, moon.ID, out.Snap.TargetID)
}

func TestDrag_StillMovingDefers(t *testing.T) {
	database := openTestDB(t)
	card := scene.NewCard("01MOVE", "default", "wind", mgl64.Vec3{})
	seed(t, database, "default", card)
	sess := testSession()

	// No settle on a fake clock: release lands on the same instant as the last move.
	out, err := Drag(context.Background(), database, nil, sess, DragInput{ID: card.ID, Translation: Vec{0, 0.2, 0}})
	require.NoError(t, err)
	assert.Equal(t, snap.OutcomeDeferred, out.Snap.Outcome)
	assert.Equal(t, snap.StateSnapPending, sess.Gate.State())

	stored, err := db.GetEntity(database, card.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, stored.Position[1], 1e-12)
}

func TestDrag_CompanionsFollow(t *testing.T) {
	database := openTestDB(t)
	a := scene.NewCard("01A", "default", "a", mgl64.Vec3{0, 0, 0})
	b := scene.NewCard("01B", "default", "b", mgl64.Vec3{1, 0, 0})
	seed(t, database, "default", a, b)

	out, err := Drag(context.Background(), database, nil, testSession(), DragInput{
		ID:          a.ID,
		Translation: Vec{0, 0.5, 0},
		Companions:  []string{b.ID},
		Steps:       3,
		Settle:      time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, out.Moved, 2)

	stored, err := db.GetEntity(database, b.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, stored.Position[1], 1e-12)
	assert.InDelta(t, 1, stored.Position[0], 1e-12)
}

func TestDrag_Rotate(t *testing.T) {
	database := openTestDB(t)
	card := scene.NewCard("01ROT", "default", "turn", mgl64.Vec3{})
	seed(t, database, "default", card)

	_, err := Drag(context.Background(), database, nil, testSession(), DragInput{
		ID:        card.ID,
		RotateDeg: 90,
		Steps:     2,
		Settle:    time.Millisecond,
	})
	require.NoError(t, err)

	stored, err := db.GetEntity(database, card.ID)
	require.NoError(t, err)
	want := mgl64.QuatRotate(mgl64.DegToRad(90), mgl64.Vec3{0, 0, 1})
	assert.True(t, stored.Orientation().ApproxEqualThreshold(want, 1e-9), "orientation %v", stored.Orientation())
}

func TestDrag_Validation(t *testing.T) {
	database := openTestDB(t)
	card := scene.NewCard("01V", "default", "v", mgl64.Vec3{})
	seed(t, database, "default", card)
	ctx := context.Background()

	tests := []struct {
		name  string
		input DragInput
		code  errors.ErrorCode
	}{
		{"missing id", DragInput{}, errors.ErrInvalidRequest},
		{"unknown id", DragInput{ID: "nope"}, errors.ErrNotFound},
		{"zero axis", DragInput{ID: card.ID, RotateDeg: 10, Axis: &Vec{}}, errors.ErrInvalidRequest},
		{"too many steps", DragInput{ID: card.ID, Steps: MaxDragSteps + 1}, errors.ErrInvalidRequest},
		{"bad variant", DragInput{ID: card.ID, Variant: "glue"}, errors.ErrInvalidRequest},
		{"unknown companion", DragInput{ID: card.ID, Companions: []string{"ghost"}}, errors.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Drag(ctx, database, nil, testSession(), tc.input)
			assert.True(t, errors.Is(err, tc.code), "error = %v, want %s", err, tc.code)
		})
	}
}

func TestCompose_RowsAndOrder(t *testing.T) {
	database := openTestDB(t)

	// Two chains on the top row (right one added first), one lower row.
	right := scene.NewCard("01R", "p", "right", mgl64.Vec3{0.5, 1.0, 0})
	left := scene.NewCard("01L", "p", "left", mgl64.Vec3{-0.5, 1.01, 0})
	low := scene.NewCard("01LOW", "p", "low", mgl64.Vec3{0, 0.8, 0})
	seed(t, database, "p", right, low, left)

	out, err := Compose(database, ComposeInput{Composition: "p"})
	require.NoError(t, err)
	require.Len(t, out.Lines, 3)
	assert.Equal(t, "left", out.Lines[0].Text)
	assert.Equal(t, "right", out.Lines[1].Text)
	assert.Equal(t, "low", out.Lines[2].Text)
	assert.Equal(t, 0, out.Lines[1].Row)
	assert.Equal(t, 1, out.Lines[2].Row)
	assert.Equal(t, "# p\n\nleft  \nright  \nlow\n", out.Poem)

	_, err = Compose(database, ComposeInput{Composition: "p", Format: "html"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	_, err = Compose(database, ComposeInput{Composition: "p", BoardID: "01R"})
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	empty, err := Compose(database, ComposeInput{Composition: "nothing"})
	require.NoError(t, err)
	assert.Empty(t, empty.Lines)
	assert.Equal(t, "# nothing\n\n", empty.Poem)
}

func TestEntityList(t *testing.T) {
	database := openTestDB(t)
	_, err := BoardSpawn(database, BoardSpawnInput{})
	require.NoError(t, err)
	seed(t, database, "default", scene.NewCard("01C", "default", "c", mgl64.Vec3{}))

	all, err := EntityList(database, EntityListInput{})
	require.NoError(t, err)
	assert.Equal(t, "default", all.Composition)
	assert.Len(t, all.Entities, 2)
	assert.Equal(t, int64(2), all.Revision)

	cards, err := EntityList(database, EntityListInput{Kind: "CARD"})
	require.NoError(t, err)
	require.Len(t, cards.Entities, 1)
	assert.Equal(t, "01C", cards.Entities[0].ID)

	_, err = EntityList(database, EntityListInput{Kind: "reel"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	none, err := EntityList(database, EntityListInput{Composition: "empty"})
	require.NoError(t, err)
	assert.NotNil(t, none.Entities)
	assert.Empty(t, none.Entities)
}

func TestBoardSpawn_Validation(t *testing.T) {
	database := openTestDB(t)
	_, err := BoardSpawn(database, BoardSpawnInput{Size: &Vec{0.5, 0, 0.01}})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestEntityRemove_Errors(t *testing.T) {
	database := openTestDB(t)
	_, err := EntityRemove(database, EntityRemoveInput{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	_, err = EntityRemove(database, EntityRemoveInput{ID: "missing"})
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
