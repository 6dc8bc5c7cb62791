package ops

import (
	"context"
	"database/sql"
	"io"
	"log"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/hpungsan/poetrybox/internal/clock"
	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/db"
	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/scene"
	"github.com/hpungsan/poetrybox/internal/snap"
)

// MaxDragSteps bounds the number of drag updates one call replays.
const MaxDragSteps = 1000

// Session is the gesture state shared by every drag a process handles.
// A nil Session behaves like NewSession(nil).
type Session struct {
	Clock  clock.Clock
	Gate   *snap.Interaction
	Logger *log.Logger
}

// NewSession returns a session on the wall clock with a fresh gate.
// A nil logger discards.
func NewSession(logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{Clock: clock.Real{}, Gate: snap.NewInteraction(), Logger: logger}
}

// DragInput contains parameters for the Drag operation.
type DragInput struct {
	ID          string
	Translation Vec      // total move, relative to where the entity starts
	RotateDeg   float64  // optional rotation over the gesture
	Axis        *Vec     // rotation axis; defaults to the view axis (z)
	Companions  []string // entities that move along
	Steps       int      // drag updates to replay; default 1
	Settle      time.Duration
	Variant     string // overrides the configured snap variant
}

// DragOutput contains the result of the Drag operation.
type DragOutput struct {
	Snap   snap.Result    `json:"snap"`
	Moved  []scene.Entity `json:"moved"`
	Saved  bool           `json:"saved"`
	Params DragParams     `json:"params"`
}

// DragParams echoes the tuning a drag ran with.
type DragParams struct {
	Variant     snap.Variant `json:"variant"`
	MaxDistance float64      `json:"max_distance"`
}

// Drag replays a full gesture on one entity: Steps drag updates spread evenly
// over Translation (and RotateDeg), a pause of Settle, then release. Release
// runs the snap; whatever the outcome, the composition is saved.
func Drag(ctx context.Context, database *sql.DB, cfg *config.Config, sess *Session, input DragInput) (*DragOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	if err := input.Translation.validate("translation"); err != nil {
		return nil, err
	}
	if err := (Vec{input.RotateDeg}).validate("rotate_deg"); err != nil {
		return nil, err
	}
	axis := Vec{0, 0, 1}
	if input.Axis != nil {
		axis = *input.Axis
		if err := axis.validate("axis"); err != nil {
			return nil, err
		}
		if axis.Vec3().Len() == 0 {
			return nil, errors.NewInvalidRequest("axis must not be zero")
		}
	}
	steps := input.Steps
	if steps <= 0 {
		steps = 1
	}
	if steps > MaxDragSteps {
		return nil, errors.NewInvalidRequest("steps must be at most 1000")
	}
	if input.Settle < 0 {
		return nil, errors.NewInvalidRequest("settle must not be negative")
	}

	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	params, err := cfg.SnapParams()
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	if input.Variant != "" {
		v, err := snap.ParseVariant(input.Variant)
		if err != nil {
			return nil, errors.NewInvalidRequest(err.Error())
		}
		params.Variant = v
	}
	if sess == nil {
		sess = NewSession(nil)
	}

	e, err := db.GetEntity(database, id)
	if err != nil {
		return nil, err
	}
	comp := e.Composition
	s, err := db.LoadScene(database, comp)
	if err != nil {
		return nil, err
	}
	if err := s.Select(id, input.Companions...); err != nil {
		return nil, err
	}

	// The loop owns the loaded scene for the rest of the gesture.
	loop := scene.NewLoop(8)
	loopCtx, stop := context.WithCancel(ctx)
	defer stop()
	go loop.Run(loopCtx)

	ctl := snap.NewController(s, params,
		snap.WithClock(sess.Clock),
		snap.WithExecutor(loop),
		snap.WithInteraction(sess.Gate),
		snap.WithLogger(sess.Logger),
	)

	move := input.Translation.Vec3()
	for i := 1; i <= steps; i++ {
		f := float64(i) / float64(steps)
		if err := ctl.DragChanged(ctx, id, move.Mul(f)); err != nil {
			return nil, err
		}
		if input.RotateDeg != 0 {
			q := mgl64.QuatRotate(mgl64.DegToRad(input.RotateDeg*f), axis.Vec3().Normalize())
			if err := ctl.RotateChanged(ctx, id, q); err != nil {
				return nil, err
			}
		}
	}

	if input.Settle > 0 {
		select {
		case <-sess.Clock.After(input.Settle):
		case <-ctx.Done():
			return nil, errors.NewCancelled("drag")
		}
	}

	attempt, err := ctl.DragEnded(ctx, id)
	if err != nil {
		return nil, err
	}
	res, waitErr := attempt.Wait(ctx)

	// Save what the gesture did even when the snap was cut short.
	if err := db.SaveScene(database, comp, s); err != nil {
		return nil, err
	}
	if waitErr != nil {
		if errors.Is(waitErr, errors.ErrCancelled) {
			return nil, waitErr
		}
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("drag")
		}
		return nil, waitErr
	}

	out := &DragOutput{
		Snap:   res,
		Saved:  true,
		Params: DragParams{Variant: params.Variant, MaxDistance: params.MaxDistance},
	}
	for _, mid := range s.Selection(id) {
		if m, ok := s.Get(mid); ok {
			out.Moved = append(out.Moved, m)
		}
	}
	return out, nil
}
