// Package snap pulls a released entity onto the nearest board or word chain.
//
// A drag ends, the Controller checks that the entity has come to rest, looks up
// the nearest target, applies the admissibility rules and, when they pass,
// eases the entity (and any companions selected with it) into place. Only one
// snap runs at a time; a second trigger while one is in flight is rejected.
package snap

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/hpungsan/poetrybox/internal/clock"
	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/scene"
)

// Outcome is how a snap attempt ended.
type Outcome string

const (
	OutcomeSnapped  Outcome = "snapped"
	OutcomeRejected Outcome = "rejected"
	// OutcomeDeferred means the entity was still moving; nothing changed.
	OutcomeDeferred Outcome = "deferred"
)

// Result describes a finished attempt.
type Result struct {
	Outcome    Outcome          `json:"outcome"`
	EntityID   string           `json:"entity_id"`
	Reason     errors.ErrorCode `json:"reason,omitempty"`
	Message    string           `json:"message,omitempty"`
	TargetID   string           `json:"target_id,omitempty"`
	TargetSide scene.Side       `json:"target_side,omitempty"`
	// Distance is omitted when no candidate was found.
	Distance *float64   `json:"distance,omitempty"`
	From     mgl64.Vec3 `json:"from"`
	To       mgl64.Vec3 `json:"to"`
	Steps    int        `json:"steps"`
	Linked   int        `json:"links_changed"`

	rejection *errors.PoetryError
}

// Err returns the rejection as an error, or nil.
func (r Result) Err() error {
	if r.rejection == nil {
		return nil
	}
	return r.rejection
}

// DragInfo names the entity released by a gesture and the companions that
// move with it.
type DragInfo struct {
	EntityID   string
	Companions []string
}

// Attempt is a snap in progress.
type Attempt struct {
	done   chan struct{}
	result Result
	err    error
}

func finished(r Result, err error) *Attempt {
	a := &Attempt{done: make(chan struct{}), result: r, err: err}
	close(a.done)
	return a
}

// Done is closed when the attempt has finished.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Wait blocks until the attempt finishes or ctx is done.
func (a *Attempt) Wait(ctx context.Context) (Result, error) {
	select {
	case <-a.done:
		return a.result, a.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time source. Defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithExecutor sets where scene writes run. Defaults to scene.Inline.
func WithExecutor(e scene.Executor) Option {
	return func(ctl *Controller) { ctl.exec = e }
}

// WithInteraction shares a gesture gate between controllers.
func WithInteraction(i *Interaction) Option {
	return func(ctl *Controller) { ctl.gate = i }
}

// WithLogger sets the logger. A nil logger discards.
func WithLogger(l *log.Logger) Option {
	return func(ctl *Controller) { ctl.log = l }
}

// WithRefresh replaces the post-snap connectivity pass of the connectors variant.
func WithRefresh(fn func(*scene.Scene) int) Option {
	return func(ctl *Controller) { ctl.refresh = fn }
}

// Controller turns drag gestures into scene moves and snaps.
type Controller struct {
	scene   *scene.Scene
	params  Params
	clock   clock.Clock
	exec    scene.Executor
	gate    *Interaction
	log     *log.Logger
	refresh func(*scene.Scene) int

	mu        sync.Mutex
	dragStart map[string]mgl64.Vec3
	rotStart  map[string]mgl64.Quat
}

// NewController returns a controller for sc.
func NewController(sc *scene.Scene, params Params, opts ...Option) *Controller {
	c := &Controller{
		scene:     sc,
		params:    params,
		clock:     clock.Real{},
		exec:      scene.Inline{},
		gate:      NewInteraction(),
		refresh:   func(s *scene.Scene) int { return scene.RefreshConnections(s, scene.LinkTolerance) },
		dragStart: make(map[string]mgl64.Vec3),
		rotStart:  make(map[string]mgl64.Quat),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = log.New(io.Discard, "", 0)
	}
	return c
}

// Interaction returns the controller's gesture gate.
func (c *Controller) Interaction() *Interaction { return c.gate }

// Params returns the controller's tuning.
func (c *Controller) Params() Params { return c.params }

// DragChanged applies a drag update. translation is measured from where the
// entity was when the gesture started; companions follow by the same delta.
func (c *Controller) DragChanged(ctx context.Context, id string, translation mgl64.Vec3) error {
	cur, ok := c.scene.Get(id)
	if !ok {
		return errors.NewNotFound(id)
	}
	c.gate.BeginDrag()

	c.mu.Lock()
	start, ok := c.dragStart[id]
	if !ok {
		start = cur.Position
		c.dragStart[id] = start
	}
	c.mu.Unlock()

	delta := start.Add(translation).Sub(cur.Position)
	now := c.clock.Now()
	ids := c.scene.Selection(id)

	var werr error
	err := c.exec.Do(ctx, func() {
		for _, mid := range ids {
			if err := c.scene.Translate(mid, delta); err != nil {
				werr = err
				return
			}
			if err := c.scene.Touch(mid, now); err != nil {
				werr = err
				return
			}
		}
	})
	if err != nil {
		return errors.NewCancelled("drag")
	}
	return werr
}

// RotateChanged applies a rotate update. rotation is relative to the
// orientation the entity had when the gesture started.
func (c *Controller) RotateChanged(ctx context.Context, id string, rotation mgl64.Quat) error {
	cur, ok := c.scene.Get(id)
	if !ok {
		return errors.NewNotFound(id)
	}
	c.gate.BeginRotate()

	c.mu.Lock()
	start, ok := c.rotStart[id]
	if !ok {
		start = cur.Orientation()
		c.rotStart[id] = start
	}
	c.mu.Unlock()

	q := rotation.Mul(start)
	now := c.clock.Now()

	var werr error
	err := c.exec.Do(ctx, func() {
		if werr = c.scene.SetRotation(id, q); werr != nil {
			return
		}
		werr = c.scene.Touch(id, now)
	})
	if err != nil {
		return errors.NewCancelled("rotate")
	}
	return werr
}

// DragEnded closes the gesture on id and triggers a snap for its selection.
func (c *Controller) DragEnded(ctx context.Context, id string) (*Attempt, error) {
	c.gate.EndGesture()
	c.mu.Lock()
	delete(c.dragStart, id)
	delete(c.rotStart, id)
	c.mu.Unlock()

	// Neighbours left behind by the gesture let go before the snap looks
	// for targets.
	sel := c.scene.Selection(id)
	var dropped int
	if err := c.exec.Do(ctx, func() { dropped = scene.DetachMoved(c.scene, sel, scene.LinkTolerance) }); err != nil {
		return nil, errors.NewCancelled("drag")
	}
	if dropped > 0 {
		c.log.Printf("drag %s detached %d links", id, dropped)
	}
	return c.Trigger(ctx, DragInfo{EntityID: id, Companions: sel[1:]})
}

// Snap triggers an attempt and waits for it.
func (c *Controller) Snap(ctx context.Context, info DragInfo) (Result, error) {
	a, err := c.Trigger(ctx, info)
	if err != nil {
		return Result{}, err
	}
	return a.Wait(ctx)
}

// Trigger evaluates a snap for info against the current scene and, when it is
// admitted, starts the animation in the background. Rejections and deferrals
// come back as already finished attempts.
func (c *Controller) Trigger(ctx context.Context, info DragInfo) (*Attempt, error) {
	primary, ok := c.scene.Get(info.EntityID)
	if !ok {
		return nil, errors.NewNotFound(info.EntityID)
	}

	if elapsed := c.clock.Now().Sub(primary.LastMoved); elapsed <= c.params.Epsilon {
		c.log.Printf("snap %s deferred: moved %v ago", primary.ID, elapsed)
		return finished(Result{Outcome: OutcomeDeferred, EntityID: primary.ID, From: primary.Position, To: primary.Position}, nil), nil
	}

	if !c.gate.tryBeginSnap() {
		rej := errors.NewSnapRejected(errors.ErrSnapInFlight, "another snap is in progress", nil)
		return finished(c.rejected(primary, noMatch(), rej), nil), nil
	}

	companions := c.companions(primary.ID, info.Companions)
	m, moving, target := c.query(primary, companions)
	if rej := Admit(c.params, m, moving, target); rej != nil {
		c.gate.Reset()
		c.log.Printf("snap %s rejected: %s", primary.ID, rej.Message)
		return finished(c.rejected(primary, m, rej), nil), nil
	}

	delta := m.Point.Sub(m.Reference)
	res := Result{
		Outcome:    OutcomeSnapped,
		EntityID:   primary.ID,
		TargetID:   m.TargetID,
		TargetSide: m.TargetSide,
		Distance:   finite(m.Distance),
		From:       primary.Position,
		To:         primary.Position.Add(delta),
	}

	a := &Attempt{done: make(chan struct{})}
	go func() {
		defer close(a.done)
		defer c.gate.Reset()
		a.result, a.err = c.animate(ctx, res, companions, target)
	}()
	return a, nil
}

func (c *Controller) animate(ctx context.Context, res Result, companions []string, target scene.Entity) (Result, error) {
	anim := Animator{
		Clock:        c.clock,
		Duration:     c.params.Duration,
		Interval:     c.params.FrameInterval,
		ForceLanding: c.params.ForceLanding,
	}
	steps, err := anim.Run(ctx, res.From, res.To, func(ctx context.Context, pos, delta mgl64.Vec3) error {
		var werr error
		err := c.exec.Do(ctx, func() {
			if werr = c.scene.SetPosition(res.EntityID, pos); werr != nil {
				return
			}
			for _, id := range companions {
				if werr = c.scene.Translate(id, delta); werr != nil {
					return
				}
			}
		})
		if err != nil {
			return err
		}
		return werr
	})
	res.Steps = steps
	if err != nil {
		c.log.Printf("snap %s interrupted after %d steps: %v", res.EntityID, steps, err)
		var pErr *errors.PoetryError
		if stderrors.As(err, &pErr) {
			return res, err
		}
		return res, errors.NewCancelled("snap")
	}

	var herr error
	switch c.params.Variant {
	case VariantBounds:
		err = c.exec.Do(ctx, func() { herr = c.scene.SetBoard(res.EntityID, target.ID) })
	case VariantConnectors:
		err = c.exec.Do(ctx, func() { res.Linked = c.refresh(c.scene) })
	}
	if err != nil {
		return res, errors.NewCancelled("snap")
	}
	if herr != nil {
		return res, herr
	}
	c.log.Printf("snap %s -> %s in %d steps", res.EntityID, res.TargetID, steps)
	return res, nil
}

// query runs the variant's nearest-target search and resolves the entities on
// both ends of the match.
func (c *Controller) query(primary scene.Entity, companions []string) (Match, scene.Entity, scene.Entity) {
	var m Match
	moving := primary
	switch c.params.Variant {
	case VariantBounds:
		boards := c.scene.Snapshot(scene.KindBoard)
		members := map[string]bool{primary.ID: true}
		for _, id := range companions {
			members[id] = true
		}
		candidates := boards[:0]
		for _, b := range boards {
			if !members[b.ID] {
				candidates = append(candidates, b)
			}
		}
		m = NearestBoard(primary, candidates)
	default:
		selection := []scene.Entity{primary}
		for _, id := range companions {
			if e, ok := c.scene.Get(id); ok {
				selection = append(selection, e)
			}
		}
		m = NearestConnector(selection, c.scene.Connectables())
		if m.Found && m.MovingID != primary.ID {
			moving, _ = c.scene.Get(m.MovingID)
		}
	}
	var target scene.Entity
	if m.Found {
		target, _ = c.scene.Get(m.TargetID)
	}
	return m, moving, target
}

func (c *Controller) companions(primary string, ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := map[string]bool{primary: true}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if _, ok := c.scene.Get(id); !ok {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (c *Controller) rejected(primary scene.Entity, m Match, rej *errors.PoetryError) Result {
	return Result{
		Outcome:    OutcomeRejected,
		EntityID:   primary.ID,
		Reason:     rej.Code,
		Message:    rej.Message,
		TargetID:   m.TargetID,
		TargetSide: m.TargetSide,
		Distance:   finite(m.Distance),
		From:       primary.Position,
		To:         primary.Position,
		rejection:  rej,
	}
}

func finite(d float64) *float64 {
	if math.IsInf(d, 0) || math.IsNaN(d) {
		return nil
	}
	return &d
}

// String summarizes the result for logs and CLI output.
func (r Result) String() string {
	switch r.Outcome {
	case OutcomeSnapped:
		return fmt.Sprintf("%s snapped to %s", r.EntityID, r.TargetID)
	case OutcomeRejected:
		return fmt.Sprintf("%s not snapped: %s", r.EntityID, r.Reason)
	default:
		return fmt.Sprintf("%s still moving", r.EntityID)
	}
}
