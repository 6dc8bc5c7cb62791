package ops

import (
	"database/sql"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/db"
	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/reel"
	"github.com/hpungsan/poetrybox/internal/scene"
)

// DefaultReelPosition is where a reel appears when no position is given:
// chest height, half a metre in front of the viewer.
var DefaultReelPosition = Vec{0, 1.2, -0.5}

// PickOffset places a picked card just in front of its reel slot.
var PickOffset = mgl64.Vec3{0, 0, 0.05}

// ReelView is the client-facing shape of a reel.
type ReelView struct {
	ID           string     `json:"id"`
	Composition  string     `json:"composition"`
	Title        string     `json:"title"`
	Rotation     float64    `json:"rotation"`
	ReplaceWords bool       `json:"replace_words"`
	WordCount    int        `json:"word_count"`
	Visible      []string   `json:"visible"`
	Middle       string     `json:"middle,omitempty"`
	Position     mgl64.Vec3 `json:"position"`
	UpdatedAt    int64      `json:"updated_at"`
}

func viewReel(r *reel.Reel) ReelView {
	v := ReelView{
		ID:           r.ID,
		Composition:  r.Composition,
		Title:        r.Title,
		Rotation:     r.Rotation,
		ReplaceWords: r.ReplaceWords,
		WordCount:    len(r.Cards),
		Visible:      []string{},
		Position:     r.Position,
		UpdatedAt:    r.UpdatedAt,
	}
	for _, c := range r.Visible() {
		v.Visible = append(v.Visible, c.Word)
	}
	if i, ok := r.Middle(); ok {
		v.Middle = r.Cards[i].Word
	}
	return v
}

// ReelCreateInput contains parameters for the ReelCreate operation.
// Exactly one of Box or Words must be set.
type ReelCreateInput struct {
	Composition string
	Box         string   // title of a word box
	Words       []string // explicit words
	Consume     bool     // picked words leave the reel
	Position    *Vec
}

// ReelCreate builds a reel from a word box or an explicit word list.
func ReelCreate(database *sql.DB, cfg *config.Config, input ReelCreateInput) (*ReelView, error) {
	box := strings.TrimSpace(input.Box)
	if box == "" && len(input.Words) == 0 {
		return nil, errors.NewInvalidRequest("box or words is required")
	}
	if box != "" && len(input.Words) > 0 {
		return nil, errors.NewInvalidRequest("specify either box or words, not both")
	}

	title := "Custom"
	var words []string
	if box != "" {
		catalog, err := loadCatalog(cfg)
		if err != nil {
			return nil, err
		}
		wl, err := catalog.Find(box)
		if err != nil {
			return nil, err
		}
		title = wl.Title
		words = wl.Words
	} else {
		words = input.Words
	}
	if len(words) > MaxReelWords {
		return nil, errors.NewInvalidRequest("too many words for one reel")
	}
	clean := make([]string, 0, len(words))
	for _, w := range words {
		nw, err := normalizeWord(w)
		if err != nil {
			return nil, err
		}
		clean = append(clean, nw)
	}

	pos := DefaultReelPosition
	if input.Position != nil {
		pos = *input.Position
	}
	if err := pos.validate("position"); err != nil {
		return nil, err
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	consume := input.Consume || (cfg != nil && cfg.ConsumeWords)
	r := reel.New(id, NormalizeComposition(input.Composition), title, clean, !consume)
	r.Position = pos.Vec3()
	r.CreatedAt = time.Now().Unix()
	r.UpdatedAt = r.CreatedAt

	if err := db.InsertReel(database, r); err != nil {
		return nil, err
	}
	v := viewReel(r)
	return &v, nil
}

// ReelSpinInput contains parameters for the ReelSpin operation.
type ReelSpinInput struct {
	ID   string
	Drag float64 // vertical drag distance; positive turns the reel forward
}

// ReelSpin turns a reel by a drag distance.
func ReelSpin(database *sql.DB, input ReelSpinInput) (*ReelView, error) {
	r, err := getReel(database, input.ID)
	if err != nil {
		return nil, err
	}
	if err := (Vec{input.Drag}).validate("drag"); err != nil {
		return nil, err
	}
	r.Spin(input.Drag)
	if err := db.UpdateReel(database, r); err != nil {
		return nil, err
	}
	v := viewReel(r)
	return &v, nil
}

// ReelPickInput contains parameters for the ReelPick operation.
type ReelPickInput struct {
	ID string
}

// ReelPickOutput contains the result of the ReelPick operation.
type ReelPickOutput struct {
	Card scene.Entity `json:"card"`
	Reel ReelView     `json:"reel"`
}

// ReelPick takes the word facing the viewer off a reel and places it in the
// reel's composition as a new card.
func ReelPick(database *sql.DB, input ReelPickInput) (*ReelPickOutput, error) {
	r, err := getReel(database, input.ID)
	if err != nil {
		return nil, err
	}
	i, ok := r.Middle()
	if !ok {
		return nil, errors.NewInvalidRequest("reel is empty")
	}
	slot := r.Cards[i]
	word, err := r.Pick()
	if err != nil {
		return nil, err
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	card := scene.NewCard(id, r.Composition, word, r.CardWorld(slot).Add(PickOffset))
	card.CreatedAt = time.Now().Unix()

	// Only the new card is dirty, so the save touches nothing else. The
	// card and the reel's new state commit together.
	s := scene.New()
	if err := s.Add(card); err != nil {
		return nil, err
	}
	if err := db.SaveSceneAndReel(database, s, r); err != nil {
		return nil, err
	}
	return &ReelPickOutput{Card: card, Reel: viewReel(r)}, nil
}

// ReelListInput contains parameters for the ReelList operation.
type ReelListInput struct {
	Composition string
}

// ReelListOutput contains the result of the ReelList operation.
type ReelListOutput struct {
	Composition string     `json:"composition"`
	Reels       []ReelView `json:"reels"`
}

// ReelList returns a composition's reels, most recently used first.
func ReelList(database *sql.DB, input ReelListInput) (*ReelListOutput, error) {
	comp := NormalizeComposition(input.Composition)
	reels, err := db.ListReels(database, comp)
	if err != nil {
		return nil, err
	}
	out := &ReelListOutput{Composition: comp, Reels: make([]ReelView, 0, len(reels))}
	for _, r := range reels {
		out.Reels = append(out.Reels, viewReel(r))
	}
	return out, nil
}

// ReelDeleteInput contains parameters for the ReelDelete operation.
type ReelDeleteInput struct {
	ID string
}

// ReelDeleteOutput contains the result of the ReelDelete operation.
type ReelDeleteOutput struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// ReelDelete removes a reel. Cards already picked from it stay.
func ReelDelete(database *sql.DB, input ReelDeleteInput) (*ReelDeleteOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	if err := db.DeleteReel(database, id); err != nil {
		return nil, err
	}
	return &ReelDeleteOutput{ID: id, Deleted: true}, nil
}

func getReel(database *sql.DB, id string) (*reel.Reel, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	return db.GetReel(database, id)
}
