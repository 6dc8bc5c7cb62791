package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/poetrybox/internal/db"
	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/scene"
)

// EntityListInput contains parameters for the EntityList operation.
type EntityListInput struct {
	Composition string
	Kind        string // "card", "board" or empty for both
}

// EntityListOutput contains the result of the EntityList operation.
type EntityListOutput struct {
	Composition string         `json:"composition"`
	Revision    int64          `json:"revision"`
	Entities    []scene.Entity `json:"entities"`
}

// EntityList returns a composition's entities in the order they were added.
func EntityList(database *sql.DB, input EntityListInput) (*EntityListOutput, error) {
	kind, err := parseKind(input.Kind)
	if err != nil {
		return nil, err
	}
	comp := NormalizeComposition(input.Composition)

	entities, err := db.ListEntities(database, comp, kind)
	if err != nil {
		return nil, err
	}
	rev, err := db.Revision(database, comp)
	if err != nil {
		return nil, err
	}
	if entities == nil {
		entities = []scene.Entity{}
	}
	return &EntityListOutput{Composition: comp, Revision: rev, Entities: entities}, nil
}

// EntityRemoveInput contains parameters for the EntityRemove operation.
type EntityRemoveInput struct {
	ID string
}

// EntityRemoveOutput contains the result of the EntityRemove operation.
type EntityRemoveOutput struct {
	ID          string `json:"id"`
	Composition string `json:"composition"`
	// Detached lists neighbours whose links or board were cleared.
	Detached []string `json:"detached"`
}

// EntityRemove deletes a card or board. Neighbouring cards are unlinked and
// cards resting on a removed board lose their board.
func EntityRemove(database *sql.DB, input EntityRemoveInput) (*EntityRemoveOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	e, err := db.GetEntity(database, id)
	if err != nil {
		return nil, err
	}
	s, err := db.LoadScene(database, e.Composition)
	if err != nil {
		return nil, err
	}
	if err := s.Remove(id); err != nil {
		return nil, err
	}
	changed, _ := s.Dirty()
	if err := db.SaveScene(database, e.Composition, s); err != nil {
		return nil, err
	}
	if changed == nil {
		changed = []string{}
	}
	return &EntityRemoveOutput{ID: id, Composition: e.Composition, Detached: changed}, nil
}

func parseKind(k string) (scene.Kind, error) {
	switch scene.Kind(strings.ToLower(strings.TrimSpace(k))) {
	case "":
		return "", nil
	case scene.KindCard:
		return scene.KindCard, nil
	case scene.KindBoard:
		return scene.KindBoard, nil
	default:
		return "", errors.NewInvalidRequest("kind must be card or board")
	}
}
