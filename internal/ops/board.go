package ops

import (
	"database/sql"
	"time"

	"github.com/hpungsan/poetrybox/internal/db"
	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/scene"
)

// DefaultBoardSize is the full size of a new board: 60 cm by 40 cm, 1 cm thick.
var DefaultBoardSize = Vec{0.6, 0.4, 0.01}

// DefaultBoardPosition is where a board appears when no position is given.
var DefaultBoardPosition = Vec{0, 1.0, -0.6}

// BoardSpawnInput contains parameters for the BoardSpawn operation.
type BoardSpawnInput struct {
	Composition string
	Position    *Vec
	Size        *Vec // full size; defaults to DefaultBoardSize
}

// BoardSpawnOutput contains the result of the BoardSpawn operation.
type BoardSpawnOutput struct {
	Board scene.Entity `json:"board"`
}

// BoardSpawn adds a board that cards can snap onto.
func BoardSpawn(database *sql.DB, input BoardSpawnInput) (*BoardSpawnOutput, error) {
	pos := DefaultBoardPosition
	if input.Position != nil {
		pos = *input.Position
	}
	size := DefaultBoardSize
	if input.Size != nil {
		size = *input.Size
	}
	if err := pos.validate("position"); err != nil {
		return nil, err
	}
	if err := size.validate("size"); err != nil {
		return nil, err
	}
	for _, c := range size {
		if c <= 0 {
			return nil, errors.NewInvalidRequest("size must be positive on every axis")
		}
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	comp := NormalizeComposition(input.Composition)
	b := scene.NewBoard(id, comp, pos.Vec3(), size.Vec3())
	b.CreatedAt = time.Now().Unix()

	s := scene.New()
	if err := s.Add(b); err != nil {
		return nil, err
	}
	if err := db.SaveScene(database, comp, s); err != nil {
		return nil, err
	}
	return &BoardSpawnOutput{Board: b}, nil
}
