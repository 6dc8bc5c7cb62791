package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/reel"
	"github.com/hpungsan/poetrybox/internal/scene"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.PoetryError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Composition summarizes a stored composition.
type Composition struct {
	Name      string `json:"name"`
	Revision  int64  `json:"revision"`
	Entities  int    `json:"entities"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

const entityColumns = `
	id, composition, kind, word,
	pos_x, pos_y, pos_z, rot_w, rot_x, rot_y, rot_z, ext_x, ext_y, ext_z,
	board_id, points_json, prev_id, next_id, last_moved, created_at`

// LoadScene reads every entity of a composition into a scene, in the order
// they were first saved. A composition with no entities yields an empty scene.
func LoadScene(db *sql.DB, composition string) (*scene.Scene, error) {
	entities, err := ListEntities(db, composition, "")
	if err != nil {
		return nil, err
	}
	s, err := scene.Load(entities)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// SaveScene writes the scene's changes since the last save: dirty entities
// are upserted, removed ones deleted, and the composition revision bumped.
// Nothing is written when the scene is clean.
func SaveScene(db *sql.DB, composition string, s *scene.Scene) error {
	changed, removed := s.Dirty()
	if len(changed) == 0 && len(removed) == 0 {
		return nil
	}
	now := time.Now().Unix()
	err := inTx(db, func(tx *sql.Tx) error {
		if err := writeDirty(tx, composition, s, changed, removed, now); err != nil {
			return err
		}
		return touchComposition(tx, composition, now)
	})
	if err != nil {
		return err
	}
	s.ClearDirty()
	return nil
}

// SaveSceneAndReel writes the scene's changes and the reel's new state in
// one transaction, into the reel's composition. A pick uses it so a card
// never lands without its word leaving the reel, or the other way round.
func SaveSceneAndReel(db *sql.DB, s *scene.Scene, r *reel.Reel) error {
	changed, removed := s.Dirty()
	now := time.Now().Unix()
	err := inTx(db, func(tx *sql.Tx) error {
		if err := writeDirty(tx, r.Composition, s, changed, removed, now); err != nil {
			return err
		}
		if err := updateReel(tx, r, now); err != nil {
			return err
		}
		return touchComposition(tx, r.Composition, now)
	})
	if err != nil {
		return err
	}
	s.ClearDirty()
	r.UpdatedAt = now
	return nil
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func writeDirty(tx *sql.Tx, composition string, s *scene.Scene, changed, removed []string, now int64) error {
	for _, id := range removed {
		if _, err := tx.Exec(`DELETE FROM entities WHERE id = ? AND composition = ?`, id, composition); err != nil {
			return errors.NewInternal(err)
		}
	}
	for _, id := range changed {
		e, ok := s.Get(id)
		if !ok {
			continue
		}
		if err := upsertEntity(tx, composition, e, now); err != nil {
			return err
		}
	}
	return nil
}

// upsertEntity inserts e at the end of the composition's order, or updates it
// in place. The stored order of an existing entity never changes.
func upsertEntity(x execer, composition string, e scene.Entity, now int64) error {
	var (
		pointsJSON sql.NullString
		prev, next sql.NullString
	)
	if e.Connectable != nil {
		data, err := json.Marshal(e.Connectable.Points)
		if err != nil {
			return errors.NewInternal(err)
		}
		pointsJSON = sql.NullString{String: string(data), Valid: true}
		prev = nullIfEmpty(e.Connectable.Prev)
		next = nullIfEmpty(e.Connectable.Next)
	}
	createdAt := e.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	q := e.Rotation
	if q == (mgl64.Quat{}) {
		q = mgl64.QuatIdent()
	}

	query := `
		INSERT INTO entities (
			id, composition, seq, kind, word,
			pos_x, pos_y, pos_z, rot_w, rot_x, rot_y, rot_z, ext_x, ext_y, ext_z,
			board_id, points_json, prev_id, next_id, last_moved, created_at, updated_at
		) VALUES (
			?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM entities WHERE composition = ?), ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?
		)
		ON CONFLICT(id) DO UPDATE SET
			word = excluded.word,
			pos_x = excluded.pos_x, pos_y = excluded.pos_y, pos_z = excluded.pos_z,
			rot_w = excluded.rot_w, rot_x = excluded.rot_x, rot_y = excluded.rot_y, rot_z = excluded.rot_z,
			ext_x = excluded.ext_x, ext_y = excluded.ext_y, ext_z = excluded.ext_z,
			board_id = excluded.board_id, points_json = excluded.points_json,
			prev_id = excluded.prev_id, next_id = excluded.next_id,
			last_moved = excluded.last_moved, updated_at = excluded.updated_at
		WHERE entities.composition = excluded.composition
	`
	res, err := x.Exec(query,
		e.ID, composition, composition, string(e.Kind), nullIfEmpty(e.Word),
		e.Position[0], e.Position[1], e.Position[2], q.W, q.V[0], q.V[1], q.V[2],
		e.Extents[0], e.Extents[1], e.Extents[2],
		nullIfEmpty(e.BoardID), pointsJSON, prev, next, toNanos(e.LastMoved), createdAt, now,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// The ID is taken by an entity of another composition.
		return ErrUniqueConstraint
	}
	return nil
}

func touchComposition(x execer, name string, now int64) error {
	_, err := x.Exec(`
		INSERT INTO compositions (name, revision, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(name) DO UPDATE SET revision = revision + 1, updated_at = excluded.updated_at
	`, name, now, now)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListEntities returns a composition's entities in stored order, optionally
// filtered by kind.
func ListEntities(db *sql.DB, composition string, kind scene.Kind) ([]scene.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE composition = ?`
	args := []any{composition}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY seq ASC, id ASC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []scene.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// GetEntity retrieves a single entity by ID.
func GetEntity(db *sql.DB, id string) (*scene.Entity, error) {
	row := db.QueryRow(`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return e, nil
}

// GetComposition returns the summary of one composition.
func GetComposition(db *sql.DB, name string) (*Composition, error) {
	var c Composition
	err := db.QueryRow(`
		SELECT c.name, c.revision, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM entities e WHERE e.composition = c.name)
		FROM compositions c WHERE c.name = ?
	`, name).Scan(&c.Name, &c.Revision, &c.CreatedAt, &c.UpdatedAt, &c.Entities)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(name)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &c, nil
}

// ListCompositions returns every composition, most recently updated first.
func ListCompositions(db *sql.DB) ([]Composition, error) {
	rows, err := db.Query(`
		SELECT c.name, c.revision, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM entities e WHERE e.composition = c.name)
		FROM compositions c
		ORDER BY c.updated_at DESC, c.name ASC
	`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []Composition
	for rows.Next() {
		var c Composition
		if err := rows.Scan(&c.Name, &c.Revision, &c.CreatedAt, &c.UpdatedAt, &c.Entities); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// Revision returns the composition's change counter, 0 if it was never saved.
func Revision(db *sql.DB, name string) (int64, error) {
	var rev int64
	err := db.QueryRow(`SELECT revision FROM compositions WHERE name = ?`, name).Scan(&rev)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return rev, nil
}

// InsertReel stores a new reel and bumps its composition's revision.
func InsertReel(db *sql.DB, r *reel.Reel) error {
	cards, err := json.Marshal(r.Cards)
	if err != nil {
		return errors.NewInternal(err)
	}
	return inTx(db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO reels (
				id, composition, title, cards_json, rotation, replace_words,
				pos_x, pos_y, pos_z, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.Composition, r.Title, string(cards), r.Rotation, boolToInt(r.ReplaceWords),
			r.Position[0], r.Position[1], r.Position[2], r.CreatedAt, r.UpdatedAt)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrUniqueConstraint
			}
			return errors.NewInternal(err)
		}
		return touchComposition(tx, r.Composition, time.Now().Unix())
	})
}

// UpdateReel writes a reel's rotation and cards, bumps updated_at and the
// composition revision.
func UpdateReel(db *sql.DB, r *reel.Reel) error {
	now := time.Now().Unix()
	err := inTx(db, func(tx *sql.Tx) error {
		if err := updateReel(tx, r, now); err != nil {
			return err
		}
		return touchComposition(tx, r.Composition, now)
	})
	if err != nil {
		return err
	}
	r.UpdatedAt = now
	return nil
}

func updateReel(x execer, r *reel.Reel, now int64) error {
	cards, err := json.Marshal(r.Cards)
	if err != nil {
		return errors.NewInternal(err)
	}
	result, err := x.Exec(`
		UPDATE reels SET cards_json = ?, rotation = ?, updated_at = ?
		WHERE id = ?
	`, string(cards), r.Rotation, now, r.ID)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(r.ID)
	}
	return nil
}

// GetReel retrieves a reel by ID.
func GetReel(db *sql.DB, id string) (*reel.Reel, error) {
	row := db.QueryRow(`
		SELECT id, composition, title, cards_json, rotation, replace_words,
			pos_x, pos_y, pos_z, created_at, updated_at
		FROM reels WHERE id = ?
	`, id)
	r, err := scanReel(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// ListReels returns a composition's reels, most recently used first.
func ListReels(db *sql.DB, composition string) ([]*reel.Reel, error) {
	rows, err := db.Query(`
		SELECT id, composition, title, cards_json, rotation, replace_words,
			pos_x, pos_y, pos_z, created_at, updated_at
		FROM reels WHERE composition = ?
		ORDER BY updated_at DESC, id DESC
	`, composition)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []*reel.Reel
	for rows.Next() {
		r, err := scanReel(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// DeleteReel removes a reel and bumps its composition's revision.
func DeleteReel(db *sql.DB, id string) error {
	return inTx(db, func(tx *sql.Tx) error {
		var composition string
		err := tx.QueryRow(`SELECT composition FROM reels WHERE id = ?`, id).Scan(&composition)
		if err == sql.ErrNoRows {
			return errors.NewNotFound(id)
		}
		if err != nil {
			return errors.NewInternal(err)
		}
		if _, err := tx.Exec(`DELETE FROM reels WHERE id = ?`, id); err != nil {
			return errors.NewInternal(err)
		}
		return touchComposition(tx, composition, time.Now().Unix())
	})
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanEntity scans a single row into an Entity.
func scanEntity(row scanner) (*scene.Entity, error) {
	var (
		e          scene.Entity
		kind       string
		word       sql.NullString
		boardID    sql.NullString
		pointsJSON sql.NullString
		prev, next sql.NullString
		lastMoved  int64
	)
	err := row.Scan(
		&e.ID, &e.Composition, &kind, &word,
		&e.Position[0], &e.Position[1], &e.Position[2],
		&e.Rotation.W, &e.Rotation.V[0], &e.Rotation.V[1], &e.Rotation.V[2],
		&e.Extents[0], &e.Extents[1], &e.Extents[2],
		&boardID, &pointsJSON, &prev, &next, &lastMoved, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = scene.Kind(kind)
	e.Word = word.String
	e.BoardID = boardID.String
	e.LastMoved = fromNanos(lastMoved)

	if pointsJSON.Valid {
		c := &scene.Connectable{Prev: prev.String, Next: next.String}
		if err := json.Unmarshal([]byte(pointsJSON.String), &c.Points); err != nil {
			return nil, err
		}
		e.Connectable = c
	}
	return &e, nil
}

func scanReel(row scanner) (*reel.Reel, error) {
	var (
		r       reel.Reel
		cards   string
		replace int
	)
	err := row.Scan(&r.ID, &r.Composition, &r.Title, &cards, &r.Rotation, &replace,
		&r.Position[0], &r.Position[1], &r.Position[2], &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.ReplaceWords = replace != 0
	if err := json.Unmarshal([]byte(cards), &r.Cards); err != nil {
		return nil, err
	}
	return &r, nil
}

// nullIfEmpty converts an empty string to SQL NULL.
func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// toNanos stores the zero time as 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
