package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/reel"
	"github.com/hpungsan/poetrybox/internal/scene"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndLoadScene(t *testing.T) {
	db := openTestDB(t)

	s := scene.New()
	board := scene.NewBoard("01BOARD", "night", mgl64.Vec3{0, 1, -0.5}, mgl64.Vec3{1, 0.6, 0.02})
	moon := scene.NewCard("01MOON", "night", "moon", mgl64.Vec3{0.1, 0.2, 0.3})
	moon.Rotation = mgl64.QuatRotate(0.5, mgl64.Vec3{0, 1, 0})
	moon.LastMoved = time.Date(2024, 8, 13, 12, 0, 0, 42, time.UTC)
	sea := scene.NewCard("01SEA", "night", "sea", mgl64.Vec3{0.5, 0.2, 0.3})
	for _, e := range []scene.Entity{board, moon, sea} {
		if err := s.Add(e); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := s.Link("01MOON", "01SEA"); err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if err := s.SetBoard("01MOON", "01BOARD"); err != nil {
		t.Fatalf("SetBoard failed: %v", err)
	}

	if err := SaveScene(db, "night", s); err != nil {
		t.Fatalf("SaveScene failed: %v", err)
	}
	if changed, removed := s.Dirty(); len(changed) != 0 || len(removed) != 0 {
		t.Errorf("scene still dirty after save: %v %v", changed, removed)
	}

	loaded, err := LoadScene(db, "night")
	if err != nil {
		t.Fatalf("LoadScene failed: %v", err)
	}
	if loaded.Len() != 3 {
		t.Fatalf("Len = %d, want 3", loaded.Len())
	}

	all := loaded.Snapshot()
	wantOrder := []string{"01BOARD", "01MOON", "01SEA"}
	for i, e := range all {
		if e.ID != wantOrder[i] {
			t.Errorf("order[%d] = %s, want %s", i, e.ID, wantOrder[i])
		}
	}

	got, _ := loaded.Get("01MOON")
	if got.Word != "moon" || got.Kind != scene.KindCard {
		t.Errorf("moon = %+v", got)
	}
	if got.Position != moon.Position {
		t.Errorf("Position = %v, want %v", got.Position, moon.Position)
	}
	if !got.Rotation.ApproxEqual(moon.Rotation) {
		t.Errorf("Rotation = %v, want %v", got.Rotation, moon.Rotation)
	}
	if !got.LastMoved.Equal(moon.LastMoved) {
		t.Errorf("LastMoved = %v, want %v", got.LastMoved, moon.LastMoved)
	}
	if got.BoardID != "01BOARD" {
		t.Errorf("BoardID = %q, want 01BOARD", got.BoardID)
	}
	if got.Connectable == nil || got.Connectable.Next != "01SEA" || len(got.Connectable.Points) != 2 {
		t.Errorf("Connectable = %+v", got.Connectable)
	}

	b, _ := loaded.Get("01BOARD")
	if b.Connectable != nil {
		t.Errorf("board should not be connectable")
	}
	if b.Orientation() != mgl64.QuatIdent() {
		t.Errorf("board orientation = %v, want identity", b.Orientation())
	}
}

func TestSaveScene_OnlyDirty(t *testing.T) {
	db := openTestDB(t)

	s := scene.New()
	if err := s.Add(scene.NewCard("01A", "default", "a", mgl64.Vec3{})); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := SaveScene(db, "default", s); err != nil {
		t.Fatalf("SaveScene failed: %v", err)
	}
	rev1, _ := Revision(db, "default")

	// Clean scene writes nothing.
	if err := SaveScene(db, "default", s); err != nil {
		t.Fatalf("SaveScene failed: %v", err)
	}
	if rev, _ := Revision(db, "default"); rev != rev1 {
		t.Errorf("revision = %d after clean save, want %d", rev, rev1)
	}

	if err := s.Translate("01A", mgl64.Vec3{1, 0, 0}); err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if err := SaveScene(db, "default", s); err != nil {
		t.Fatalf("SaveScene failed: %v", err)
	}
	if rev, _ := Revision(db, "default"); rev != rev1+1 {
		t.Errorf("revision = %d, want %d", rev, rev1+1)
	}

	e, err := GetEntity(db, "01A")
	if err != nil {
		t.Fatalf("GetEntity failed: %v", err)
	}
	if e.Position[0] != 1 {
		t.Errorf("Position = %v, want x=1", e.Position)
	}
}

func TestSaveScene_RemoveAndAppend(t *testing.T) {
	db := openTestDB(t)

	s := scene.New()
	for _, id := range []string{"01A", "01B", "01C"} {
		if err := s.Add(scene.NewCard(id, "default", id, mgl64.Vec3{})); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := SaveScene(db, "default", s); err != nil {
		t.Fatalf("SaveScene failed: %v", err)
	}

	if err := s.Remove("01B"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := s.Add(scene.NewCard("01D", "default", "d", mgl64.Vec3{})); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := SaveScene(db, "default", s); err != nil {
		t.Fatalf("SaveScene failed: %v", err)
	}

	list, err := ListEntities(db, "default", "")
	if err != nil {
		t.Fatalf("ListEntities failed: %v", err)
	}
	want := []string{"01A", "01C", "01D"}
	if len(list) != len(want) {
		t.Fatalf("got %d entities, want %d", len(list), len(want))
	}
	for i, e := range list {
		if e.ID != want[i] {
			t.Errorf("list[%d] = %s, want %s", i, e.ID, want[i])
		}
	}

	if _, err := GetEntity(db, "01B"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetEntity(removed) error = %v, want NOT_FOUND", err)
	}
}

func TestSaveScene_IDTakenByOtherComposition(t *testing.T) {
	db := openTestDB(t)

	a := scene.New()
	if err := a.Add(scene.NewCard("01X", "one", "x", mgl64.Vec3{})); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := SaveScene(db, "one", a); err != nil {
		t.Fatalf("SaveScene failed: %v", err)
	}

	b := scene.New()
	if err := b.Add(scene.NewCard("01X", "two", "x", mgl64.Vec3{})); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := SaveScene(db, "two", b); err != ErrUniqueConstraint {
		t.Errorf("SaveScene error = %v, want ErrUniqueConstraint", err)
	}

	// The failed save rolled back entirely.
	if _, err := GetComposition(db, "two"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetComposition(two) error = %v, want NOT_FOUND", err)
	}
}

func TestListEntities_KindFilter(t *testing.T) {
	db := openTestDB(t)

	s := scene.New()
	_ = s.Add(scene.NewBoard("01B", "default", mgl64.Vec3{}, mgl64.Vec3{1, 1, 0}))
	_ = s.Add(scene.NewCard("01C", "default", "c", mgl64.Vec3{}))
	if err := SaveScene(db, "default", s); err != nil {
		t.Fatalf("SaveScene failed: %v", err)
	}

	boards, err := ListEntities(db, "default", scene.KindBoard)
	if err != nil {
		t.Fatalf("ListEntities failed: %v", err)
	}
	if len(boards) != 1 || boards[0].ID != "01B" {
		t.Errorf("boards = %v", boards)
	}

	empty, err := ListEntities(db, "elsewhere", "")
	if err != nil {
		t.Fatalf("ListEntities failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no entities, got %d", len(empty))
	}
}

func TestCompositions(t *testing.T) {
	db := openTestDB(t)

	if rev, err := Revision(db, "never"); err != nil || rev != 0 {
		t.Errorf("Revision(never) = %d, %v; want 0, nil", rev, err)
	}

	for _, name := range []string{"alpha", "beta"} {
		s := scene.New()
		_ = s.Add(scene.NewCard("01"+name, name, name, mgl64.Vec3{}))
		if err := SaveScene(db, name, s); err != nil {
			t.Fatalf("SaveScene failed: %v", err)
		}
	}

	list, err := ListCompositions(db)
	if err != nil {
		t.Fatalf("ListCompositions failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d compositions, want 2", len(list))
	}

	c, err := GetComposition(db, "alpha")
	if err != nil {
		t.Fatalf("GetComposition failed: %v", err)
	}
	if c.Entities != 1 || c.Revision != 1 {
		t.Errorf("composition = %+v, want 1 entity at revision 1", c)
	}
}

func TestReelCRUD(t *testing.T) {
	db := openTestDB(t)

	r := reel.New("01REEL", "default", "Night Sky", []string{"the", "moon", "sings"}, false)
	r.Position = mgl64.Vec3{0, 1.2, -0.6}
	r.CreatedAt = 1000
	r.UpdatedAt = 1000

	if err := InsertReel(db, r); err != nil {
		t.Fatalf("InsertReel failed: %v", err)
	}
	if err := InsertReel(db, r); err != ErrUniqueConstraint {
		t.Errorf("duplicate InsertReel error = %v, want ErrUniqueConstraint", err)
	}

	got, err := GetReel(db, "01REEL")
	if err != nil {
		t.Fatalf("GetReel failed: %v", err)
	}
	if got.Title != "Night Sky" || len(got.Cards) != 3 || got.ReplaceWords {
		t.Errorf("reel = %+v", got)
	}
	if got.Position != r.Position {
		t.Errorf("Position = %v, want %v", got.Position, r.Position)
	}

	got.Spin(50)
	if _, err := got.Pick(); err != nil {
		t.Fatalf("Pick failed: %v", err)
	}
	if err := UpdateReel(db, got); err != nil {
		t.Fatalf("UpdateReel failed: %v", err)
	}

	again, _ := GetReel(db, "01REEL")
	if again.Rotation != 0.5 {
		t.Errorf("Rotation = %v, want 0.5", again.Rotation)
	}
	if len(again.Cards) != 2 {
		t.Errorf("Cards = %v, want 2 left", again.Cards)
	}

	list, err := ListReels(db, "default")
	if err != nil {
		t.Fatalf("ListReels failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListReels = %d reels, want 1", len(list))
	}

	if err := DeleteReel(db, "01REEL"); err != nil {
		t.Fatalf("DeleteReel failed: %v", err)
	}
	if err := DeleteReel(db, "01REEL"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second DeleteReel error = %v, want NOT_FOUND", err)
	}
	if _, err := GetReel(db, "01REEL"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetReel error = %v, want NOT_FOUND", err)
	}
	if err := UpdateReel(db, r); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("UpdateReel error = %v, want NOT_FOUND", err)
	}
}

func TestReelWritesBumpRevision(t *testing.T) {
	db := openTestDB(t)
	r := reel.New("01REEL", "night", "Night Sky", []string{"the", "moon"}, true)

	steps := []struct {
		name string
		do   func() error
	}{
		{"insert", func() error { return InsertReel(db, r) }},
		{"update", func() error { return UpdateReel(db, r) }},
		{"delete", func() error { return DeleteReel(db, r.ID) }},
	}
	for i, step := range steps {
		if err := step.do(); err != nil {
			t.Fatalf("%s failed: %v", step.name, err)
		}
		if rev, _ := Revision(db, "night"); rev != int64(i+1) {
			t.Errorf("revision after %s = %d, want %d", step.name, rev, i+1)
		}
	}

	// Failed writes leave the revision alone.
	if err := DeleteReel(db, r.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("DeleteReel error = %v, want NOT_FOUND", err)
	}
	if err := UpdateReel(db, r); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("UpdateReel error = %v, want NOT_FOUND", err)
	}
	if rev, _ := Revision(db, "night"); rev != 3 {
		t.Errorf("revision after failed writes = %d, want 3", rev)
	}
}

func TestSaveSceneAndReel(t *testing.T) {
	db := openTestDB(t)
	r := reel.New("01REEL", "night", "Night Sky", []string{"the", "moon"}, false)
	if err := InsertReel(db, r); err != nil {
		t.Fatalf("InsertReel failed: %v", err)
	}

	word, err := r.Pick()
	if err != nil {
		t.Fatalf("Pick failed: %v", err)
	}
	s := scene.New()
	if err := s.Add(scene.NewCard("01PICK", "night", word, mgl64.Vec3{})); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := SaveSceneAndReel(db, s, r); err != nil {
		t.Fatalf("SaveSceneAndReel failed: %v", err)
	}

	if _, err := GetEntity(db, "01PICK"); err != nil {
		t.Errorf("picked card not stored: %v", err)
	}
	stored, _ := GetReel(db, "01REEL")
	if len(stored.Cards) != 1 {
		t.Errorf("reel has %d cards, want 1", len(stored.Cards))
	}
	if rev, _ := Revision(db, "night"); rev != 2 {
		t.Errorf("revision = %d, want 2 (one bump for the pick)", rev)
	}
	if changed, _ := s.Dirty(); len(changed) != 0 {
		t.Errorf("scene still dirty after save: %v", changed)
	}
}

func TestSaveSceneAndReel_RollsBackCard(t *testing.T) {
	db := openTestDB(t)
	gone := reel.New("01GONE", "night", "Night Sky", []string{"moon"}, false)

	s := scene.New()
	if err := s.Add(scene.NewCard("01PICK", "night", "moon", mgl64.Vec3{})); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := SaveSceneAndReel(db, s, gone); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("SaveSceneAndReel error = %v, want NOT_FOUND", err)
	}

	if _, err := GetEntity(db, "01PICK"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("card survived a failed reel update: %v", err)
	}
	if rev, _ := Revision(db, "night"); rev != 0 {
		t.Errorf("revision = %d, want 0", rev)
	}
	if changed, _ := s.Dirty(); len(changed) != 1 {
		t.Errorf("scene lost its dirty card: %v", changed)
	}
}

func TestIsUniqueConstraintError(t *testing.T) {
	if isUniqueConstraintError(nil) {
		t.Error("nil should not be a unique constraint error")
	}
}
