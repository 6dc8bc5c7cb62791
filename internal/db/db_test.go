package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/scene"
)

func TestInit_FreshStore(t *testing.T) {
	base := filepath.Join(t.TempDir(), "home", ".poetrybox")

	db, err := Init(base)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(base, "poetrybox.db")); err != nil {
		t.Errorf("store file missing: %v", err)
	}
	// Scene exports default into base/exports.
	if info, err := os.Stat(filepath.Join(base, "exports")); err != nil || !info.IsDir() {
		t.Errorf("exports dir missing: %v", err)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %s, want wal", mode)
	}

	if v, err := GetUserVersion(db); err != nil || v != CurrentSchemaVersion {
		t.Errorf("user_version = %d, %v; want %d", v, err, CurrentSchemaVersion)
	}
}

func TestInit_Schema(t *testing.T) {
	db := openTestDB(t)

	objects := map[string]string{
		"compositions":                  "table",
		"entities":                      "table",
		"reels":                         "table",
		"idx_entities_composition_seq":  "index",
		"idx_entities_board":            "index",
		"idx_reels_composition_updated": "index",
	}
	for name, typ := range objects {
		var got string
		err := db.QueryRow("SELECT type FROM sqlite_master WHERE name = ?", name).Scan(&got)
		if err != nil || got != typ {
			t.Errorf("%s: type = %q, %v; want %s", name, got, err, typ)
		}
	}

	// Chain links and quiescence stamps live on the entity row.
	rows, err := db.Query("SELECT name FROM pragma_table_info('entities')")
	if err != nil {
		t.Fatalf("table_info: %v", err)
	}
	defer rows.Close()
	cols := map[string]bool{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			t.Fatalf("scan: %v", err)
		}
		cols[c] = true
	}
	for _, c := range []string{"prev_id", "next_id", "last_moved", "board_id", "points_json"} {
		if !cols[c] {
			t.Errorf("entities has no %s column", c)
		}
	}
}

func TestInit_ReopenKeepsScene(t *testing.T) {
	base := t.TempDir()

	first, err := Init(base)
	if err != nil {
		t.Fatalf("first Init() error = %v", err)
	}
	s := scene.New()
	if err := s.Add(scene.NewCard("01MOON", "night", "moon", mgl64.Vec3{0, 1, -0.5})); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := SaveScene(first, "night", s); err != nil {
		t.Fatalf("SaveScene: %v", err)
	}
	first.Close()

	// Migrations already applied are skipped on reopen.
	second, err := Init(base)
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	defer second.Close()

	if v, _ := GetUserVersion(second); v != CurrentSchemaVersion {
		t.Errorf("user_version after reopen = %d, want %d", v, CurrentSchemaVersion)
	}
	loaded, err := LoadScene(second, "night")
	if err != nil {
		t.Fatalf("LoadScene: %v", err)
	}
	if e, ok := loaded.Get("01MOON"); !ok || e.Word != "moon" {
		t.Errorf("card after reopen = %+v, %v", e, ok)
	}
	if rev, _ := Revision(second, "night"); rev != 1 {
		t.Errorf("revision after reopen = %d, want 1", rev)
	}
}

func TestSetUserVersion(t *testing.T) {
	db := openTestDB(t)

	if err := SetUserVersion(db, CurrentSchemaVersion+1); err != nil {
		t.Fatalf("SetUserVersion() error = %v", err)
	}
	if v, _ := GetUserVersion(db); v != CurrentSchemaVersion+1 {
		t.Errorf("user_version = %d, want %d", v, CurrentSchemaVersion+1)
	}
}

func TestConfigurePool(t *testing.T) {
	db := openTestDB(t)

	ConfigurePool(db, nil)
	ConfigurePool(db, &config.Config{DBMaxOpenConns: 2, DBMaxIdleConns: 1})
	if got := db.Stats().MaxOpenConnections; got != 2 {
		t.Errorf("MaxOpenConnections = %d, want 2", got)
	}
}
