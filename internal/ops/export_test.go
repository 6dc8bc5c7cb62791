package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/klauspost/compress/zstd"

	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/db"
	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/scene"
)

// seedChain stores a board and a linked "moon sings" chain resting on it.
func seedChain(t *testing.T, database *sql.DB, comp string) (scene.Entity, scene.Entity, scene.Entity) {
	t.Helper()
	board := scene.NewBoard("01BOARD", comp, mgl64.Vec3{0, 1, -0.6}, mgl64.Vec3{0.6, 0.4, 0.01})
	moon := scene.NewCard("01MOON", comp, "moon", mgl64.Vec3{0, 1, -0.59})
	sings := cardRightOf(moon, "01SINGS", "sings", 0)

	s := scene.New()
	for _, e := range []scene.Entity{board, moon, sings} {
		if err := s.Add(e); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if err := s.Link(moon.ID, sings.ID); err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if err := s.SetBoard(moon.ID, board.ID); err != nil {
		t.Fatalf("SetBoard failed: %v", err)
	}
	if err := db.SaveScene(database, comp, s); err != nil {
		t.Fatalf("SaveScene failed: %v", err)
	}
	return board, moon, sings
}

func exportConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{dir}
	return cfg
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ExtZstd) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			t.Fatalf("zstd reader: %v", err)
		}
		defer dec.Close()
		r = dec
	}
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return lines
}

func TestExport_Plain(t *testing.T) {
	database := openTestDB(t)
	seedChain(t, database, "night")
	dir := t.TempDir()

	path := filepath.Join(dir, "night.jsonl")
	out, err := Export(context.Background(), database, exportConfig(dir), ExportInput{Composition: "Night", Path: path})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.Path != path || out.Count != 3 || out.Compressed || out.Composition != "night" {
		t.Errorf("output = %+v", out)
	}

	lines := readLines(t, path)
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3", len(lines))
	}
	var header ExportHeader
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("header: %v", err)
	}
	if !header.PoetryboxExport || header.SchemaVersion != ExportSchemaVersion || header.Composition != "night" || header.Revision != 1 {
		t.Errorf("header = %+v", header)
	}
	var first scene.Entity
	if err := json.Unmarshal([]byte(lines[1]), &first); err != nil {
		t.Fatalf("entity: %v", err)
	}
	if first.ID != "01BOARD" || first.Kind != scene.KindBoard {
		t.Errorf("first entity = %+v", first)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("export dir has %d entries, want 1", len(entries))
	}
}

func TestExport_Compressed(t *testing.T) {
	database := openTestDB(t)
	seedChain(t, database, "night")
	dir := t.TempDir()

	path := filepath.Join(dir, "night.jsonl.zst")
	out, err := Export(context.Background(), database, exportConfig(dir), ExportInput{Composition: "night", Path: path})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !out.Compressed || out.Count != 3 {
		t.Errorf("output = %+v", out)
	}
	if lines := readLines(t, path); len(lines) != 4 {
		t.Errorf("got %d lines, want 4", len(lines))
	}
}

func TestExport_PathRejected(t *testing.T) {
	database := openTestDB(t)
	dir := t.TempDir()
	_, err := Export(context.Background(), database, exportConfig(dir), ExportInput{Path: filepath.Join(dir, "x.json")})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("error = %v, want INVALID_REQUEST", err)
	}
	_, err = Export(context.Background(), database, config.DefaultConfig(), ExportInput{Path: filepath.Join(dir, "x.jsonl")})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("outside allowed dirs error = %v, want INVALID_REQUEST", err)
	}
}

func TestExport_Cancelled(t *testing.T) {
	database := openTestDB(t)
	seedChain(t, database, "night")
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(dir, "night.jsonl")
	if _, err := Export(ctx, database, exportConfig(dir), ExportInput{Composition: "night", Path: path}); !errors.Is(err, errors.ErrCancelled) {
		t.Errorf("error = %v, want CANCELLED", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("cancelled export left a file")
	}
}

func TestDefaultExportPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	p, err := defaultExportPath("../evil/night", true, time.Date(2024, 8, 13, 9, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("defaultExportPath failed: %v", err)
	}
	want := filepath.Join(home, ".poetrybox", "exports", "evil-night-2024-08-13T093000.jsonl.zst")
	if p != want {
		t.Errorf("path = %q, want %q", p, want)
	}
}
