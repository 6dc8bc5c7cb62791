package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/errors"
)

// exportDirConfig allows exports into a fresh temp directory.
func exportDirConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{dir}
	return cfg, dir
}

func writeSceneFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(`{"kind":"header","version":1}`+"\n"), 0600))
}

func TestValidatePath_RejectsShape(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	for _, p := range []string{
		"",
		"../night.jsonl",
		"/tmp/exports/../../etc/night.jsonl",
		"/tmp/night.json",
		"/tmp/night.zst",
		"/tmp/night",
	} {
		err := ValidatePath(p, PathCheckWrite, cfg)
		assert.Truef(t, errors.Is(err, errors.ErrInvalidRequest), "%q: got %v", p, err)
	}
}

func TestValidatePath_SceneExtensions(t *testing.T) {
	cfg, dir := exportDirConfig(t)
	for _, name := range []string{"night.jsonl", "night.JSONL", "night.jsonl.zst"} {
		assert.NoError(t, ValidatePath(filepath.Join(dir, name), PathCheckWrite, cfg), name)
	}
	assert.True(t, isCompressed("a/night.jsonl.zst"))
	assert.True(t, isCompressed("a/NIGHT.JSONL.ZST"))
	assert.False(t, isCompressed("a/night.jsonl"))
}

func TestValidatePath_OutsideExportDirs(t *testing.T) {
	cfg, dir := exportDirConfig(t)
	other := t.TempDir()

	err := ValidatePath(filepath.Join(other, "night.jsonl"), PathCheckWrite, cfg)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)

	// Relative allowed_paths entries are ignored.
	cfg.AllowedPaths = append(cfg.AllowedPaths, "relative/exports")
	assert.NoError(t, ValidatePath(filepath.Join(dir, "night.jsonl"), PathCheckWrite, cfg))
}

func TestValidatePath_NestedDirRefused(t *testing.T) {
	cfg, dir := exportDirConfig(t)
	nested := filepath.Join(dir, "boards")
	require.NoError(t, os.MkdirAll(nested, 0700))
	writeSceneFile(t, filepath.Join(nested, "night.jsonl"))

	for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
		err := ValidatePath(filepath.Join(nested, "night.jsonl"), mode, cfg)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "mode %d: got %v", mode, err)
	}
}

func TestValidatePath_MissingSceneFile(t *testing.T) {
	cfg, dir := exportDirConfig(t)
	missing := filepath.Join(dir, "missing.jsonl")

	err := ValidatePath(missing, PathCheckRead, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFileNotFound), "got %v", err)
	pErr, ok := err.(*errors.PoetryError)
	require.True(t, ok, "want *PoetryError, got %T", err)
	assert.Equal(t, 404, pErr.Status)
	assert.Equal(t, missing, pErr.Details["path"])

	// Exports may create the file.
	assert.NoError(t, ValidatePath(missing, PathCheckWrite, cfg))

	// The existence check survives AllowUnsafePaths.
	cfg.AllowedPaths = nil
	cfg.AllowUnsafePaths = true
	err = ValidatePath(missing, PathCheckRead, cfg)
	assert.True(t, errors.Is(err, errors.ErrFileNotFound), "got %v", err)
}

func TestValidatePath_UnsafePathsSkipDirRule(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true
	dir := filepath.Join(t.TempDir(), "deep", "er")
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "night.jsonl.zst")
	writeSceneFile(t, path)

	assert.NoError(t, ValidatePath(path, PathCheckRead, cfg))
	assert.NoError(t, ValidatePath(path, PathCheckWrite, cfg))
}

func TestValidatePath_SymlinkedSceneFile(t *testing.T) {
	cfg, dir := exportDirConfig(t)
	target := filepath.Join(t.TempDir(), "real.jsonl")
	writeSceneFile(t, target)
	link := filepath.Join(dir, "night.jsonl")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	for _, mode := range []PathCheckMode{PathCheckRead, PathCheckWrite} {
		err := ValidatePath(link, mode, cfg)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "mode %d: got %v", mode, err)
	}

	cfg.AllowUnsafePaths = true
	err := ValidatePath(link, PathCheckRead, cfg)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "unsafe: got %v", err)
}

func TestValidatePath_SymlinkedAllowedDir(t *testing.T) {
	real, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	alias := filepath.Join(t.TempDir(), "exports")
	if err := os.Symlink(real, alias); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{alias}
	writeSceneFile(t, filepath.Join(real, "night.jsonl"))

	// The entry resolves to its target, so files under the real path pass.
	assert.NoError(t, ValidatePath(filepath.Join(real, "night.jsonl"), PathCheckRead, cfg))
	// The alias itself is not an allowed parent.
	err = ValidatePath(filepath.Join(alias, "night.jsonl"), PathCheckRead, cfg)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestHasDotDot(t *testing.T) {
	assert.True(t, hasDotDot(".."))
	assert.True(t, hasDotDot("a/../b.jsonl"))
	assert.False(t, hasDotDot("a/..b/c.jsonl"))
	assert.False(t, hasDotDot("night..jsonl"))
	assert.False(t, hasDotDot("/tmp/exports/night.jsonl"))
}

func TestCompositionFileStem(t *testing.T) {
	tests := map[string]string{
		"night":            "night",
		"night sky":        "night-sky",
		"../evil/night":    "evil-night",
		`a\b`:              "a-b",
		"dawn\x00\nchorus": "dawnchorus",
		"...":              "untitled",
		"///":              "untitled",
		"":                 "untitled",
		"moon.v2":          "moon.v2",
	}
	for in, want := range tests {
		assert.Equal(t, want, compositionFileStem(in), "stem of %q", in)
	}
}
