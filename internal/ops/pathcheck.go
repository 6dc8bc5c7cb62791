package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/errors"
)

// PathCheckMode says whether a scene file is about to be read or written.
type PathCheckMode int

const (
	PathCheckRead  PathCheckMode = iota // import
	PathCheckWrite                      // export
)

// Scene export extensions. Files ending in ExtZstd are zstd-compressed.
const (
	ExtJSONL = ".jsonl"
	ExtZstd  = ".jsonl.zst"
)

func isCompressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ExtZstd)
}

func hasSceneExt(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ExtJSONL) || strings.HasSuffix(lower, ExtZstd)
}

// ValidatePath decides whether a scene file may be imported from or
// exported to path.
//
// The file must sit directly in the exports directory or one of the
// configured allowed_paths; nested directories are refused so no
// intermediate component can be swapped for a symlink after the check.
// AllowUnsafePaths lifts the directory rule only. Symlinked files are
// always refused since import and export open with O_NOFOLLOW.
func ValidatePath(path string, mode PathCheckMode, cfg *config.Config) error {
	abs, err := sceneFilePath(path)
	if err != nil {
		return err
	}

	if cfg == nil || !cfg.AllowUnsafePaths {
		dirs, err := exportDirs(cfg)
		if err != nil {
			return err
		}
		parent := filepath.Dir(abs)
		if !inAnyDir(parent, dirs) {
			return errors.NewInvalidRequest(fmt.Sprintf(
				"scene file must be directly in an export directory; allowed: %v", dirs))
		}
		if isSymlink(parent) {
			return errors.NewInvalidRequest("export directory must not be a symlink")
		}
	}

	if mode == PathCheckRead {
		if _, err := os.Stat(abs); os.IsNotExist(err) {
			return errors.NewFileNotFound(path)
		}
	}
	if isSymlink(abs) {
		return errors.NewInvalidRequest("scene file must not be a symlink")
	}
	return nil
}

// sceneFilePath checks the shape of path and returns it absolute.
func sceneFilePath(path string) (string, error) {
	if path == "" {
		return "", errors.NewInvalidRequest("path is required")
	}
	if hasDotDot(path) {
		return "", errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}
	cleaned := filepath.Clean(path)
	if !hasSceneExt(cleaned) {
		return "", errors.NewInvalidRequest("scene file must end in .jsonl or .jsonl.zst")
	}
	abs, err := filepath.Abs(cleaned)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid path: %v", err))
	}
	return abs, nil
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// exportDirs lists the directories scene files may live in. Symlinked
// entries resolve to their targets so the comparison is on real paths.
func exportDirs(cfg *config.Config) ([]string, error) {
	def, err := DefaultExportsDir()
	if err != nil {
		return nil, err
	}
	candidates := []string{def}
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				candidates = append(candidates, p)
			}
		}
	}

	dirs := make([]string, 0, len(candidates))
	for _, d := range candidates {
		d = filepath.Clean(d)
		if isSymlink(d) {
			real, err := filepath.EvalSymlinks(d)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve allowed path %s: %v", d, err))
			}
			d = real
		}
		dirs = append(dirs, d)
	}
	return dirs, nil
}

func inAnyDir(parent string, dirs []string) bool {
	parent = filepath.Clean(parent)
	for _, d := range dirs {
		if parent == d {
			return true
		}
	}
	return false
}

// DefaultExportsDir returns ~/.poetrybox/exports.
func DefaultExportsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}
	return filepath.Join(home, ".poetrybox", "exports"), nil
}

// hasDotDot reports a ".." component under either separator.
func hasDotDot(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	}) {
		if part == ".." {
			return true
		}
	}
	return false
}

// compositionFileStem turns a composition name into the stem of an
// export file name. Separators and dot runs become dashes, control
// characters are dropped, and an empty result falls back to "untitled".
func compositionFileStem(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ' ':
			b.WriteByte('-')
		case r < 32 || r == 127:
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", "-")
	}
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-.")
	if s == "" {
		return "untitled"
	}
	return s
}
