package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/poetrybox/internal/snap"
)

// Config holds application configuration.
type Config struct {
	// SnapVariant selects the snap behaviour: "bounds" snaps cards onto boards,
	// "connectors" snaps word chains together.
	SnapVariant string `json:"snap_variant,omitempty"`

	// MaxSnapDistance is the exclusive snap range. Squared distance for the
	// bounds variant, plain distance for connectors.
	MaxSnapDistance float64 `json:"max_snap_distance,omitempty"`

	// SnapDurationMs is the length of the snap animation.
	SnapDurationMs int `json:"snap_duration_ms,omitempty"`

	// SnapEpsilonNs is the quiescence window. A drag released within this many
	// nanoseconds of its last move does not snap.
	SnapEpsilonNs int64 `json:"snap_epsilon_ns,omitempty"`

	// FrameRateHz sets the animation step rate.
	FrameRateHz int `json:"frame_rate_hz,omitempty"`

	// OrientationTolerance is how far |dot| of two connector directions may
	// stray from 1 and still snap.
	OrientationTolerance float64 `json:"orientation_tolerance,omitempty"`

	// LeaveResidual skips writing the exact target pose after the last
	// animation step, leaving whatever the easing curve reached.
	LeaveResidual bool `json:"leave_residual,omitempty"`

	// ConsumeWords removes a picked word from its reel instead of leaving a copy.
	ConsumeWords bool `json:"consume_words,omitempty"`

	// WordlistPath points at a JSON or YAML word data file.
	// Empty uses the built-in boxes.
	WordlistPath string `json:"wordlist_path,omitempty"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.poetrybox/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// When true, any directory is allowed (but symlink and extension checks still apply).
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// All tools belonging to disabled types are excluded from registration.
	// Known types: "box", "reel", "board", "card", "entity", "poem", "scene".
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SnapVariant:          string(snap.VariantConnectors),
		MaxSnapDistance:      snap.DefaultMaxDistance,
		SnapDurationMs:       int(snap.DefaultDuration / time.Millisecond),
		SnapEpsilonNs:        int64(snap.DefaultEpsilon),
		FrameRateHz:          snap.DefaultFrameRateHz,
		OrientationTolerance: snap.DefaultOrientationTolerance,
	}
}

// SnapParams converts the snap settings. An unknown variant is an error.
func (c *Config) SnapParams() (snap.Params, error) {
	v, err := snap.ParseVariant(c.SnapVariant)
	if err != nil {
		return snap.Params{}, err
	}
	p := snap.Params{
		Variant:              v,
		MaxDistance:          c.MaxSnapDistance,
		Duration:             time.Duration(c.SnapDurationMs) * time.Millisecond,
		Epsilon:              time.Duration(c.SnapEpsilonNs),
		FrameInterval:        snap.FrameInterval(c.FrameRateHz),
		OrientationTolerance: c.OrientationTolerance,
		ForceLanding:         !c.LeaveResidual,
	}
	if err := p.Validate(); err != nil {
		return snap.Params{}, err
	}
	return p, nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.poetrybox.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.poetrybox) and repo (.poetrybox) directories.
// Repo config is found by walking upward from startDir to find the nearest .poetrybox/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .poetrybox/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".poetrybox", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.SnapVariant = pick(overlay.SnapVariant, base.SnapVariant)
	result.WordlistPath = pick(overlay.WordlistPath, base.WordlistPath)
	result.MaxSnapDistance = pick(overlay.MaxSnapDistance, base.MaxSnapDistance)
	result.SnapDurationMs = pick(overlay.SnapDurationMs, base.SnapDurationMs)
	result.SnapEpsilonNs = pick(overlay.SnapEpsilonNs, base.SnapEpsilonNs)
	result.FrameRateHz = pick(overlay.FrameRateHz, base.FrameRateHz)
	result.OrientationTolerance = pick(overlay.OrientationTolerance, base.OrientationTolerance)
	result.DBMaxOpenConns = pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.LeaveResidual = base.LeaveResidual || overlay.LeaveResidual
	result.ConsumeWords = base.ConsumeWords || overlay.ConsumeWords

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

// pick returns overlay unless it is the zero value.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
