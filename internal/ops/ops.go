package ops

import (
	"crypto/rand"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/poetrybox/internal/errors"
)

// DefaultComposition is used when no composition name is given.
const DefaultComposition = "default"

// MaxWordLength bounds a single word on a reel or card.
const MaxWordLength = 64

// MaxReelWords bounds the number of words on a reel.
const MaxReelWords = 500

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeComposition trims, lowercases and collapses internal whitespace.
// Empty names become DefaultComposition.
func NormalizeComposition(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = whitespaceRegex.ReplaceAllString(name, " ")
	if name == "" {
		return DefaultComposition
	}
	return name
}

// Vec is a position or translation as it appears in requests.
type Vec [3]float64

// Vec3 converts to a mathgl vector.
func (v Vec) Vec3() mgl64.Vec3 { return mgl64.Vec3(v) }

// validate rejects NaN and infinite components.
func (v Vec) validate(field string) error {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return errors.NewInvalidRequest(field + " must be finite")
		}
	}
	return nil
}

// normalizeWord trims a word and checks its length.
func normalizeWord(w string) (string, error) {
	w = strings.TrimSpace(w)
	if w == "" {
		return "", errors.NewInvalidRequest("word must not be empty")
	}
	if len([]rune(w)) > MaxWordLength {
		return "", errors.NewInvalidRequest("word is too long")
	}
	return w, nil
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
