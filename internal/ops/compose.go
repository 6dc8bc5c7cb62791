package ops

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/hpungsan/poetrybox/internal/db"
	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/scene"
)

// RowTolerance is how far apart, vertically, two chains may start and still
// read as one row: half a card's height.
const RowTolerance = (scene.CardTextHeight + scene.CardPadY) / 2

// Compose output formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// ComposeInput contains parameters for the Compose operation.
type ComposeInput struct {
	Composition string
	BoardID     string // only chains starting on this board
	Format      string // "markdown" (default) or "text"
}

// PoemLine is one linked run of cards.
type PoemLine struct {
	Text    string   `json:"text"`
	CardIDs []string `json:"card_ids"`
	Row     int      `json:"row"`
}

// ComposeOutput contains the result of the Compose operation.
type ComposeOutput struct {
	Composition string     `json:"composition"`
	Format      string     `json:"format"`
	Lines       []PoemLine `json:"lines"`
	Poem        string     `json:"poem"`
}

// Compose reads the composition as a poem. Each chain of linked cards is one
// line; lines run top to bottom, and chains sharing a row left to right.
func Compose(database *sql.DB, input ComposeInput) (*ComposeOutput, error) {
	format := strings.ToLower(strings.TrimSpace(input.Format))
	if format == "" {
		format = FormatMarkdown
	}
	if format != FormatMarkdown && format != FormatText {
		return nil, errors.NewInvalidRequest("format must be markdown or text")
	}
	comp := NormalizeComposition(input.Composition)

	s, err := db.LoadScene(database, comp)
	if err != nil {
		return nil, err
	}
	boardID := strings.TrimSpace(input.BoardID)
	if boardID != "" {
		if b, ok := s.Get(boardID); !ok || b.Kind != scene.KindBoard {
			return nil, errors.NewNotFound(boardID)
		}
	}

	lines := PoemLines(s, boardID)
	return &ComposeOutput{
		Composition: comp,
		Format:      format,
		Lines:       lines,
		Poem:        RenderPoem(comp, lines, format),
	}, nil
}

// PoemLines orders the scene's chains into lines. A non-empty boardID keeps
// only chains whose first card rests on that board.
func PoemLines(s *scene.Scene, boardID string) []PoemLine {
	chains := scene.Chains(s)
	kept := chains[:0]
	for _, ch := range chains {
		if boardID != "" && ch[0].BoardID != boardID {
			continue
		}
		kept = append(kept, ch)
	}

	// Highest first; stable keeps insertion order for equal heights.
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i][0].Position[1] > kept[j][0].Position[1]
	})

	rows := make([]int, len(kept))
	row, top := 0, 0.0
	for i, ch := range kept {
		y := ch[0].Position[1]
		if i == 0 {
			top = y
		} else if top-y > RowTolerance {
			row++
			top = y
		}
		rows[i] = row
	}

	idx := make([]int, len(kept))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if rows[ia] != rows[ib] {
			return rows[ia] < rows[ib]
		}
		return kept[ia][0].Position[0] < kept[ib][0].Position[0]
	})

	lines := make([]PoemLine, 0, len(kept))
	for _, i := range idx {
		ch := kept[i]
		words := make([]string, 0, len(ch))
		ids := make([]string, 0, len(ch))
		for _, c := range ch {
			words = append(words, c.Word)
			ids = append(ids, c.ID)
		}
		lines = append(lines, PoemLine{Text: strings.Join(words, " "), CardIDs: ids, Row: rows[i]})
	}
	return lines
}

// RenderPoem formats lines. Markdown gets a title and hard line breaks.
func RenderPoem(title string, lines []PoemLine, format string) string {
	var b strings.Builder
	if format == FormatText {
		for _, l := range lines {
			b.WriteString(l.Text)
			b.WriteByte('\n')
		}
		return b.String()
	}

	fmt.Fprintf(&b, "# %s\n\n", title)
	for i, l := range lines {
		if i > 0 {
			b.WriteString("  \n")
		}
		b.WriteString(l.Text)
	}
	if len(lines) > 0 {
		b.WriteByte('\n')
	}
	return b.String()
}
