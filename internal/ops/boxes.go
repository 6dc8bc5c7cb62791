package ops

import (
	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/wordlist"
)

// BoxesInput contains parameters for the Boxes operation.
type BoxesInput struct {
	Category     string // optional filter, case-insensitive
	IncludeWords bool
}

// BoxSummary describes one word box.
type BoxSummary struct {
	Title     string   `json:"title"`
	Category  string   `json:"category"`
	Color     string   `json:"color"`
	WordCount int      `json:"word_count"`
	Words     []string `json:"words,omitempty"`
}

// BoxesOutput contains the result of the Boxes operation.
type BoxesOutput struct {
	Boxes []BoxSummary `json:"boxes"`
}

// Boxes lists the word boxes available to reels.
func Boxes(cfg *config.Config, input BoxesInput) (*BoxesOutput, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	filter := NormalizeComposition(input.Category)
	out := &BoxesOutput{Boxes: []BoxSummary{}}
	for _, cat := range catalog.Categories {
		if input.Category != "" && NormalizeComposition(cat.Category) != filter {
			continue
		}
		for _, wl := range cat.WordLists {
			b := BoxSummary{
				Title:     wl.Title,
				Category:  cat.Category,
				Color:     wl.ColorName(),
				WordCount: len(wl.Words),
			}
			if input.IncludeWords {
				b.Words = append([]string(nil), wl.Words...)
			}
			out.Boxes = append(out.Boxes, b)
		}
	}
	return out, nil
}

func loadCatalog(cfg *config.Config) (*wordlist.Catalog, error) {
	path := ""
	if cfg != nil {
		path = cfg.WordlistPath
	}
	return wordlist.Load(path)
}
