// Package wordlist loads the boxes of words users compose with.
//
// Word data is a list of categories, each holding titled word lists. It is
// read from JSON or YAML and checked against an embedded JSON schema before
// use. A default set ships inside the binary.
package wordlist

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/poetrybox/internal/errors"
)

//go:embed schema.json
var schemaJSON []byte

//go:embed default.json
var defaultJSON []byte

const schemaURL = "poetrybox://wordlist.schema.json"

// WordList is a box of words.
type WordList struct {
	Title string   `json:"title" yaml:"title"`
	Color string   `json:"color,omitempty" yaml:"color,omitempty"`
	Words []string `json:"words" yaml:"words"`
}

// ColorName normalizes Color to one of the palette names; unknown colors are gray.
func (w WordList) ColorName() string {
	switch c := strings.ToLower(strings.TrimSpace(w.Color)); c {
	case "red", "green", "blue", "orange", "purple":
		return c
	default:
		return "gray"
	}
}

// Category groups word lists.
type Category struct {
	Category  string     `json:"category" yaml:"category"`
	WordLists []WordList `json:"wordlists" yaml:"wordlists"`
}

// Catalog is a loaded set of categories.
type Catalog struct {
	Categories []Category
}

// All returns every word list in category order.
func (c *Catalog) All() []WordList {
	var out []WordList
	for _, cat := range c.Categories {
		out = append(out, cat.WordLists...)
	}
	return out
}

// Find looks up a word list by title, ignoring case.
func (c *Catalog) Find(title string) (WordList, error) {
	for _, cat := range c.Categories {
		for _, wl := range cat.WordLists {
			if strings.EqualFold(wl.Title, title) {
				return wl, nil
			}
		}
	}
	return WordList{}, errors.NewNotFound(title)
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Default returns the built-in word data.
func Default() (*Catalog, error) {
	return ParseJSON(defaultJSON)
}

// Load reads word data from path. Files ending in .yaml or .yml are YAML,
// everything else JSON. An empty path yields the built-in data.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseJSON validates and decodes JSON word data.
func ParseJSON(data []byte) (*Catalog, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid word data JSON: %v", err))
	}
	return decode(raw)
}

// ParseYAML validates and decodes YAML word data.
func ParseYAML(data []byte) (*Catalog, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid word data YAML: %v", err))
	}
	// Round-trip through JSON so the validator sees JSON value types.
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid word data YAML: %v", err))
	}
	return ParseJSON(b)
}

func decode(raw any) (*Catalog, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := s.Validate(raw); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("word data does not match schema: %v", err))
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	var cats []Category
	if err := json.Unmarshal(b, &cats); err != nil {
		return nil, errors.NewInternal(err)
	}
	return &Catalog{Categories: cats}, nil
}
