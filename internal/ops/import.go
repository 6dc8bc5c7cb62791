package ops

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/klauspost/compress/zstd"

	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/db"
	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/scene"
)

// MaxImportFileSize bounds the size of an import file on disk.
const MaxImportFileSize = 64 << 20

// maxImportLine bounds a single JSONL line.
const maxImportLine = 1 << 20

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on collision (atomic)
	ImportModeReplace ImportMode = "replace" // overwrite entities of the target composition
	ImportModeRename  ImportMode = "rename"  // give colliding entities fresh IDs
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path        string     // required
	Composition string     // target; defaults to the composition named in the header
	Mode        ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Composition string        `json:"composition"`
	Imported    int           `json:"imported"`
	Skipped     int           `json:"skipped"`
	Renamed     int           `json:"renamed"`
	Errors      []ImportError `json:"errors"`
}

// ImportError represents an error that occurred during import.
type ImportError struct {
	Line    int    `json:"line,omitempty"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type importRecord struct {
	line   int
	entity scene.Entity
}

// Import loads entities from a scene export into a composition. Links and
// board references are restored between imported entities; references to
// entities that are not in the target composition are dropped.
func Import(database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeRename {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, rename")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := err.(*errors.PoetryError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if info.Size() > MaxImportFileSize {
		return nil, errors.NewFileTooLarge(MaxImportFileSize, info.Size())
	}

	var r io.Reader = file
	if isCompressed(input.Path) {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid zstd stream: %v", err))
		}
		defer dec.Close()
		r = dec
	}

	header, records, parseErrors := parseExport(r)
	if input.Mode == ImportModeError && len(parseErrors) > 0 {
		return &ImportOutput{Errors: parseErrors}, nil
	}

	comp := input.Composition
	if strings.TrimSpace(comp) == "" && header != nil {
		comp = header.Composition
	}
	comp = NormalizeComposition(comp)

	out := &ImportOutput{Composition: comp, Errors: parseErrors, Skipped: len(parseErrors)}
	if out.Errors == nil {
		out.Errors = []ImportError{}
	}

	s, err := db.LoadScene(database, comp)
	if err != nil {
		return nil, err
	}

	// Resolve collisions and final IDs before touching the scene.
	ids := make(map[string]string, len(records))
	var kept []importRecord
	for _, rec := range records {
		id := rec.entity.ID
		if _, dup := ids[id]; dup {
			ie := ImportError{Line: rec.line, ID: id, Code: "DUPLICATE_ID", Message: "id appears more than once in the file"}
			if input.Mode == ImportModeError {
				return &ImportOutput{Composition: comp, Errors: []ImportError{ie}}, nil
			}
			out.Errors = append(out.Errors, ie)
			out.Skipped++
			continue
		}

		existing, err := db.GetEntity(database, id)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			switch input.Mode {
			case ImportModeError:
				return &ImportOutput{Composition: comp, Errors: []ImportError{{
					Line: rec.line, ID: id, Code: "ID_COLLISION",
					Message: fmt.Sprintf("entity %q already exists in composition %q", id, existing.Composition),
				}}}, nil
			case ImportModeReplace:
				if existing.Composition != comp {
					out.Errors = append(out.Errors, ImportError{
						Line: rec.line, ID: id, Code: "ID_COLLISION",
						Message: fmt.Sprintf("entity %q belongs to composition %q", id, existing.Composition),
					})
					out.Skipped++
					ids[id] = ""
					continue
				}
			case ImportModeRename:
				newID, err := generateULID()
				if err != nil {
					return nil, errors.NewInternal(err)
				}
				ids[id] = newID
				out.Renamed++
				kept = append(kept, rec)
				continue
			}
		}
		ids[id] = id
		kept = append(kept, rec)
	}

	// resolve maps a reference from the file to an entity in the scene.
	resolve := func(ref string) string {
		if ref == "" {
			return ""
		}
		if mapped, ok := ids[ref]; ok {
			return mapped
		}
		if _, ok := s.Get(ref); ok {
			return ref
		}
		return ""
	}

	type pending struct {
		id, next, board string
	}
	var refs []pending
	for _, rec := range kept {
		e := rec.entity.Clone()
		p := pending{id: ids[e.ID], board: e.BoardID}
		if e.Connectable != nil {
			p.next = e.Connectable.Next
			e.Connectable.Prev = ""
			e.Connectable.Next = ""
		}
		e.ID = p.id
		e.Composition = comp
		e.BoardID = ""

		if _, ok := s.Get(e.ID); ok {
			if err := s.Remove(e.ID); err != nil {
				return nil, err
			}
		}
		if err := s.Add(e); err != nil {
			return nil, err
		}
		refs = append(refs, p)
		out.Imported++
	}

	for _, p := range refs {
		if next := resolve(p.next); next != "" {
			if err := s.Link(p.id, next); err != nil {
				out.Errors = append(out.Errors, ImportError{ID: p.id, Code: "LINK_SKIPPED", Message: err.Error()})
			}
		}
		if board := resolve(p.board); board != "" {
			if err := s.SetBoard(p.id, board); err != nil {
				out.Errors = append(out.Errors, ImportError{ID: p.id, Code: "BOARD_SKIPPED", Message: err.Error()})
			}
		}
	}

	if err := db.SaveScene(database, comp, s); err != nil {
		return nil, err
	}
	return out, nil
}

// parseExport reads the header and entity records of an export stream.
func parseExport(r io.Reader) (*ExportHeader, []importRecord, []ImportError) {
	var (
		header      *ExportHeader
		records     []importRecord
		parseErrors []ImportError
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLine)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var marker struct {
			Export bool `json:"_poetrybox_export"`
		}
		if err := json.Unmarshal(line, &marker); err != nil {
			parseErrors = append(parseErrors, ImportError{Line: lineNum, Code: "PARSE_ERROR", Message: fmt.Sprintf("invalid JSON: %v", err)})
			continue
		}
		if marker.Export {
			var h ExportHeader
			if err := json.Unmarshal(line, &h); err != nil {
				parseErrors = append(parseErrors, ImportError{Line: lineNum, Code: "PARSE_ERROR", Message: fmt.Sprintf("invalid header: %v", err)})
				continue
			}
			header = &h
			continue
		}

		var e scene.Entity
		if err := json.Unmarshal(line, &e); err != nil {
			parseErrors = append(parseErrors, ImportError{Line: lineNum, Code: "PARSE_ERROR", Message: fmt.Sprintf("invalid entity: %v", err)})
			continue
		}
		if err := checkImported(&e); err != nil {
			parseErrors = append(parseErrors, ImportError{Line: lineNum, ID: e.ID, Code: "INVALID_RECORD", Message: err.Error()})
			continue
		}
		records = append(records, importRecord{line: lineNum, entity: e})
	}
	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{Line: lineNum, Code: "READ_ERROR", Message: fmt.Sprintf("failed to read file: %v", err)})
	}
	return header, records, parseErrors
}

// checkImported validates an entity record and fills in what a card can
// derive from its word.
func checkImported(e *scene.Entity) error {
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		return fmt.Errorf("missing id field")
	}
	if err := Vec(e.Position).validate("position"); err != nil {
		return err
	}
	switch e.Kind {
	case scene.KindCard:
		w, err := normalizeWord(e.Word)
		if err != nil {
			return err
		}
		e.Word = w
		if e.Extents == (mgl64.Vec3{}) {
			e.Extents = scene.CardExtents(w)
		}
		if e.Connectable == nil {
			e.Connectable = &scene.Connectable{Points: scene.CardPoints(e.Extents)}
		}
	case scene.KindBoard:
		if e.Extents[0] <= 0 || e.Extents[1] <= 0 || e.Extents[2] < 0 {
			return fmt.Errorf("board extents must be positive")
		}
		e.Connectable = nil
		e.Word = ""
	default:
		return fmt.Errorf("kind must be card or board")
	}
	return nil
}
