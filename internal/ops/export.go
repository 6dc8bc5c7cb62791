package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/db"
	"github.com/hpungsan/poetrybox/internal/errors"
)

// ExportSchemaVersion is written into every export header.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Composition string
	Path        string // optional, default: ~/.poetrybox/exports/<composition>-<timestamp>.jsonl
	Compress    bool   // default path gets .jsonl.zst; explicit paths decide by extension
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path        string `json:"path"`
	Composition string `json:"composition"`
	Count       int    `json:"count"`
	Compressed  bool   `json:"compressed"`
	ExportedAt  int64  `json:"exported_at"`
}

// ExportHeader is the first line of a scene export.
type ExportHeader struct {
	PoetryboxExport bool   `json:"_poetrybox_export"`
	SchemaVersion   string `json:"schema_version"`
	Composition     string `json:"composition"`
	Revision        int64  `json:"revision"`
	ExportedAt      int64  `json:"exported_at"`
}

// Export writes a composition's entities to a JSONL file: a header line, then
// one entity per line in scene order. Paths ending .jsonl.zst are compressed.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	now := time.Now()
	exportedAt := now.Unix()
	comp := NormalizeComposition(input.Composition)

	exportPath := input.Path
	if exportPath == "" {
		var err error
		exportPath, err = defaultExportPath(comp, input.Compress, now)
		if err != nil {
			return nil, err
		}
	}

	// Default paths are validated too: the composition name ends up in them.
	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}
	compressed := isCompressed(exportPath)

	entities, err := db.ListEntities(database, comp, "")
	if err != nil {
		return nil, err
	}
	rev, err := db.Revision(database, comp)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to a temp file, then rename, so a failed export leaves any existing file intact.
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	var w io.Writer = file
	var enc *zstd.Encoder
	if compressed {
		enc, err = zstd.NewWriter(file)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		w = enc
	}
	je := json.NewEncoder(w)

	header := ExportHeader{
		PoetryboxExport: true,
		SchemaVersion:   ExportSchemaVersion,
		Composition:     comp,
		Revision:        rev,
		ExportedAt:      exportedAt,
	}
	if err := je.Encode(header); err != nil {
		return nil, errors.NewInternal(err)
	}

	count := 0
	for _, e := range entities {
		select {
		case <-ctx.Done():
			return nil, errors.NewCancelled("export")
		default:
		}
		if err := je.Encode(e); err != nil {
			return nil, errors.NewInternal(err)
		}
		count++
	}

	if enc != nil {
		if err := enc.Close(); err != nil {
			return nil, errors.NewInternal(err)
		}
	}
	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:        exportPath,
		Composition: comp,
		Count:       count,
		Compressed:  compressed,
		ExportedAt:  exportedAt,
	}, nil
}

// defaultExportPath returns ~/.poetrybox/exports/<composition>-<timestamp>.jsonl[.zst].
func defaultExportPath(composition string, compress bool, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	ext := ExtJSONL
	if compress {
		ext = ExtZstd
	}
	filename := fmt.Sprintf("%s-%s%s", compositionFileStem(composition), now.Format("2006-01-02T150405"), ext)
	return filepath.Join(dir, filename), nil
}
