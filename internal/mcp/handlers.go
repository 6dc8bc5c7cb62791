package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/ops"
)

// DefaultSettle is how long card_drag holds still before releasing when the
// caller does not say.
const DefaultSettle = 5 * time.Millisecond

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db   *sql.DB
	cfg  *config.Config
	sess *ops.Session
}

// NewHandlers creates a new Handlers instance. All drags share one session,
// so a snap started by one call blocks snaps from others until it lands.
func NewHandlers(db *sql.DB, cfg *config.Config, sess *ops.Session) *Handlers {
	if sess == nil {
		sess = ops.NewSession(nil)
	}
	return &Handlers{db: db, cfg: cfg, sess: sess}
}

// Request types for JSON decoding

// BoxListRequest represents the input for box_list.
type BoxListRequest struct {
	Category     string `json:"category,omitempty"`
	IncludeWords bool   `json:"include_words,omitempty"`
}

// ReelCreateRequest represents the input for reel_create.
type ReelCreateRequest struct {
	Composition string   `json:"composition,omitempty"`
	Box         string   `json:"box,omitempty"`
	Words       []string `json:"words,omitempty"`
	Consume     bool     `json:"consume,omitempty"`
	Position    *ops.Vec `json:"position,omitempty"`
}

// ReelSpinRequest represents the input for reel_spin.
type ReelSpinRequest struct {
	ID   string  `json:"id"`
	Drag float64 `json:"drag"`
}

// ReelIDRequest represents the input for reel_pick and reel_delete.
type ReelIDRequest struct {
	ID string `json:"id"`
}

// CompositionRequest represents the input for reel_list.
type CompositionRequest struct {
	Composition string `json:"composition,omitempty"`
}

// BoardSpawnRequest represents the input for board_spawn.
type BoardSpawnRequest struct {
	Composition string   `json:"composition,omitempty"`
	Position    *ops.Vec `json:"position,omitempty"`
	Size        *ops.Vec `json:"size,omitempty"`
}

// CardDragRequest represents the input for card_drag.
type CardDragRequest struct {
	ID          string   `json:"id"`
	Translation ops.Vec  `json:"translation"`
	RotateDeg   float64  `json:"rotate_deg,omitempty"`
	Axis        *ops.Vec `json:"axis,omitempty"`
	Companions  []string `json:"companions,omitempty"`
	Steps       int      `json:"steps,omitempty"`
	SettleMs    *int     `json:"settle_ms,omitempty"`
	Variant     string   `json:"variant,omitempty"`
}

// EntityListRequest represents the input for entity_list.
type EntityListRequest struct {
	Composition string `json:"composition,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// EntityRemoveRequest represents the input for entity_remove.
type EntityRemoveRequest struct {
	ID string `json:"id"`
}

// PoemComposeRequest represents the input for poem_compose.
type PoemComposeRequest struct {
	Composition string `json:"composition,omitempty"`
	BoardID     string `json:"board_id,omitempty"`
	Format      string `json:"format,omitempty"`
}

// SceneExportRequest represents the input for scene_export.
type SceneExportRequest struct {
	Composition string `json:"composition,omitempty"`
	Path        string `json:"path,omitempty"`
	Compress    bool   `json:"compress,omitempty"`
}

// SceneImportRequest represents the input for scene_import.
type SceneImportRequest struct {
	Path        string `json:"path"`
	Composition string `json:"composition,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

// Handler implementations

// HandleBoxList handles the box_list tool call.
func (h *Handlers) HandleBoxList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BoxListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Boxes(h.cfg, ops.BoxesInput{
		Category:     input.Category,
		IncludeWords: input.IncludeWords,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReelCreate handles the reel_create tool call.
func (h *Handlers) HandleReelCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReelCreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ReelCreate(h.db, h.cfg, ops.ReelCreateInput{
		Composition: input.Composition,
		Box:         input.Box,
		Words:       input.Words,
		Consume:     input.Consume,
		Position:    input.Position,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReelSpin handles the reel_spin tool call.
func (h *Handlers) HandleReelSpin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReelSpinRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ReelSpin(h.db, ops.ReelSpinInput{ID: input.ID, Drag: input.Drag})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReelPick handles the reel_pick tool call.
func (h *Handlers) HandleReelPick(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReelIDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ReelPick(h.db, ops.ReelPickInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReelList handles the reel_list tool call.
func (h *Handlers) HandleReelList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CompositionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ReelList(h.db, ops.ReelListInput{Composition: input.Composition})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReelDelete handles the reel_delete tool call.
func (h *Handlers) HandleReelDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReelIDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ReelDelete(h.db, ops.ReelDeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleBoardSpawn handles the board_spawn tool call.
func (h *Handlers) HandleBoardSpawn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[BoardSpawnRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.BoardSpawn(h.db, ops.BoardSpawnInput{
		Composition: input.Composition,
		Position:    input.Position,
		Size:        input.Size,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCardDrag handles the card_drag tool call.
func (h *Handlers) HandleCardDrag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CardDragRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	settle := DefaultSettle
	if input.SettleMs != nil {
		if *input.SettleMs < 0 {
			return errorResult(errors.NewInvalidRequest("settle_ms must not be negative")), nil
		}
		settle = time.Duration(*input.SettleMs) * time.Millisecond
	}

	result, err := ops.Drag(ctx, h.db, h.cfg, h.sess, ops.DragInput{
		ID:          input.ID,
		Translation: input.Translation,
		RotateDeg:   input.RotateDeg,
		Axis:        input.Axis,
		Companions:  input.Companions,
		Steps:       input.Steps,
		Settle:      settle,
		Variant:     input.Variant,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEntityList handles the entity_list tool call.
func (h *Handlers) HandleEntityList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntityListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.EntityList(h.db, ops.EntityListInput{
		Composition: input.Composition,
		Kind:        input.Kind,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEntityRemove handles the entity_remove tool call.
func (h *Handlers) HandleEntityRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntityRemoveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.EntityRemove(h.db, ops.EntityRemoveInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePoemCompose handles the poem_compose tool call.
func (h *Handlers) HandlePoemCompose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PoemComposeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Compose(h.db, ops.ComposeInput{
		Composition: input.Composition,
		BoardID:     input.BoardID,
		Format:      input.Format,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSceneExport handles the scene_export tool call.
func (h *Handlers) HandleSceneExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SceneExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		Composition: input.Composition,
		Path:        input.Path,
		Compress:    input.Compress,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSceneImport handles the scene_import tool call.
func (h *Handlers) HandleSceneImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SceneImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(h.db, h.cfg, ops.ImportInput{
		Path:        input.Path,
		Composition: input.Composition,
		Mode:        ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var pErr *errors.PoetryError
	if stderrors.As(err, &pErr) {
		msg := pErr.Message
		// Keep wrapper context ("step 3: ...") in front of the message.
		if full := err.Error(); full != pErr.Error() {
			msg = strings.TrimSuffix(full, pErr.Error()) + pErr.Message
		}
		errorObj := map[string]any{
			"code":    pErr.Code,
			"message": msg,
			"status":  pErr.Status,
		}
		if pErr.Code != errors.ErrInternal && pErr.Details != nil {
			errorObj["details"] = pErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
