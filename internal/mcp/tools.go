package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var vec3Items = map[string]any{"type": "number"}

var boxListToolDef = mcp.NewTool("box_list",
	mcp.WithDescription("List the word boxes reels can be filled from."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("category", mcp.Description("Only boxes in this category (case-insensitive)")),
	mcp.WithBoolean("include_words", mcp.Description("Include each box's words")),
)

var reelCreateToolDef = mcp.NewTool("reel_create",
	mcp.WithDescription("Create a word reel from a box or an explicit word list. Exactly one of box or words is required."),
	mcp.WithString("composition", mcp.Description("Composition name (default: \"default\")")),
	mcp.WithString("box", mcp.Description("Title of a word box")),
	mcp.WithArray("words", mcp.Description("Explicit words"), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithBoolean("consume", mcp.Description("Picked words leave the reel")),
	mcp.WithArray("position", mcp.Description("Reel center [x, y, z] in meters"), mcp.Items(vec3Items)),
)

var reelSpinToolDef = mcp.NewTool("reel_spin",
	mcp.WithDescription("Turn a reel by a vertical drag distance. Positive turns it forward."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Reel ID")),
	mcp.WithNumber("drag", mcp.Required(), mcp.Description("Drag distance in meters")),
)

var reelPickToolDef = mcp.NewTool("reel_pick",
	mcp.WithDescription("Pull the word in the middle slot of a reel out as a card."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Reel ID")),
)

var reelListToolDef = mcp.NewTool("reel_list",
	mcp.WithDescription("List the reels of a composition."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("composition", mcp.Description("Composition name (default: \"default\")")),
)

var reelDeleteToolDef = mcp.NewTool("reel_delete",
	mcp.WithDescription("Delete a reel. Cards already picked from it stay."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("id", mcp.Required(), mcp.Description("Reel ID")),
)

var boardSpawnToolDef = mcp.NewTool("board_spawn",
	mcp.WithDescription("Place a board that cards can be snapped onto."),
	mcp.WithString("composition", mcp.Description("Composition name (default: \"default\")")),
	mcp.WithArray("position", mcp.Description("Board center [x, y, z] in meters"), mcp.Items(vec3Items)),
	mcp.WithArray("size", mcp.Description("Full board size [w, h, d] in meters"), mcp.Items(vec3Items)),
)

var cardDragToolDef = mcp.NewTool("card_drag",
	mcp.WithDescription("Drag a card or board by a translation, release it, and snap it to the nearest compatible target."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entity ID")),
	mcp.WithArray("translation", mcp.Required(), mcp.Description("Total move [dx, dy, dz] in meters"), mcp.Items(vec3Items)),
	mcp.WithNumber("rotate_deg", mcp.Description("Rotation over the gesture, in degrees")),
	mcp.WithArray("axis", mcp.Description("Rotation axis (default [0, 0, 1])"), mcp.Items(vec3Items)),
	mcp.WithArray("companions", mcp.Description("IDs of entities that move along"), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithNumber("steps", mcp.Description("Drag updates to replay (default 1, max 1000)")),
	mcp.WithNumber("settle_ms", mcp.Description("Pause before release in milliseconds (default 5)")),
	mcp.WithString("variant", mcp.Description("Snap variant override"), mcp.Enum("bounds", "connectors")),
)

var entityListToolDef = mcp.NewTool("entity_list",
	mcp.WithDescription("List the cards and boards of a composition in insertion order."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("composition", mcp.Description("Composition name (default: \"default\")")),
	mcp.WithString("kind", mcp.Description("Only this kind"), mcp.Enum("card", "board")),
)

var entityRemoveToolDef = mcp.NewTool("entity_remove",
	mcp.WithDescription("Remove a card or board. Neighbours are unlinked; cards on a removed board are released."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("id", mcp.Required(), mcp.Description("Entity ID")),
)

var poemComposeToolDef = mcp.NewTool("poem_compose",
	mcp.WithDescription("Read the linked word chains of a composition as a poem, top to bottom, left to right."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("composition", mcp.Description("Composition name (default: \"default\")")),
	mcp.WithString("board_id", mcp.Description("Only chains starting on this board")),
	mcp.WithString("format", mcp.Description("Output format (default: markdown)"), mcp.Enum("markdown", "text")),
)

var sceneExportToolDef = mcp.NewTool("scene_export",
	mcp.WithDescription("Export a composition to a JSONL file. Paths ending .jsonl.zst are zstd-compressed."),
	mcp.WithString("composition", mcp.Description("Composition name (default: \"default\")")),
	mcp.WithString("path", mcp.Description("Output path (default: ~/.poetrybox/exports/<composition>-<timestamp>.jsonl)")),
	mcp.WithBoolean("compress", mcp.Description("Compress the default path")),
)

var sceneImportToolDef = mcp.NewTool("scene_import",
	mcp.WithDescription("Import a composition from a JSONL or JSONL.zst export."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Export file path")),
	mcp.WithString("composition", mcp.Description("Target composition (default: the one in the file)")),
	mcp.WithString("mode", mcp.Description("Collision handling (default: error)"), mcp.Enum("error", "replace", "rename")),
)
