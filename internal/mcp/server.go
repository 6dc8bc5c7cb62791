package mcp

import (
	"database/sql"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"box", "reel", "board", "card", "entity", "poem", "scene"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"box_list": {
		def:     boxListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBoxList },
	},
	"reel_create": {
		def:     reelCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReelCreate },
	},
	"reel_spin": {
		def:     reelSpinToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReelSpin },
	},
	"reel_pick": {
		def:     reelPickToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReelPick },
	},
	"reel_list": {
		def:     reelListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReelList },
	},
	"reel_delete": {
		def:     reelDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReelDelete },
	},
	"board_spawn": {
		def:     boardSpawnToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBoardSpawn },
	},
	"card_drag": {
		def:     cardDragToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCardDrag },
	},
	"entity_list": {
		def:     entityListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntityList },
	},
	"entity_remove": {
		def:     entityRemoveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEntityRemove },
	},
	"poem_compose": {
		def:     poemComposeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePoemCompose },
	},
	"scene_export": {
		def:     sceneExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSceneExport },
	},
	"scene_import": {
		def:     sceneImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSceneImport },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "reel_pick" → "reel").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	// Build set of types for O(1) lookup
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	// Collect tools belonging to disabled types
	tools := make([]string, 0)
	for name := range toolRegistry {
		typ := GetTypeForTool(name)
		if typeSet[typ] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with poetrybox tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration. A nil session gets a fresh one.
func NewServer(db *sql.DB, cfg *config.Config, sess *ops.Session, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"poetrybox",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg, sess)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, sess *ops.Session, version string) error {
	s := NewServer(db, cfg, sess, version)
	return server.ServeStdio(s)
}
