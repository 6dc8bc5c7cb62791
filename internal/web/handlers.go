package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/db"
	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/ops"
	"github.com/hpungsan/poetrybox/internal/scene"
)

// DefaultPollInterval is how often a stream checks its composition for changes.
const DefaultPollInterval = 250 * time.Millisecond

const writeWait = 5 * time.Second

// Handlers contains HTTP route handlers for the viewer.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
	logger   *log.Logger

	upgrader     websocket.Upgrader
	pollInterval time.Duration
}

// SceneMessage is a full snapshot of a composition. The stream sends one
// every time the composition's revision changes.
type SceneMessage struct {
	Type        string         `json:"type"`
	Composition string         `json:"composition"`
	Revision    int64          `json:"revision"`
	Entities    []scene.Entity `json:"entities"`
	Lines       []ops.PoemLine `json:"lines"`
	Poem        string         `json:"poem"`
	PoemHTML    string         `json:"poem_html"`
	Reels       []ops.ReelView `json:"reels,omitempty"`
}

// HandleIndex handles GET /compositions: list stored compositions.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	comps, err := db.ListCompositions(h.db)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		if comps == nil {
			comps = []db.Composition{}
		}
		renderJSON(w, http.StatusOK, map[string]any{"compositions": comps})
		return
	}

	h.renderer.renderPage(w, "index", IndexPageData{
		PageData: PageData{
			Title:   "Compositions",
			Version: h.renderer.version,
			Nav:     "compositions",
		},
		Compositions: comps,
	})
}

// HandleComposition handles GET /compositions/{name}: the board view and poem.
func (h *Handlers) HandleComposition(w http.ResponseWriter, r *http.Request) {
	name := ops.NormalizeComposition(r.PathValue("name"))

	msg, err := h.snapshot(name, true)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	var boards, cards []scene.Entity
	for _, e := range msg.Entities {
		if e.Kind == scene.KindBoard {
			boards = append(boards, e)
		} else {
			cards = append(cards, e)
		}
	}

	h.renderer.renderPage(w, "composition", CompositionPageData{
		PageData: PageData{
			Title:   name,
			Version: h.renderer.version,
			Nav:     name,
		},
		Name:     name,
		Revision: msg.Revision,
		PoemHTML: renderMarkdown(msg.Poem),
		Lines:    msg.Lines,
		Boards:   boards,
		Cards:    cards,
		Reels:    msg.Reels,
		View:     buildView(msg.Entities),
	})
}

// HandleScene handles GET /compositions/{name}/scene: the snapshot as JSON.
func (h *Handlers) HandleScene(w http.ResponseWriter, r *http.Request) {
	name := ops.NormalizeComposition(r.PathValue("name"))

	msg, err := h.snapshot(name, true)
	if err != nil {
		// Always JSON here, whatever the Accept header says.
		r.Header.Set("Accept", "application/json")
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, msg)
}

// HandleStream handles GET /compositions/{name}/stream. It upgrades to a
// websocket and pushes a SceneMessage on connect and after every change.
// Client messages are ignored; the stream ends when the client goes away.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	name := ops.NormalizeComposition(r.PathValue("name"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: only there to notice the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := h.pollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := int64(-1)
	for {
		rev, err := db.Revision(h.db, name)
		if err != nil {
			h.logger.Printf("stream %s: %v", name, err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "revision lookup failed"),
				time.Now().Add(time.Second))
			return
		}
		if rev != last {
			msg, err := h.snapshot(name, false)
			if err != nil {
				h.logger.Printf("stream %s: %v", name, err)
				return
			}
			b, err := json.Marshal(msg)
			if err != nil {
				h.logger.Printf("stream %s: %v", name, err)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
			// A save between Revision and snapshot is caught next tick.
			last = rev
		}

		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
		}
	}
}

// snapshot reads a composition. With strict set, a composition that has
// never been saved and has no reels is NOT_FOUND; the stream instead waits
// for it to appear.
func (h *Handlers) snapshot(name string, strict bool) (*SceneMessage, error) {
	rev, err := db.Revision(h.db, name)
	if err != nil {
		return nil, err
	}
	list, err := ops.EntityList(h.db, ops.EntityListInput{Composition: name})
	if err != nil {
		return nil, err
	}
	reels, err := ops.ReelList(h.db, ops.ReelListInput{Composition: name})
	if err != nil {
		return nil, err
	}
	if strict && rev == 0 && len(reels.Reels) == 0 {
		return nil, errors.NewNotFound(name)
	}
	poem, err := ops.Compose(h.db, ops.ComposeInput{Composition: name, Format: ops.FormatMarkdown})
	if err != nil {
		return nil, err
	}

	lines := poem.Lines
	if lines == nil {
		lines = []ops.PoemLine{}
	}
	return &SceneMessage{
		Type:        "scene",
		Composition: name,
		Revision:    rev,
		Entities:    list.Entities,
		Lines:       lines,
		Poem:        poem.Poem,
		PoemHTML:    string(renderMarkdown(poem.Poem)),
		Reels:       reels.Reels,
	}, nil
}
