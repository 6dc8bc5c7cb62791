package main

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/poetrybox/internal/config"
	"github.com/hpungsan/poetrybox/internal/errors"
	"github.com/hpungsan/poetrybox/internal/ops"
	"github.com/hpungsan/poetrybox/internal/web"
)

// maxStdinWords caps how much a piped word list may hold.
const maxStdinWords = 64 * 1024

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, sess *ops.Session) *cli.App {
	app := &cli.App{
		Name:    "poetrybox",
		Usage:   "Magnetic poetry with word reels, boards and snapping cards",
		Version: Version,
		Commands: []*cli.Command{
			boxesCmd(cfg),
			reelCmd(db, cfg),
			boardCmd(db),
			dragCmd(db, cfg, sess),
			listCmd(db),
			removeCmd(db),
			composeCmd(db),
			exportCmd(db, cfg),
			importCmd(db, cfg),
			serveCmd(db, cfg, sess),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func compositionFlag() cli.Flag {
	return &cli.StringFlag{Name: "composition", Aliases: []string{"c"}, Value: ops.DefaultComposition, Usage: "Composition name"}
}

// boxesCmd creates the boxes command.
func boxesCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "boxes",
		Usage: "List the word boxes reels can be filled from",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Usage: "Only boxes in this category"},
			&cli.BoolFlag{Name: "words", Usage: "Include each box's words"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Boxes(cfg, ops.BoxesInput{
				Category:     c.String("category"),
				IncludeWords: c.Bool("words"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// reelCmd creates the reel command and its subcommands.
func reelCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "reel",
		Usage: "Create, spin and pick from word reels",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a reel from a box, a word list, or words piped on stdin",
				Flags: []cli.Flag{
					compositionFlag(),
					&cli.StringFlag{Name: "box", Aliases: []string{"b"}, Usage: "Word box title"},
					&cli.StringFlag{Name: "words", Usage: "Comma-separated words"},
					&cli.BoolFlag{Name: "consume", Usage: "Picked words leave the reel"},
					&cli.StringFlag{Name: "at", Usage: "Reel center as x,y,z"},
				},
				Action: func(c *cli.Context) error {
					input := ops.ReelCreateInput{
						Composition: c.String("composition"),
						Box:         c.String("box"),
						Words:       parseList(c.String("words")),
						Consume:     c.Bool("consume"),
					}
					if input.Box == "" && len(input.Words) == 0 && stdinHasData() {
						text, err := readStdin(maxStdinWords)
						if err != nil {
							return outputError(err)
						}
						input.Words = strings.Fields(text)
					}
					if at := c.String("at"); at != "" {
						v, err := parseVec(at)
						if err != nil {
							return outputError(errors.NewInvalidRequest("at: " + err.Error()))
						}
						input.Position = &v
					}

					output, err := ops.ReelCreate(db, cfg, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "spin",
				Usage:     "Turn a reel by a vertical drag distance in meters",
				ArgsUsage: "<id>",
				UsageText: "poetrybox reel spin --drag <meters> <id>",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "drag", Aliases: []string{"d"}, Required: true, Usage: "Drag distance; positive turns forward"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ReelSpin(db, ops.ReelSpinInput{ID: c.Args().First(), Drag: c.Float64("drag")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "pick",
				Usage:     "Pull the middle word of a reel out as a card",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					output, err := ops.ReelPick(db, ops.ReelPickInput{ID: c.Args().First()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "list",
				Usage: "List the reels of a composition",
				Flags: []cli.Flag{compositionFlag()},
				Action: func(c *cli.Context) error {
					output, err := ops.ReelList(db, ops.ReelListInput{Composition: c.String("composition")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a reel",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					output, err := ops.ReelDelete(db, ops.ReelDeleteInput{ID: c.Args().First()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// boardCmd creates the board command.
func boardCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "board",
		Usage: "Place a board cards can snap onto",
		Flags: []cli.Flag{
			compositionFlag(),
			&cli.StringFlag{Name: "at", Usage: "Board center as x,y,z"},
			&cli.StringFlag{Name: "size", Usage: "Full board size as w,h,d"},
		},
		Action: func(c *cli.Context) error {
			input := ops.BoardSpawnInput{Composition: c.String("composition")}
			if at := c.String("at"); at != "" {
				v, err := parseVec(at)
				if err != nil {
					return outputError(errors.NewInvalidRequest("at: " + err.Error()))
				}
				input.Position = &v
			}
			if size := c.String("size"); size != "" {
				v, err := parseVec(size)
				if err != nil {
					return outputError(errors.NewInvalidRequest("size: " + err.Error()))
				}
				input.Size = &v
			}

			output, err := ops.BoardSpawn(db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// dragCmd creates the drag command.
func dragCmd(db *sql.DB, cfg *config.Config, sess *ops.Session) *cli.Command {
	return &cli.Command{
		Name:      "drag",
		Usage:     "Drag an entity, release it, and snap it to the nearest target",
		ArgsUsage: "<id>",
		UsageText: "poetrybox drag --by dx,dy,dz [options] <id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "by", Required: true, Usage: "Translation as dx,dy,dz in meters"},
			&cli.Float64Flag{Name: "rotate", Usage: "Rotation over the gesture in degrees"},
			&cli.StringFlag{Name: "axis", Usage: "Rotation axis as x,y,z (default 0,0,1)"},
			&cli.StringFlag{Name: "with", Usage: "Comma-separated IDs that move along"},
			&cli.IntFlag{Name: "steps", Value: 1, Usage: "Drag updates to replay"},
			&cli.DurationFlag{Name: "settle", Value: 5 * time.Millisecond, Usage: "Pause before release"},
			&cli.StringFlag{Name: "variant", Usage: "Snap variant: bounds|connectors"},
		},
		Action: func(c *cli.Context) error {
			by, err := parseVec(c.String("by"))
			if err != nil {
				return outputError(errors.NewInvalidRequest("by: " + err.Error()))
			}
			input := ops.DragInput{
				ID:          c.Args().First(),
				Translation: by,
				RotateDeg:   c.Float64("rotate"),
				Companions:  parseList(c.String("with")),
				Steps:       c.Int("steps"),
				Settle:      c.Duration("settle"),
				Variant:     c.String("variant"),
			}
			if axis := c.String("axis"); axis != "" {
				v, err := parseVec(axis)
				if err != nil {
					return outputError(errors.NewInvalidRequest("axis: " + err.Error()))
				}
				input.Axis = &v
			}

			output, err := ops.Drag(c.Context, db, cfg, sess, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List the cards and boards of a composition",
		Flags: []cli.Flag{
			compositionFlag(),
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Only this kind: card|board"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.EntityList(db, ops.EntityListInput{
				Composition: c.String("composition"),
				Kind:        c.String("kind"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// removeCmd creates the remove command.
func removeCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Remove a card or board",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.EntityRemove(db, ops.EntityRemoveInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// composeCmd creates the compose command.
func composeCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "compose",
		Usage: "Read the composition's word chains as a poem",
		Flags: []cli.Flag{
			compositionFlag(),
			&cli.StringFlag{Name: "board", Usage: "Only chains starting on this board"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: ops.FormatMarkdown, Usage: "Format: markdown|text"},
			&cli.BoolFlag{Name: "raw", Usage: "Print just the poem instead of JSON"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Compose(db, ops.ComposeInput{
				Composition: c.String("composition"),
				BoardID:     c.String("board"),
				Format:      c.String("format"),
			})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("raw") {
				_, err := io.WriteString(os.Stdout, output.Poem)
				return err
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export a composition to JSONL (.jsonl.zst is compressed)",
		Flags: []cli.Flag{
			compositionFlag(),
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: ~/.poetrybox/exports/)"},
			&cli.BoolFlag{Name: "compress", Aliases: []string{"z"}, Usage: "Compress the default path"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, db, cfg, ops.ExportInput{
				Composition: c.String("composition"),
				Path:        c.String("path"),
				Compress:    c.Bool("compress"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import a composition from a JSONL export",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Input file path"},
			&cli.StringFlag{Name: "composition", Aliases: []string{"c"}, Usage: "Target composition (default: the one in the file)"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Import mode: error|replace|rename"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(db, cfg, ops.ImportInput{
				Path:        c.String("path"),
				Composition: c.String("composition"),
				Mode:        ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config, sess *ops.Session) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the composition viewer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8077, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			if port < 1 || port > 65535 {
				return outputError(errors.NewInvalidRequest("port must be between 1 and 65535"))
			}
			if sess == nil {
				sess = ops.NewSession(nil)
			}
			srv := web.NewServer(db, cfg, Version, c.String("bind"), port, sess.Logger)
			return web.Run(srv, sess.Logger)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var pErr *errors.PoetryError
	if stderrors.As(err, &pErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", pErr.Code, pErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewFileTooLarge(limit, int64(len(data)))
	}
	return strings.TrimSpace(string(data)), nil
}

// parseList splits a comma-separated string, dropping empty entries.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseVec parses "x,y,z".
func parseVec(s string) (ops.Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return ops.Vec{}, fmt.Errorf("want three comma-separated numbers, got %q", s)
	}
	var v ops.Vec
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return ops.Vec{}, fmt.Errorf("invalid number %q", strings.TrimSpace(p))
		}
		v[i] = f
	}
	return v, nil
}
