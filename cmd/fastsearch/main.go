// Command fastsearch is a CLI for operating the search engine against a
// local data directory: managing indices, indexing and searching documents,
// and moving snapshots around. Mutations are persisted as snapshots on exit,
// so consecutive invocations see each other's writes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fastsearch/fastsearch/internal/engine"
	"github.com/fastsearch/fastsearch/internal/ingest"
	"github.com/fastsearch/fastsearch/internal/loader"
	"github.com/fastsearch/fastsearch/internal/server"
	"github.com/fastsearch/fastsearch/pkg/config"
	"github.com/fastsearch/fastsearch/pkg/errors"
	"github.com/fastsearch/fastsearch/pkg/kafka"
	"github.com/fastsearch/fastsearch/pkg/logger"
	"github.com/fastsearch/fastsearch/pkg/postgres"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "fastsearch",
		Usage: "In-memory search engine with typed fields, filters, and snapshots",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "create-index",
				Usage:  "Create a new index with a field mapping",
				Action: createIndexCommand,
				Flags: []cli.Flag{
					indexFlag(),
					&cli.StringSliceFlag{
						Name:     "field",
						Aliases:  []string{"f"},
						Usage:    "Field declaration name:type (text, keyword, integer, boolean, date); repeatable",
						Required: true,
					},
				},
			},
			{
				Name:   "drop-index",
				Usage:  "Delete an index and all of its documents",
				Action: dropIndexCommand,
				Flags:  []cli.Flag{indexFlag()},
			},
			{
				Name:   "list",
				Usage:  "List all indices",
				Action: listCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show statistics for an index",
				Action: statsCommand,
				Flags:  []cli.Flag{indexFlag()},
			},
			{
				Name:   "index",
				Usage:  "Index a document (replaces any previous version of the ID)",
				Action: indexDocumentCommand,
				Flags: []cli.Flag{
					indexFlag(),
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Document ID",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:     "field",
						Aliases:  []string{"f"},
						Usage:    "Field value name=value; repeatable",
						Required: true,
					},
				},
			},
			{
				Name:   "delete",
				Usage:  "Delete a document",
				Action: deleteDocumentCommand,
				Flags: []cli.Flag{
					indexFlag(),
					&cli.StringFlag{Name: "id", Usage: "Document ID", Required: true},
				},
			},
			{
				Name:   "get",
				Usage:  "Print a stored document",
				Action: getDocumentCommand,
				Flags: []cli.Flag{
					indexFlag(),
					&cli.StringFlag{Name: "id", Usage: "Document ID", Required: true},
				},
			},
			{
				Name:   "search",
				Usage:  "Run a ranked query with optional filters",
				Action: searchCommand,
				Flags: []cli.Flag{
					indexFlag(),
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Free-text query",
					},
					&cli.StringSliceFlag{
						Name:  "filter",
						Usage: "Filter expression field:value or field:min..max; repeatable",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results (0 uses the configured default)",
					},
				},
			},
			{
				Name:   "export",
				Usage:  "Write an index snapshot",
				Action: exportCommand,
				Flags: []cli.Flag{
					indexFlag(),
					&cli.StringFlag{Name: "path", Usage: "Snapshot path (defaults to the data directory)"},
				},
			},
			{
				Name:   "import",
				Usage:  "Load an index snapshot, rebuilding postings from its documents",
				Action: importCommand,
				Flags: []cli.Flag{
					indexFlag(),
					&cli.StringFlag{Name: "path", Usage: "Snapshot path (defaults to the data directory)"},
				},
			},
			{
				Name:   "load-pg",
				Usage:  "Bulk-load documents from PostgreSQL into an index",
				Action: loadPostgresCommand,
				Flags: []cli.Flag{
					indexFlag(),
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "SQL query selecting an id column plus one column per mapped field",
						Required: true,
					},
				},
			},
			{
				Name:   "publish",
				Usage:  "Publish a document event to the Kafka ingest topic",
				Action: publishCommand,
				Flags: []cli.Flag{
					indexFlag(),
					&cli.StringFlag{Name: "id", Usage: "Document ID", Required: true},
					&cli.StringFlag{
						Name:  "action",
						Usage: "Event action (index or delete)",
						Value: ingest.ActionIndex,
					},
					&cli.StringSliceFlag{
						Name:    "field",
						Aliases: []string{"f"},
						Usage:   "Field value name=value; repeatable (index action only)",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fastsearch: %v\n", err)
		os.Exit(1)
	}
}

func indexFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "index",
		Aliases:  []string{"i"},
		Usage:    "Index name",
		Required: true,
	}
}

// loadConfig reads the config file (or defaults) and sets up logging. The
// CLI defaults to quiet logs so command output stays readable.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	logger.Setup(c.String("log-level"), "text")
	return cfg, nil
}

// openEngine creates an engine over the configured data directory with
// snapshot persistence on, so CLI mutations survive the process.
func openEngine(c *cli.Context) (*config.Config, *engine.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	engCfg := cfg.Engine
	engCfg.AutoLoad = true
	engCfg.AutoSave = true
	eng, err := engine.New(engCfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, eng, nil
}

func createIndexCommand(c *cli.Context) error {
	_, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	mapping := make(map[string]string)
	for _, decl := range c.StringSlice("field") {
		name, fieldType, found := strings.Cut(decl, ":")
		if !found || name == "" || fieldType == "" {
			return errors.Invalidf("field declaration %q must have the form name:type", decl)
		}
		mapping[name] = fieldType
	}
	if err := eng.CreateIndex(c.String("index"), mapping); err != nil {
		return err
	}
	fmt.Printf("created index %q with %d fields\n", c.String("index"), len(mapping))
	return nil
}

func dropIndexCommand(c *cli.Context) error {
	_, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	if err := eng.DeleteIndex(c.Context, c.String("index")); err != nil {
		return err
	}
	fmt.Printf("dropped index %q\n", c.String("index"))
	return nil
}

func listCommand(c *cli.Context) error {
	_, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	for _, name := range eng.ListIndices() {
		fmt.Println(name)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	_, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	stats, err := eng.Stats(c.String("index"))
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func indexDocumentCommand(c *cli.Context) error {
	_, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	fields, err := parseFields(c.StringSlice("field"))
	if err != nil {
		return err
	}
	if err := eng.IndexDocument(c.Context, c.String("index"), c.String("id"), fields); err != nil {
		return err
	}
	fmt.Printf("indexed document %q\n", c.String("id"))
	return nil
}

func deleteDocumentCommand(c *cli.Context) error {
	_, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	if err := eng.DeleteDocument(c.Context, c.String("index"), c.String("id")); err != nil {
		return err
	}
	fmt.Printf("deleted document %q\n", c.String("id"))
	return nil
}

func getDocumentCommand(c *cli.Context) error {
	_, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	fields, err := eng.GetDocument(c.String("index"), c.String("id"))
	if err != nil {
		return err
	}
	return printJSON(fields)
}

func searchCommand(c *cli.Context) error {
	_, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	filters, err := server.ParseFilters(c.StringSlice("filter"))
	if err != nil {
		return err
	}
	results, err := eng.Search(c.Context, c.String("index"), c.String("query"), filters, c.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(results)
}

func exportCommand(c *cli.Context) error {
	_, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	if err := eng.ExportIndex(c.String("index"), c.String("path")); err != nil {
		return err
	}
	fmt.Printf("exported index %q\n", c.String("index"))
	return nil
}

func importCommand(c *cli.Context) error {
	_, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	if err := eng.ImportIndex(c.Context, c.String("index"), c.String("path")); err != nil {
		return err
	}
	if err := eng.ExportIndex(c.String("index"), ""); err != nil {
		return err
	}
	fmt.Printf("imported index %q\n", c.String("index"))
	return nil
}

func loadPostgresCommand(c *cli.Context) error {
	cfg, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	count, err := loader.New(db, eng).Load(c.Context, c.String("index"), c.String("query"))
	if err != nil {
		return err
	}
	fmt.Printf("loaded %d documents into index %q\n", count, c.String("index"))
	return nil
}

func publishCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	action := c.String("action")
	if action != ingest.ActionIndex && action != ingest.ActionDelete {
		return errors.Invalidf("action must be %q or %q", ingest.ActionIndex, ingest.ActionDelete)
	}
	event := ingest.DocumentEvent{
		Action: action,
		Index:  c.String("index"),
		DocID:  c.String("id"),
	}
	if action == ingest.ActionIndex {
		fields, err := parseFields(c.StringSlice("field"))
		if err != nil {
			return err
		}
		event.Fields = fields
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.DocumentTopic)
	defer producer.Close()
	if err := producer.Publish(context.Background(), event.DocID, event); err != nil {
		return err
	}
	fmt.Printf("published %s event for document %q\n", action, event.DocID)
	return nil
}

// parseFields converts repeated name=value flags into a raw field map.
// Values stay strings; the schema layer coerces them against the mapping.
func parseFields(decls []string) (map[string]any, error) {
	fields := make(map[string]any, len(decls))
	for _, decl := range decls {
		name, value, found := strings.Cut(decl, "=")
		if !found || name == "" {
			return nil, errors.Invalidf("field %q must have the form name=value", decl)
		}
		fields[name] = value
	}
	return fields, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
