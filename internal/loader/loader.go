// Package loader bulk-loads documents into the search engine from a host
// application's PostgreSQL database. The load query must select a document
// ID column named "id"; every other selected column becomes a document
// field named after the column, so the query's column list must line up
// with the target index's mapping.
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastsearch/fastsearch/internal/engine"
	"github.com/fastsearch/fastsearch/pkg/errors"
	"github.com/fastsearch/fastsearch/pkg/postgres"
)

// Loader streams query rows into one index.
type Loader struct {
	db     *postgres.Client
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates a Loader over the given database and engine.
func New(db *postgres.Client, eng *engine.Engine) *Loader {
	return &Loader{
		db:     db,
		eng:    eng,
		logger: slog.Default().With("component", "pg-loader"),
	}
}

// Load runs the query and indexes every row into indexName, returning the
// number of documents indexed. Rows that fail validation abort the load;
// documents already indexed stay indexed (each row is its own all-or-nothing
// engine call).
func (l *Loader) Load(ctx context.Context, indexName, query string) (int, error) {
	rows, err := l.db.DB.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("running load query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("reading query columns: %w", err)
	}
	idCol := -1
	for i, col := range columns {
		if col == "id" {
			idCol = i
			break
		}
	}
	if idCol < 0 {
		return 0, errors.Invalidf("load query must select an %q column", "id")
	}

	count := 0
	start := time.Now()
	values := make([]any, len(columns))
	targets := make([]any, len(columns))
	for i := range values {
		targets[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(targets...); err != nil {
			return count, fmt.Errorf("scanning row: %w", err)
		}
		docID := fmt.Sprintf("%v", normalizeSQLValue(values[idCol]))
		fields := make(map[string]any, len(columns)-1)
		for i, col := range columns {
			if i == idCol || values[i] == nil {
				continue
			}
			fields[col] = normalizeSQLValue(values[i])
		}
		if err := l.eng.IndexDocument(ctx, indexName, docID, fields); err != nil {
			return count, fmt.Errorf("indexing row %q: %w", docID, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterating rows: %w", err)
	}

	l.logger.Info("bulk load complete",
		"index", indexName,
		"documents", count,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return count, nil
}

// normalizeSQLValue converts driver values into the scalar types the schema
// coercion layer accepts. Timestamps become RFC3339 strings for date fields.
func normalizeSQLValue(v any) any {
	switch value := v.(type) {
	case []byte:
		return string(value)
	case time.Time:
		return value.Format(time.RFC3339)
	case sql.NullString:
		return value.String
	default:
		return value
	}
}
