// Package engine is the embeddable search engine registry. It owns the
// name-to-index mapping and the single result cache, and drives snapshot
// export/import against a data directory. The embedding application
// constructs an Engine on startup and owns its lifetime; there is no
// process-wide singleton.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fastsearch/fastsearch/internal/engine/cache"
	"github.com/fastsearch/fastsearch/internal/engine/index"
	"github.com/fastsearch/fastsearch/internal/engine/schema"
	"github.com/fastsearch/fastsearch/internal/engine/snapshot"
	"github.com/fastsearch/fastsearch/pkg/config"
	"github.com/fastsearch/fastsearch/pkg/errors"
	"github.com/fastsearch/fastsearch/pkg/metrics"
)

// Engine is the top-level registry over all indices.
type Engine struct {
	mu      sync.RWMutex
	indices map[string]*index.Index
	cache   *cache.ResultCache // nil when caching is disabled
	cfg     config.EngineConfig
	logger  *slog.Logger
	metrics *metrics.Metrics // nil when metrics are disabled
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithCache attaches a result cache. Without it every search recomputes.
func WithCache(c *cache.ResultCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine over the configured data directory. When AutoLoad is
// set, every snapshot found in the directory is imported; unreadable
// snapshots are skipped with a logged error.
func New(cfg config.EngineConfig, opts ...Option) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	e := &Engine{
		indices: make(map[string]*index.Index),
		cfg:     cfg,
		logger:  slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if cfg.AutoLoad {
		if err := e.loadSnapshots(); err != nil {
			return nil, fmt.Errorf("loading existing snapshots: %w", err)
		}
	}
	return e, nil
}

// CreateIndex registers a new, empty index bound to the given mapping
// specification. Fails with a duplicate error if the name is taken.
func (e *Engine) CreateIndex(name string, mappingSpec map[string]string) error {
	if name == "" {
		return errors.Invalidf("index name must be non-empty")
	}
	mapping, err := schema.Parse(mappingSpec)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if _, exists := e.indices[name]; exists {
		e.mu.Unlock()
		return errors.Duplicatef("index %q", name)
	}
	ix := index.New(name, mapping)
	e.indices[name] = ix
	e.mu.Unlock()

	e.logger.Info("index created", "index", name, "fields", len(mapping))
	if e.cfg.AutoSave {
		e.persist(ix)
	}
	return nil
}

// DeleteIndex drops an index with all of its documents and postings, purges
// its cache entries, and removes its conventional snapshot file.
func (e *Engine) DeleteIndex(ctx context.Context, name string) error {
	e.mu.Lock()
	if _, exists := e.indices[name]; !exists {
		e.mu.Unlock()
		return errors.NotFoundf("index %q", name)
	}
	delete(e.indices, name)
	e.mu.Unlock()

	e.invalidate(ctx, name)
	if err := os.Remove(snapshot.PathFor(e.cfg.DataDir, name)); err != nil && !os.IsNotExist(err) {
		e.logger.Error("removing snapshot file failed", "index", name, "error", err)
	}
	if e.metrics != nil {
		e.metrics.IndexDocumentCount.DeleteLabelValues(name)
	}
	e.logger.Info("index deleted", "index", name)
	return nil
}

// IndexDocument validates and stores a document, replacing any previous
// version of the same ID, and purges the index's cache entries before
// returning.
func (e *Engine) IndexDocument(ctx context.Context, indexName, docID string, fields map[string]any) error {
	ix, err := e.getIndex(indexName)
	if err != nil {
		return err
	}
	if err := ix.IndexDocument(docID, fields); err != nil {
		return err
	}
	e.invalidate(ctx, indexName)
	if e.metrics != nil {
		e.metrics.DocumentsIndexed.WithLabelValues(indexName).Inc()
		e.metrics.IndexDocumentCount.WithLabelValues(indexName).Set(float64(ix.Stats().DocumentCount))
	}
	if e.cfg.AutoSave {
		e.persist(ix)
	}
	return nil
}

// DeleteDocument removes a document and purges the index's cache entries
// before returning.
func (e *Engine) DeleteDocument(ctx context.Context, indexName, docID string) error {
	ix, err := e.getIndex(indexName)
	if err != nil {
		return err
	}
	if err := ix.DeleteDocument(docID); err != nil {
		return err
	}
	e.invalidate(ctx, indexName)
	if e.metrics != nil {
		e.metrics.DocumentsDeleted.WithLabelValues(indexName).Inc()
		e.metrics.IndexDocumentCount.WithLabelValues(indexName).Set(float64(ix.Stats().DocumentCount))
	}
	if e.cfg.AutoSave {
		e.persist(ix)
	}
	return nil
}

// GetDocument returns a copy of a stored document's fields.
func (e *Engine) GetDocument(indexName, docID string) (map[string]any, error) {
	ix, err := e.getIndex(indexName)
	if err != nil {
		return nil, err
	}
	return ix.GetDocument(docID)
}

// Search runs a ranked query against one index, consulting the result cache
// when one is attached. A non-positive limit falls back to the configured
// default; limits above the configured maximum are clamped.
func (e *Engine) Search(ctx context.Context, indexName, query string, filters []index.Filter, limit int) ([]index.SearchResult, error) {
	ix, err := e.getIndex(indexName)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxResults > 0 && limit > e.cfg.MaxResults {
		limit = e.cfg.MaxResults
	}

	start := time.Now()
	var results []index.SearchResult
	cacheStatus := "uncached"
	if e.cache != nil {
		var hit bool
		results, hit, err = e.cache.GetOrCompute(ctx, indexName, query, filters, limit, func() ([]index.SearchResult, error) {
			return ix.Search(query, filters, limit)
		})
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
	} else {
		results, err = ix.Search(query, filters, limit)
	}
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.SearchesTotal.WithLabelValues(indexName, cacheStatus).Inc()
		e.metrics.SearchLatency.WithLabelValues(indexName).Observe(time.Since(start).Seconds())
		e.metrics.SearchResultsCount.Observe(float64(len(results)))
		switch cacheStatus {
		case "hit":
			e.metrics.CacheHitsTotal.Inc()
		case "miss":
			e.metrics.CacheMissesTotal.Inc()
		}
	}
	return results, nil
}

// ListIndices returns all index names in sorted order.
func (e *Engine) ListIndices() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.indices))
	for name := range e.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns live statistics for one index.
func (e *Engine) Stats(indexName string) (index.Stats, error) {
	ix, err := e.getIndex(indexName)
	if err != nil {
		return index.Stats{}, err
	}
	return ix.Stats(), nil
}

// ClearCache purges every cached result across all indices.
func (e *Engine) ClearCache(ctx context.Context) {
	if e.cache != nil {
		e.cache.Clear(ctx)
	}
}

// CacheStats returns cumulative cache hit and miss counts, or zeros when no
// cache is attached.
func (e *Engine) CacheStats() (hits, misses int64) {
	if e.cache == nil {
		return 0, 0
	}
	return e.cache.Stats()
}

// ExportIndex writes an index snapshot to path. An empty path selects the
// conventional location inside the data directory. The write is atomic: on
// failure no partial snapshot remains.
func (e *Engine) ExportIndex(indexName, path string) error {
	ix, err := e.getIndex(indexName)
	if err != nil {
		return err
	}
	if path == "" {
		path = snapshot.PathFor(e.cfg.DataDir, indexName)
	}
	snap := &snapshot.Snapshot{
		FormatVersion: snapshot.FormatVersion,
		Index:         indexName,
		Mapping:       ix.Mapping().Spec(),
		CreatedAt:     time.Now().UTC(),
		Documents:     ix.Documents(),
	}
	if err := snapshot.Write(path, snap); err != nil {
		e.recordSnapshotOp("export", "error")
		return err
	}
	e.recordSnapshotOp("export", "success")
	e.logger.Info("index exported", "index", indexName, "path", path, "documents", len(snap.Documents))
	return nil
}

// ImportIndex loads a snapshot from path and registers it under indexName
// (or under the snapshot's recorded name when indexName is empty),
// replacing any existing index of that name. The inverted index is rebuilt
// from the stored documents; a malformed mapping is a schema error and
// leaves the engine unchanged.
func (e *Engine) ImportIndex(ctx context.Context, indexName, path string) error {
	if path == "" && indexName != "" {
		path = snapshot.PathFor(e.cfg.DataDir, indexName)
	}
	snap, err := snapshot.Read(path)
	if err != nil {
		e.recordSnapshotOp("import", "error")
		return err
	}
	if indexName == "" {
		indexName = snap.Index
	}
	if indexName == "" {
		e.recordSnapshotOp("import", "error")
		return errors.Schemaf("snapshot %s does not record an index name", path)
	}
	mapping, err := schema.Parse(snap.Mapping)
	if err != nil {
		e.recordSnapshotOp("import", "error")
		return err
	}

	ix := index.New(indexName, mapping)
	for _, doc := range snap.Documents {
		if err := ix.IndexDocument(doc.ID, doc.Fields); err != nil {
			e.recordSnapshotOp("import", "error")
			return fmt.Errorf("rebuilding document %q: %w", doc.ID, err)
		}
	}

	e.mu.Lock()
	e.indices[indexName] = ix
	e.mu.Unlock()
	e.invalidate(ctx, indexName)
	if e.metrics != nil {
		e.metrics.IndexDocumentCount.WithLabelValues(indexName).Set(float64(len(snap.Documents)))
	}
	e.recordSnapshotOp("import", "success")
	e.logger.Info("index imported", "index", indexName, "path", path, "documents", len(snap.Documents))
	return nil
}

// Close exports every index to its conventional snapshot location when
// AutoSave is enabled.
func (e *Engine) Close() error {
	if !e.cfg.AutoSave {
		return nil
	}
	var firstErr error
	for _, name := range e.ListIndices() {
		if err := e.ExportIndex(name, ""); err != nil {
			e.logger.Error("export on close failed", "index", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (e *Engine) getIndex(name string) (*index.Index, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ix, exists := e.indices[name]
	if !exists {
		return nil, errors.NotFoundf("index %q", name)
	}
	return ix, nil
}

// invalidate purges an index's cache entries. Called after every successful
// mutation, before the mutating call returns.
func (e *Engine) invalidate(ctx context.Context, indexName string) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, indexName)
	}
}

// persist writes the index's snapshot to its conventional location. Snapshot
// failures are logged but do not fail the mutation that triggered them; the
// in-memory state is already committed.
func (e *Engine) persist(ix *index.Index) {
	if err := e.ExportIndex(ix.Name(), ""); err != nil {
		e.logger.Error("autosave failed", "index", ix.Name(), "error", err)
	}
}

// loadSnapshots imports every conventional snapshot in the data directory.
// Unreadable files are skipped so one corrupt snapshot does not block
// startup.
func (e *Engine) loadSnapshots() error {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading data directory: %w", err)
	}
	names := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := snapshot.IndexNameFromPath(entry.Name()); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	loaded := 0
	for _, name := range names {
		path := filepath.Join(e.cfg.DataDir, name+snapshot.FileSuffix)
		if err := e.ImportIndex(context.Background(), name, path); err != nil {
			e.logger.Error("failed to load snapshot, skipping", "index", name, "error", err)
			continue
		}
		loaded++
	}
	e.logger.Info("snapshot recovery complete", "indices_loaded", loaded)
	return nil
}

func (e *Engine) recordSnapshotOp(operation, status string) {
	if e.metrics != nil {
		e.metrics.SnapshotOpsTotal.WithLabelValues(operation, status).Inc()
	}
}
