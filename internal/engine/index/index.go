// Package index implements a single named index: a schema-bound document
// store with an inverted index and TF-IDF scoring. An Index is its own unit
// of mutual exclusion; writers take the lock exclusively, searches share it.
package index

import (
	"math"
	"sort"
	"sync"

	"github.com/fastsearch/fastsearch/internal/engine/schema"
	"github.com/fastsearch/fastsearch/internal/engine/tokenizer"
	"github.com/fastsearch/fastsearch/pkg/errors"
)

// SearchResult is one ranked hit: the document ID, its score, and a
// read-only copy of the stored fields.
type SearchResult struct {
	DocID  string         `json:"doc_id"`
	Score  float64        `json:"score"`
	Fields map[string]any `json:"fields"`
}

// Stats describes the live state of an index. Recomputed on demand, never
// cached.
type Stats struct {
	DocumentCount int               `json:"document_count"`
	TermCount     int               `json:"term_count"`
	AvgDocLength  float64           `json:"avg_doc_length"`
	Mapping       map[string]string `json:"mapping"`
}

// DocumentSnapshot is a document in export form: its ID plus raw field
// values.
type DocumentSnapshot struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type document struct {
	fields     map[string]schema.Value
	tokenCount int
}

// Index owns one collection's documents and inverted index.
type Index struct {
	mu          sync.RWMutex
	name        string
	mapping     schema.Mapping
	docs        map[string]*document
	inverted    map[string]map[string]*Posting // term -> docID -> posting
	totalTokens int64
}

// New creates an empty index bound to the given mapping.
func New(name string, mapping schema.Mapping) *Index {
	return &Index{
		name:     name,
		mapping:  mapping,
		docs:     make(map[string]*document),
		inverted: make(map[string]map[string]*Posting),
	}
}

// Name returns the index name.
func (ix *Index) Name() string {
	return ix.name
}

// Mapping returns the immutable field mapping.
func (ix *Index) Mapping() schema.Mapping {
	return ix.mapping
}

// IndexDocument validates rawFields against the mapping and stores the
// document. Re-indexing an existing ID removes its old postings first; an
// update is always remove-then-insert. Validation failures abort before any
// mutation.
func (ix *Index) IndexDocument(docID string, rawFields map[string]any) error {
	if docID == "" {
		return errors.Invalidf("document ID must be non-empty")
	}
	fields := make(map[string]schema.Value, len(rawFields))
	for name, raw := range rawFields {
		v, err := ix.mapping.Coerce(name, raw)
		if err != nil {
			return err
		}
		fields[name] = v
	}
	counts, total := ix.termCounts(fields)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.docs[docID]; exists {
		ix.removeLocked(docID)
	}
	ix.docs[docID] = &document{fields: fields, tokenCount: total}
	ix.totalTokens += int64(total)
	for term, freq := range counts {
		postings, ok := ix.inverted[term]
		if !ok {
			postings = make(map[string]*Posting)
			ix.inverted[term] = postings
		}
		postings[docID] = &Posting{DocID: docID, Frequency: freq}
	}
	return nil
}

// DeleteDocument removes a document and all of its postings. Returns a
// not-found error if the ID is absent.
func (ix *Index) DeleteDocument(docID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.docs[docID]; !exists {
		return errors.NotFoundf("document %q in index %q", docID, ix.name)
	}
	ix.removeLocked(docID)
	return nil
}

// GetDocument returns a copy of the stored fields for a document.
func (ix *Index) GetDocument(docID string) (map[string]any, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	doc, exists := ix.docs[docID]
	if !exists {
		return nil, errors.NotFoundf("document %q in index %q", docID, ix.name)
	}
	return rawFields(doc.fields), nil
}

// Search tokenizes the query, gathers every document matching at least one
// query term, scores candidates with TF-IDF, applies the filters
// conjunctively, and returns results sorted by descending score with ties
// broken by ascending document ID. A non-positive limit means no truncation.
func (ix *Index) Search(query string, filters []Filter, limit int) ([]SearchResult, error) {
	compiled, err := compileFilters(ix.mapping, filters)
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	terms := tokenizer.Tokenize(query)
	totalDocs := len(ix.docs)
	scores := make(map[string]float64)
	for _, term := range terms {
		postings, ok := ix.inverted[term]
		if !ok {
			continue
		}
		idf := computeIDF(totalDocs, len(postings))
		for docID, p := range postings {
			scores[docID] += float64(p.Frequency) * idf
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for docID, score := range scores {
		doc := ix.docs[docID]
		if !matches(doc.fields, compiled) {
			continue
		}
		results = append(results, SearchResult{
			DocID:  docID,
			Score:  math.Round(score*10000) / 10000,
			Fields: rawFields(doc.fields),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Stats recomputes index statistics from the live postings and document
// store.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	stats := Stats{
		DocumentCount: len(ix.docs),
		TermCount:     len(ix.inverted),
		Mapping:       ix.mapping.Spec(),
	}
	if len(ix.docs) > 0 {
		stats.AvgDocLength = float64(ix.totalTokens) / float64(len(ix.docs))
	}
	return stats
}

// Documents returns every stored document in export form, ordered by ID.
func (ix *Index) Documents() []DocumentSnapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	snapshots := make([]DocumentSnapshot, 0, len(ix.docs))
	for docID, doc := range ix.docs {
		snapshots = append(snapshots, DocumentSnapshot{
			ID:     docID,
			Fields: rawFields(doc.fields),
		})
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].ID < snapshots[j].ID
	})
	return snapshots
}

// computeIDF returns ln(N / (1 + df)) + 1. The +1 floor keeps the weight
// strictly positive even for a term present in every document.
func computeIDF(totalDocs, docFreq int) float64 {
	return math.Log(float64(totalDocs)/(1+float64(docFreq))) + 1
}

// termCounts tokenizes every text field and returns per-term frequencies
// plus the document's total token count.
func (ix *Index) termCounts(fields map[string]schema.Value) (map[string]int, int) {
	counts := make(map[string]int)
	total := 0
	for name, v := range fields {
		if ix.mapping[name] != schema.TypeText {
			continue
		}
		for _, term := range tokenizer.Tokenize(v.Str) {
			counts[term]++
			total++
		}
	}
	return counts, total
}

// removeLocked drops a document's postings and stored fields. Postings lists
// that become empty are deleted so no orphan terms remain.
func (ix *Index) removeLocked(docID string) {
	doc := ix.docs[docID]
	counts, _ := ix.termCounts(doc.fields)
	for term := range counts {
		postings := ix.inverted[term]
		delete(postings, docID)
		if len(postings) == 0 {
			delete(ix.inverted, term)
		}
	}
	ix.totalTokens -= int64(doc.tokenCount)
	delete(ix.docs, docID)
}

func rawFields(fields map[string]schema.Value) map[string]any {
	raw := make(map[string]any, len(fields))
	for name, v := range fields {
		raw[name] = v.Raw()
	}
	return raw
}
