// Command loadtest drives a running searchd instance with concurrent search
// traffic and reports throughput and latency percentiles. It seeds its own
// index first so the numbers reflect ranked queries over real documents.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
)

type Config struct {
	BaseURL     string
	Index       string
	Concurrency int
	Duration    time.Duration
	Seed        int
	Queries     []string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

var seedTitles = []string{
	"distributed systems design",
	"search engine internals",
	"analytics platform overview",
	"indexing documents at scale",
	"query processing pipeline",
	"cache invalidation strategies",
	"ranking with term frequency",
	"snapshot export and import",
	"typed field mappings",
	"inverted index structures",
	"result cache tuning",
	"document ingestion events",
	"filter expressions explained",
	"keyword and text fields",
	"deterministic result ordering",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	indexName := flag.String("index", "loadtest", "index to create and query")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	seed := flag.Int("seed", 500, "number of documents to seed before the run")
	flag.Parse()

	queries := []string{
		"distributed systems",
		"search engine",
		"analytics platform",
		"indexing documents",
		"query processing",
		"cache invalidation",
		"ranking frequency",
		"snapshot export",
		"typed mappings",
		"inverted index",
		"result cache",
		"document ingestion",
		"filter expressions",
		"keyword fields",
		"deterministic ordering",
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Index:       *indexName,
		Concurrency: *concurrency,
		Duration:    *duration,
		Seed:        *seed,
		Queries:     queries,
	}

	fmt.Println("=== Search Engine Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Index:       %s\n", cfg.Index)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Seed Docs:   %d\n", cfg.Seed)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	if err := seedIndex(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
		os.Exit(1)
	}

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

// seedIndex creates the target index (ignoring a conflict if it already
// exists) and fills it with documents assembled from the seed titles.
func seedIndex(cfg Config) error {
	client := &http.Client{Timeout: 10 * time.Second}

	mapping := map[string]any{
		"mapping": map[string]string{
			"title":    "text",
			"body":     "text",
			"category": "keyword",
			"position": "integer",
		},
	}
	body, _ := json.Marshal(mapping)
	indexURL := fmt.Sprintf("%s/api/v1/indices/%s", cfg.BaseURL, cfg.Index)
	req, err := http.NewRequest(http.MethodPut, indexURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("creating index: unexpected status %d", resp.StatusCode)
	}

	fmt.Print("Seeding")
	for i := 0; i < cfg.Seed; i++ {
		title := seedTitles[i%len(seedTitles)]
		doc := map[string]any{
			"title":    title,
			"body":     fmt.Sprintf("%s chapter %d", title, i),
			"category": fmt.Sprintf("cat-%d", i%5),
			"position": i,
		}
		body, _ := json.Marshal(doc)
		docURL := fmt.Sprintf("%s/documents/doc-%d", indexURL, i)
		req, err := http.NewRequest(http.MethodPut, docURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("indexing doc-%d: unexpected status %d", i, resp.StatusCode)
		}
		if i%100 == 99 {
			fmt.Print(".")
		}
	}
	fmt.Println(" done!")
	fmt.Println()
	return nil
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating worker pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		workerID := w
		submitErr := pool.Submit(func() {
			defer wg.Done()
			queryIdx := workerID

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				query := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				searchURL := fmt.Sprintf("%s/api/v1/indices/%s/search?q=%s&limit=10",
					cfg.BaseURL, cfg.Index, url.QueryEscape(query))

				start := time.Now()
				resp, err := client.Do(mustNewRequest(ctx, searchURL))
				duration := time.Since(start)

				if err != nil {
					stats.RecordRequest(duration, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(duration, resp.StatusCode, nil)
			}
		})
		if submitErr != nil {
			wg.Done()
			fmt.Fprintf(os.Stderr, "submitting worker: %v\n", submitErr)
		}
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func mustNewRequest(ctx context.Context, rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
