// Gradereport grades a batch of bureau reports, either offline with the
// in-process engine or against a running CreditLens server.
//
// Usage:
//
//	go run ./cmd/gradereport -input reports.jsonl
//	go run ./cmd/gradereport -input reports.jsonl -url http://localhost:8080
//
// Each input line is a POST /analyze body:
//
//	{"bureau":"CIBIL","subjectId":"S-1","report":{...}}
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/creditlens/internal/analysis"
	"github.com/opensource-finance/creditlens/internal/api"
	"github.com/opensource-finance/creditlens/internal/bureau"
	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/lenders"
)

// Grader turns one request into an analysis.
type Grader interface {
	Grade(ctx context.Context, req api.ReportRequest) (*domain.Analysis, error)
}

func main() {
	input := flag.String("input", "", "Path to a JSON-lines file of reports")
	baseURL := flag.String("url", "", "CreditLens base URL (empty grades offline)")
	tenantID := flag.String("tenant", "gradereport", "Tenant ID for remote requests")
	limit := flag.Int("limit", 0, "Maximum reports to grade (0 = all)")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each graded report")
	dump := flag.Bool("json", false, "Write every analysis as JSON lines instead of a summary")
	flag.Parse()

	if *input == "" {
		fmt.Println("Usage: gradereport -input reports.jsonl [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	f, err := os.Open(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	reqs, err := readRequests(f, *limit)
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to read %s: %v\n", *input, err)
		os.Exit(1)
	}

	var grader Grader
	if *baseURL == "" {
		g, err := newOfflineGrader()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		grader = g
	} else {
		client := &remoteGrader{
			client:   &http.Client{Timeout: 30 * time.Second},
			baseURL:  *baseURL,
			tenantID: *tenantID,
		}
		if err := client.checkHealth(); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: CreditLens not reachable at %s: %v\n", *baseURL, err)
			os.Exit(1)
		}
		grader = client
	}

	start := time.Now()
	results := run(context.Background(), grader, reqs, *workers)
	elapsed := time.Since(start)

	if *dump {
		enc := json.NewEncoder(os.Stdout)
		for _, r := range results {
			if r.Err != nil {
				continue
			}
			_ = enc.Encode(r.Analysis)
		}
		return
	}

	if *verbose {
		for _, r := range results {
			printResult(r)
		}
	}
	printSummary(summarize(results), elapsed)
}

// Result is the outcome of grading one request.
type Result struct {
	Line     int
	Request  api.ReportRequest
	Analysis *domain.Analysis
	Latency  time.Duration
	Err      error
}

func readRequests(r io.Reader, limit int) ([]api.ReportRequest, error) {
	var reqs []api.ReportRequest
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var req api.ReportRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		reqs = append(reqs, req)
		if limit > 0 && len(reqs) >= limit {
			break
		}
	}
	return reqs, scanner.Err()
}

func run(ctx context.Context, g Grader, reqs []api.ReportRequest, workers int) []Result {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(reqs))

	var done atomic.Int64
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, req := range reqs {
		eg.Go(func() error {
			start := time.Now()
			a, err := g.Grade(ctx, req)
			results[i] = Result{Line: i + 1, Request: req, Analysis: a, Latency: time.Since(start), Err: err}
			if n := done.Add(1); n%1000 == 0 {
				fmt.Fprintf(os.Stderr, "  graded %d/%d\n", n, len(reqs))
			}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

type offlineGrader struct {
	registry *bureau.Registry
	analyzer *analysis.Analyzer
}

func newOfflineGrader() (*offlineGrader, error) {
	engine, err := lenders.NewDefaultEngine()
	if err != nil {
		return nil, err
	}
	registry := bureau.NewRegistry(nil)
	return &offlineGrader{
		registry: registry,
		analyzer: analysis.New(analysis.Options{Lenders: engine, Thresholds: registry}, analysis.Config{}),
	}, nil
}

// Grade parses and analyzes the report against the fallback snapshot.
func (g *offlineGrader) Grade(_ context.Context, req api.ReportRequest) (*domain.Analysis, error) {
	b, err := domain.ParseBureau(req.Bureau)
	if err != nil {
		return nil, err
	}
	report, err := g.registry.Parse(b, req.SubjectID, req.Report, time.Now())
	if err != nil {
		return nil, err
	}
	return g.analyzer.ComputeAnalysis(report, nil)
}

type remoteGrader struct {
	client   *http.Client
	baseURL  string
	tenantID string
}

func (g *remoteGrader) checkHealth() error {
	resp, err := g.client.Get(g.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

// Grade posts the request to /analyze.
func (g *remoteGrader) Grade(ctx context.Context, req api.ReportRequest) (*domain.Analysis, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", g.tenantID)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out api.AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Analysis == nil {
		return nil, errors.New("empty analysis in response")
	}
	return out.Analysis, nil
}

// Summary aggregates a batch.
type Summary struct {
	Total      int
	Errors     int
	Grades     map[domain.Grade]int
	RiskLevels map[domain.RiskLevel]int
	Worthy     int

	AvgScore       float64
	AvgProbability float64
	AvgLatency     time.Duration
}

func summarize(results []Result) Summary {
	s := Summary{
		Total:      len(results),
		Grades:     make(map[domain.Grade]int),
		RiskLevels: make(map[domain.RiskLevel]int),
	}

	var scoreSum, probSum float64
	var latency time.Duration
	for _, r := range results {
		latency += r.Latency
		if r.Err != nil {
			s.Errors++
			continue
		}
		a := r.Analysis
		s.Grades[a.Grade.Grade]++
		s.RiskLevels[a.Economic.RiskLevel]++
		if a.Risk.Worthiness.IsCreditWorthy {
			s.Worthy++
		}
		scoreSum += a.Grade.Score
		probSum += a.Economic.AdjustedProbability
	}

	if graded := s.Total - s.Errors; graded > 0 {
		s.AvgScore = scoreSum / float64(graded)
		s.AvgProbability = probSum / float64(graded)
	}
	if s.Total > 0 {
		s.AvgLatency = latency / time.Duration(s.Total)
	}
	return s
}

var printMu sync.Mutex

func printResult(r Result) {
	printMu.Lock()
	defer printMu.Unlock()
	if r.Err != nil {
		fmt.Printf("✗ line %-5d %-10s %-12s | ERROR: %v\n", r.Line, r.Request.Bureau, r.Request.SubjectID, r.Err)
		return
	}
	a := r.Analysis
	fmt.Printf("✓ line %-5d %-10s %-12s | Grade: %-2s (%6.2f) | PD: %5.2f%% | Risk: %s\n",
		r.Line, a.Bureau, a.SubjectID, a.Grade.Grade, a.Grade.Score,
		a.Economic.AdjustedProbability, a.Economic.RiskLevel)
}

func printSummary(s Summary, elapsed time.Duration) {
	fmt.Println()
	fmt.Println("  GRADE REPORT")
	fmt.Println("  ------------")
	fmt.Printf("  Reports:          %d\n", s.Total)
	fmt.Printf("  Errors:           %d\n", s.Errors)
	fmt.Printf("  Credit-worthy:    %d\n", s.Worthy)
	fmt.Printf("  Avg Score:        %.2f\n", s.AvgScore)
	fmt.Printf("  Avg Default Prob: %.2f%%\n", s.AvgProbability)

	fmt.Println("\n  Grades:")
	grades := make([]domain.Grade, 0, len(s.Grades))
	for g := range s.Grades {
		grades = append(grades, g)
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i] < grades[j] })
	for _, g := range grades {
		fmt.Printf("    %-3s %d\n", g, s.Grades[g])
	}

	fmt.Println("\n  Risk levels:")
	levels := make([]string, 0, len(s.RiskLevels))
	for l := range s.RiskLevels {
		levels = append(levels, string(l))
	}
	sort.Strings(levels)
	for _, l := range levels {
		fmt.Printf("    %-10s %d\n", l, s.RiskLevels[domain.RiskLevel(l)])
	}

	fmt.Println("\n  Performance:")
	fmt.Printf("    Total Duration: %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("    Avg Latency:    %v\n", s.AvgLatency.Round(time.Microsecond))
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Printf("    Throughput:     %.2f reports/sec\n", float64(s.Total)/secs)
	}
	fmt.Println()
}
