package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nikola1125/ashila-backend/internal/auth"
	"github.com/nikola1125/ashila-backend/internal/domain"
)

type loadMode string

const (
	modeCreate              loadMode = "create"
	modeCreateConfirm       loadMode = "create-confirm"
	modeCreateConfirmCancel loadMode = "create-confirm-cancel"
)

// Коды ответа, которые означают корректный отказ, а не сбой сервиса.
var rejectionStatuses = map[int]bool{
	http.StatusBadRequest: true,
	http.StatusConflict:   true,
}

type config struct {
	baseURL     string
	total       int
	concurrency int
	timeout     time.Duration
	mode        loadMode
	productID   string
	size        string
	quantity    int
	token       string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type stepReport struct {
	Calls     int64          `json:"calls"`
	Success   int64          `json:"success"`
	Rejected  int64          `json:"rejected"`
	Failed    int64          `json:"failed"`
	Statuses  map[int]int64  `json:"statuses"`
	LatencyMs latencySummary `json:"latency_ms"`
}

type report struct {
	StartedAt       time.Time             `json:"started_at"`
	DurationSeconds float64               `json:"duration_seconds"`
	Scenarios       int                   `json:"scenarios"`
	UnitsConfirmed  int64                 `json:"units_confirmed"`
	RPS             float64               `json:"rps"`
	Steps           map[string]stepReport `json:"steps"`
}

type stepStats struct {
	statuses  map[int]int64
	latencies []float64
}

type collector struct {
	mu        sync.Mutex
	steps     map[string]*stepStats
	confirmed int64
}

func newCollector() *collector {
	return &collector{steps: make(map[string]*stepStats)}
}

// record учитывает ответ шага; status=0 означает транспортную ошибку.
func (c *collector) record(step string, latency time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.steps[step]
	if !ok {
		stats = &stepStats{statuses: make(map[int]int64)}
		c.steps[step] = stats
	}
	stats.statuses[status]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) addConfirmed(units int) {
	c.mu.Lock()
	c.confirmed += int64(units)
	c.mu.Unlock()
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration, scenarios int) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Scenarios:       scenarios,
		UnitsConfirmed:  c.confirmed,
		Steps:           make(map[string]stepReport, len(c.steps)),
	}
	if duration > 0 {
		result.RPS = float64(scenarios) / duration.Seconds()
	}

	for name, stats := range c.steps {
		r := stepReport{Statuses: make(map[int]int64, len(stats.statuses))}
		for status, count := range stats.statuses {
			r.Statuses[status] = count
			r.Calls += count
			switch {
			case status >= 200 && status < 300:
				r.Success += count
			case rejectionStatuses[status]:
				r.Rejected += count
			default:
				r.Failed += count
			}
		}
		r.LatencyMs = buildLatencySummary(stats.latencies)
		result.Steps[name] = r
	}
	return result
}

func (r report) failures() int64 {
	var n int64
	for _, step := range r.Steps {
		n += step.Failed
	}
	return n
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg           config
		modeValue     string
		jwtSecret     string
		timeoutValue  string
		baseURLValue  string
		quantityValue int
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.StringVar(&baseURLValue, "url", "http://localhost:8080", "storefront HTTP API base URL")
	fs.IntVar(&cfg.total, "total", 200, "number of scenarios")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers")
	fs.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreateConfirm), "load mode: create | create-confirm | create-confirm-cancel")
	fs.StringVar(&cfg.productID, "product", "", "product id every order points at")
	fs.StringVar(&cfg.size, "size", "", "optional selected size")
	fs.IntVar(&quantityValue, "quantity", 1, "units per order")
	fs.StringVar(&cfg.token, "token", "", "admin bearer token (fallback: minted from -jwt-secret)")
	fs.StringVar(&jwtSecret, "jwt-secret", getenv("OMS_JWT_SECRET"), "JWT secret used to mint an admin token")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(baseURLValue), "/")
	cfg.quantity = quantityValue

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("url is required")
	case cfg.total <= 0:
		return cfg, errors.New("total must be > 0")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case strings.TrimSpace(cfg.productID) == "":
		return cfg, errors.New("product is required")
	}

	if cfg.mode != modeCreate && cfg.token == "" {
		if strings.TrimSpace(jwtSecret) == "" {
			return cfg, errors.New("token or jwt-secret is required for confirm modes")
		}
		token, _, err := auth.NewJWTService(jwtSecret, time.Hour).GenerateAccessToken("loadtest@storefront.local", domain.RoleAdmin)
		if err != nil {
			return cfg, fmt.Errorf("mint admin token: %w", err)
		}
		cfg.token = token
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeCreateConfirm:
		return modeCreateConfirm, nil
	case modeCreateConfirmCancel:
		return modeCreateConfirmCancel, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

type runner struct {
	cfg    config
	client *http.Client
	col    *collector
	runID  string
}

// run прогоняет cfg.total сценариев в cfg.concurrency воркеров.
func (r *runner) run() {
	jobs := make(chan int, r.cfg.concurrency*2)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				r.scenario(id)
			}
		}()
	}
	for i := 0; i < r.cfg.total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (r *runner) scenario(index int) {
	body := map[string]any{
		"buyerEmail": fmt.Sprintf("load-%s-%d@storefront.local", r.runID, index),
		"buyerName":  "Load Test",
		"items": []map[string]any{{
			"productId":    r.cfg.productID,
			"quantity":     r.cfg.quantity,
			"selectedSize": r.cfg.size,
		}},
	}
	var created struct {
		ID string `json:"id"`
	}
	if status := r.call("create", http.MethodPost, "/api/orders", "", body, &created); status != http.StatusCreated || created.ID == "" {
		return
	}
	if r.cfg.mode == modeCreate {
		return
	}

	path := "/api/orders/" + created.ID
	if status := r.call("confirm", http.MethodPatch, path, r.cfg.token, map[string]string{"status": "confirmed"}, nil); status != http.StatusOK {
		return
	}
	r.col.addConfirmed(r.cfg.quantity)

	if r.cfg.mode == modeCreateConfirmCancel {
		if status := r.call("cancel", http.MethodPatch, path, r.cfg.token, map[string]string{"status": "cancelled"}, nil); status == http.StatusOK {
			r.col.addConfirmed(-r.cfg.quantity)
		}
	}
}

func (r *runner) call(step, method, path, token string, payload, out any) int {
	start := time.Now()
	status := r.do(method, path, token, payload, out)
	r.col.record(step, time.Since(start), status)
	return status
}

func (r *runner) do(method, path, token string, payload, out any) int {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, r.cfg.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	startedAt := time.Now()
	r := &runner{
		cfg:    cfg,
		client: &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: cfg.concurrency}},
		col:    newCollector(),
		runID:  fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid()),
	}
	r.run()

	result := r.col.buildReport(startedAt, time.Since(startedAt), cfg.total)
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.failures() > 0 {
		os.Exit(1)
	}
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s product=%s scenarios=%d units_confirmed=%d\n",
		cfg.mode, cfg.productID, result.Scenarios, result.UnitsConfirmed)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)

	names := make([]string, 0, len(result.Steps))
	for name := range result.Steps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := result.Steps[name]
		_, _ = fmt.Fprintf(w, "%s: calls=%d success=%d rejected=%d failed=%d p50=%.2fms p95=%.2fms\n",
			name, s.Calls, s.Success, s.Rejected, s.Failed, s.LatencyMs.P50, s.LatencyMs.P95)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}
