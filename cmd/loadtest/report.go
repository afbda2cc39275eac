package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"
)

// Имя, под которым учитывается сценарий целиком.
const scenarioCall = "scenario"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type callReport struct {
	Calls     int64            `json:"calls"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt       time.Time             `json:"started_at"`
	DurationSeconds float64               `json:"duration_seconds"`
	Scenarios       callReport            `json:"scenarios"`
	RPS             float64               `json:"rps"`
	SyncStates      map[string]int64      `json:"sync_states"`
	Calls           map[string]callReport `json:"calls"`
}

// samples — наблюдения одного вида вызова.
type samples struct {
	failed int64
	codes  map[string]int64
	millis []float64
}

func (s *samples) report() callReport {
	calls := int64(len(s.millis))
	return callReport{
		Calls:     calls,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, calls),
		Codes:     maps.Clone(s.codes),
		LatencyMs: summarize(s.millis),
	}
}

// recorder собирает наблюдения всех воркеров.
type recorder struct {
	mu     sync.Mutex
	calls  map[string]*samples
	states map[string]int64
}

func newRecorder() *recorder {
	return &recorder{
		calls:  make(map[string]*samples),
		states: make(map[string]int64),
	}
}

// observe учитывает вызов; code: HTTP-статус строкой либо transport_error.
func (r *recorder) observe(call string, took time.Duration, code string, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.calls[call]
	if s == nil {
		s = &samples{codes: make(map[string]int64)}
		r.calls[call] = s
	}
	if failed {
		s.failed++
	}
	s.codes[code]++
	s.millis = append(s.millis, float64(took.Microseconds())/1000)
}

func (r *recorder) syncState(state string) {
	if state == "" {
		return
	}
	r.mu.Lock()
	r.states[state]++
	r.mu.Unlock()
}

func (r *recorder) call(name string) (callReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.calls[name]
	if !ok {
		return callReport{}, false
	}
	return s.report(), true
}

func (r *recorder) build(startedAt time.Time, elapsed time.Duration) report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		SyncStates:      maps.Clone(r.states),
		Calls:           make(map[string]callReport, len(r.calls)),
	}
	for name, s := range r.calls {
		if name == scenarioCall {
			out.Scenarios = s.report()
			continue
		}
		out.Calls[name] = s.report()
	}
	if elapsed > 0 {
		out.RPS = float64(out.Scenarios.Calls) / elapsed.Seconds()
	}
	return out
}

// summarize считает перцентили методом ближайшего ранга.
func summarize(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: nearestRank(sorted, 50),
		P95: nearestRank(sorted, 95),
		P99: nearestRank(sorted, 99),
	}
}

func nearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	return sorted[min(max(rank, 1), len(sorted))-1]
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	if clean == "." || clean == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- explicit CLI output parameter.
	f, err := os.Create(clean)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// printReport печатает сводку таблицей.
func printReport(w io.Writer, result report, cfg config) {
	s := result.Scenarios
	fmt.Fprintf(w, "crowngate load: mode=%s run=%s scenarios=%d failed=%d error_rate=%.4f rps=%.2f duration=%.2fs\n",
		cfg.mode, runTarget(cfg), s.Calls, s.Failed, s.ErrorRate, result.RPS, result.DurationSeconds)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CALL\tCOUNT\tFAILED\tP50 ms\tP95 ms\tP99 ms\tMAX ms")
	row := func(name string, r callReport) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n",
			name, r.Calls, r.Failed, r.LatencyMs.P50, r.LatencyMs.P95, r.LatencyMs.P99, r.LatencyMs.Max)
	}
	row(scenarioCall, s)
	for _, name := range sortedKeys(result.Calls) {
		row(name, result.Calls[name])
	}
	_ = tw.Flush()

	for _, state := range sortedKeys(result.SyncStates) {
		fmt.Fprintf(w, "X-Sync-State %s: %d\n", state, result.SyncStates[state])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return fmt.Sprintf("duration:%s", cfg.duration)
	}
}
