package datadog

import (
	"context"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"parleretl/internal/metrics"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() (datadogV2.MetricPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return datadogV2.MetricPayload{}, false
	}
	return f.payloads[len(f.payloads)-1], true
}

func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()

	b, err := NewBackend(context.Background(), Options{
		JobName:    "test-job",
		FlushEvery: time.Hour, // the test drives Flush explicitly
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  sub,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

// TestResolveEnvTag verifies environment-tag precedence and defaults.
//
// Edge cases:
//   - ENV wins over DD_ENV.
//   - Whitespace-only env vars are ignored.
//   - If neither is set, "env:unknown" is returned.
func TestResolveEnvTag(t *testing.T) {
	oldENV := os.Getenv("ENV")
	oldDDENV := os.Getenv("DD_ENV")
	t.Cleanup(func() {
		_ = os.Setenv("ENV", oldENV)
		_ = os.Setenv("DD_ENV", oldDDENV)
	})

	tests := []struct {
		name string
		env  string
		dd   string
		want string
	}{
		{name: "ENV_wins", env: "prod", dd: "stage", want: "env:prod"},
		{name: "DD_ENV_used_when_ENV_empty", env: "", dd: "stage", want: "env:stage"},
		{name: "whitespace_ignored", env: "   ", dd: "\n\t", want: "env:unknown"},
		{name: "default_unknown", env: "", dd: "", want: "env:unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_ = os.Setenv("ENV", tc.env)
			_ = os.Setenv("DD_ENV", tc.dd)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestStepStatusKeyRoundTrip(t *testing.T) {
	step, status := splitStepStatusKey(stepStatusKey("load", "ok"))
	if step != "load" || status != "ok" {
		t.Fatalf("round trip: got %q/%q", step, status)
	}

	step, status = splitStepStatusKey("bare")
	if step != "bare" || status != "unknown" {
		t.Fatalf("legacy key: got %q/%q", step, status)
	}
}

func TestFlushEmptySubmitsNothing(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("empty flush submitted %d payloads", sub.count())
	}
	_ = b.Close()
}

func TestFlushSubmitsBufferedSeries(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter(MetricRecordsTotal, 10, metrics.Labels{"kind": "posts"})
	b.IncCounter(MetricRecordsSkipped, 2, metrics.Labels{"kind": "posts"})
	b.IncCounter(MetricBatchesTotal, 3, nil)
	b.IncCounter(MetricStepTotal, 1, metrics.Labels{"step": "load", "status": "ok"})
	b.ObserveHistogram(MetricStepDuration, 1.5, metrics.Labels{"step": "load", "status": "ok"})
	b.ObserveHistogram(MetricStepDuration, 0.5, metrics.Labels{"step": "load", "status": "ok"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	payload, ok := sub.last()
	if !ok {
		t.Fatalf("no payload submitted")
	}

	byMetric := map[string]datadogV2.MetricSeries{}
	for _, s := range payload.Series {
		byMetric[s.Metric] = s
	}

	rec, ok := byMetric["etl.records.total"]
	if !ok {
		t.Fatalf("etl.records.total missing; got %v", keysOf(byMetric))
	}
	if *rec.Points[0].Value != 10 {
		t.Errorf("records.total value: %v", *rec.Points[0].Value)
	}
	if !hasTag(rec.Tags, "kind:posts") || !hasTag(rec.Tags, "job:test-job") {
		t.Errorf("records.total tags: %v", rec.Tags)
	}

	if _, ok := byMetric["etl.records.skipped"]; !ok {
		t.Errorf("etl.records.skipped missing")
	}
	if _, ok := byMetric["etl.batches.total"]; !ok {
		t.Errorf("etl.batches.total missing")
	}
	if _, ok := byMetric["etl.step.total"]; !ok {
		t.Errorf("etl.step.total missing")
	}

	p50, ok := byMetric["etl.step.duration_seconds.p50"]
	if !ok {
		t.Fatalf("duration p50 missing")
	}
	if *p50.Points[0].Value != 1.5 {
		t.Errorf("p50: got %v", *p50.Points[0].Value)
	}
	samples := byMetric["etl.step.duration_seconds.samples"]
	if *samples.Points[0].Value != 2 {
		t.Errorf("samples: got %v", *samples.Points[0].Value)
	}

	// A second flush starts from reset buffers.
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("reset buffers still produced a payload")
	}

	_ = b.Close()
}

func TestUnknownMetricsDropped(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter("some_other_counter", 5, nil)
	b.ObserveHistogram("some_other_histogram", 1, nil)
	b.IncCounter(MetricRecordsTotal, 1, nil) // no kind label

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sub.count() != 0 {
		t.Fatalf("unknown metrics were submitted")
	}
	_ = b.Close()
}

func TestCloseFlushesTail(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter(MetricBatchesTotal, 1, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sub.count() != 1 {
		t.Fatalf("Close did not flush the tail: %d payloads", sub.count())
	}
}

func TestPercentileNearestRank(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5}
	if got := percentileNearestRank(s, 0.5); got != 3 {
		t.Errorf("p50: got %v", got)
	}
	if got := percentileNearestRank(s, 1); got != 5 {
		t.Errorf("p100: got %v", got)
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Errorf("empty: got %v", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod , team:data ,, ")
	if len(got) != 2 || got[0] != "env:prod" || got[1] != "team:data" {
		t.Fatalf("ParseTagsCSV: %v", got)
	}
	if ParseTagsCSV("") != nil {
		t.Fatalf("empty input should yield nil")
	}
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

func keysOf(m map[string]datadogV2.MetricSeries) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
