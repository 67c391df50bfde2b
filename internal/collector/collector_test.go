package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/grants-cli/internal/store"
)

func numberedDetails(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = detail(fmt.Sprintf("%d", i+1), fmt.Sprintf("Opportunity %d", i+1))
	}
	return out
}

func TestRun_CreatesThenUpdates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	doc := opportunitiesDoc(
		detail("1", "One", "<CloseDate></CloseDate><GrantorContactEmail>a@x.gov</GrantorContactEmail>"),
		detail("2", "Two", "<EstimatedTotalProgramFunding>$1,500,000.00</EstimatedTotalProgramFunding>"),
		detail("", "Missing id"),
	)

	c := New(xmlSource(t, doc), NewReconciler(st, ""), 10)
	report := c.Run(ctx)
	require.True(t, report.Success, report.Errors)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Errors)
	assert.Equal(t, "test://extract", report.ExtractURL)

	again := c.Run(ctx)
	require.True(t, again.Success)
	assert.Equal(t, 2, again.Processed)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 2, again.Updated)

	n, err := st.CountOpportunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	changes, err := st.RecentChanges(ctx, time.Time{}, 100)
	require.NoError(t, err)
	assert.Len(t, changes, 4)

	opps, total, err := st.ListOpportunities(ctx, store.ListFilter{Now: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, o := range opps {
		switch o.OpportunityID {
		case "1":
			assert.Nil(t, o.CloseDate)
			assert.True(t, o.IsActive(time.Now()))
		case "2":
			require.NotNil(t, o.EstimatedTotalFunding)
			assert.Equal(t, int64(1500000), *o.EstimatedTotalFunding)
		}
	}
}

func TestRun_RecordFailureIsIsolated(t *testing.T) {
	st := &faultyStore{Store: newTestStore(t), failOn: "3"}
	doc := opportunitiesDoc(numberedDetails(12)...)

	report := New(xmlSource(t, doc), NewReconciler(st, ""), 5).Run(context.Background())
	assert.False(t, report.Success)
	assert.Equal(t, 11, report.Processed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "record 3")

	n, err := st.CountOpportunities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, n)
}

func TestRun_BatchPanicEndsOnlyThatBatch(t *testing.T) {
	st := &faultyStore{Store: newTestStore(t), panicOn: "5"}
	doc := opportunitiesDoc(numberedDetails(15)...)

	report := New(xmlSource(t, doc), NewReconciler(st, ""), 5).Run(context.Background())
	assert.False(t, report.Success)
	// Batch 1 holds records 1-5; record 5 panics, batches 2 and 3 still run.
	assert.Equal(t, 14, report.Processed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "batch 1")
	assert.Contains(t, report.Errors[0], "driver exploded")

	assert.Nil(t, findByExternalID(t, st, "5"))
	assert.NotNil(t, findByExternalID(t, st, "15"))
}

func TestRun_FatalErrorsWriteNothing(t *testing.T) {
	tests := []struct {
		name   string
		source ExtractSource
		kind   string
	}{
		{
			name:   "no extract",
			source: NewHTTPExtractSource(&fakeFetcher{}, "https://example.gov", 2, nil, fixedNow),
			kind:   "no extract available",
		},
		{
			name:   "corrupt",
			source: staticSource{ex: &Extract{URL: "x", Data: []byte("not gzip")}},
			kind:   "corrupt extract",
		},
		{
			name:   "malformed xml",
			source: staticSource{ex: &Extract{URL: "x", Data: gzipBytes(t, "<Opportunities><Oops>")}},
			kind:   "parse failure",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &faultyStore{Store: newTestStore(t)}
			report := New(tt.source, NewReconciler(st, ""), 0).Run(context.Background())

			assert.False(t, report.Success)
			assert.Zero(t, report.Processed)
			require.Len(t, report.Errors, 1)
			assert.Contains(t, report.Errors[0], "collection failed")
			assert.Contains(t, report.Errors[0], tt.kind)
			assert.Zero(t, st.writes)
		})
	}
}

func TestRun_UnknownRootSucceedsEmpty(t *testing.T) {
	st := newTestStore(t)
	report := New(xmlSource(t, `<Catalog/>`), NewReconciler(st, ""), 0).Run(context.Background())
	assert.True(t, report.Success)
	assert.Zero(t, report.Processed)
	assert.NotNil(t, report.Errors)
}

func TestRun_Cancelled(t *testing.T) {
	st := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := New(xmlSource(t, opportunitiesDoc(numberedDetails(3)...)), NewReconciler(st, ""), 0).Run(ctx)
	assert.False(t, report.Success)
	assert.Zero(t, report.Processed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "collection cancelled")
}

type panickingSource struct{}

func (panickingSource) Latest(context.Context) (*Extract, error) { panic("source blew up") }

func TestRun_NeverPanics(t *testing.T) {
	var report *Report
	require.NotPanics(t, func() {
		report = New(panickingSource{}, NewReconciler(newTestStore(t), ""), 0).Run(context.Background())
	})
	assert.False(t, report.Success)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "collection failed: panic: source blew up")
}

func TestReport_Summary(t *testing.T) {
	d := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	r := &Report{Success: true, Processed: 3, Created: 2, Updated: 1, ExtractDate: &d, Duration: 1500 * time.Millisecond}
	assert.Equal(t, "collection succeeded: processed 3 (created 2, updated 1, skipped 0), 0 errors, extract 2025-03-14, took 1.5s", r.Summary())

	r = &Report{Errors: []string{"x"}}
	assert.Contains(t, r.Summary(), "collection failed")
	assert.Contains(t, r.Summary(), "extract none")
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func summaryLines(logs *observer.ObservedLogs) []string {
	var out []string
	for _, e := range logs.All() {
		if strings.HasPrefix(e.Message, "collection ") && strings.Contains(e.Message, "processed") {
			out = append(out, e.Message)
		}
	}
	return out
}

func TestRun_LogsFinalSummary(t *testing.T) {
	logs := observeLogs(t)

	report := New(xmlSource(t, opportunitiesDoc(detail("1", "One"))), NewReconciler(newTestStore(t), ""), 0).Run(context.Background())
	require.True(t, report.Success, report.Errors)
	assert.Greater(t, report.Duration, time.Duration(0))

	lines := summaryLines(logs)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "collection succeeded: processed 1 (created 1"), lines[0])
	assert.Equal(t, report.Summary(), lines[0])
}

func TestRun_LogsFailedSummary(t *testing.T) {
	logs := observeLogs(t)

	report := New(staticSource{err: newKindError(ErrNoExtractAvailable, errors.New("nothing"))}, NewReconciler(newTestStore(t), ""), 0).Run(context.Background())
	require.False(t, report.Success)

	lines := summaryLines(logs)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "collection failed: processed 0"), lines[0])
}

func TestReport_JSONDuration(t *testing.T) {
	r := &Report{Errors: []string{}}
	r.finish(time.Now().Add(-1500 * time.Millisecond))

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	_, hasRaw := m["duration"]
	assert.False(t, hasRaw)
	assert.InDelta(t, 1.5, m["durationSeconds"], 0.5)
	assert.Equal(t, true, m["success"])
}

func TestErrorKinds(t *testing.T) {
	err := newKindError(ErrCorruptExtract, errors.New("bad header"))
	assert.Equal(t, "corrupt extract: bad header", err.Error())
	assert.True(t, errors.Is(err, ErrCorruptExtract))
	assert.False(t, errors.Is(err, ErrParseFailure))

	be := &BatchError{Batch: 2, Err: errors.New("x")}
	assert.Equal(t, "batch 2: x", be.Error())
}
