package collector

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/grants-cli/internal/fetcher"
	"github.com/sells-group/grants-cli/internal/model"
	"github.com/sells-group/grants-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func ptr[T any](v T) *T { return &v }

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// fakeFetcher serves bodies by URL; anything else is a 404.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  []string
}

func (f *fakeFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	body, ok := f.bodies[url]
	if !ok {
		return nil, &fetcher.StatusError{StatusCode: 404, URL: url}
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// staticSource always returns the same extract or error.
type staticSource struct {
	ex  *Extract
	err error
}

func (s staticSource) Latest(context.Context) (*Extract, error) {
	return s.ex, s.err
}

func xmlSource(t *testing.T, doc string) staticSource {
	t.Helper()
	return staticSource{ex: &Extract{URL: "test://extract", Data: gzipBytes(t, doc)}}
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "grants.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// faultyStore injects a failure or panic when a given opportunity is written.
type faultyStore struct {
	store.Store
	failOn  string
	panicOn string
	writes  int
}

func (s *faultyStore) Tx(ctx context.Context, fn func(w store.Writer) error) error {
	return s.Store.Tx(ctx, func(w store.Writer) error {
		return fn(&faultyWriter{Writer: w, s: s})
	})
}

type faultyWriter struct {
	store.Writer
	s *faultyStore
}

func (w *faultyWriter) InsertOpportunity(ctx context.Context, opp *model.Opportunity) error {
	w.s.writes++
	switch opp.OpportunityID {
	case w.s.failOn:
		return errBoom
	case w.s.panicOn:
		panic("driver exploded")
	}
	return w.Writer.InsertOpportunity(ctx, opp)
}

var errBoom = &testError{"insert rejected"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func detail(id, title string, extra ...string) string {
	var b strings.Builder
	b.WriteString("<OpportunityDetail><OpportunityID>" + id + "</OpportunityID>")
	b.WriteString("<OpportunityTitle>" + title + "</OpportunityTitle>")
	for _, e := range extra {
		b.WriteString(e)
	}
	b.WriteString("</OpportunityDetail>")
	return b.String()
}

func opportunitiesDoc(details ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><Opportunities>` + strings.Join(details, "") + `</Opportunities>`
}

func externalIDs(opps []model.Opportunity) []string {
	ids := make([]string, len(opps))
	for i, o := range opps {
		ids[i] = o.OpportunityID
	}
	return ids
}
