package collector

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grants-cli/internal/fetcher"
)

const extractDateLayout = "20060102"

// Extract is one downloaded, still-compressed extract document.
type Extract struct {
	Date time.Time
	URL  string
	Data []byte
}

// ExtractSource yields the newest usable extract.
type ExtractSource interface {
	Latest(ctx context.Context) (*Extract, error)
}

// HTTPExtractSource walks back from today through the look-back window and
// returns the first date/variant that downloads a non-empty body.
type HTTPExtractSource struct {
	fetcher      fetcher.Fetcher
	baseURL      string
	lookbackDays int
	variants     []string
	now          func() time.Time
}

// NewHTTPExtractSource builds a source that requests {baseURL}/{YYYYMMDD}{variant}.
// A nil now uses the current UTC time.
func NewHTTPExtractSource(f fetcher.Fetcher, baseURL string, lookbackDays int, variants []string, now func() time.Time) *HTTPExtractSource {
	if lookbackDays < 1 {
		lookbackDays = 7
	}
	if len(variants) == 0 {
		variants = []string{"-v2.xml.gz", "-v1.xml.gz", ".xml.gz"}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &HTTPExtractSource{
		fetcher:      f,
		baseURL:      strings.TrimRight(baseURL, "/"),
		lookbackDays: lookbackDays,
		variants:     variants,
		now:          now,
	}
}

// candidate is one extract URL to try and the date it is published for.
type candidate struct {
	date time.Time
	url  string
}

// candidates lists the URLs Latest tries: newest day first, variants in
// configured order within a day.
func (s *HTTPExtractSource) candidates() []candidate {
	today := s.now()
	out := make([]candidate, 0, s.lookbackDays*len(s.variants))
	for d := 0; d < s.lookbackDays; d++ {
		y, m, dd := today.AddDate(0, 0, -d).Date()
		date := time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
		stamp := date.Format(extractDateLayout)
		for _, v := range s.variants {
			out = append(out, candidate{date: date, url: s.baseURL + "/" + stamp + v})
		}
	}
	return out
}

func (s *HTTPExtractSource) Latest(ctx context.Context) (*Extract, error) {
	log := zap.L().With(zap.String("component", "collector.extract"))

	for i, c := range s.candidates() {
		data, err := s.download(ctx, c.url)
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "extract search cancelled")
		}
		if err != nil {
			log.Debug("extract variant unavailable", zap.String("url", c.url), zap.Error(err))
			continue
		}
		if len(data) == 0 {
			log.Debug("extract variant empty", zap.String("url", c.url))
			continue
		}

		log.Info("extract downloaded",
			zap.String("url", c.url),
			zap.Int("bytes", len(data)),
			zap.Int("days_back", i/len(s.variants)),
		)
		return &Extract{Date: c.date, URL: c.url, Data: data}, nil
	}

	today := s.now()
	oldest := today.AddDate(0, 0, -(s.lookbackDays - 1))
	return nil, newKindError(ErrNoExtractAvailable, eris.Errorf(
		"no extract found for %s back to %s (%d days, %d variants each)",
		today.Format(extractDateLayout), oldest.Format(extractDateLayout), s.lookbackDays, len(s.variants),
	))
}

func (s *HTTPExtractSource) download(ctx context.Context, url string) ([]byte, error) {
	body, err := s.fetcher.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "read extract body")
	}
	return data, nil
}

var fileDatePattern = regexp.MustCompile(`(\d{8})`)

// FileExtractSource serves a local compressed extract, for replays and offline runs.
type FileExtractSource struct {
	Path string
}

func (s *FileExtractSource) Latest(ctx context.Context) (*Extract, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "extract search cancelled")
	}

	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, newKindError(ErrNoExtractAvailable, eris.Wrapf(err, "stat %s", s.Path))
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, newKindError(ErrNoExtractAvailable, eris.Wrapf(err, "read %s", s.Path))
	}
	if len(data) == 0 {
		return nil, newKindError(ErrNoExtractAvailable, eris.Errorf("%s is empty", s.Path))
	}

	date := info.ModTime().UTC()
	if m := fileDatePattern.FindString(filepath.Base(s.Path)); m != "" {
		if t, err := time.Parse(extractDateLayout, m); err == nil {
			date = t
		}
	}
	y, mo, d := date.Date()

	return &Extract{
		Date: time.Date(y, mo, d, 0, 0, 0, 0, time.UTC),
		URL:  "file://" + s.Path,
		Data: data,
	}, nil
}
