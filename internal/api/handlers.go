package api

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/grants-cli/internal/collector"
	"github.com/sells-group/grants-cli/internal/model"
	"github.com/sells-group/grants-cli/internal/store"
)

const (
	statusWindow      = 24 * time.Hour
	statusChangeLimit = 10
)

type collectResponse struct {
	Success         bool     `json:"success"`
	Processed       int      `json:"processed"`
	Errors          []string `json:"errors"`
	DurationSeconds int      `json:"durationSeconds"`
	Timestamp       string   `json:"timestamp"`
}

type statusOpportunity struct {
	Title  string  `json:"title"`
	Agency *string `json:"agency"`
}

type statusChange struct {
	Type        model.ChangeType  `json:"type"`
	Date        time.Time         `json:"date"`
	Source      string            `json:"source"`
	Opportunity statusOpportunity `json:"opportunity"`
}

type statusResponse struct {
	TotalOpportunities int            `json:"totalOpportunities"`
	RecentChanges      []statusChange `json:"recentChanges"`
	LastUpdated        *time.Time     `json:"lastUpdated"`
}

type listResponse struct {
	Grants      []grantJSON `json:"grants"`
	Total       int         `json:"total"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
	HasMore     bool        `json:"hasMore"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Collect handles POST /collect. The run's report is returned with 200
// whether or not it succeeded; 500 means the run itself blew up.
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	log := zap.L().With(zap.String("component", "api.collect"))
	log.Info("collection triggered via api")

	started := h.opts.Now()
	report, err := h.runCollection(r.Context())
	if err != nil {
		log.Error("collection failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, collectResponse{
			Success:   false,
			Errors:    []string{"Collection failed: " + err.Error()},
			Timestamp: h.opts.Now().Format(time.RFC3339),
		})
		return
	}

	respondJSON(w, http.StatusOK, collectResponse{
		Success:         report.Success,
		Processed:       report.Processed,
		Errors:          report.Errors,
		DurationSeconds: int(math.Round(h.opts.Now().Sub(started).Seconds())),
		Timestamp:       h.opts.Now().Format(time.RFC3339),
	})
}

func (h *Handler) runCollection(ctx context.Context) (report *collector.Report, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			report, err = nil, eris.Errorf("panic: %v", rec)
		}
	}()

	// The run outlives a dropped client connection but not the cutoff.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.CollectTimeout)
	defer cancel()

	report = h.runner.Run(ctx)
	if report == nil {
		return nil, eris.New("collector returned no report")
	}
	if h.opts.OnReport != nil {
		h.opts.OnReport(ctx, report)
	}
	return report, nil
}

// CollectStatus handles GET /collect/status.
func (h *Handler) CollectStatus(w http.ResponseWriter, r *http.Request) {
	var (
		total   int
		changes []model.RecentChange
	)
	since := h.opts.Now().Add(-statusWindow)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		n, err := h.store.CountOpportunities(ctx)
		total = n
		return err
	})
	g.Go(func() error {
		c, err := h.store.RecentChanges(ctx, since, statusChangeLimit)
		changes = c
		return err
	})
	if err := g.Wait(); err != nil {
		zap.L().Error("api: collection status", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get collection status")
		return
	}

	resp := statusResponse{
		TotalOpportunities: total,
		RecentChanges:      make([]statusChange, 0, len(changes)),
	}
	for _, c := range changes {
		resp.RecentChanges = append(resp.RecentChanges, statusChange{
			Type:        c.ChangeType,
			Date:        c.ChangeDate,
			Source:      c.Source,
			Opportunity: statusOpportunity{Title: c.Title, Agency: c.AgencyName},
		})
	}
	if len(changes) > 0 {
		last := changes[0].ChangeDate
		resp.LastUpdated = &last
	}

	respondJSON(w, http.StatusOK, resp)
}

// ListGrants handles GET /grants.
func (h *Handler) ListGrants(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Now = h.opts.Now()

	opps, total, err := h.store.ListOpportunities(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list grants", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch grants")
		return
	}

	totalPages := (total + filter.Limit - 1) / filter.Limit
	resp := listResponse{
		Grants:      make([]grantJSON, 0, len(opps)),
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: filter.Page,
		HasMore:     filter.Page < totalPages,
	}
	for i := range opps {
		resp.Grants = append(resp.Grants, toGrantJSON(&opps[i], filter.Now))
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetGrant handles GET /grants/{id}.
func (h *Handler) GetGrant(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	opp, err := h.store.GetOpportunity(r.Context(), id)
	if err != nil {
		zap.L().Error("api: get grant", zap.String("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch grant")
		return
	}
	if opp == nil {
		respondError(w, http.StatusNotFound, "Grant not found")
		return
	}

	respondJSON(w, http.StatusOK, grantDetailJSON{
		grantJSON:              toGrantJSON(opp, h.opts.Now()),
		CategoryLabel:          model.CategoryLabel(opp.OpportunityCategory),
		FundingInstrumentLabel: model.FundingInstrumentLabel(opp.FundingInstrumentType),
		FundingActivityLabel:   model.FundingActivityLabel(opp.CategoryOfFundingActivity),
	})
}

// parseListFilter reads the query string. "all" or an empty value disables
// a filter.
func parseListFilter(r *http.Request) (store.ListFilter, error) {
	q := r.URL.Query()
	get := func(key string) string {
		v := strings.TrimSpace(q.Get(key))
		if strings.EqualFold(v, "all") {
			return ""
		}
		return v
	}

	f := store.ListFilter{
		Search:      get("search"),
		Agency:      get("agency"),
		Category:    get("category"),
		FundingType: get("fundingType"),
		Status:      get("status"),
		Page:        1,
		Limit:       store.DefaultPageSize,
	}

	var err error
	if f.MinFunding, err = parseMoneyParam(q.Get("minFunding"), "minFunding"); err != nil {
		return f, err
	}
	if f.MaxFunding, err = parseMoneyParam(q.Get("maxFunding"), "maxFunding"); err != nil {
		return f, err
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, eris.Errorf("invalid page %q", v)
		}
		f.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, eris.Errorf("invalid limit %q", v)
		}
		f.Limit = min(n, store.MaxPageSize)
	}
	return f, nil
}

func parseMoneyParam(v, name string) (*int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return nil, eris.Errorf("invalid %s %q", name, v)
	}
	return &n, nil
}
