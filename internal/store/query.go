package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/grants-cli/internal/model"
)

const opportunityColumns = `id, opportunity_id, opportunity_number, title, description, agency_code, agency_name,
	post_date, close_date, archive_date, last_updated_date,
	estimated_total_funding, award_ceiling, award_floor, expected_number_of_awards, cost_sharing_required,
	opportunity_category, funding_instrument_type, category_of_funding_activity, cfda_numbers,
	eligible_applicants, additional_eligibility_info, version, status, created_at, updated_at`

// dialect captures the SQL differences between the two backends.
type dialect struct {
	placeholder func(n int) string
	like        string
	timeArg     func(t time.Time) any
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	like:        "ILIKE",
	timeArg:     func(t time.Time) any { return t },
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	like:        "LIKE",
	timeArg:     func(t time.Time) any { return formatSQLiteTime(t) },
}

type whereBuilder struct {
	d       dialect
	clauses []string
	args    []any
}

func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return b.d.placeholder(len(b.args))
}

func (b *whereBuilder) add(clause string) {
	b.clauses = append(b.clauses, clause)
}

func (b *whereBuilder) sql() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.clauses, " AND ")
}

// listWhere translates f into a WHERE clause and its arguments.
func listWhere(f ListFilter, d dialect) (string, []any) {
	b := &whereBuilder{d: d}

	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + s + "%"
		b.add(fmt.Sprintf("(title %[1]s %[2]s OR description %[1]s %[3]s OR agency_name %[1]s %[4]s)",
			d.like, b.arg(pattern), b.arg(pattern), b.arg(pattern)))
	}
	if f.Agency != "" {
		b.add("agency_code = " + b.arg(f.Agency))
	}
	if f.Category != "" {
		b.add("category_of_funding_activity = " + b.arg(f.Category))
	}
	if f.FundingType != "" {
		b.add("funding_instrument_type = " + b.arg(f.FundingType))
	}
	switch f.Status {
	case "":
	case string(model.StatusActive):
		now := f.Now
		if now.IsZero() {
			now = time.Now()
		}
		b.add("(close_date IS NULL OR close_date >= " + b.arg(d.timeArg(now.UTC())) + ")")
		b.add("status = " + b.arg(string(model.StatusActive)))
	default:
		b.add("status = " + b.arg(f.Status))
	}
	if f.MinFunding != nil {
		b.add("estimated_total_funding >= " + b.arg(*f.MinFunding))
	}
	if f.MaxFunding != nil {
		b.add("estimated_total_funding <= " + b.arg(*f.MaxFunding))
	}

	return b.sql(), b.args
}

// listOrder sorts soonest-closing first with undated rows last, newest first within a date.
const listOrder = " ORDER BY close_date IS NULL, close_date ASC, created_at DESC"

func limitClause(f ListFilter, d dialect, args []any) (string, []any) {
	if f.Limit <= 0 {
		return "", args
	}
	args = append(args, f.Limit)
	lim := d.placeholder(len(args))
	args = append(args, f.Offset())
	off := d.placeholder(len(args))
	return " LIMIT " + lim + " OFFSET " + off, args
}

func prepareInsert(opp *model.Opportunity) {
	now := time.Now().UTC()
	if opp.ID == "" {
		opp.ID = uuid.New().String()
	}
	if opp.Status == "" {
		opp.Status = model.StatusActive
	}
	if opp.CreatedAt.IsZero() {
		opp.CreatedAt = now
	}
	if opp.UpdatedAt.IsZero() {
		opp.UpdatedAt = now
	}
}

func prepareContact(c *model.OpportunityContact) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
}

func prepareChange(c *model.OpportunityChange) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.ChangeDate.IsZero() {
		c.ChangeDate = time.Now().UTC()
	}
}

func cfdaOrEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
