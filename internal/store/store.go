// Package store persists grant opportunities, their contacts, and the change log.
package store

import (
	"context"
	"time"

	"github.com/sells-group/grants-cli/internal/model"
)

// DefaultPageSize and MaxPageSize bound ListFilter.Limit for paged reads.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListFilter specifies criteria for listing opportunities.
// Zero values mean "no filter". A Limit <= 0 returns every matching row.
type ListFilter struct {
	Search      string `json:"search,omitempty"`
	Agency      string `json:"agency,omitempty"`
	Category    string `json:"category,omitempty"`
	FundingType string `json:"fundingType,omitempty"`
	// Status "active" matches open opportunities (no close date or closing
	// at or after Now) with status active. Any other value matches the
	// stored status exactly.
	Status     string `json:"status,omitempty"`
	MinFunding *int64 `json:"minFunding,omitempty"`
	MaxFunding *int64 `json:"maxFunding,omitempty"`

	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`

	Now time.Time `json:"-"`
}

// Offset returns the row offset for the filter's page (pages start at 1).
func (f ListFilter) Offset() int {
	if f.Limit <= 0 || f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// Writer is the set of operations available inside a transaction.
type Writer interface {
	// FindByOpportunityID returns the opportunity with the given external id,
	// or nil when none exists.
	FindByOpportunityID(ctx context.Context, opportunityID string) (*model.Opportunity, error)
	// InsertOpportunity assigns ID, CreatedAt and UpdatedAt when unset.
	InsertOpportunity(ctx context.Context, opp *model.Opportunity) error
	// UpdateOpportunity replaces every mutable column of the row with opp.ID.
	UpdateOpportunity(ctx context.Context, opp *model.Opportunity) error
	DeleteContacts(ctx context.Context, opportunityID string) error
	InsertContact(ctx context.Context, contact *model.OpportunityContact) error
	InsertChange(ctx context.Context, change *model.OpportunityChange) error
}

// Store defines the persistence interface for the grants catalog.
type Store interface {
	// Tx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	Tx(ctx context.Context, fn func(w Writer) error) error

	CountOpportunities(ctx context.Context) (int, error)
	// RecentChanges returns changes at or after since, newest first.
	RecentChanges(ctx context.Context, since time.Time, limit int) ([]model.RecentChange, error)
	// ListOpportunities returns one page of matches and the total match count.
	ListOpportunities(ctx context.Context, filter ListFilter) ([]model.Opportunity, int, error)
	// GetOpportunity returns the opportunity with its contacts, or nil when absent.
	GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
