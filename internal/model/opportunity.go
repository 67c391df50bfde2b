package model

import "time"

// TitleMaxLength is the storage limit for Opportunity.Title, in runes.
const TitleMaxLength = 255

// UntitledPlaceholder is stored when the upstream record carries no title.
const UntitledPlaceholder = "Untitled"

// OpportunityStatus is the lifecycle flag stored on an opportunity row.
type OpportunityStatus string

const (
	StatusActive   OpportunityStatus = "active"
	StatusArchived OpportunityStatus = "archived"
	StatusClosed   OpportunityStatus = "closed"
)

// ChangeType classifies an OpportunityChange audit entry.
type ChangeType string

const (
	ChangeNew      ChangeType = "new"
	ChangeModified ChangeType = "modified"
)

// Opportunity is one fundable grant program entry.
//
// ID is the internal storage identifier; OpportunityID is the stable identifier
// assigned upstream and is unique across the table. Nil pointers are stored as NULL.
type Opportunity struct {
	ID                string  `json:"id"`
	OpportunityID     string  `json:"opportunityId"`
	OpportunityNumber *string `json:"opportunityNumber"`
	Title             string  `json:"title"`
	Description       *string `json:"description"`
	AgencyCode        *string `json:"agencyCode"`
	AgencyName        *string `json:"agencyName"`

	PostDate        *time.Time `json:"postDate"`
	CloseDate       *time.Time `json:"closeDate"`
	ArchiveDate     *time.Time `json:"archiveDate"`
	LastUpdatedDate *time.Time `json:"lastUpdatedDate"`

	EstimatedTotalFunding  *int64 `json:"estimatedTotalFunding"`
	AwardCeiling           *int64 `json:"awardCeiling"`
	AwardFloor             *int64 `json:"awardFloor"`
	ExpectedNumberOfAwards *int   `json:"expectedNumberOfAwards"`
	CostSharingRequired    *bool  `json:"costSharingRequired"`

	OpportunityCategory       *string  `json:"opportunityCategory"`
	FundingInstrumentType     *string  `json:"fundingInstrumentType"`
	CategoryOfFundingActivity *string  `json:"categoryOfFundingActivity"`
	CFDANumbers               []string `json:"cfdaNumbers"`

	EligibleApplicants        *string `json:"eligibleApplicants"`
	AdditionalEligibilityInfo *string `json:"additionalEligibilityInfo"`

	Version   *string           `json:"version"`
	Status    OpportunityStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`

	Contacts []OpportunityContact `json:"contacts,omitempty"`
}

// IsActive reports whether the opportunity is still open at now.
// An opportunity without a close date is treated as active.
func (o *Opportunity) IsActive(now time.Time) bool {
	if o.CloseDate == nil {
		return true
	}
	return o.CloseDate.After(now)
}

// DaysUntilClose returns the whole days remaining before the close date,
// rounded up, or nil when there is no close date.
func (o *Opportunity) DaysUntilClose(now time.Time) *int {
	if o.CloseDate == nil {
		return nil
	}
	d := o.CloseDate.Sub(now)
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) > 0 {
		days++
	}
	return &days
}

// OpportunityContact is a grantor contact owned by an Opportunity.
// The whole contact set of an opportunity is replaced on every sync.
type OpportunityContact struct {
	ID            string    `json:"id"`
	OpportunityID string    `json:"opportunityId"`
	Name          *string   `json:"contactName"`
	Email         *string   `json:"contactEmail"`
	Phone         *string   `json:"contactPhone"`
	Text          *string   `json:"contactText"`
	URL           *string   `json:"additionalInfoUrl"`
	CreatedAt     time.Time `json:"createdAt"`
}

// OpportunityChange is an append-only audit entry for one create or update.
type OpportunityChange struct {
	ID            string     `json:"id"`
	OpportunityID string     `json:"opportunityId"`
	ChangeType    ChangeType `json:"changeType"`
	ChangeDate    time.Time  `json:"changeDate"`
	Source        string     `json:"source"`
	Details       *string    `json:"details"`
}

// RecentChange is an OpportunityChange joined with its parent's display fields.
type RecentChange struct {
	ChangeType ChangeType `json:"type"`
	ChangeDate time.Time  `json:"date"`
	Source     string     `json:"source"`
	Title      string     `json:"title"`
	AgencyName *string    `json:"agency"`
}
