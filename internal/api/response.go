package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/grants-cli/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// grantJSON is the wire form of an opportunity. Money amounts are strings
// so that clients never round them through floating point.
type grantJSON struct {
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

	EstimatedTotalFunding  *string `json:"estimatedTotalFunding"`
	AwardCeiling           *string `json:"awardCeiling"`
	AwardFloor             *string `json:"awardFloor"`
	ExpectedNumberOfAwards *int    `json:"expectedNumberOfAwards"`
	CostSharingRequired    *bool   `json:"costSharingRequired"`

	OpportunityCategory       *string  `json:"opportunityCategory"`
	FundingInstrumentType     *string  `json:"fundingInstrumentType"`
	CategoryOfFundingActivity *string  `json:"categoryOfFundingActivity"`
	CFDANumbers               []string `json:"cfdaNumbers"`

	EligibleApplicants        *string `json:"eligibleApplicants"`
	AdditionalEligibilityInfo *string `json:"additionalEligibilityInfo"`

	Version   *string                    `json:"version"`
	Status    model.OpportunityStatus    `json:"status"`
	CreatedAt time.Time                  `json:"createdAt"`
	UpdatedAt time.Time                  `json:"updatedAt"`
	Contacts  []model.OpportunityContact `json:"contacts"`

	IsActive       bool `json:"isActive"`
	DaysUntilClose *int `json:"daysUntilClose"`
}

// grantDetailJSON adds display labels to the detail view.
type grantDetailJSON struct {
	grantJSON
	CategoryLabel          string `json:"categoryLabel"`
	FundingInstrumentLabel string `json:"fundingInstrumentLabel"`
	FundingActivityLabel   string `json:"fundingActivityLabel"`
}

func moneyString(v *int64) *string {
	if v == nil {
		return nil
	}
	s := strconv.FormatInt(*v, 10)
	return &s
}

func toGrantJSON(o *model.Opportunity, now time.Time) grantJSON {
	contacts := o.Contacts
	if contacts == nil {
		contacts = []model.OpportunityContact{}
	}
	cfda := o.CFDANumbers
	if cfda == nil {
		cfda = []string{}
	}
	return grantJSON{
		ID:                        o.ID,
		OpportunityID:             o.OpportunityID,
		OpportunityNumber:         o.OpportunityNumber,
		Title:                     o.Title,
		Description:               o.Description,
		AgencyCode:                o.AgencyCode,
		AgencyName:                o.AgencyName,
		PostDate:                  o.PostDate,
		CloseDate:                 o.CloseDate,
		ArchiveDate:               o.ArchiveDate,
		LastUpdatedDate:           o.LastUpdatedDate,
		EstimatedTotalFunding:     moneyString(o.EstimatedTotalFunding),
		AwardCeiling:              moneyString(o.AwardCeiling),
		AwardFloor:                moneyString(o.AwardFloor),
		ExpectedNumberOfAwards:    o.ExpectedNumberOfAwards,
		CostSharingRequired:       o.CostSharingRequired,
		OpportunityCategory:       o.OpportunityCategory,
		FundingInstrumentType:     o.FundingInstrumentType,
		CategoryOfFundingActivity: o.CategoryOfFundingActivity,
		CFDANumbers:               cfda,
		EligibleApplicants:        o.EligibleApplicants,
		AdditionalEligibilityInfo: o.AdditionalEligibilityInfo,
		Version:                   o.Version,
		Status:                    o.Status,
		CreatedAt:                 o.CreatedAt,
		UpdatedAt:                 o.UpdatedAt,
		Contacts:                  contacts,
		IsActive:                  o.IsActive(now),
		DaysUntilClose:            o.DaysUntilClose(now),
	}
}
