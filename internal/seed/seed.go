// Package seed loads fixture opportunities from YAML through the same
// reconciliation path the collector uses.
package seed

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/grants-cli/internal/collector"
	"github.com/sells-group/grants-cli/internal/model"
)

// Source labels change entries written by a seed load.
const Source = "seed"

// File is the top-level layout of a seed document.
type File struct {
	Opportunities []Fixture `yaml:"opportunities"`
}

// Fixture is one opportunity as written in a seed file. Dates use any layout
// collector.ParseDate accepts.
type Fixture struct {
	OpportunityID             string   `yaml:"opportunity_id"`
	OpportunityNumber         string   `yaml:"opportunity_number"`
	Title                     string   `yaml:"title"`
	Description               string   `yaml:"description"`
	AgencyCode                string   `yaml:"agency_code"`
	AgencyName                string   `yaml:"agency_name"`
	PostDate                  string   `yaml:"post_date"`
	CloseDate                 string   `yaml:"close_date"`
	ArchiveDate               string   `yaml:"archive_date"`
	EstimatedTotalFunding     *int64   `yaml:"estimated_total_funding"`
	AwardCeiling              *int64   `yaml:"award_ceiling"`
	AwardFloor                *int64   `yaml:"award_floor"`
	ExpectedNumberOfAwards    *int     `yaml:"expected_number_of_awards"`
	CostSharingRequired       *bool    `yaml:"cost_sharing_required"`
	OpportunityCategory       string   `yaml:"opportunity_category"`
	FundingInstrumentType     string   `yaml:"funding_instrument_type"`
	CategoryOfFundingActivity string   `yaml:"category_of_funding_activity"`
	CFDANumbers               []string `yaml:"cfda_numbers"`
	EligibleApplicants        string   `yaml:"eligible_applicants"`
	AdditionalEligibilityInfo string   `yaml:"additional_eligibility_info"`
	Status                    string   `yaml:"status"`
	Contact                   *Contact `yaml:"contact"`
}

// Contact is the optional grantor contact of a fixture.
type Contact struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone"`
	Text  string `yaml:"text"`
	URL   string `yaml:"url"`
}

// Result counts what a Load wrote.
type Result struct {
	Created int
	Updated int
	Failed  int
}

// Reconciler is the write path fixtures go through.
type Reconciler interface {
	Reconcile(ctx context.Context, opp model.Opportunity, contact *model.OpportunityContact) (model.ChangeType, error)
}

// Parse decodes a seed document. Fixtures without an opportunity id are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "seed: decode yaml")
	}
	for i, fx := range f.Opportunities {
		if strings.TrimSpace(fx.OpportunityID) == "" {
			return nil, eris.Errorf("seed: opportunity %d has no opportunity_id", i+1)
		}
	}
	return &f, nil
}

// LoadFile reads and applies the seed document at path.
func LoadFile(ctx context.Context, r Reconciler, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Load(ctx, r, f)
}

// Load reconciles every fixture. A fixture that fails is logged and counted;
// the rest still load.
func Load(ctx context.Context, r Reconciler, f *File) (*Result, error) {
	log := zap.L().With(zap.String("component", "seed"))
	res := &Result{}

	for _, fx := range f.Opportunities {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "seed: cancelled")
		}

		opp, contact := fx.toModel()
		ct, err := r.Reconcile(ctx, opp, contact)
		if err != nil {
			log.Warn("fixture failed", zap.String("opportunity_id", opp.OpportunityID), zap.Error(err))
			res.Failed++
			continue
		}
		switch ct {
		case model.ChangeNew:
			res.Created++
		case model.ChangeModified:
			res.Updated++
		}
	}

	log.Info("seed complete",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (fx Fixture) toModel() (model.Opportunity, *model.OpportunityContact) {
	opp := model.Opportunity{
		OpportunityID:             strings.TrimSpace(fx.OpportunityID),
		OpportunityNumber:         optional(fx.OpportunityNumber),
		Title:                     collector.NormalizeTitle(fx.Title),
		Description:               optional(fx.Description),
		AgencyCode:                optional(fx.AgencyCode),
		AgencyName:                optional(fx.AgencyName),
		PostDate:                  collector.ParseDate(fx.PostDate),
		CloseDate:                 collector.ParseDate(fx.CloseDate),
		ArchiveDate:               collector.ParseDate(fx.ArchiveDate),
		EstimatedTotalFunding:     fx.EstimatedTotalFunding,
		AwardCeiling:              fx.AwardCeiling,
		AwardFloor:                fx.AwardFloor,
		ExpectedNumberOfAwards:    fx.ExpectedNumberOfAwards,
		CostSharingRequired:       fx.CostSharingRequired,
		OpportunityCategory:       optional(fx.OpportunityCategory),
		FundingInstrumentType:     optional(fx.FundingInstrumentType),
		CategoryOfFundingActivity: optional(fx.CategoryOfFundingActivity),
		CFDANumbers:               fx.CFDANumbers,
		EligibleApplicants:        optional(fx.EligibleApplicants),
		AdditionalEligibilityInfo: optional(fx.AdditionalEligibilityInfo),
		Status:                    model.OpportunityStatus(strings.TrimSpace(fx.Status)),
	}

	if fx.Contact == nil {
		return opp, nil
	}
	c := &model.OpportunityContact{
		Name:  optional(fx.Contact.Name),
		Email: optional(fx.Contact.Email),
		Phone: optional(fx.Contact.Phone),
		Text:  optional(fx.Contact.Text),
		URL:   optional(fx.Contact.URL),
	}
	if c.Name == nil && c.Email == nil && c.Phone == nil && c.Text == nil && c.URL == nil {
		return opp, nil
	}
	return opp, c
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
