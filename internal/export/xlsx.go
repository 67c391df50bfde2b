// Package export writes opportunities to spreadsheets.
package export

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/grants-cli/internal/model"
	"github.com/sells-group/grants-cli/internal/store"
)

// Sheet names in the exported workbook.
const (
	OpportunitiesSheet = "Opportunities"
	ContactsSheet      = "Contacts"
)

const dateLayout = "2006-01-02"

var opportunityHeader = []string{
	"Opportunity ID", "Number", "Title", "Agency Code", "Agency",
	"Posted", "Closes", "Archived", "Active", "Days Until Close",
	"Estimated Total Funding", "Award Ceiling", "Award Floor", "Expected Awards", "Cost Sharing",
	"Category", "Funding Instrument", "Funding Activity", "CFDA Numbers", "Status", "Updated",
}

var contactHeader = []string{"Opportunity ID", "Name", "Email", "Phone", "Text", "URL"}

// Reader is the store surface an export needs.
type Reader interface {
	ListOpportunities(ctx context.Context, filter store.ListFilter) ([]model.Opportunity, int, error)
	GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error)
}

// Query loads every opportunity matching filter, with contacts when
// withContacts is set. Paging fields on filter are ignored.
func Query(ctx context.Context, r Reader, filter store.ListFilter, withContacts bool) ([]model.Opportunity, error) {
	filter.Page, filter.Limit = 0, 0
	opps, _, err := r.ListOpportunities(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "export: list opportunities")
	}
	if !withContacts {
		return opps, nil
	}
	for i := range opps {
		full, err := r.GetOpportunity(ctx, opps[i].ID)
		if err != nil {
			return nil, eris.Wrapf(err, "export: load %s", opps[i].OpportunityID)
		}
		if full != nil {
			opps[i].Contacts = full.Contacts
		}
	}
	return opps, nil
}

// Build lays opps out as a workbook with one row per opportunity and one row
// per contact.
func Build(opps []model.Opportunity, now time.Time) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(OpportunitiesSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add opportunities sheet")
	}
	addStrings(sheet.AddRow(), opportunityHeader)

	contacts, err := f.AddSheet(ContactsSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add contacts sheet")
	}
	addStrings(contacts.AddRow(), contactHeader)

	for i := range opps {
		o := &opps[i]
		row := sheet.AddRow()
		addStrings(row, []string{
			o.OpportunityID, deref(o.OpportunityNumber), o.Title, deref(o.AgencyCode), deref(o.AgencyName),
			date(o.PostDate), date(o.CloseDate), date(o.ArchiveDate), yesNo(o.IsActive(now)),
		})
		if d := o.DaysUntilClose(now); d != nil {
			row.AddCell().SetInt(*d)
		} else {
			row.AddCell()
		}
		addMoney(row, o.EstimatedTotalFunding)
		addMoney(row, o.AwardCeiling)
		addMoney(row, o.AwardFloor)
		if o.ExpectedNumberOfAwards != nil {
			row.AddCell().SetInt(*o.ExpectedNumberOfAwards)
		} else {
			row.AddCell()
		}
		cost := ""
		if o.CostSharingRequired != nil {
			cost = yesNo(*o.CostSharingRequired)
		}
		addStrings(row, []string{
			cost,
			model.CategoryLabel(o.OpportunityCategory),
			model.FundingInstrumentLabel(o.FundingInstrumentType),
			model.FundingActivityLabel(o.CategoryOfFundingActivity),
			strings.Join(o.CFDANumbers, ", "),
			string(o.Status),
			o.UpdatedAt.UTC().Format(time.RFC3339),
		})

		for _, c := range o.Contacts {
			addStrings(contacts.AddRow(), []string{
				o.OpportunityID, deref(c.Name), deref(c.Email), deref(c.Phone), deref(c.Text), deref(c.URL),
			})
		}
	}

	return f, nil
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, opps []model.Opportunity, now time.Time) error {
	f, err := Build(opps, now)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write workbook")
}

// WriteFile builds the workbook and saves it at path.
func WriteFile(path string, opps []model.Opportunity, now time.Time) error {
	f, err := Build(opps, now)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func addStrings(row *xlsx.Row, values []string) {
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addMoney(row *xlsx.Row, v *int64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetInt64(*v)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
