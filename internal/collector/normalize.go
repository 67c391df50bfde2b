package collector

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sells-group/grants-cli/internal/model"
)

// dateLayouts are tried in order. Layouts without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon Jan 2 2006",
	time.RFC1123Z,
	time.RFC1123,
	"01022006",
	"20060102",
}

// ParseDate returns nil for blank input or input matching no known layout.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var numberReplacer = strings.NewReplacer(",", "", "$", "", " ", "", "\t", "", "\u00a0", "")

// parseWhole parses a decimal number and truncates it toward zero.
func parseWhole(s string) (int64, bool) {
	s = numberReplacer.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Trunc(f)
	if f >= 1<<63 || f < -(1<<63) {
		return 0, false
	}
	return int64(f), true
}

// ParseMoney parses a whole-unit currency amount such as "$1,500,000.00".
// Negative amounts are rejected.
func ParseMoney(s string) *int64 {
	n, ok := parseWhole(s)
	if !ok || n < 0 {
		return nil
	}
	return &n
}

// ParseInt parses an integer count, accepting the same separators as ParseMoney.
func ParseInt(s string) *int {
	n, ok := parseWhole(s)
	if !ok || n > math.MaxInt || n < math.MinInt {
		return nil
	}
	v := int(n)
	return &v
}

// ParseBool treats "yes" and "true" (any case) as true and any other
// non-blank value as false.
func ParseBool(s string) *bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	b := strings.EqualFold(s, "yes") || strings.EqualFold(s, "true")
	return &b
}

// NormalizeTitle truncates to model.TitleMaxLength runes; blank becomes the placeholder.
func NormalizeTitle(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.UntitledPlaceholder
	}
	if utf8.RuneCountInString(s) <= model.TitleMaxLength {
		return s
	}
	return string([]rune(s)[:model.TitleMaxLength])
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func looksLikeURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Normalize converts a raw record into an Opportunity and, when the record
// carries a grantor email or note, its single contact. It never fails.
func Normalize(rec RawRecord) (model.Opportunity, *model.OpportunityContact) {
	opp := model.Opportunity{
		OpportunityID:     rec.ID(),
		OpportunityNumber: optional(rec.First("OpportunityNumber")),
		Title:             NormalizeTitle(rec.First("OpportunityTitle")),
		Description:       optional(rec.First("Description")),
		AgencyCode:        optional(rec.First("AgencyCode")),
		AgencyName:        optional(rec.First("AgencyName")),

		PostDate:        ParseDate(rec.First("PostDate")),
		CloseDate:       ParseDate(rec.First("CloseDate")),
		ArchiveDate:     ParseDate(rec.First("ArchiveDate")),
		LastUpdatedDate: ParseDate(rec.First("LastUpdatedDate")),

		EstimatedTotalFunding:  ParseMoney(rec.First("EstimatedTotalProgramFunding")),
		AwardCeiling:           ParseMoney(rec.First("AwardCeiling")),
		AwardFloor:             ParseMoney(rec.First("AwardFloor")),
		ExpectedNumberOfAwards: ParseInt(rec.First("ExpectedNumberOfAwards")),
		CostSharingRequired:    ParseBool(rec.First("CostSharingOrMatchingRequirement")),

		OpportunityCategory:       optional(rec.First("OpportunityCategory")),
		FundingInstrumentType:     optional(rec.First("FundingInstrumentType")),
		CategoryOfFundingActivity: optional(rec.First("CategoryOfFundingActivity")),

		EligibleApplicants:        optional(rec.First("EligibleApplicants")),
		AdditionalEligibilityInfo: optional(rec.First("AdditionalInformationOnEligibility")),

		Version: optional(rec.First("Version")),
		Status:  model.StatusActive,
	}

	for _, v := range rec["CFDANumbers"] {
		if v = strings.TrimSpace(v); v != "" {
			opp.CFDANumbers = append(opp.CFDANumbers, v)
		}
	}

	email := optional(rec.First("GrantorContactEmail"))
	text := optional(rec.First("GrantorContactText"))
	if email == nil && text == nil {
		return opp, nil
	}

	contact := &model.OpportunityContact{Email: email, Text: text}
	if desc := strings.TrimSpace(rec.First("GrantorContactEmailDescription")); looksLikeURL(desc) {
		contact.URL = &desc
	}
	return opp, contact
}
