package model

var opportunityCategories = map[string]string{
	"D": "Discretionary",
	"M": "Mandatory",
	"C": "Continuation",
	"E": "Earmark",
	"O": "Other",
}

var fundingInstruments = map[string]string{
	"G":  "Grant",
	"CA": "Cooperative Agreement",
	"O":  "Other",
	"PC": "Procurement Contract",
}

var fundingActivities = map[string]string{
	"AG": "Agriculture",
	"AR": "Arts",
	"BC": "Business and Commerce",
	"CD": "Community Development",
	"CP": "Consumer Protection",
	"DM": "Disaster Prevention and Relief",
	"ED": "Education",
	"EJ": "Environmental Quality",
	"EM": "Employment, Labor, and Training",
	"EN": "Energy",
	"FN": "Food and Nutrition",
	"HL": "Health",
	"HO": "Housing",
	"IH": "Income Security and Social Services",
	"IS": "Information and Statistics",
	"LM": "Law, Justice, and Legal Services",
	"NR": "Natural Resources",
	"RD": "Regional Development",
	"ST": "Science and Technology",
	"TR": "Transportation",
}

// CategoryLabel returns the display name for an opportunity category code.
func CategoryLabel(code *string) string {
	return lookup(opportunityCategories, code, "Unknown")
}

// FundingInstrumentLabel returns the display name for a funding instrument code.
func FundingInstrumentLabel(code *string) string {
	return lookup(fundingInstruments, code, "Unknown")
}

// FundingActivityLabel returns the display name for a funding activity category code.
func FundingActivityLabel(code *string) string {
	return lookup(fundingActivities, code, "Other")
}

func lookup(m map[string]string, code *string, def string) string {
	if code == nil {
		return def
	}
	if v, ok := m[*code]; ok {
		return v
	}
	return def
}
