// Package signal derives tags, a composite score, flags, and a pipeline
// status from raw property/contact enrichment records. Everything here is a
// pure function: same inputs, same outputs, no I/O.
package signal

// PropertyRecord is the partial property-data bag from enrichment. Absent
// fields are zero values and treated as "unknown, do not fire".
type PropertyRecord struct {
	EquityPercent    float64
	EstimatedValue   float64
	TotalOwned       int
	PropertyType     string
	PreForeclosure   bool
	Foreclosure      bool
	Vacant           bool
	TaxDelinquent    bool
	AbsenteeOwner    bool
	OutOfState       bool
	OwnerOccupied    bool
	CorporateOwner   bool
	ActiveBuyer      bool
	RecentlySoldMo   int  // months since last sale, 0 = unknown
	OwnershipYears   int
	AddressComplete  bool
}

// ContactRecord is the partial contact-data bag from skip-trace.
type ContactRecord struct {
	VerifiedPhone bool
	VerifiedEmail bool
}

// Tag strings emitted by ExtractTags. Tiered families are evaluated
// highest-threshold-first so exactly one tag fires per family.
const (
	TagFreeAndClear    = "Free & Clear"
	TagHighEquity      = "High Equity"
	TagModerateEquity  = "Moderate Equity"
	TagMajorInvestor   = "Major Investor"
	TagInvestor        = "Investor"
	TagMultiProperty   = "Multi-Property Owner"
	TagMillionProperty = "$1M+ Property"
	TagHalfMilProperty = "$500K+ Property"
	TagPreForeclosure  = "Pre-Foreclosure"
	TagForeclosure     = "Foreclosure"
	TagDistressed      = "Distressed"
	TagVacant          = "Vacant"
	TagTaxDelinquent   = "Tax Delinquent"
	TagAbsenteeOwner   = "Absentee Owner"
	TagOutOfState      = "Out-of-State Owner"
	TagOwnerOccupied   = "Owner Occupied"
	TagCorporateOwner  = "Corporate Owner"
	TagRecentSale      = "Recent Sale"
	TagActiveBuyer     = "Active Buyer"
	TagLongTermOwner   = "Long-Term Owner"
	TagTenYearOwner    = "10+ Year Owner"
	TagVerifiedPhone   = "Verified Phone"
	TagVerifiedEmail   = "Verified Email"
	TagFullyVerified   = "Fully Verified"
)

// Tier thresholds, shared by tagging and scoring.
const (
	equityFreeClear = 80.0
	equityHigh      = 50.0
	equityModerate  = 25.0

	portfolioMajor = 10
	portfolioMid   = 5
	portfolioMulti = 2

	valueMillion = 1_000_000.0
	valueHalfMil = 500_000.0

	recentSaleMonths  = 12
	longTermYears     = 15
	tenYearOwnerYears = 10
)

// ExtractTags evaluates the fixed rule list top-to-bottom and returns the
// deduplicated ordered tag set.
func ExtractTags(prop PropertyRecord, contact ContactRecord) []string {
	var tags []string
	add := func(t string) { tags = append(tags, t) }

	// Equity family, highest tier wins.
	switch {
	case prop.EquityPercent >= equityFreeClear:
		add(TagFreeAndClear)
	case prop.EquityPercent >= equityHigh:
		add(TagHighEquity)
	case prop.EquityPercent >= equityModerate:
		add(TagModerateEquity)
	}

	// Portfolio family.
	switch {
	case prop.TotalOwned >= portfolioMajor:
		add(TagMajorInvestor)
	case prop.TotalOwned >= portfolioMid:
		add(TagInvestor)
	case prop.TotalOwned >= portfolioMulti:
		add(TagMultiProperty)
	}

	// Property value family.
	switch {
	case prop.EstimatedValue >= valueMillion:
		add(TagMillionProperty)
	case prop.EstimatedValue >= valueHalfMil:
		add(TagHalfMilProperty)
	}

	// Distress flags are independent rules, not a tier family, except that
	// "Distressed" is appended at most once.
	if prop.PreForeclosure {
		add(TagPreForeclosure)
		add(TagDistressed)
	}
	if prop.Foreclosure {
		add(TagForeclosure)
		add(TagDistressed)
	}
	if prop.Vacant {
		add(TagVacant)
	}
	if prop.TaxDelinquent {
		add(TagTaxDelinquent)
		add(TagDistressed)
	}

	// Owner type flags.
	if prop.AbsenteeOwner {
		add(TagAbsenteeOwner)
	}
	if prop.OutOfState {
		add(TagOutOfState)
	}
	if prop.OwnerOccupied {
		add(TagOwnerOccupied)
	}
	if prop.CorporateOwner {
		add(TagCorporateOwner)
	}

	// Transaction flags.
	if prop.RecentlySoldMo > 0 && prop.RecentlySoldMo <= recentSaleMonths {
		add(TagRecentSale)
	}
	if prop.ActiveBuyer {
		add(TagActiveBuyer)
	}
	if prop.PropertyType != "" {
		add(prop.PropertyType)
	}

	// Ownership duration family.
	switch {
	case prop.OwnershipYears >= longTermYears:
		add(TagLongTermOwner)
	case prop.OwnershipYears >= tenYearOwnerYears:
		add(TagTenYearOwner)
	}

	// Contact verification.
	if contact.VerifiedPhone {
		add(TagVerifiedPhone)
	}
	if contact.VerifiedEmail {
		add(TagVerifiedEmail)
	}
	if contact.VerifiedPhone && contact.VerifiedEmail {
		add(TagFullyVerified)
	}

	return dedupe(tags)
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0]
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
