package signal

import "github.com/reachforge/lead-engine/internal/domain"

// hotLeadThreshold is how many of the fixed indicator list must be true
// before a lead is flagged hot.
const hotLeadThreshold = 4

// ExtractFlags derives the named boolean flag map. doNotCall, bounced, and
// converted are manual/out-of-band fields: always false here, never inferred.
func ExtractFlags(prop PropertyRecord, contact ContactRecord) map[string]bool {
	highEquity := prop.EquityPercent >= equityHigh
	largePortfolio := prop.TotalOwned >= portfolioMid
	distressed := prop.PreForeclosure || prop.Foreclosure

	indicators := []bool{
		highEquity,
		largePortfolio,
		distressed,
		prop.Vacant,
		prop.TaxDelinquent,
		prop.AbsenteeOwner,
		prop.ActiveBuyer,
	}
	hot := 0
	for _, ind := range indicators {
		if ind {
			hot++
		}
	}

	return map[string]bool{
		"absenteeOwner":  prop.AbsenteeOwner,
		"preForeclosure": prop.PreForeclosure,
		"vacant":         prop.Vacant,
		"taxDelinquent":  prop.TaxDelinquent,
		"activeBuyer":    prop.ActiveBuyer,
		"verifiedPhone":  contact.VerifiedPhone,
		"verifiedEmail":  contact.VerifiedEmail,
		"highEquity":     highEquity,
		"hotLead":        hot >= hotLeadThreshold,
		"doNotCall":      false,
		"bounced":        false,
		"converted":      false,
	}
}

// DeriveStatus runs the priority waterfall: first matching rule wins.
func DeriveStatus(prop PropertyRecord, contact ContactRecord) string {
	switch {
	case prop.Foreclosure || prop.PreForeclosure:
		return domain.StatusUrgent
	case prop.Vacant || prop.TaxDelinquent:
		return domain.StatusHot
	case prop.TotalOwned >= portfolioMid || prop.ActiveBuyer:
		return domain.StatusQualified
	case contact.VerifiedPhone && contact.VerifiedEmail:
		return domain.StatusWarm
	default:
		return domain.StatusNew
	}
}

// Enrich applies the full extraction to a lead in one pass.
func Enrich(lead *domain.Lead, prop PropertyRecord, contact ContactRecord) {
	lead.Tags = ExtractTags(prop, contact)
	lead.Score = AutoScore(prop, contact)
	lead.PipelineStatus = DeriveStatus(prop, contact)
	flags := ExtractFlags(prop, contact)
	if lead.Flags == nil {
		lead.Flags = flags
		return
	}
	// Preserve manually-set flags across re-enrichment.
	for k, v := range flags {
		if k == "doNotCall" || k == "bounced" || k == "converted" {
			continue
		}
		lead.Flags[k] = v
	}
}
