package signal

// Point values per scoring bucket. The score is additive with a hard ceiling,
// not a normalized weighted sum; keep these aligned with the tag thresholds
// when auditing.
const (
	// Contact quality (max 25)
	pointsVerifiedPhone   = 10
	pointsVerifiedEmail   = 10
	pointsAddressComplete = 5

	// Equity opportunity (max 30)
	pointsEquityFreeClear = 30
	pointsEquityHigh      = 20
	pointsEquityModerate  = 10

	// Portfolio size (max 20)
	pointsPortfolioMajor = 20
	pointsPortfolioMid   = 12
	pointsPortfolioMulti = 6

	// Active buyer bonus (max 15)
	pointsActiveBuyer = 15
	pointsRecentSale  = 8

	// Distress signals (max 20)
	pointsForeclosure    = 20
	pointsPreForeclosure = 15
	pointsTaxDelinquent  = 12
	pointsVacant         = 8

	// Property value (max 10)
	pointsValueMillion = 8
	pointsValueHalfMil = 5

	// Owner type bonus (max 10)
	pointsAbsentee   = 5
	pointsOutOfState = 3

	// Hard ceiling on the composite score.
	scoreCap = 100
)

// AutoScore computes the 0–100 composite opportunity score. Each bucket
// contributes its highest matching tier; the sum is capped at scoreCap.
func AutoScore(prop PropertyRecord, contact ContactRecord) int {
	score := 0

	// Contact quality
	if contact.VerifiedPhone {
		score += pointsVerifiedPhone
	}
	if contact.VerifiedEmail {
		score += pointsVerifiedEmail
	}
	if prop.AddressComplete {
		score += pointsAddressComplete
	}

	// Equity opportunity, highest tier wins
	switch {
	case prop.EquityPercent >= equityFreeClear:
		score += pointsEquityFreeClear
	case prop.EquityPercent >= equityHigh:
		score += pointsEquityHigh
	case prop.EquityPercent >= equityModerate:
		score += pointsEquityModerate
	}

	// Portfolio size
	switch {
	case prop.TotalOwned >= portfolioMajor:
		score += pointsPortfolioMajor
	case prop.TotalOwned >= portfolioMid:
		score += pointsPortfolioMid
	case prop.TotalOwned >= portfolioMulti:
		score += pointsPortfolioMulti
	}

	// Active buyer bonus
	switch {
	case prop.ActiveBuyer:
		score += pointsActiveBuyer
	case prop.RecentlySoldMo > 0 && prop.RecentlySoldMo <= recentSaleMonths:
		score += pointsRecentSale
	}

	// Distress signals, strongest signal wins
	switch {
	case prop.Foreclosure:
		score += pointsForeclosure
	case prop.PreForeclosure:
		score += pointsPreForeclosure
	case prop.TaxDelinquent:
		score += pointsTaxDelinquent
	case prop.Vacant:
		score += pointsVacant
	}

	// Property value
	switch {
	case prop.EstimatedValue >= valueMillion:
		score += pointsValueMillion
	case prop.EstimatedValue >= valueHalfMil:
		score += pointsValueHalfMil
	}

	// Owner type bonus
	switch {
	case prop.AbsenteeOwner:
		score += pointsAbsentee
	case prop.OutOfState:
		score += pointsOutOfState
	}

	if score > scoreCap {
		score = scoreCap
	}
	return score
}
