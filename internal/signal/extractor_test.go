package signal

import (
	"testing"

	"github.com/reachforge/lead-engine/internal/domain"
)

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func TestExtractTagsReferenceScenario(t *testing.T) {
	prop := PropertyRecord{
		EquityPercent:  85,
		TotalOwned:     12,
		PreForeclosure: true,
		EstimatedValue: 1_200_000,
		AbsenteeOwner:  true,
	}
	contact := ContactRecord{VerifiedPhone: true, VerifiedEmail: true}

	tags := ExtractTags(prop, contact)
	for _, want := range []string{
		TagFreeAndClear, TagMajorInvestor, TagPreForeclosure,
		TagDistressed, TagMillionProperty, TagAbsenteeOwner,
		TagVerifiedPhone, TagVerifiedEmail, TagFullyVerified,
	} {
		if !hasTag(tags, want) {
			t.Errorf("expected tag %q, got %v", want, tags)
		}
	}
}

func TestEquityTierExclusivity(t *testing.T) {
	cases := []struct {
		equity  float64
		want    string
		exclude []string
	}{
		{85, TagFreeAndClear, []string{TagHighEquity, TagModerateEquity}},
		{60, TagHighEquity, []string{TagFreeAndClear, TagModerateEquity}},
		{30, TagModerateEquity, []string{TagFreeAndClear, TagHighEquity}},
		{10, "", []string{TagFreeAndClear, TagHighEquity, TagModerateEquity}},
	}
	for _, tc := range cases {
		tags := ExtractTags(PropertyRecord{EquityPercent: tc.equity}, ContactRecord{})
		if tc.want != "" && !hasTag(tags, tc.want) {
			t.Errorf("equity=%v: expected %q in %v", tc.equity, tc.want, tags)
		}
		for _, ex := range tc.exclude {
			if hasTag(tags, ex) {
				t.Errorf("equity=%v: tag %q must not fire alongside tier winner", tc.equity, ex)
			}
		}
	}
}

func TestDistressedTagDeduplicated(t *testing.T) {
	tags := ExtractTags(PropertyRecord{PreForeclosure: true, TaxDelinquent: true}, ContactRecord{})
	count := 0
	for _, tag := range tags {
		if tag == TagDistressed {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Distressed should appear exactly once, got %d in %v", count, tags)
	}
}

func TestAutoScoreReferenceScenario(t *testing.T) {
	prop := PropertyRecord{
		EquityPercent:  85,
		TotalOwned:     12,
		PreForeclosure: true,
		EstimatedValue: 1_200_000,
		AbsenteeOwner:  true,
	}
	contact := ContactRecord{VerifiedPhone: true, VerifiedEmail: true}

	// 30 equity + 20 portfolio + 15 pre-foreclosure + 8 value + 5 absentee
	// + 10 phone + 10 email = 98
	if got := AutoScore(prop, contact); got != 98 {
		t.Errorf("AutoScore = %d, want 98", got)
	}
}

func TestAutoScoreCeiling(t *testing.T) {
	prop := PropertyRecord{
		EquityPercent:   95,
		TotalOwned:      20,
		Foreclosure:     true,
		ActiveBuyer:     true,
		EstimatedValue:  2_000_000,
		AbsenteeOwner:   true,
		AddressComplete: true,
	}
	contact := ContactRecord{VerifiedPhone: true, VerifiedEmail: true}

	// Raw contributions exceed 100; the cap must hold exactly.
	if got := AutoScore(prop, contact); got != 100 {
		t.Errorf("AutoScore = %d, want exactly 100", got)
	}
}

func TestAutoScoreEmptyInput(t *testing.T) {
	if got := AutoScore(PropertyRecord{}, ContactRecord{}); got != 0 {
		t.Errorf("AutoScore on empty input = %d, want 0", got)
	}
}

func TestExtractFlagsHotLead(t *testing.T) {
	// Exactly 4 of the 7 indicators: high equity, large portfolio,
	// pre-foreclosure, absentee.
	prop := PropertyRecord{
		EquityPercent:  60,
		TotalOwned:     6,
		PreForeclosure: true,
		AbsenteeOwner:  true,
	}
	flags := ExtractFlags(prop, ContactRecord{})
	if !flags["hotLead"] {
		t.Error("expected hotLead with 4 indicators")
	}

	// 3 indicators only: not hot.
	prop.AbsenteeOwner = false
	flags = ExtractFlags(prop, ContactRecord{})
	if flags["hotLead"] {
		t.Error("hotLead must not fire below threshold")
	}
}

func TestExtractFlagsManualFieldsNeverInferred(t *testing.T) {
	prop := PropertyRecord{Foreclosure: true, Vacant: true, TaxDelinquent: true}
	flags := ExtractFlags(prop, ContactRecord{VerifiedPhone: true})
	for _, manual := range []string{"doNotCall", "bounced", "converted"} {
		if flags[manual] {
			t.Errorf("%s must default false", manual)
		}
	}
}

func TestDeriveStatusWaterfall(t *testing.T) {
	cases := []struct {
		name    string
		prop    PropertyRecord
		contact ContactRecord
		want    string
	}{
		{"foreclosure wins over everything", PropertyRecord{Foreclosure: true, TotalOwned: 10}, ContactRecord{VerifiedPhone: true, VerifiedEmail: true}, domain.StatusUrgent},
		{"pre-foreclosure is urgent", PropertyRecord{PreForeclosure: true}, ContactRecord{}, domain.StatusUrgent},
		{"vacant is hot", PropertyRecord{Vacant: true}, ContactRecord{}, domain.StatusHot},
		{"large portfolio is qualified", PropertyRecord{TotalOwned: 5}, ContactRecord{}, domain.StatusQualified},
		{"active buyer is qualified", PropertyRecord{ActiveBuyer: true}, ContactRecord{}, domain.StatusQualified},
		{"both channels verified is warm", PropertyRecord{}, ContactRecord{VerifiedPhone: true, VerifiedEmail: true}, domain.StatusWarm},
		{"one channel is not warm", PropertyRecord{}, ContactRecord{VerifiedPhone: true}, domain.StatusNew},
		{"empty is new", PropertyRecord{}, ContactRecord{}, domain.StatusNew},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveStatus(tc.prop, tc.contact); got != tc.want {
				t.Errorf("DeriveStatus = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEnrichPreservesManualFlags(t *testing.T) {
	lead := &domain.Lead{
		Flags: map[string]bool{"doNotCall": true},
	}
	Enrich(lead, PropertyRecord{EquityPercent: 85}, ContactRecord{})
	if !lead.Flags["doNotCall"] {
		t.Error("re-enrichment must not clear a manually-set doNotCall flag")
	}
	if !lead.Flags["highEquity"] {
		t.Error("expected highEquity flag after enrichment")
	}
	if lead.Score == 0 {
		t.Error("expected non-zero score after enrichment")
	}
}
