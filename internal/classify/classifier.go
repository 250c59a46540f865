// Package classify maps inbound message text to a closed classification set
// via prioritized pattern matching. The DNC pattern is checked first and
// always wins: that ordering is a compliance requirement, not a heuristic.
package classify

import (
	"regexp"

	"github.com/reachforge/lead-engine/internal/domain"
)

// Patterns are case-insensitive with word boundaries so "stop" matches but
// "stopped by" keywords inside other words do not.
var (
	dncPattern = regexp.MustCompile(`(?i)\b(stop|unsubscribe|remove me|opt out|do not (text|call|contact)|quit|cancel|take me off)\b`)

	wrongNumberPattern = regexp.MustCompile(`(?i)\b(wrong (number|person)|who is this|don'?t know (this|him|her)|not (him|her|them|me)|never heard of)\b`)

	positivePattern = regexp.MustCompile(`(?i)\b(yes|interested|sure|tell me more|how much|what('?s| is) the (offer|price)|sounds good|call me|more info|i'?d consider)\b`)
)

// Classify maps raw inbound text to a classification. Opt-out always wins,
// then wrong-number, then positive interest, defaulting to neutral.
func Classify(text string) domain.Classification {
	switch {
	case dncPattern.MatchString(text):
		return domain.ClassificationDNC
	case wrongNumberPattern.MatchString(text):
		return domain.ClassificationWrongNumber
	case positivePattern.MatchString(text):
		return domain.ClassificationPositive
	default:
		return domain.ClassificationNeutral
	}
}

// PriorityFor returns the triage priority for a classification. The switch
// is exhaustive over the enum so a new classification fails loudly here.
func PriorityFor(c domain.Classification) domain.Priority {
	switch c {
	case domain.ClassificationPositive:
		return domain.PriorityHigh
	case domain.ClassificationDNC:
		return domain.PriorityUrgent
	case domain.ClassificationWrongNumber:
		return domain.PriorityLow
	case domain.ClassificationNeutral:
		return domain.PriorityNormal
	default:
		return domain.PriorityNormal
	}
}

// PriorityScoreFor returns the numeric priority score.
func PriorityScoreFor(c domain.Classification) int {
	switch c {
	case domain.ClassificationPositive:
		return 100
	case domain.ClassificationDNC:
		return 90
	case domain.ClassificationNeutral:
		return 50
	case domain.ClassificationWrongNumber:
		return 20
	default:
		return 50
	}
}

// BucketFor returns the triage bucket a reply lands in.
func BucketFor(c domain.Classification) string {
	switch c {
	case domain.ClassificationDNC:
		return domain.BucketDNC
	case domain.ClassificationPositive:
		return domain.BucketPositive
	case domain.ClassificationWrongNumber:
		return domain.BucketWrongInfo
	case domain.ClassificationNeutral:
		return domain.BucketUniversal
	default:
		return domain.BucketUniversal
	}
}

// TriggerFor returns the transition trigger label emitted downstream.
func TriggerFor(c domain.Classification) string {
	switch c {
	case domain.ClassificationPositive:
		return domain.TriggerPositive
	case domain.ClassificationDNC:
		return domain.TriggerDNC
	case domain.ClassificationWrongNumber:
		return domain.TriggerWrongNumber
	case domain.ClassificationNeutral:
		return domain.TriggerGeneric
	default:
		return domain.TriggerGeneric
	}
}

// RequiresReview reports whether a human must look at the reply.
// Only positive interest and opt-outs need eyes on them.
func RequiresReview(c domain.Classification) bool {
	return c == domain.ClassificationPositive || c == domain.ClassificationDNC
}
