// Package scoring turns per-field extraction confidences into one overall
// score and a review action. Pure functions, no I/O.
package scoring

import (
	"github.com/umarallure/AI-Expense-Tracker-sub000/internal/model"
)

// Field weights. Fields outside the table weigh defaultWeight.
var fieldWeights = map[string]float64{
	model.FieldVendor:        0.20,
	model.FieldAmount:        0.30,
	model.FieldDate:          0.20,
	model.FieldDescription:   0.10,
	model.FieldCategory:      0.10,
	model.FieldPaymentMethod: 0.05,
	model.FieldRecipientID:   0.05,
}

const defaultWeight = 0.05

// criticalFields each cost criticalPenalty when absent.
var criticalFields = []string{model.FieldVendor, model.FieldAmount, model.FieldDate}

const criticalPenalty = 0.15

// Presence-estimated per-record confidences for multi-transaction rows that
// carry no per-field confidences.
const (
	presenceVendor = 0.3
	presenceAmount = 0.4
	presenceDate   = 0.3
)

// completenessPenaltyFactor scales the missing-transactions penalty for
// multi-transaction results.
const completenessPenaltyFactor = 0.3

// Band thresholds.
const (
	autoApproveThreshold = 0.85
	reviewThreshold      = 0.60
)

const (
	ActionAutoApprove          = "auto_approve"
	ActionReviewRecommended    = "review_recommended"
	ActionManualReviewRequired = "manual_review_required"
)

// Assessment is the scorer's verdict for one extraction outcome.
type Assessment struct {
	Score  float64
	Band   string // high | medium | low
	Action string
}

// ScoreRecord computes the confidence of a single extracted record: the
// weighted mean of per-field confidences over extracted fields, minus 0.15
// per missing critical field, clamped to [0,1].
func ScoreRecord(rec *model.ExtractedRecord) float64 {
	if rec == nil || rec.ExtractionError != "" {
		return 0
	}

	weighted, totalWeight := 0.0, 0.0
	for field, conf := range rec.FieldConfidence {
		if rec.Field(field) == nil {
			continue
		}
		w, ok := fieldWeights[field]
		if !ok {
			w = defaultWeight
		}
		weighted += w * conf
		totalWeight += w
	}

	var score float64
	if totalWeight > 0 {
		score = weighted / totalWeight
	} else {
		// No self-reported confidences at all: estimate from presence.
		score = presenceScore(rec)
	}

	for _, field := range criticalFields {
		if rec.Field(field) == nil {
			score -= criticalPenalty
		}
	}
	return clamp(score)
}

// presenceScore estimates a record's confidence from which critical fields
// were extracted at all.
func presenceScore(rec *model.ExtractedRecord) float64 {
	score := 0.0
	if rec.Field(model.FieldVendor) != nil {
		score += presenceVendor
	}
	if rec.Field(model.FieldAmount) != nil {
		score += presenceAmount
	}
	if rec.Field(model.FieldDate) != nil {
		score += presenceDate
	}
	return score
}

// ScoreMulti averages per-transaction scores and subtracts a completeness
// penalty of (1 - valid/expected) * 0.3 when the expected count is known.
func ScoreMulti(multi *model.MultiTransactionResult) float64 {
	if multi == nil || len(multi.Transactions) == 0 {
		return 0
	}

	total := 0.0
	for _, rec := range multi.Transactions {
		if len(rec.FieldConfidence) > 0 {
			total += ScoreRecord(rec)
		} else {
			total += clamp(presenceScore(rec) - missingCriticalPenalty(rec))
		}
	}
	score := total / float64(len(multi.Transactions))

	expected := multi.TotalRawTransactions
	valid := multi.ValidTransactions
	if valid == 0 {
		valid = len(multi.Transactions)
	}
	if expected > 0 && valid < expected {
		score -= (1 - float64(valid)/float64(expected)) * completenessPenaltyFactor
	}
	return clamp(score)
}

func missingCriticalPenalty(rec *model.ExtractedRecord) float64 {
	penalty := 0.0
	for _, field := range criticalFields {
		if rec.Field(field) == nil {
			penalty += criticalPenalty
		}
	}
	return penalty
}

// Score assesses a merged extraction outcome.
func Score(outcome *model.ExtractionOutcome) Assessment {
	var score float64
	switch {
	case outcome == nil:
		score = 0
	case outcome.IsMulti():
		score = ScoreMulti(outcome.Multi)
	default:
		score = ScoreRecord(outcome.Record)
	}
	return Assess(score)
}

// Assess maps a score onto its band and recommended action.
func Assess(score float64) Assessment {
	a := Assessment{Score: score}
	switch {
	case score >= autoApproveThreshold:
		a.Band, a.Action = "high", ActionAutoApprove
	case score >= reviewThreshold:
		a.Band, a.Action = "medium", ActionReviewRecommended
	default:
		a.Band, a.Action = "low", ActionManualReviewRequired
	}
	return a
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
