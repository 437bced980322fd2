package services

import (
	"math"
	"strings"

	"github.com/applens/privacy-backend/models"
)

// Per-bucket weight multipliers. A category disclosed in the tracking
// bucket always outweighs the same category linked to identity, which
// in turn outweighs an unlinked disclosure.
const (
	trackedMultiplier   = 1.0
	linkedMultiplier    = 0.6
	notLinkedMultiplier = 0.3
)

// Per-bucket ceilings after diminishing returns. The three caps sum to
// the maximum possible raw total.
const (
	trackedCap   = 50.0
	linkedCap    = 30.0
	notLinkedCap = 20.0
	maxRawTotal  = trackedCap + linkedCap + notLinkedCap
)

// purposeBonus is added to a category's contribution when its declared
// purposes include advertising or personalization; "App Functionality"
// contributes nothing.
const purposeBonus = 2.0

// logisticSteepness spreads scores away from the extremes of the 0-100
// range.
const logisticSteepness = 6.0

// categoryBaseWeights assigns each canonical category a base privacy
// impact. Bucket multipliers scale these, so relative ordering between
// buckets holds for every category.
var categoryBaseWeights = map[string]float64{
	CategorySensitiveInfo:   9,
	CategoryHealthFitness:   8,
	CategoryFinancialInfo:   8,
	CategoryLocation:        8,
	CategoryIdentifiers:     7,
	CategoryBrowsingHistory: 7,
	CategoryMessages:        7,
	CategorySearchHistory:   6,
	CategoryContacts:        6,
	CategoryPhotosVideos:    6,
	CategoryAudioData:       6,
	CategoryContactInfo:     5,
	CategoryUserContent:     5,
	CategoryPurchases:       4,
	CategoryUsageData:       3,
	CategoryOtherData:       3,
	CategoryDiagnostics:     2,
}

// defaultCategoryWeight covers categories missing from the table; the
// table is total over the taxonomy, so this only matters for records
// persisted before a taxonomy change.
const defaultCategoryWeight = 3

// IntensityScorer derives the bounded 0-100 data collection intensity
// score from a normalized privacy record. Pure and deterministic; the
// score is never persisted.
type IntensityScorer struct{}

// NewIntensityScorer creates a new intensity scorer.
func NewIntensityScorer() *IntensityScorer {
	return &IntensityScorer{}
}

// Score computes the intensity score and band for a record. Total over
// all well-formed records: a nil or all-empty record scores 0/Low.
func (s *IntensityScorer) Score(record *models.PrivacyRecord) models.IntensityScore {
	if record == nil {
		return models.IntensityScore{Score: 0, Band: models.BandLow}
	}

	rawTotal := s.bucketScore(record, models.BucketTracked, trackedMultiplier, trackedCap) +
		s.bucketScore(record, models.BucketLinked, linkedMultiplier, linkedCap) +
		s.bucketScore(record, models.BucketNotLinked, notLinkedMultiplier, notLinkedCap)

	if rawTotal <= 0 {
		return models.IntensityScore{Score: 0, Band: models.BandLow}
	}

	t := rawTotal / maxRawTotal
	if t > 1 {
		t = 1
	}

	logistic := 100 / (1 + math.Exp(-logisticSteepness*(t-0.5)))
	score := int(math.Round(logistic))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return models.IntensityScore{Score: score, Band: BandForScore(score)}
}

// bucketScore computes one bucket's capped contribution: a weighted sum
// over its unique categories plus purpose bonuses, passed through
// min(sqrt(s)*sqrt(cap), cap) so a single heavy category cannot
// saturate the bucket and many categories add up sub-linearly.
func (s *IntensityScorer) bucketScore(record *models.PrivacyRecord, bucket string, multiplier, ceiling float64) float64 {
	categories := record.Buckets[bucket]
	if len(categories) == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(categories))
	weightedSum := 0.0
	for _, category := range categories {
		if _, duplicate := seen[category]; duplicate {
			continue
		}
		seen[category] = struct{}{}

		baseWeight, ok := categoryBaseWeights[category]
		if !ok {
			baseWeight = defaultCategoryWeight
		}

		contribution := baseWeight * multiplier
		if s.hasIntensifyingPurpose(record, category) {
			contribution += purposeBonus * multiplier
		}
		weightedSum += contribution
	}

	damped := math.Sqrt(weightedSum) * math.Sqrt(ceiling)
	return math.Min(damped, ceiling)
}

// hasIntensifyingPurpose reports whether a category's declared purposes
// include advertising or personalization.
func (s *IntensityScorer) hasIntensifyingPurpose(record *models.PrivacyRecord, category string) bool {
	detail, ok := record.Details[category]
	if !ok {
		return false
	}
	for _, purpose := range detail.Purposes {
		lowered := strings.ToLower(purpose)
		if strings.Contains(lowered, "advertising") || strings.Contains(lowered, "personalization") {
			return true
		}
	}
	return false
}

// BandForScore maps a score to its three-level band.
func BandForScore(score int) string {
	switch {
	case score >= 66:
		return models.BandHigh
	case score >= 33:
		return models.BandMedium
	default:
		return models.BandLow
	}
}
