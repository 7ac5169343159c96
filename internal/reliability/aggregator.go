/**
 * Reliability aggregation across reviewed documents
 *
 * Accumulates corrected-vs-original field values from many documents into
 * per-field accuracy statistics. The review UI submits one batch of field
 * corrections per document after a human has checked the extraction; the
 * aggregator turns those batches into match rates, confidence averages and
 * improvement recommendations.
 *
 * Tallies are owned by the Aggregator value, never process-global, so
 * independent reporting sessions (per test, per tenant) can coexist.
 */

package reliability

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/formguard/extraction-worker/internal/errors"
	"github.com/formguard/extraction-worker/internal/logging"
	"github.com/formguard/extraction-worker/internal/validation"
)

const (
	// DefaultRecommendationMatchRate is the match rate below which a field
	// is flagged for attention.
	DefaultRecommendationMatchRate = 0.7

	// DefaultRecommendationMinSamples is the evidence floor: fields with
	// fewer observations are skipped rather than flagged.
	DefaultRecommendationMinSamples = 3
)

// FieldCorrection is one field's original and human-corrected value for one
// document. The aggregator never mutates the corrections it is given.
type FieldCorrection struct {
	FieldName      string `json:"field_name"`
	OriginalValue  string `json:"original_value"`
	CorrectedValue string `json:"corrected_value"`
}

// FormatCounts breaks a field's observations down by format status of the
// originally extracted value.
type FormatCounts struct {
	Empty      int `json:"empty"`
	Valid      int `json:"valid"`
	Invalid    int `json:"invalid"`
	Unverified int `json:"unverified"`
}

// FieldReliability is the per-field slice of the report.
type FieldReliability struct {
	MatchRate     float64 `json:"match_rate"`
	SampleCount   int     `json:"sample_count"`
	ConfidenceAvg float64 `json:"confidence_avg"`
	// ReliabilityScore folds format validity and correction frequency into
	// a single number: valid_rate minus half the correction rate, floored
	// at zero.
	ReliabilityScore float64      `json:"reliability_score"`
	Formats          FormatCounts `json:"formats"`
}

// ReliabilityReport is the aggregate output of one reporting period. Built
// fresh per call; read-only for the caller.
type ReliabilityReport struct {
	PerField        map[string]FieldReliability `json:"per_field"`
	OverallScore    float64                     `json:"overall_score"`
	Recommendations []string                    `json:"recommendations"`
	DocumentCount   int                         `json:"document_count"`
	GeneratedAt     time.Time                   `json:"generated_at"`
}

// Config tunes the aggregator. Zero values use the package defaults.
type Config struct {
	// CaseInsensitiveFields lists fields whose match comparison folds case
	// (names transcribed from handwriting vary in capitalization).
	CaseInsensitiveFields []string

	RecommendationMatchRate  float64
	RecommendationMinSamples int

	// ExpectedFormats classify each ingested original value as
	// valid/invalid for the format-status counters. Fields without a
	// pattern count as unverified.
	ExpectedFormats map[string]string
}

// DefaultExpectedFormats covers the Israeli claim form fields, including
// the date components stored under dotted keys.
func DefaultExpectedFormats() map[string]string {
	return map[string]string{
		"idNumber":           `^\d{9}$`,
		"mobilePhone":        `^\d{10}$`,
		"landlinePhone":      `^\d{9,10}$`,
		"dateOfBirth.day":    `^(0?[1-9]|[12][0-9]|3[01])$`,
		"dateOfBirth.month":  `^(0?[1-9]|1[0-2])$`,
		"dateOfBirth.year":   `^(19|20)\d{2}$`,
		"address.postalCode": `^\d{5,7}$`,
	}
}

type fieldTally struct {
	count         int
	matches       int
	corrected     int
	confidenceSum float64
	formats       FormatCounts
}

// Aggregator accumulates review outcomes. Safe for concurrent use: writers
// serialize on an internal mutex and Report takes a consistent snapshot.
type Aggregator struct {
	mu      sync.Mutex
	seen    map[string]bool
	tallies map[string]*fieldTally

	caseInsensitive map[string]bool
	formats         map[string]*regexp.Regexp
	recommendRate   float64
	recommendMin    int
	logger          *logging.Logger
}

// NewAggregator builds an aggregator in the empty state. Uncompilable
// format patterns are configuration errors.
func NewAggregator(cfg *Config) (*Aggregator, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	rate := cfg.RecommendationMatchRate
	if rate == 0 {
		rate = DefaultRecommendationMatchRate
	}
	minSamples := cfg.RecommendationMinSamples
	if minSamples == 0 {
		minSamples = DefaultRecommendationMinSamples
	}
	if rate < 0 || rate > 1 {
		return nil, errors.NewConfigurationError("recommendation_match_rate",
			fmt.Sprintf("must be in [0,1], got %v", rate))
	}

	expected := cfg.ExpectedFormats
	if expected == nil {
		expected = DefaultExpectedFormats()
	}
	formats := make(map[string]*regexp.Regexp, len(expected))
	for field, pattern := range expected {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.NewConfigurationError("expected_formats."+field, err.Error())
		}
		formats[field] = re
	}

	caseInsensitive := make(map[string]bool, len(cfg.CaseInsensitiveFields))
	for _, field := range cfg.CaseInsensitiveFields {
		caseInsensitive[field] = true
	}

	return &Aggregator{
		seen:            make(map[string]bool),
		tallies:         make(map[string]*fieldTally),
		caseInsensitive: caseInsensitive,
		formats:         formats,
		recommendRate:   rate,
		recommendMin:    minSamples,
		logger:          logging.NewLogger("reliability"),
	}, nil
}

// Ingest accumulates one document's field corrections and its validator
// output into the running tallies. Re-ingesting a document ID already seen
// in this run is a logged no-op, not an error.
func (a *Aggregator) Ingest(documentID string, corrections []FieldCorrection, result *validation.ValidationResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seen[documentID] {
		a.logger.Info("document already ingested in this run, skipping",
			"document_id", documentID)
		return
	}
	a.seen[documentID] = true

	// Confidence per span text, taken from the validator output. First
	// occurrence wins when the same text appears twice on a page.
	spanConfidence := make(map[string]float64)
	if result != nil {
		for _, span := range result.ValidatedSpans {
			text := strings.TrimSpace(span.Text)
			if _, ok := spanConfidence[text]; !ok {
				spanConfidence[text] = span.Confidence
			}
		}
	}

	for _, correction := range corrections {
		tally := a.tallies[correction.FieldName]
		if tally == nil {
			tally = &fieldTally{}
			a.tallies[correction.FieldName] = tally
		}

		original := strings.TrimSpace(correction.OriginalValue)
		corrected := strings.TrimSpace(correction.CorrectedValue)
		if a.caseInsensitive[correction.FieldName] {
			original = strings.ToLower(original)
			corrected = strings.ToLower(corrected)
		}

		tally.count++
		if original == corrected {
			tally.matches++
		} else {
			tally.corrected++
		}

		tally.confidenceSum += spanConfidence[strings.TrimSpace(correction.OriginalValue)]

		switch a.formatStatus(correction.FieldName, strings.TrimSpace(correction.OriginalValue)) {
		case "empty":
			tally.formats.Empty++
		case "valid":
			tally.formats.Valid++
		case "invalid":
			tally.formats.Invalid++
		default:
			tally.formats.Unverified++
		}
	}

	a.logger.Debug("document ingested",
		"document_id", documentID, "fields", len(corrections))
}

// formatStatus classifies an extracted value against the field's expected
// format. Caller holds the lock.
func (a *Aggregator) formatStatus(field, value string) string {
	if value == "" {
		return "empty"
	}
	re, ok := a.formats[field]
	if !ok {
		return "unverified"
	}
	if re.MatchString(value) {
		return "valid"
	}
	return "invalid"
}

// Report builds the reliability report for everything ingested since the
// last reset. With nothing ingested it returns an empty per-field map and
// an overall score of 0.0, not an error.
func (a *Aggregator) Report() *ReliabilityReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := &ReliabilityReport{
		PerField:        make(map[string]FieldReliability, len(a.tallies)),
		Recommendations: []string{},
		DocumentCount:   len(a.seen),
		GeneratedAt:     time.Now(),
	}

	type flagged struct {
		field string
		rate  float64
	}
	var toFlag []flagged

	var weightedSum float64
	var totalSamples int
	for field, tally := range a.tallies {
		if tally.count == 0 {
			continue
		}

		matchRate := float64(tally.matches) / float64(tally.count)
		validRate := float64(tally.formats.Valid) / float64(tally.count)
		correctionRate := float64(tally.corrected) / float64(tally.count)
		reliability := validRate - 0.5*correctionRate
		if reliability < 0 {
			reliability = 0
		}

		report.PerField[field] = FieldReliability{
			MatchRate:        matchRate,
			SampleCount:      tally.count,
			ConfidenceAvg:    tally.confidenceSum / float64(tally.count),
			ReliabilityScore: reliability,
			Formats:          tally.formats,
		}

		weightedSum += matchRate * float64(tally.count)
		totalSamples += tally.count

		if matchRate < a.recommendRate && tally.count >= a.recommendMin {
			toFlag = append(toFlag, flagged{field: field, rate: matchRate})
		}
	}

	if totalSamples > 0 {
		report.OverallScore = weightedSum / float64(totalSamples)
	}

	// Worst fields first, field name as the tie-break for stable output.
	sort.Slice(toFlag, func(i, j int) bool {
		if toFlag[i].rate != toFlag[j].rate {
			return toFlag[i].rate < toFlag[j].rate
		}
		return toFlag[i].field < toFlag[j].field
	})
	for _, f := range toFlag {
		report.Recommendations = append(report.Recommendations, fmt.Sprintf(
			"Field '%s' requires frequent manual correction (match rate %.1f%%). Review extraction settings for this field.",
			f.field, f.rate*100))
	}

	return report
}

// Reset clears all tallies and returns the aggregator to the empty state.
// Used to start a fresh reporting period without restarting the process.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seen = make(map[string]bool)
	a.tallies = make(map[string]*fieldTally)
	a.logger.Info("aggregator reset, starting a fresh reporting period")
}
