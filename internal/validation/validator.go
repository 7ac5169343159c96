/**
 * Spatial and format validation for extracted form fields
 *
 * Scores a single document's OCR spans for confidence-threshold compliance
 * and spatial plausibility. Spatial plausibility combines two signals:
 * - expected-zone matching: known fields must appear inside a static,
 *   template-specific rectangle on the page
 * - pairwise overlap coherence: a span that heavily overlaps neighboring
 *   elements is likely a duplicated or misplaced OCR detection
 *
 * The validator is stateless after construction and safe for concurrent use.
 */

package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/formguard/extraction-worker/internal/errors"
	"github.com/formguard/extraction-worker/internal/logging"
)

const (
	// DefaultMinConfidence is the per-span confidence floor.
	DefaultMinConfidence = 0.5

	// DefaultSpatialOverlapThreshold is the average-IoU level at which a
	// span's coherence score bottoms out at 0.
	DefaultSpatialOverlapThreshold = 0.3
)

// Config holds the validator's fixed configuration. Zero values fall back
// to the package defaults.
type Config struct {
	MinConfidenceThreshold  float64
	SpatialOverlapThreshold float64

	// Zones maps field names to the page rectangle they are expected in.
	// Fields without a zone are not spatially constrained.
	Zones map[string]FieldZone

	// Patterns maps field names to format regexps. A value must match its
	// field's pattern in full; fields without a pattern always pass.
	Patterns map[string]string

	// RequiredFields are checked by the extraction cross-check.
	RequiredFields []string
}

// DefaultZones returns the expected zones for the bilingual claim form
// template. Coordinates are fractions of page width/height; the form is
// right-to-left, so personal fields sit on the right half of the header.
func DefaultZones() map[string]FieldZone {
	return map[string]FieldZone{
		"lastName":  {XRange: Range{0.6, 0.8}, YRange: Range{0.2, 0.3}},
		"firstName": {XRange: Range{0.4, 0.6}, YRange: Range{0.2, 0.3}},
		"idNumber":  {XRange: Range{0.2, 0.4}, YRange: Range{0.2, 0.3}},
	}
}

// DefaultPatterns returns the format rules for Israeli identity and contact
// fields.
func DefaultPatterns() map[string]string {
	return map[string]string{
		"idNumber":      `^\d{9}$`,
		"mobilePhone":   `^\d{10}$`,
		"landlinePhone": `^\d{9}$`,
		"postalCode":    `^\d{5,7}$`,
	}
}

// DefaultConfig returns the configuration used when the caller does not
// override anything.
func DefaultConfig() *Config {
	return &Config{
		MinConfidenceThreshold:  DefaultMinConfidence,
		SpatialOverlapThreshold: DefaultSpatialOverlapThreshold,
		Zones:                   DefaultZones(),
		Patterns:                DefaultPatterns(),
		RequiredFields:          []string{"lastName", "firstName", "idNumber"},
	}
}

// Validator scores extracted spans for a single document.
type Validator struct {
	minConfidence    float64
	overlapThreshold float64
	zones            map[string]FieldZone
	patterns         map[string]*regexp.Regexp
	requiredFields   []string
	logger           *logging.Logger
}

// NewValidator builds a validator from cfg. A nil cfg uses the defaults.
// Malformed zone ranges and uncompilable patterns are configuration errors
// and are surfaced immediately; they are never produced mid-operation.
func NewValidator(cfg *Config) (*Validator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	minConfidence := cfg.MinConfidenceThreshold
	if minConfidence == 0 {
		minConfidence = DefaultMinConfidence
	}
	overlapThreshold := cfg.SpatialOverlapThreshold
	if overlapThreshold == 0 {
		overlapThreshold = DefaultSpatialOverlapThreshold
	}

	if minConfidence < 0 || minConfidence > 1 {
		return nil, errors.NewConfigurationError("min_confidence_threshold",
			fmt.Sprintf("must be in [0,1], got %v", minConfidence))
	}
	if overlapThreshold <= 0 || overlapThreshold > 1 {
		return nil, errors.NewConfigurationError("spatial_overlap_threshold",
			fmt.Sprintf("must be in (0,1], got %v", overlapThreshold))
	}

	zones := make(map[string]FieldZone, len(cfg.Zones))
	for field, zone := range cfg.Zones {
		if err := checkZone(zone); err != nil {
			return nil, errors.NewConfigurationError("zones."+field, err.Error())
		}
		zones[field] = zone
	}

	patterns := make(map[string]*regexp.Regexp, len(cfg.Patterns))
	for field, pattern := range cfg.Patterns {
		re, err := regexp.Compile(anchored(pattern))
		if err != nil {
			return nil, errors.NewConfigurationError("patterns."+field, err.Error())
		}
		patterns[field] = re
	}

	return &Validator{
		minConfidence:    minConfidence,
		overlapThreshold: overlapThreshold,
		zones:            zones,
		patterns:         patterns,
		requiredFields:   append([]string(nil), cfg.RequiredFields...),
		logger:           logging.NewLogger("validation"),
	}, nil
}

// checkZone verifies that a zone's ranges are well formed fractions.
func checkZone(zone FieldZone) error {
	for _, r := range []Range{zone.XRange, zone.YRange} {
		if r.Min > r.Max {
			return fmt.Errorf("range min %v exceeds max %v", r.Min, r.Max)
		}
		if r.Min < 0 || r.Max > 1 {
			return fmt.Errorf("range (%v, %v) must lie within [0,1]", r.Min, r.Max)
		}
	}
	return nil
}

// anchored forces a pattern to match the full value. Patterns that already
// carry both anchors are left untouched.
func anchored(pattern string) string {
	if strings.HasPrefix(pattern, "^") && strings.HasSuffix(pattern, "$") {
		return pattern
	}
	return "^(?:" + pattern + ")$"
}

// ValidateFormat checks a field value against its registered pattern.
// Empty values always pass (partial forms are accepted), and so do fields
// with no registered pattern.
func (v *Validator) ValidateFormat(field, value string) bool {
	if value == "" {
		return true
	}

	re, ok := v.patterns[field]
	if !ok {
		return true
	}

	valid := re.MatchString(value)
	if !valid {
		v.logger.Warn("field value does not match expected format",
			"field", field, "value", value)
	}
	return valid
}

// ValidateDate checks a day/month/year triple for calendar validity.
// Partial dates (any empty component) are accepted with an empty message.
// Out-of-range components such as February 30th are rejected with a
// human-readable message.
func (v *Validator) ValidateDate(day, month, year string) (bool, string) {
	if day == "" || month == "" || year == "" {
		return true, ""
	}

	d, errD := atoiStrict(day)
	m, errM := atoiStrict(month)
	y, errY := atoiStrict(year)
	if errD != nil || errM != nil || errY != nil {
		return false, fmt.Sprintf("invalid date: non-numeric component in %s/%s/%s", day, month, year)
	}

	if m < 1 || m > 12 {
		return false, fmt.Sprintf("invalid date: month %d is out of range", m)
	}

	if y < 1 || y > 9999 {
		return false, fmt.Sprintf("invalid date: year %d is out of range", y)
	}

	// time.Date normalizes out-of-range days (Feb 30 becomes Mar 2), so a
	// round-trip comparison exposes an impossible calendar date.
	constructed := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if constructed.Year() != y || constructed.Month() != time.Month(m) || constructed.Day() != d {
		return false, fmt.Sprintf("invalid date: day %d is out of range for %d/%d", d, m, y)
	}

	return true, ""
}

// atoiStrict parses a decimal integer, rejecting empty and signed input.
func atoiStrict(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit character %q", c)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// ScoreSpatialPosition scores a field's position against its expected zone:
// 1.0 when both normalized coordinates fall inside the zone, 0.5 when
// exactly one axis is inside, 0.0 when neither. Fields with no registered
// zone score 1.0 (no opinion).
func (v *Validator) ScoreSpatialPosition(field string, position BoundingBox, page PageDimensions) float64 {
	zone, ok := v.zones[field]
	if !ok {
		return 1.0
	}

	if page.Width <= 0 || page.Height <= 0 {
		v.logger.Warn("spatial position scoring skipped: degenerate page dimensions",
			"field", field, "width", page.Width, "height", page.Height)
		return 0.0
	}

	xNorm := position.X / page.Width
	yNorm := position.Y / page.Height

	xValid := zone.XRange.Contains(xNorm)
	yValid := zone.YRange.Contains(yNorm)

	switch {
	case xValid && yValid:
		return 1.0
	case xValid || yValid:
		return 0.5
	}

	v.logger.Warn("field position outside expected zone",
		"field", field, "x", xNorm, "y", yNorm)
	return 0.0
}

// Validate scores every span for confidence-threshold compliance and
// spatial coherence against the full candidate set (spans plus tables).
// An empty span collection is not an error; it yields a zero result.
func (v *Validator) Validate(spans []TextSpan, tables []TableCell) *ValidationResult {
	result := &ValidationResult{
		ValidatedSpans: make([]ValidatedSpan, 0, len(spans)),
	}

	if len(spans) == 0 {
		return result
	}

	// Build the candidate geometry once. Table cells without reported
	// geometry still participate: they contribute a zero IoU, exactly as
	// an incomparable element should.
	candidates := make([]*BoundingBox, 0, len(spans)+len(tables))
	for i := range spans {
		candidates = append(candidates, &spans[i].BoundingBox)
	}
	for i := range tables {
		candidates = append(candidates, tables[i].BoundingBox)
	}

	var confidenceSum, spatialSum float64
	for i := range spans {
		span := &spans[i]
		confidenceValid := span.Confidence >= v.minConfidence
		spatialScore := v.spatialCoherence(span.BoundingBox, candidates)

		result.ValidatedSpans = append(result.ValidatedSpans, ValidatedSpan{
			Text:            span.Text,
			Confidence:      span.Confidence,
			ConfidenceValid: confidenceValid,
			SpatialScore:    spatialScore,
		})

		confidenceSum += span.Confidence
		spatialSum += spatialScore
	}

	n := float64(len(spans))
	result.ConfidenceMetrics = ConfidenceMetrics{
		AverageConfidence: confidenceSum / n,
		SpatialConfidence: spatialSum / n,
	}
	result.GlobalConfidence = (result.ConfidenceMetrics.AverageConfidence +
		result.ConfidenceMetrics.SpatialConfidence) / 2

	v.logger.Debug("document validated",
		"spans", len(spans),
		"avg_confidence", result.ConfidenceMetrics.AverageConfidence,
		"spatial_confidence", result.ConfidenceMetrics.SpatialConfidence)

	return result
}

// spatialCoherence scores one element's overlap against all other elements.
// Elements whose box equals bbox are excluded (self-exclusion is by value,
// so duplicated detections with the same geometry exclude each other).
// With no remaining candidates the element is maximally coherent. High
// average overlap with neighbors signals duplicated or colliding
// detections and drives the score toward 0.
func (v *Validator) spatialCoherence(bbox BoundingBox, candidates []*BoundingBox) float64 {
	var overlapSum float64
	var count int
	for _, other := range candidates {
		if other == nil {
			// No geometry reported for this element; counts as zero
			// overlap, matching an element we cannot collide with.
			overlapSum += 0
			count++
			continue
		}
		if *other == bbox {
			continue
		}
		overlapSum += IoU(bbox, *other)
		count++
	}

	if count == 0 {
		return 1.0
	}

	avgOverlap := overlapSum / float64(count)
	return 1.0 - minFloat(avgOverlap/v.overlapThreshold, 1.0)
}
