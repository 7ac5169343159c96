/**
 * Cross-checks between LLM-extracted field values and the raw OCR text
 *
 * The language-model extraction step occasionally invents values that never
 * appeared on the page. These checks score the structured output for
 * completeness and format accuracy, and flag values with no support in the
 * OCR text. Findings are logged; none of them fail the document.
 */

package validation

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// CompletenessMetrics summarizes how much of the form was filled in.
type CompletenessMetrics struct {
	FilledFields    int      `json:"filled_fields"`
	TotalFields     int      `json:"total_fields"`
	Score           float64  `json:"score"`
	MissingRequired []string `json:"missing_required"`
}

// InvalidField records one field that failed format validation.
type InvalidField struct {
	Field  string `json:"field"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

// AccuracyMetrics summarizes format validity over the non-empty fields.
type AccuracyMetrics struct {
	ValidFormatFields int            `json:"valid_format_fields"`
	TotalFields       int            `json:"total_fields"`
	Score             float64        `json:"score"`
	InvalidFields     []InvalidField `json:"invalid_fields"`
}

// ExtractionCheck is the result of cross-checking structured extraction
// output against the OCR evidence.
type ExtractionCheck struct {
	Completeness CompletenessMetrics `json:"completeness"`
	Accuracy     AccuracyMetrics     `json:"accuracy"`
	Confidence   float64             `json:"confidence"`
}

// ValidateExtractedData checks the structured extraction result for
// completeness (filled vs total fields, missing required fields) and
// accuracy (format validity of non-empty fields), and cross-checks values
// against the OCR spans to spot invented data. The inputs are never
// mutated.
func (v *Validator) ValidateExtractedData(structured map[string]interface{}, spans []TextSpan, avgConfidence float64) *ExtractionCheck {
	flat := FlattenFields(structured)

	check := &ExtractionCheck{
		Completeness: CompletenessMetrics{MissingRequired: []string{}},
		Accuracy:     AccuracyMetrics{InvalidFields: []InvalidField{}},
		Confidence:   avgConfidence,
	}

	// Completeness over every flattened field.
	check.Completeness.TotalFields = len(flat)
	for _, value := range flat {
		if strings.TrimSpace(value) != "" {
			check.Completeness.FilledFields++
		}
	}
	if check.Completeness.TotalFields > 0 {
		check.Completeness.Score = float64(check.Completeness.FilledFields) /
			float64(check.Completeness.TotalFields)
	}

	// Required fields must be present and non-empty somewhere in the tree.
	for _, required := range v.requiredFields {
		for key, value := range flat {
			if strings.HasSuffix(key, required) && strings.TrimSpace(value) == "" {
				check.Completeness.MissingRequired = append(check.Completeness.MissingRequired, key)
				v.logger.Error("required field is empty", "field", key)
			}
		}
	}
	sort.Strings(check.Completeness.MissingRequired)

	ocrText := joinedOCRText(spans)

	// Accuracy over the non-empty fields, skipping confidence metadata.
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if strings.Contains(key, "confidence") {
			continue
		}
		value := strings.TrimSpace(flat[key])
		if value == "" {
			continue
		}

		fieldName := key
		if idx := strings.LastIndex(key, "."); idx >= 0 {
			fieldName = key[idx+1:]
		}

		check.Accuracy.TotalFields++
		v.checkOCRConsistency(fieldName, value, ocrText)

		if v.ValidateFormat(fieldName, value) {
			check.Accuracy.ValidFormatFields++
		} else {
			check.Accuracy.InvalidFields = append(check.Accuracy.InvalidFields, InvalidField{
				Field:  key,
				Value:  value,
				Reason: "invalid format",
			})
		}
	}
	if check.Accuracy.TotalFields > 0 {
		check.Accuracy.Score = float64(check.Accuracy.ValidFormatFields) /
			float64(check.Accuracy.TotalFields)
	}

	v.checkDateFields(flat)

	return check
}

// FlattenFields flattens a nested field map into dotted keys, stringifying
// leaf values ("address" → {"city": "Haifa"} becomes "address.city").
func FlattenFields(fields map[string]interface{}) map[string]string {
	flat := make(map[string]string)
	flattenInto(flat, "", fields)
	return flat
}

func flattenInto(flat map[string]string, prefix string, fields map[string]interface{}) {
	for key, value := range fields {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			flattenInto(flat, full, nested)
			continue
		}
		flat[full] = stringify(value)
	}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers arrive as float64; integral values print cleanly.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	}
	return ""
}

// joinedOCRText lowercases and concatenates all span text for substring
// lookups.
func joinedOCRText(spans []TextSpan) string {
	parts := make([]string, 0, len(spans))
	for _, span := range spans {
		parts = append(parts, strings.ToLower(span.Text))
	}
	return strings.Join(parts, " ")
}

// checkOCRConsistency looks for evidence of a value in the OCR text and
// logs values that look invented. Short values are skipped; they match
// almost anything.
func (v *Validator) checkOCRConsistency(fieldName, value, ocrText string) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if len(normalized) <= 3 {
		return
	}

	// Type-substitution detection: digits where text belongs, and the
	// other way around.
	fieldType := inferFieldType(fieldName)
	bare := strings.ReplaceAll(strings.ReplaceAll(normalized, "-", ""), " ", "")
	switch fieldType {
	case fieldTypeNumeric, fieldTypePhone:
		if !isAllDigits(bare) {
			v.logger.Error("type substitution detected: numeric field contains non-digit characters",
				"field", fieldName, "value", value)
		}
	case fieldTypeText:
		if isAllDigits(normalized) {
			v.logger.Error("type substitution detected: text field contains only digits",
				"field", fieldName, "value", value)
		}
	}

	tokens := strings.Fields(normalized)
	var found, notFound int
	for _, token := range tokens {
		if len(token) <= 3 {
			continue
		}
		if strings.Contains(ocrText, token) {
			found++
			continue
		}
		notFound++
		if match, score := closestToken(token, ocrText); match != "" {
			v.logger.Info("token not found verbatim but close match exists",
				"field", fieldName, "token", token, "match", match, "score", score)
		} else {
			v.logger.Warn("token not found in OCR text",
				"field", fieldName, "token", token)
		}
	}

	if found == 0 && notFound > 0 {
		v.logger.Error("suspected invented value: no supporting evidence in OCR text",
			"field", fieldName, "value", value)
		if !matchesExpectedFormat(normalized, fieldType) {
			v.logger.Error("value also fails the plausible format for its field type",
				"field", fieldName, "value", value, "type", fieldType)
		}
	}
}

// closestToken finds the most similar OCR token for a missing token, using
// a permissive shared-character ratio. Returns empty when nothing clears
// the similarity bar.
func closestToken(token, ocrText string) (string, float64) {
	var best string
	var bestScore float64
	for _, candidate := range strings.Fields(ocrText) {
		if len(candidate) <= 3 {
			continue
		}
		common := 0
		for _, c := range token {
			if strings.ContainsRune(candidate, c) {
				common++
			}
		}
		score := float64(common) / float64(maxInt(len(token), len(candidate)))
		if score > 0.6 && score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	return best, bestScore
}

type fieldType string

const (
	fieldTypeNumeric fieldType = "numeric"
	fieldTypePhone   fieldType = "phone"
	fieldTypeDate    fieldType = "date"
	fieldTypeText    fieldType = "text"
	fieldTypeAddress fieldType = "address"
	fieldTypeUnknown fieldType = "unknown"
)

// inferFieldType guesses a field's type from its name.
func inferFieldType(fieldName string) fieldType {
	name := strings.ToLower(fieldName)
	switch {
	case containsAny(name, "id", "number", "num", "code"):
		return fieldTypeNumeric
	case containsAny(name, "phone", "tel", "mobile", "landline"):
		return fieldTypePhone
	case containsAny(name, "date", "day", "month", "year"):
		return fieldTypeDate
	case containsAny(name, "name", "first", "last", "family"):
		return fieldTypeText
	case containsAny(name, "address", "street", "city"):
		return fieldTypeAddress
	}
	return fieldTypeUnknown
}

// matchesExpectedFormat checks a value against its type's rough shape.
// Deliberately permissive; it exists to catch gross substitutions, not to
// re-run format validation.
func matchesExpectedFormat(value string, t fieldType) bool {
	if value == "" {
		return true
	}
	ratio := digitRatio(value)
	switch t {
	case fieldTypePhone:
		return ratio > 0.7
	case fieldTypeNumeric:
		return ratio > 0.9
	case fieldTypeText:
		return ratio < 0.5
	}
	return true
}

// checkDateFields walks the flattened fields for day/month/year triples,
// validates each, warns on future dates, and checks that the form filling
// date does not precede the injury date.
func (v *Validator) checkDateFields(flat map[string]string) {
	dates := make(map[string]time.Time)

	prefixes := make(map[string]bool)
	for key := range flat {
		if strings.HasSuffix(key, ".day") {
			prefixes[strings.TrimSuffix(key, ".day")] = true
		}
	}

	now := time.Now()
	for prefix := range prefixes {
		day := flat[prefix+".day"]
		month := flat[prefix+".month"]
		year := flat[prefix+".year"]

		valid, msg := v.ValidateDate(day, month, year)
		if !valid {
			v.logger.Error("date field is invalid", "field", prefix, "reason", msg)
			continue
		}
		if day == "" || month == "" || year == "" {
			continue
		}

		d, _ := atoiStrict(day)
		m, _ := atoiStrict(month)
		y, _ := atoiStrict(year)
		if y < 1900 || y > now.Year() {
			v.logger.Warn("unusual year value", "field", prefix, "year", y)
		}

		parsed := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
		dates[prefix] = parsed

		if parsed.After(now) {
			v.logger.Warn("future date", "field", prefix, "date", parsed.Format("02/01/2006"))
		}
	}

	// The claim cannot be filled before the injury happened.
	var injury, filling time.Time
	for prefix, date := range dates {
		lower := strings.ToLower(prefix)
		if strings.Contains(lower, "injury") {
			injury = date
		}
		if strings.Contains(lower, "filling") {
			filling = date
		}
	}
	if !injury.IsZero() && !filling.IsZero() && filling.Before(injury) {
		v.logger.Error("form filling date precedes injury date",
			"filling", filling.Format("02/01/2006"), "injury", injury.Format("02/01/2006"))
	}
}

func containsAny(s string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func digitRatio(s string) float64 {
	if s == "" {
		return 0
	}
	digits := 0
	for _, c := range s {
		if c >= '0' && c <= '9' {
			digits++
		}
	}
	return float64(digits) / float64(len(s))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
