package validation

import (
	"math"
	"testing"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(nil)
	if err != nil {
		t.Fatalf("NewValidator(nil): %v", err)
	}
	return v
}

func TestNewValidatorConfigurationErrors(t *testing.T) {
	testCases := []struct {
		name string
		cfg  *Config
	}{
		{
			name: "zone range inverted",
			cfg: &Config{
				Zones: map[string]FieldZone{
					"lastName": {XRange: Range{0.8, 0.6}, YRange: Range{0.2, 0.3}},
				},
			},
		},
		{
			name: "zone range outside unit interval",
			cfg: &Config{
				Zones: map[string]FieldZone{
					"lastName": {XRange: Range{0.0, 1.5}, YRange: Range{0.2, 0.3}},
				},
			},
		},
		{
			name: "uncompilable pattern",
			cfg: &Config{
				Patterns: map[string]string{"idNumber": `^\d{9$`},
			},
		},
		{
			name: "threshold out of range",
			cfg:  &Config{MinConfidenceThreshold: 1.5},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewValidator(tc.cfg); err == nil {
				t.Error("expected a configuration error, got nil")
			}
		})
	}
}

func TestValidateFormat(t *testing.T) {
	v := newTestValidator(t)

	testCases := []struct {
		name  string
		field string
		value string
		want  bool
	}{
		{"empty value always passes", "idNumber", "", true},
		{"unregistered field always passes", "lastName", "whatever", true},
		{"valid id number", "idNumber", "123456789", true},
		{"short id number", "idNumber", "12345678", false},
		{"id number with letters", "idNumber", "12345678a", false},
		{"id number with trailing text", "idNumber", "123456789x", false},
		{"valid mobile phone", "mobilePhone", "0501234567", true},
		{"mobile phone too short", "mobilePhone", "050123456", false},
		{"valid landline", "landlinePhone", "035551234", true},
		{"postal code five digits", "postalCode", "12345", true},
		{"postal code seven digits", "postalCode", "1234567", true},
		{"postal code eight digits", "postalCode", "12345678", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := v.ValidateFormat(tc.field, tc.value); got != tc.want {
				t.Errorf("ValidateFormat(%q, %q) = %v, want %v", tc.field, tc.value, got, tc.want)
			}
		})
	}
}

func TestValidateDate(t *testing.T) {
	v := newTestValidator(t)

	testCases := []struct {
		name             string
		day, month, year string
		wantValid        bool
		wantMessage      bool
	}{
		{"complete valid date", "15", "6", "1985", true, false},
		{"leap day on leap year", "29", "2", "2024", true, false},
		{"february 30th", "30", "2", "2024", false, true},
		{"leap day on non-leap year", "29", "2", "2023", false, true},
		{"month 13", "1", "13", "2020", false, true},
		{"day zero", "0", "5", "2020", false, true},
		{"year zero", "15", "6", "0", false, true},
		{"year five digits", "15", "6", "10000", false, true},
		{"missing day accepted", "", "6", "1985", true, false},
		{"missing month accepted", "15", "", "1985", true, false},
		{"missing year accepted", "15", "6", "", true, false},
		{"all missing accepted", "", "", "", true, false},
		{"non-numeric day", "abc", "6", "1985", false, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			valid, msg := v.ValidateDate(tc.day, tc.month, tc.year)
			if valid != tc.wantValid {
				t.Errorf("ValidateDate(%q, %q, %q) valid = %v, want %v",
					tc.day, tc.month, tc.year, valid, tc.wantValid)
			}
			if tc.wantMessage && msg == "" {
				t.Error("expected a human-readable message, got empty")
			}
			if !tc.wantMessage && msg != "" {
				t.Errorf("expected empty message, got %q", msg)
			}
		})
	}
}

func TestScoreSpatialPosition(t *testing.T) {
	v := newTestValidator(t)
	page := PageDimensions{Width: 1000, Height: 1000}

	testCases := []struct {
		name     string
		field    string
		position BoundingBox
		want     float64
	}{
		// idNumber zone: x in (0.2, 0.4), y in (0.2, 0.3)
		{"both axes inside", "idNumber", BoundingBox{X: 250, Y: 250}, 1.0},
		{"only x inside", "idNumber", BoundingBox{X: 250, Y: 700}, 0.5},
		{"only y inside", "idNumber", BoundingBox{X: 900, Y: 250}, 0.5},
		{"neither axis inside", "idNumber", BoundingBox{X: 900, Y: 900}, 0.0},
		{"zone boundary is inclusive", "idNumber", BoundingBox{X: 200, Y: 300}, 1.0},
		{"unregistered field scores one", "someUnknownField", BoundingBox{X: 900, Y: 900}, 1.0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := v.ScoreSpatialPosition(tc.field, tc.position, page)
			if got != tc.want {
				t.Errorf("ScoreSpatialPosition(%q, %+v) = %v, want %v",
					tc.field, tc.position, got, tc.want)
			}
		})
	}
}

func TestValidateEmptySpans(t *testing.T) {
	v := newTestValidator(t)

	result := v.Validate(nil, nil)
	if len(result.ValidatedSpans) != 0 {
		t.Errorf("expected no validated spans, got %d", len(result.ValidatedSpans))
	}
	if result.GlobalConfidence != 0.0 {
		t.Errorf("global confidence = %v, want 0.0", result.GlobalConfidence)
	}
	if result.ConfidenceMetrics.AverageConfidence != 0.0 ||
		result.ConfidenceMetrics.SpatialConfidence != 0.0 {
		t.Errorf("metrics not zero for empty input: %+v", result.ConfidenceMetrics)
	}
}

func TestValidateSingleIsolatedSpan(t *testing.T) {
	// A confident span with no competing elements: confidence valid and
	// maximally coherent.
	v := newTestValidator(t)

	spans := []TextSpan{
		{
			Text:        "123456789",
			Confidence:  0.9,
			BoundingBox: BoundingBox{X: 250, Y: 250, Width: 120, Height: 30},
			Page:        1,
		},
	}

	result := v.Validate(spans, nil)
	if len(result.ValidatedSpans) != 1 {
		t.Fatalf("expected 1 validated span, got %d", len(result.ValidatedSpans))
	}

	vs := result.ValidatedSpans[0]
	if !vs.ConfidenceValid {
		t.Error("confidence 0.9 should clear the 0.5 threshold")
	}
	if vs.SpatialScore != 1.0 {
		t.Errorf("spatial score = %v, want 1.0 for an isolated span", vs.SpatialScore)
	}
	if math.Abs(result.GlobalConfidence-0.95) > 1e-9 {
		t.Errorf("global confidence = %v, want 0.95", result.GlobalConfidence)
	}
}

func TestValidateHeavilyOverlappingSpans(t *testing.T) {
	// Two near-identical detections of the same line: their mutual IoU far
	// exceeds the overlap threshold, so both coherence scores bottom out.
	v := newTestValidator(t)

	spans := []TextSpan{
		{Text: "a", Confidence: 0.9, BoundingBox: BoundingBox{X: 0, Y: 0, Width: 100, Height: 20}},
		{Text: "b", Confidence: 0.9, BoundingBox: BoundingBox{X: 0, Y: 1, Width: 100, Height: 20}},
	}

	result := v.Validate(spans, nil)
	for i, vs := range result.ValidatedSpans {
		if vs.SpatialScore != 0.0 {
			t.Errorf("span %d spatial score = %v, want 0.0", i, vs.SpatialScore)
		}
	}
}

func TestValidateIdenticalBoxesExcludeEachOther(t *testing.T) {
	// Self-exclusion is by box value: two spans sharing the exact same
	// geometry see no competing elements and stay maximally coherent.
	v := newTestValidator(t)

	box := BoundingBox{X: 0, Y: 0, Width: 100, Height: 20}
	spans := []TextSpan{
		{Text: "a", Confidence: 0.9, BoundingBox: box},
		{Text: "b", Confidence: 0.9, BoundingBox: box},
	}

	result := v.Validate(spans, nil)
	for i, vs := range result.ValidatedSpans {
		if vs.SpatialScore != 1.0 {
			t.Errorf("span %d spatial score = %v, want 1.0", i, vs.SpatialScore)
		}
	}
}

func TestValidatePreservesSpanOrder(t *testing.T) {
	v := newTestValidator(t)

	spans := []TextSpan{
		{Text: "first", Confidence: 0.2, BoundingBox: BoundingBox{X: 0, Y: 0, Width: 10, Height: 10}},
		{Text: "second", Confidence: 0.8, BoundingBox: BoundingBox{X: 500, Y: 0, Width: 10, Height: 10}},
		{Text: "third", Confidence: 0.6, BoundingBox: BoundingBox{X: 0, Y: 500, Width: 10, Height: 10}},
	}

	result := v.Validate(spans, nil)
	if len(result.ValidatedSpans) != 3 {
		t.Fatalf("expected 3 validated spans, got %d", len(result.ValidatedSpans))
	}
	for i, want := range []string{"first", "second", "third"} {
		if result.ValidatedSpans[i].Text != want {
			t.Errorf("validated span %d text = %q, want %q", i, result.ValidatedSpans[i].Text, want)
		}
	}
	if result.ValidatedSpans[0].ConfidenceValid {
		t.Error("confidence 0.2 should not clear the threshold")
	}
	if !result.ValidatedSpans[1].ConfidenceValid {
		t.Error("confidence 0.8 should clear the threshold")
	}
}

func TestValidateTableCellsWithoutGeometry(t *testing.T) {
	// Table cells with no reported bounds still join the candidate set and
	// dilute the average overlap toward zero, raising coherence.
	v := newTestValidator(t)

	spans := []TextSpan{
		{Text: "a", Confidence: 0.9, BoundingBox: BoundingBox{X: 0, Y: 0, Width: 100, Height: 20}},
		{Text: "b", Confidence: 0.9, BoundingBox: BoundingBox{X: 0, Y: 10, Width: 100, Height: 20}},
	}
	tables := []TableCell{
		{Text: "cell", RowIndex: 0, ColumnIndex: 0},
		{Text: "cell", RowIndex: 0, ColumnIndex: 1},
	}

	withTables := v.Validate(spans, tables)
	withoutTables := v.Validate(spans, nil)

	if withTables.ValidatedSpans[0].SpatialScore <= withoutTables.ValidatedSpans[0].SpatialScore {
		t.Errorf("geometry-free cells should raise coherence: with=%v without=%v",
			withTables.ValidatedSpans[0].SpatialScore,
			withoutTables.ValidatedSpans[0].SpatialScore)
	}
}

func TestSpatialCoherenceNoCandidates(t *testing.T) {
	v := newTestValidator(t)

	box := BoundingBox{X: 0, Y: 0, Width: 10, Height: 10}
	if got := v.spatialCoherence(box, nil); got != 1.0 {
		t.Errorf("spatialCoherence with no candidates = %v, want 1.0", got)
	}

	// A candidate set holding only the element itself is empty after
	// self-exclusion.
	if got := v.spatialCoherence(box, []*BoundingBox{&box}); got != 1.0 {
		t.Errorf("spatialCoherence after self-exclusion = %v, want 1.0", got)
	}
}
