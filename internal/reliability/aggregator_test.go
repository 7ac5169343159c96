package reliability

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/formguard/extraction-worker/internal/validation"
)

func newTestAggregator(t *testing.T, cfg *Config) *Aggregator {
	t.Helper()
	a, err := NewAggregator(cfg)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	return a
}

func TestNewAggregatorConfigurationErrors(t *testing.T) {
	if _, err := NewAggregator(&Config{RecommendationMatchRate: 1.5}); err == nil {
		t.Error("match rate above 1 should be rejected")
	}
	if _, err := NewAggregator(&Config{ExpectedFormats: map[string]string{"x": "("}}); err == nil {
		t.Error("uncompilable format pattern should be rejected")
	}
}

func TestIngestMatchRate(t *testing.T) {
	// Ten documents correcting lastName; seven originals survive review.
	a := newTestAggregator(t, nil)

	for i := 0; i < 10; i++ {
		corrected := "Cohen"
		if i >= 7 {
			corrected = "Kohen"
		}
		a.Ingest(fmt.Sprintf("doc-%d", i), []FieldCorrection{
			{FieldName: "lastName", OriginalValue: "Cohen", CorrectedValue: corrected},
		}, nil)
	}

	report := a.Report()
	field, ok := report.PerField["lastName"]
	if !ok {
		t.Fatal("lastName missing from report")
	}
	if math.Abs(field.MatchRate-0.7) > 1e-9 {
		t.Errorf("match rate = %v, want 0.7", field.MatchRate)
	}
	if field.SampleCount != 10 {
		t.Errorf("sample count = %d, want 10", field.SampleCount)
	}
	if report.DocumentCount != 10 {
		t.Errorf("document count = %d, want 10", report.DocumentCount)
	}

	// 0.7 is not below the 0.7 recommendation threshold.
	if len(report.Recommendations) != 0 {
		t.Errorf("no recommendations expected at the threshold, got %v", report.Recommendations)
	}
}

func TestReportRecommendsUnreliableField(t *testing.T) {
	// Three documents, one surviving original: well below threshold and at
	// the minimum sample floor.
	a := newTestAggregator(t, nil)

	corrected := []string{"123456789", "987654321", "111111111"}
	for i, c := range corrected {
		a.Ingest(fmt.Sprintf("doc-%d", i), []FieldCorrection{
			{FieldName: "idNumber", OriginalValue: "123456789", CorrectedValue: c},
		}, nil)
	}

	report := a.Report()
	if len(report.Recommendations) != 1 {
		t.Fatalf("expected 1 recommendation, got %v", report.Recommendations)
	}
	if !strings.Contains(report.Recommendations[0], "idNumber") {
		t.Errorf("recommendation should name idNumber: %q", report.Recommendations[0])
	}
}

func TestRecommendationSkipsSparseFields(t *testing.T) {
	// Two samples with zero matches: unreliable but below the evidence
	// floor, so no recommendation.
	a := newTestAggregator(t, nil)

	a.Ingest("doc-0", []FieldCorrection{
		{FieldName: "firstName", OriginalValue: "Dana", CorrectedValue: "Dina"},
	}, nil)
	a.Ingest("doc-1", []FieldCorrection{
		{FieldName: "firstName", OriginalValue: "Dana", CorrectedValue: "Dina"},
	}, nil)

	report := a.Report()
	if len(report.Recommendations) != 0 {
		t.Errorf("sparse field should not be flagged, got %v", report.Recommendations)
	}
}

func TestIngestIsIdempotentPerDocument(t *testing.T) {
	a := newTestAggregator(t, nil)

	corrections := []FieldCorrection{
		{FieldName: "lastName", OriginalValue: "Levi", CorrectedValue: "Levi"},
	}
	a.Ingest("doc-1", corrections, nil)
	first := a.Report()

	a.Ingest("doc-1", corrections, nil)
	second := a.Report()

	if !reflect.DeepEqual(first.PerField, second.PerField) {
		t.Errorf("re-ingesting the same document changed per-field stats:\nfirst:  %+v\nsecond: %+v",
			first.PerField, second.PerField)
	}
	if second.DocumentCount != 1 {
		t.Errorf("document count = %d, want 1", second.DocumentCount)
	}
}

func TestResetThenReportIsEmpty(t *testing.T) {
	a := newTestAggregator(t, nil)

	a.Ingest("doc-1", []FieldCorrection{
		{FieldName: "lastName", OriginalValue: "Levi", CorrectedValue: "Levy"},
	}, nil)
	a.Reset()

	report := a.Report()
	if len(report.PerField) != 0 {
		t.Errorf("per-field map not empty after reset: %v", report.PerField)
	}
	if report.OverallScore != 0.0 {
		t.Errorf("overall score = %v, want 0.0", report.OverallScore)
	}
	if len(report.Recommendations) != 0 {
		t.Errorf("recommendations not empty after reset: %v", report.Recommendations)
	}
	if report.DocumentCount != 0 {
		t.Errorf("document count = %d, want 0", report.DocumentCount)
	}
}

func TestOverallScoreIsSampleWeighted(t *testing.T) {
	// lastName: 4 samples, all matching. idNumber: 1 sample, corrected.
	// Weighted overall = (1.0*4 + 0.0*1) / 5 = 0.8.
	a := newTestAggregator(t, nil)

	for i := 0; i < 4; i++ {
		a.Ingest(fmt.Sprintf("doc-%d", i), []FieldCorrection{
			{FieldName: "lastName", OriginalValue: "Levi", CorrectedValue: "Levi"},
		}, nil)
	}
	a.Ingest("doc-id", []FieldCorrection{
		{FieldName: "idNumber", OriginalValue: "12345678", CorrectedValue: "123456789"},
	}, nil)

	report := a.Report()
	if math.Abs(report.OverallScore-0.8) > 1e-9 {
		t.Errorf("overall score = %v, want 0.8", report.OverallScore)
	}
}

func TestCaseInsensitiveFieldMatching(t *testing.T) {
	a := newTestAggregator(t, &Config{CaseInsensitiveFields: []string{"lastName"}})

	a.Ingest("doc-1", []FieldCorrection{
		{FieldName: "lastName", OriginalValue: "COHEN", CorrectedValue: "Cohen"},
		{FieldName: "firstName", OriginalValue: "DANA", CorrectedValue: "Dana"},
	}, nil)

	report := a.Report()
	if report.PerField["lastName"].MatchRate != 1.0 {
		t.Errorf("case-folded lastName match rate = %v, want 1.0",
			report.PerField["lastName"].MatchRate)
	}
	if report.PerField["firstName"].MatchRate != 0.0 {
		t.Errorf("case-sensitive firstName match rate = %v, want 0.0",
			report.PerField["firstName"].MatchRate)
	}
}

func TestConfidenceSourcedFromValidatedSpans(t *testing.T) {
	a := newTestAggregator(t, nil)

	result := &validation.ValidationResult{
		ValidatedSpans: []validation.ValidatedSpan{
			{Text: "Cohen", Confidence: 0.9},
			{Text: "Cohen", Confidence: 0.1}, // later duplicate ignored
		},
	}
	a.Ingest("doc-1", []FieldCorrection{
		{FieldName: "lastName", OriginalValue: " Cohen ", CorrectedValue: "Cohen"},
		{FieldName: "firstName", OriginalValue: "Dana", CorrectedValue: "Dana"},
	}, result)

	report := a.Report()
	if math.Abs(report.PerField["lastName"].ConfidenceAvg-0.9) > 1e-9 {
		t.Errorf("lastName confidence avg = %v, want 0.9", report.PerField["lastName"].ConfidenceAvg)
	}
	// No span carries the firstName value; its confidence contribution is 0.
	if report.PerField["firstName"].ConfidenceAvg != 0.0 {
		t.Errorf("firstName confidence avg = %v, want 0.0", report.PerField["firstName"].ConfidenceAvg)
	}
}

func TestFormatStatusCounts(t *testing.T) {
	a := newTestAggregator(t, nil)

	a.Ingest("doc-1", []FieldCorrection{
		{FieldName: "idNumber", OriginalValue: "123456789", CorrectedValue: "123456789"},
	}, nil)
	a.Ingest("doc-2", []FieldCorrection{
		{FieldName: "idNumber", OriginalValue: "12345", CorrectedValue: "123456789"},
	}, nil)
	a.Ingest("doc-3", []FieldCorrection{
		{FieldName: "idNumber", OriginalValue: "", CorrectedValue: "123456789"},
	}, nil)
	a.Ingest("doc-4", []FieldCorrection{
		{FieldName: "city", OriginalValue: "Haifa", CorrectedValue: "Haifa"},
	}, nil)

	report := a.Report()
	id := report.PerField["idNumber"].Formats
	if id.Valid != 1 || id.Invalid != 1 || id.Empty != 1 || id.Unverified != 0 {
		t.Errorf("idNumber formats = %+v, want valid/invalid/empty = 1/1/1", id)
	}
	city := report.PerField["city"].Formats
	if city.Unverified != 1 {
		t.Errorf("city formats = %+v, want 1 unverified", city)
	}
}

func TestReliabilityScoreFoldsCorrections(t *testing.T) {
	// Two valid-format samples, one of them corrected:
	// valid_rate 1.0 minus half the 0.5 correction rate gives 0.75.
	a := newTestAggregator(t, nil)

	a.Ingest("doc-1", []FieldCorrection{
		{FieldName: "idNumber", OriginalValue: "123456789", CorrectedValue: "123456789"},
	}, nil)
	a.Ingest("doc-2", []FieldCorrection{
		{FieldName: "idNumber", OriginalValue: "987654321", CorrectedValue: "987654320"},
	}, nil)

	report := a.Report()
	if math.Abs(report.PerField["idNumber"].ReliabilityScore-0.75) > 1e-9 {
		t.Errorf("reliability score = %v, want 0.75",
			report.PerField["idNumber"].ReliabilityScore)
	}
}
