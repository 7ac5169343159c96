/**
 * Shared data structures for extraction validation
 *
 * These shapes mirror what the document-intelligence collaborator hands us:
 * text spans with per-span confidence and geometry, table cells, and page
 * layouts. The validator only reads them; it never mutates its input.
 */

package validation

import (
	"encoding/json"
	"fmt"
)

// TextSpan is one recognized line or word of text with its page position
// and the OCR model's confidence for it.
type TextSpan struct {
	Text        string      `json:"text"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bounding_box"`
	Page        int         `json:"page,omitempty"`
}

// UnmarshalJSON accepts spans that carry either a ready-made bounding_box
// object or a raw polygon (as returned by the layout API). Polygons are
// normalized into a BoundingBox at this boundary; an unusable polygon is
// replaced with the fallback box rather than failing the whole document.
func (s *TextSpan) UnmarshalJSON(data []byte) error {
	type Alias TextSpan
	aux := &struct {
		BoundingBox *BoundingBox  `json:"bounding_box,omitempty"`
		Polygon     []interface{} `json:"polygon,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal TextSpan: %w", err)
	}

	switch {
	case aux.BoundingBox != nil:
		s.BoundingBox = *aux.BoundingBox
	case aux.Polygon != nil:
		s.BoundingBox = BoundingBoxFromPolygon(aux.Polygon)
	default:
		s.BoundingBox = BoundingBox{}
	}

	return nil
}

// TableCell is a single cell from an extracted table. Confidence is nil when
// the provider did not score the cell. The bounding box is optional as well;
// most table providers report cell geometry only for some layouts.
type TableCell struct {
	Text        string       `json:"text"`
	RowIndex    int          `json:"row_index"`
	ColumnIndex int          `json:"column_index"`
	Confidence  *float64     `json:"confidence"`
	BoundingBox *BoundingBox `json:"bounding_box,omitempty"`
}

// PageLayout describes one page of the analyzed document with its ordered
// word-level spans.
type PageLayout struct {
	PageNumber int        `json:"page_number"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
	Unit       string     `json:"unit"`
	Spans      []TextSpan `json:"spans"`
}

// PageDimensions carries the page size used to normalize span positions.
type PageDimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Range is a closed interval in normalized page coordinates.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v falls inside the interval (inclusive).
func (r Range) Contains(v float64) bool {
	return r.Min <= v && v <= r.Max
}

// FieldZone is the rectangle, expressed as fractions of page width and
// height, where a given form field is expected to appear. Zones are static
// template configuration, never derived from document data.
type FieldZone struct {
	XRange Range `json:"x_range"`
	YRange Range `json:"y_range"`
}

// ValidatedSpan is the per-span scoring output.
type ValidatedSpan struct {
	Text            string  `json:"text"`
	Confidence      float64 `json:"confidence"`
	ConfidenceValid bool    `json:"confidence_valid"`
	SpatialScore    float64 `json:"spatial_score"`
}

// ConfidenceMetrics are the two aggregate scores that make up the global
// confidence: the plain average of span confidences and the average of the
// per-span spatial coherence scores.
type ConfidenceMetrics struct {
	AverageConfidence float64 `json:"average_confidence"`
	SpatialConfidence float64 `json:"spatial_confidence"`
}

// ValidationResult is the per-document output of the validator. It is built
// fresh on every call and never mutated afterwards; validated spans preserve
// the input span order.
type ValidationResult struct {
	ValidatedSpans    []ValidatedSpan   `json:"validated_spans"`
	GlobalConfidence  float64           `json:"global_confidence"`
	ConfidenceMetrics ConfidenceMetrics `json:"confidence_metrics"`
}
