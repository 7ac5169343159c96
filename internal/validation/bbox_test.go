package validation

import (
	"encoding/json"
	"math"
	"testing"
)

func TestBoundingBoxFromPolygon(t *testing.T) {
	testCases := []struct {
		name    string
		polygon string // JSON array
		want    BoundingBox
	}{
		{
			name:    "point objects",
			polygon: `[{"x": 10, "y": 20}, {"x": 110, "y": 20}, {"x": 110, "y": 60}, {"x": 10, "y": 60}]`,
			want:    BoundingBox{X: 10, Y: 20, Width: 100, Height: 40},
		},
		{
			name:    "flat coordinate array",
			polygon: `[10, 20, 110, 20, 110, 60, 10, 60]`,
			want:    BoundingBox{X: 10, Y: 20, Width: 100, Height: 40},
		},
		{
			name:    "coordinate pairs",
			polygon: `[[10, 20], [110, 20], [110, 60], [10, 60]]`,
			want:    BoundingBox{X: 10, Y: 20, Width: 100, Height: 40},
		},
		{
			name:    "rotated polygon still yields min max box",
			polygon: `[[50, 0], [100, 50], [50, 100], [0, 50]]`,
			want:    BoundingBox{X: 0, Y: 0, Width: 100, Height: 100},
		},
		{
			name:    "empty polygon falls back",
			polygon: `[]`,
			want:    BoundingBox{X: 0, Y: 0, Width: 100, Height: 20},
		},
		{
			name:    "odd flat array falls back",
			polygon: `[10, 20, 30]`,
			want:    BoundingBox{X: 0, Y: 0, Width: 100, Height: 20},
		},
		{
			name:    "unrecognized element shape falls back",
			polygon: `["ten", "twenty"]`,
			want:    BoundingBox{X: 0, Y: 0, Width: 100, Height: 20},
		},
		{
			name:    "point object missing y falls back",
			polygon: `[{"x": 10}, {"x": 20}]`,
			want:    BoundingBox{X: 0, Y: 0, Width: 100, Height: 20},
		},
		{
			name:    "triple-length pairs fall back",
			polygon: `[[1, 2, 3], [4, 5, 6]]`,
			want:    BoundingBox{X: 0, Y: 0, Width: 100, Height: 20},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var polygon []interface{}
			if err := json.Unmarshal([]byte(tc.polygon), &polygon); err != nil {
				t.Fatalf("test polygon does not decode: %v", err)
			}

			got := BoundingBoxFromPolygon(polygon)
			if got != tc.want {
				t.Errorf("BoundingBoxFromPolygon() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestIoU(t *testing.T) {
	testCases := []struct {
		name string
		b1   BoundingBox
		b2   BoundingBox
		want float64
	}{
		{
			name: "identical boxes",
			b1:   BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			b2:   BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			want: 1.0,
		},
		{
			name: "disjoint boxes",
			b1:   BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			b2:   BoundingBox{X: 100, Y: 100, Width: 10, Height: 10},
			want: 0.0,
		},
		{
			name: "half horizontal overlap",
			b1:   BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			b2:   BoundingBox{X: 5, Y: 0, Width: 10, Height: 10},
			// intersection 50, union 150
			want: 1.0 / 3.0,
		},
		{
			name: "contained box",
			b1:   BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			b2:   BoundingBox{X: 2, Y: 2, Width: 5, Height: 5},
			want: 0.25,
		},
		{
			name: "touching edges do not overlap",
			b1:   BoundingBox{X: 0, Y: 0, Width: 10, Height: 10},
			b2:   BoundingBox{X: 10, Y: 0, Width: 10, Height: 10},
			want: 0.0,
		},
		{
			name: "zero-area union",
			b1:   BoundingBox{X: 5, Y: 5, Width: 0, Height: 0},
			b2:   BoundingBox{X: 5, Y: 5, Width: 0, Height: 0},
			want: 0.0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := IoU(tc.b1, tc.b2)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("IoU() = %v, want %v", got, tc.want)
			}

			// IoU is symmetric for all inputs.
			if reversed := IoU(tc.b2, tc.b1); math.Abs(got-reversed) > 1e-9 {
				t.Errorf("IoU not symmetric: %v vs %v", got, reversed)
			}
		})
	}
}

func TestTextSpanUnmarshalPolygon(t *testing.T) {
	payload := `{
		"text": "123456789",
		"confidence": 0.92,
		"polygon": [100, 200, 300, 200, 300, 240, 100, 240],
		"page": 1
	}`

	var span TextSpan
	if err := json.Unmarshal([]byte(payload), &span); err != nil {
		t.Fatalf("unmarshal span: %v", err)
	}

	want := BoundingBox{X: 100, Y: 200, Width: 200, Height: 40}
	if span.BoundingBox != want {
		t.Errorf("span bounding box = %+v, want %+v", span.BoundingBox, want)
	}
	if span.Text != "123456789" || span.Confidence != 0.92 || span.Page != 1 {
		t.Errorf("span fields not preserved: %+v", span)
	}
}

func TestTextSpanUnmarshalBoundingBox(t *testing.T) {
	payload := `{
		"text": "Cohen",
		"confidence": 0.7,
		"bounding_box": {"x": 1, "y": 2, "width": 3, "height": 4}
	}`

	var span TextSpan
	if err := json.Unmarshal([]byte(payload), &span); err != nil {
		t.Fatalf("unmarshal span: %v", err)
	}

	want := BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}
	if span.BoundingBox != want {
		t.Errorf("span bounding box = %+v, want %+v", span.BoundingBox, want)
	}
}
