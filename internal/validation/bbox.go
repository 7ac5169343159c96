/**
 * Bounding box geometry for spatial validation
 *
 * Layout providers return line and word geometry as polygons in one of
 * three shapes: point objects with x/y keys, a flat coordinate array
 * [x1, y1, x2, y2, ...], or coordinate pairs [[x1, y1], [x2, y2], ...].
 * All three are normalized here into an axis-aligned BoundingBox.
 */

package validation

import (
	"fmt"

	"github.com/formguard/extraction-worker/internal/errors"
	"github.com/formguard/extraction-worker/internal/logging"
)

var geometryLogger = logging.NewLogger("geometry")

// BoundingBox is an axis-aligned rectangle in page-pixel units.
// Width and height are never negative.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the rectangle's area.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// fallbackBox is substituted when a polygon cannot be interpreted. A small
// zero-origin box keeps downstream scoring defined instead of failing the
// span outright.
func fallbackBox() BoundingBox {
	return BoundingBox{X: 0, Y: 0, Width: 100, Height: 20}
}

// BoundingBoxFromPolygon derives the min/max bounding box from a polygon.
// The polygon is expected as decoded JSON, so the three supported shapes
// arrive as maps, numbers, or nested arrays. Any shape that cannot be
// recognized is logged as malformed input and yields the fallback box.
func BoundingBoxFromPolygon(polygon []interface{}) BoundingBox {
	box, ok := parsePolygon(polygon)
	if !ok {
		err := errors.NewMalformedInputError("",
			fmt.Sprintf("unrecognized polygon shape with %d entries", len(polygon)))
		geometryLogger.Warn("polygon could not be interpreted, using fallback box",
			"error", err.Error())
		return fallbackBox()
	}
	return box
}

func parsePolygon(polygon []interface{}) (BoundingBox, bool) {
	if len(polygon) == 0 {
		return BoundingBox{}, false
	}

	var xs, ys []float64

	switch first := polygon[0].(type) {
	case map[string]interface{}:
		// Point objects: [{"x": 1, "y": 2}, ...]
		for _, p := range polygon {
			point, ok := p.(map[string]interface{})
			if !ok {
				return BoundingBox{}, false
			}
			x, okX := toFloat(point["x"])
			y, okY := toFloat(point["y"])
			if !okX || !okY {
				return BoundingBox{}, false
			}
			xs = append(xs, x)
			ys = append(ys, y)
		}

	case float64, int, int64:
		// Flat coordinate array: [x1, y1, x2, y2, ...]. An odd number of
		// entries cannot be paired up, so it counts as unrecognized.
		if len(polygon)%2 != 0 {
			return BoundingBox{}, false
		}
		for i := 0; i < len(polygon); i += 2 {
			x, okX := toFloat(polygon[i])
			y, okY := toFloat(polygon[i+1])
			if !okX || !okY {
				return BoundingBox{}, false
			}
			xs = append(xs, x)
			ys = append(ys, y)
		}

	case []interface{}:
		// Coordinate pairs: [[x1, y1], [x2, y2], ...]
		if len(first) != 2 {
			return BoundingBox{}, false
		}
		for _, p := range polygon {
			pair, ok := p.([]interface{})
			if !ok || len(pair) != 2 {
				return BoundingBox{}, false
			}
			x, okX := toFloat(pair[0])
			y, okY := toFloat(pair[1])
			if !okX || !okY {
				return BoundingBox{}, false
			}
			xs = append(xs, x)
			ys = append(ys, y)
		}

	default:
		return BoundingBox{}, false
	}

	if len(xs) == 0 || len(ys) == 0 {
		return BoundingBox{}, false
	}

	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 1; i < len(xs); i++ {
		if xs[i] < minX {
			minX = xs[i]
		}
		if xs[i] > maxX {
			maxX = xs[i]
		}
	}
	for i := 1; i < len(ys); i++ {
		if ys[i] < minY {
			minY = ys[i]
		}
		if ys[i] > maxY {
			maxY = ys[i]
		}
	}

	return BoundingBox{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}, true
}

// toFloat converts the numeric types encoding/json may produce.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// IoU computes the intersection-over-union of two axis-aligned rectangles.
// Non-overlapping rectangles and zero-area unions both score 0.0.
func IoU(b1, b2 BoundingBox) float64 {
	xLeft := maxFloat(b1.X, b2.X)
	yTop := maxFloat(b1.Y, b2.Y)
	xRight := minFloat(b1.X+b1.Width, b2.X+b2.Width)
	yBottom := minFloat(b1.Y+b1.Height, b2.Y+b2.Height)

	if xRight < xLeft || yBottom < yTop {
		return 0.0
	}

	intersection := (xRight - xLeft) * (yBottom - yTop)
	union := b1.Area() + b2.Area() - intersection
	if union <= 0 {
		return 0.0
	}

	return intersection / union
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
