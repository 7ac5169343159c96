/**
 * Review job payloads
 *
 * The review UI submits one job per reviewed document. Payloads are
 * validated against a JSON Schema before decoding so a malformed submission
 * is rejected with a precise reason instead of producing a half-decoded
 * review.
 */

package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/formguard/extraction-worker/internal/errors"
	"github.com/formguard/extraction-worker/internal/processor"
	"github.com/formguard/extraction-worker/internal/reliability"
	"github.com/formguard/extraction-worker/internal/validation"
)

// Task type names for the asynq consumer.
const (
	TaskTypeReview = "extraction:review"
	TaskTypeReset  = "extraction:reset"
	TaskTypeReport = "extraction:report"
)

// ReviewJobData is the wire shape of one review submission.
type ReviewJobData struct {
	DocumentID  string                        `json:"documentId"`
	Spans       []validation.TextSpan         `json:"spans"`
	Tables      []validation.TableCell        `json:"tables,omitempty"`
	Structured  map[string]interface{}        `json:"structured,omitempty"`
	Corrections []reliability.FieldCorrection `json:"corrections"`
}

// BuildReviewJobSchema returns the JSON Schema (draft 2020-12 subset) for
// review submissions, as a generic map.
func BuildReviewJobSchema() map[string]any {
	boundingBox := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x":      map[string]any{"type": "number"},
			"y":      map[string]any{"type": "number"},
			"width":  map[string]any{"type": "number", "minimum": 0},
			"height": map[string]any{"type": "number", "minimum": 0},
		},
	}

	span := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":         map[string]any{"type": "string"},
			"confidence":   map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"bounding_box": boundingBox,
			"polygon":      map[string]any{"type": "array"},
			"page":         map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []string{"text", "confidence"},
	}

	correction := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field_name":      map[string]any{"type": "string", "minLength": 1},
			"original_value":  map[string]any{"type": "string"},
			"corrected_value": map[string]any{"type": "string"},
		},
		"required": []string{"field_name", "original_value", "corrected_value"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"documentId":  map[string]any{"type": "string", "minLength": 1},
			"spans":       map[string]any{"type": "array", "items": span},
			"tables":      map[string]any{"type": "array"},
			"structured":  map[string]any{"type": "object"},
			"corrections": map[string]any{"type": "array", "items": correction},
		},
		"required": []string{"documentId", "corrections"},
	}
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// reviewSchema compiles the job schema once per process.
func reviewSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(BuildReviewJobSchema())
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("review_job.json", bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("review_job.json")
	})
	return compiledSchema, schemaErr
}

// ValidateReviewPayload checks raw payload bytes against the job schema.
func ValidateReviewPayload(data []byte) error {
	schema, err := reviewSchema()
	if err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}
	return nil
}

// DecodeReviewJob validates and decodes a raw payload into a processor
// request.
func DecodeReviewJob(data []byte) (*processor.ReviewRequest, error) {
	if err := ValidateReviewPayload(data); err != nil {
		return nil, errors.NewBadPayloadError("", err)
	}

	var job ReviewJobData
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, errors.NewBadPayloadError("", err)
	}

	return &processor.ReviewRequest{
		DocumentID:  job.DocumentID,
		Spans:       job.Spans,
		Tables:      job.Tables,
		Structured:  job.Structured,
		Corrections: job.Corrections,
	}, nil
}
