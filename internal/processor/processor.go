/**
 * Review processor for the extraction review worker
 *
 * Orchestrates one reviewed document end to end: score the OCR spans with
 * the spatial validator, persist the review, and fold the human
 * corrections into the reliability aggregator. Also owns the reporting
 * surface (export, reset, replay after restart).
 */

package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/formguard/extraction-worker/internal/logging"
	"github.com/formguard/extraction-worker/internal/reliability"
	"github.com/formguard/extraction-worker/internal/report"
	"github.com/formguard/extraction-worker/internal/storage"
	"github.com/formguard/extraction-worker/internal/validation"
)

// ReviewProcessorInterface is what the queue consumers depend on.
type ReviewProcessorInterface interface {
	ProcessReview(ctx context.Context, req *ReviewRequest) (*ReviewResult, error)
	ResetPeriod(ctx context.Context) error
	ExportReport(ctx context.Context) error
}

// ReviewRequest carries one reviewed document: the OCR evidence, the
// structured extraction (optional, for cross-checking), and the human's
// field corrections.
type ReviewRequest struct {
	DocumentID  string
	Spans       []validation.TextSpan
	Tables      []validation.TableCell
	Structured  map[string]interface{}
	Corrections []reliability.FieldCorrection
}

// ReviewResult is the per-document outcome.
type ReviewResult struct {
	DocumentID string
	Validation *validation.ValidationResult
	CrossCheck *validation.ExtractionCheck
}

// ProcessorConfig wires the processor's collaborators. Store may be nil
// when the worker runs without persistence.
type ProcessorConfig struct {
	Validator  *validation.Validator
	Aggregator *reliability.Aggregator
	Store      *storage.CorrectionStore
	ReportDir  string
}

// ReviewProcessor implements ReviewProcessorInterface.
type ReviewProcessor struct {
	validator  *validation.Validator
	aggregator *reliability.Aggregator
	store      *storage.CorrectionStore
	reportDir  string
	logger     *logging.Logger
}

// NewReviewProcessor builds the processor.
func NewReviewProcessor(cfg *ProcessorConfig) (*ReviewProcessor, error) {
	if cfg.Validator == nil {
		return nil, fmt.Errorf("Validator is required")
	}
	if cfg.Aggregator == nil {
		return nil, fmt.Errorf("Aggregator is required")
	}

	return &ReviewProcessor{
		validator:  cfg.Validator,
		aggregator: cfg.Aggregator,
		store:      cfg.Store,
		reportDir:  cfg.ReportDir,
		logger:     logging.NewLogger("processor"),
	}, nil
}

// ProcessReview scores the document's spans, persists the review when a
// store is configured, and ingests the corrections into the aggregator.
// Persistence failure aborts before ingest so a retried task does not
// double-count (ingest is idempotent per document anyway, but the row
// should exist before the tally does).
func (p *ReviewProcessor) ProcessReview(ctx context.Context, req *ReviewRequest) (*ReviewResult, error) {
	if req.DocumentID == "" {
		return nil, fmt.Errorf("document ID is required")
	}

	p.logger.Info("processing review",
		"document_id", req.DocumentID,
		"spans", len(req.Spans),
		"corrections", len(req.Corrections))

	result := p.validator.Validate(req.Spans, req.Tables)

	var crossCheck *validation.ExtractionCheck
	if req.Structured != nil {
		crossCheck = p.validator.ValidateExtractedData(
			req.Structured, req.Spans, result.ConfidenceMetrics.AverageConfidence)
	}

	if p.store != nil {
		record := &storage.ReviewRecord{
			DocumentID:  req.DocumentID,
			Corrections: req.Corrections,
			Validation:  result,
		}
		if err := p.store.SaveReview(ctx, record); err != nil {
			return nil, err
		}
	}

	p.aggregator.Ingest(req.DocumentID, req.Corrections, result)

	p.logger.Info("review processed",
		"document_id", req.DocumentID,
		"global_confidence", result.GlobalConfidence)

	return &ReviewResult{
		DocumentID: req.DocumentID,
		Validation: result,
		CrossCheck: crossCheck,
	}, nil
}

// RebuildFromStore replays every persisted review into the aggregator.
// Called once at startup when persistence is configured; the aggregator's
// per-document idempotence makes accidental double replay harmless.
func (p *ReviewProcessor) RebuildFromStore(ctx context.Context) error {
	if p.store == nil {
		return nil
	}

	return p.store.ReplayAll(ctx, func(record *storage.ReviewRecord) error {
		p.aggregator.Ingest(record.DocumentID, record.Corrections, record.Validation)
		return nil
	})
}

// ResetPeriod clears the aggregator to start a fresh reporting period.
func (p *ReviewProcessor) ResetPeriod(ctx context.Context) error {
	p.aggregator.Reset()
	return nil
}

// ExportReport writes the current reliability report to the report
// directory as HTML and XLSX.
func (p *ReviewProcessor) ExportReport(ctx context.Context) error {
	if p.reportDir == "" {
		return fmt.Errorf("report directory is not configured")
	}

	rep := p.aggregator.Report()

	html, err := report.RenderHTML(rep)
	if err != nil {
		return err
	}
	xlsx, err := report.ExportXLSX(rep)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(p.reportDir, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.reportDir, "reliability_report.html"), html, 0o644); err != nil {
		return fmt.Errorf("write html report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(p.reportDir, "reliability_report.xlsx"), xlsx, 0o644); err != nil {
		return fmt.Errorf("write xlsx report: %w", err)
	}

	p.logger.Info("reliability report exported",
		"dir", p.reportDir,
		"documents", rep.DocumentCount,
		"fields", len(rep.PerField))
	return nil
}
