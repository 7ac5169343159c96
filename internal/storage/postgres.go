/**
 * PostgreSQL persistence for review results
 *
 * Stores each reviewed document's field corrections and validator output so
 * the aggregator's tallies can be rebuilt at any time by replaying the
 * stored rows. The aggregator itself stays in-memory; this store is the
 * durability collaborator.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/formguard/extraction-worker/internal/errors"
	"github.com/formguard/extraction-worker/internal/logging"
	"github.com/formguard/extraction-worker/internal/reliability"
	"github.com/formguard/extraction-worker/internal/validation"
)

// ReviewRecord is one persisted document review.
type ReviewRecord struct {
	DocumentID  string
	Corrections []reliability.FieldCorrection
	Validation  *validation.ValidationResult
	ReviewedAt  time.Time
}

// CorrectionStore persists review records to PostgreSQL.
type CorrectionStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// sanitizeConfidence rounds a confidence to 4 decimal places and clamps it
// to [0,1]. Float64 representations like 0.9632000000000001 trip the
// NUMERIC cast on insert otherwise.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewCorrectionStore connects to PostgreSQL and verifies the connection.
func NewCorrectionStore(databaseURL string) (*CorrectionStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &CorrectionStore{
		db:     db,
		logger: logging.NewLogger("storage"),
	}, nil
}

// SaveReview upserts one document's review. A re-submitted document
// replaces its earlier row; replay then sees only the latest review, which
// matches the aggregator's ingest-once semantics.
func (s *CorrectionStore) SaveReview(ctx context.Context, record *ReviewRecord) error {
	if record.DocumentID == "" {
		return fmt.Errorf("document ID is required")
	}

	correctionsJSON, err := json.Marshal(record.Corrections)
	if err != nil {
		return errors.NewStorageFailedError(record.DocumentID,
			fmt.Errorf("marshal corrections: %w", err))
	}

	var validationJSON []byte
	var globalConfidence float64
	if record.Validation != nil {
		validationJSON, err = json.Marshal(record.Validation)
		if err != nil {
			return errors.NewStorageFailedError(record.DocumentID,
				fmt.Errorf("marshal validation: %w", err))
		}
		globalConfidence = sanitizeConfidence(record.Validation.GlobalConfidence)
	}

	reviewedAt := record.ReviewedAt
	if reviewedAt.IsZero() {
		reviewedAt = time.Now()
	}

	query := `
		INSERT INTO formreview.document_reviews (
			id, document_id, corrections, validation,
			global_confidence, reviewed_at, created_at, updated_at
		) VALUES (
			$1::uuid, $2, $3::jsonb, COALESCE($4::jsonb, 'null'::jsonb),
			$5::NUMERIC(5,4), $6, NOW(), NOW()
		)
		ON CONFLICT (document_id) DO UPDATE SET
			corrections = EXCLUDED.corrections,
			validation = EXCLUDED.validation,
			global_confidence = EXCLUDED.global_confidence,
			reviewed_at = EXCLUDED.reviewed_at,
			updated_at = NOW()
	`

	_, err = s.db.ExecContext(ctx, query,
		uuid.New().String(),
		record.DocumentID,
		correctionsJSON,
		nullableJSON(validationJSON),
		globalConfidence,
		reviewedAt,
	)
	if err != nil {
		return errors.NewDatabaseFailedError("save review", err)
	}

	s.logger.Debug("review persisted",
		"document_id", record.DocumentID, "fields", len(record.Corrections))
	return nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// ReplayAll streams every stored review, oldest first, through fn. Used to
// rebuild the aggregator's tallies after a restart. Iteration stops at the
// first fn error.
func (s *CorrectionStore) ReplayAll(ctx context.Context, fn func(record *ReviewRecord) error) error {
	query := `
		SELECT document_id, corrections, validation, reviewed_at
		FROM formreview.document_reviews
		ORDER BY reviewed_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return errors.NewDatabaseFailedError("replay reviews", err)
	}
	defer rows.Close()

	var replayed int
	for rows.Next() {
		var record ReviewRecord
		var correctionsJSON, validationJSON []byte

		if err := rows.Scan(&record.DocumentID, &correctionsJSON, &validationJSON, &record.ReviewedAt); err != nil {
			return errors.NewDatabaseFailedError("scan review row", err)
		}

		if err := json.Unmarshal(correctionsJSON, &record.Corrections); err != nil {
			// A row we wrote ourselves should always decode; skip and log
			// rather than abort the whole replay.
			s.logger.Warn("skipping review with undecodable corrections",
				"document_id", record.DocumentID, "error", err)
			continue
		}
		if len(validationJSON) > 0 && string(validationJSON) != "null" {
			var result validation.ValidationResult
			if err := json.Unmarshal(validationJSON, &result); err != nil {
				s.logger.Warn("review has undecodable validation, replaying without it",
					"document_id", record.DocumentID, "error", err)
			} else {
				record.Validation = &result
			}
		}

		if err := fn(&record); err != nil {
			return err
		}
		replayed++
	}
	if err := rows.Err(); err != nil {
		return errors.NewDatabaseFailedError("iterate review rows", err)
	}

	s.logger.Info("replay complete", "documents", replayed)
	return nil
}

// Close releases the database connection pool.
func (s *CorrectionStore) Close() error {
	return s.db.Close()
}
