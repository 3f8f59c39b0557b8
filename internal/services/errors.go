package services

import (
	"fmt"

	"github.com/Ayash-Bera/querygen/internal/models"
)

type ErrorCode string

const (
	CodeTemplateSelectionFailed ErrorCode = "TEMPLATE_SELECTION_FAILED"
	CodeScoringFailed           ErrorCode = "SCORING_FAILED"
	CodeDeduplicationFailed     ErrorCode = "DEDUPLICATION_FAILED"
	CodePersistenceFailed       ErrorCode = "PERSISTENCE_FAILED"
	CodeGenerationFailed        ErrorCode = "GENERATION_FAILED"
	CodeGenerationCancelled     ErrorCode = "GENERATION_CANCELLED"
)

// PipelineError aborts a generation run.
type PipelineError struct {
	Code    ErrorCode
	Stage   Stage
	Request models.QueryGenerationRequest
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s during %s: %v", e.Code, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// PersistenceError is one failed insert; it does not abort the run unless
// every insert fails.
type PersistenceError struct {
	QueryID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist query %s: %v", e.QueryID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
