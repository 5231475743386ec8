package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	ErrExtractionEmpty       = errors.New("extraction produced no text")
	ErrDimensionMismatch     = errors.New("embedding dimension mismatch")
	ErrEmbedderMismatch      = errors.New("embedding function mismatch")
	ErrIntentAmbiguous       = errors.New("intent classification ambiguous")
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrDanglingCitation      = errors.New("dangling citation")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Stage names the pipeline stage a user-visible failure is attributed to.
type Stage string

const (
	StageIngestion  Stage = "ingestion"
	StageRetrieval  Stage = "retrieval"
	StageGeneration Stage = "generation"
)

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// WithStage labels err with stage unless it already carries a label.
func WithStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var staged *StageError
	if errors.As(err, &staged) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

func StageOf(err error) (Stage, bool) {
	var staged *StageError
	if errors.As(err, &staged) {
		return staged.Stage, true
	}
	return "", false
}
