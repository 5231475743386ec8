package domain

import (
	"errors"
	"testing"
)

func TestWithStageKeepsKindAndFirstLabel(t *testing.T) {
	base := WrapError(ErrGenerationUnavailable, "generate", errors.New("503"))
	err := WithStage(StageGeneration, base)
	err = WithStage(StageRetrieval, err)

	stage, ok := StageOf(err)
	if !ok || stage != StageGeneration {
		t.Fatalf("StageOf() = %q, %v", stage, ok)
	}
	if !IsKind(err, ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable in chain, got %v", err)
	}
	if got := err.Error(); got != "generation failed: generate: generation unavailable: 503" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestWithStageNil(t *testing.T) {
	if err := WithStage(StageIngestion, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if _, ok := StageOf(errors.New("plain")); ok {
		t.Fatalf("plain error must not carry a stage")
	}
}
