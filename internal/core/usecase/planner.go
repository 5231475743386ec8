package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
)

const DefaultHistoryTurns = 6

// PlannerUseCase classifies a turn, runs the fixed specialist chain for the
// chosen intent and commits the turn to the session log.
type PlannerUseCase struct {
	generator    ports.TextGenerator
	sessions     ports.SessionStore
	specialists  map[domain.SpecialistID]ports.Specialist
	historyTurns int
}

func NewPlannerUseCase(
	generator ports.TextGenerator,
	sessions ports.SessionStore,
	historyTurns int,
	specialists ...ports.Specialist,
) *PlannerUseCase {
	if historyTurns <= 0 {
		historyTurns = DefaultHistoryTurns
	}
	registry := make(map[domain.SpecialistID]ports.Specialist, len(specialists))
	for _, s := range specialists {
		registry[s.ID()] = s
	}
	return &PlannerUseCase{
		generator:    generator,
		sessions:     sessions,
		specialists:  registry,
		historyTurns: historyTurns,
	}
}

// Classify makes one constrained generation call. A label outside the closed
// set falls back to the default intent and reports fallback=true.
func (uc *PlannerUseCase) Classify(ctx context.Context, query string, history []domain.Turn) (domain.Intent, bool, error) {
	raw, err := uc.generator.Generate(ctx, buildClassificationPrompt(query, history))
	if err != nil {
		return "", false, domain.WithStage(domain.StageGeneration, fmt.Errorf("classify intent: %w", err))
	}

	intent, ok := domain.ParseIntent(raw)
	if !ok {
		slog.WarnContext(ctx, "intent_classification_ambiguous",
			"label", truncateLabel(raw),
			"fallback", string(domain.DefaultIntent),
			"error", domain.ErrIntentAmbiguous.Error(),
		)
		return domain.DefaultIntent, true, nil
	}
	return intent, false, nil
}

func (uc *PlannerUseCase) Handle(ctx context.Context, sessionID, query string) (*domain.Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "handle query", errors.New("no input"))
	}

	if _, err := uc.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	history, err := uc.sessions.ListTurns(ctx, sessionID, uc.historyTurns)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}

	route := domain.NewRoute()
	intent, fallback, err := uc.Classify(ctx, query, history)
	if err != nil {
		return nil, uc.failTurn(ctx, sessionID, query, route, nil, err)
	}
	if err := route.Assign(intent); err != nil {
		return nil, fmt.Errorf("route query: %w", err)
	}

	chain := domain.ChainFor(intent)
	out, err := uc.runChain(ctx, query, chain)
	if err != nil {
		return nil, uc.failTurn(ctx, sessionID, query, route, chain, err)
	}

	// Nothing is committed for a turn cancelled after its last specialist.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := route.Complete(); err != nil {
		return nil, fmt.Errorf("complete route: %w", err)
	}

	evidence := dedupeEvidence(out.Evidence)
	text, stripped := StripDanglingCitations(out.Text, len(evidence))
	citations := AssignCitations(evidence)
	trace := executionTrace(chain)

	turn, err := uc.sessions.AppendTurn(ctx, domain.Turn{
		SessionID: sessionID,
		Query:     query,
		Intent:    intent,
		Chain:     chain,
		Response:  text,
		Citations: citations,
		Trace:     trace,
		Status:    domain.TurnAnswered,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("append session turn: %w", err)
	}

	return &domain.Response{
		SessionID:         sessionID,
		TurnIndex:         turn.Index,
		Intent:            intent,
		IntentFallback:    fallback,
		Chain:             chain,
		Trace:             trace,
		Text:              text,
		Grounded:          out.Grounded,
		Citations:         citations,
		Comparison:        out.Comparison,
		Timeline:          out.Timeline,
		StrippedCitations: out.StrippedCitations + stripped,
	}, nil
}

func (uc *PlannerUseCase) runChain(ctx context.Context, query string, chain []domain.SpecialistID) (domain.SpecialistOutput, error) {
	var upstream *domain.SpecialistOutput
	for _, id := range chain {
		if err := ctx.Err(); err != nil {
			return domain.SpecialistOutput{}, err
		}
		specialist, ok := uc.specialists[id]
		if !ok {
			return domain.SpecialistOutput{}, fmt.Errorf("specialist %s is not registered", id)
		}

		out, err := specialist.Run(ctx, domain.SpecialistInput{Query: query, Upstream: upstream})
		if err != nil {
			return domain.SpecialistOutput{}, fmt.Errorf("run specialist %s: %w", id, err)
		}
		out.Evidence = dedupeEvidence(out.Evidence)
		upstream = &out
	}
	if upstream == nil {
		return domain.SpecialistOutput{}, errors.New("empty specialist chain")
	}
	return *upstream, nil
}

// failTurn records a failed turn so history stays intact. Cancellation is
// returned as is and leaves the log untouched.
func (uc *PlannerUseCase) failTurn(
	ctx context.Context,
	sessionID, query string,
	route *domain.Route,
	chain []domain.SpecialistID,
	cause error,
) error {
	if ctx.Err() != nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}

	labeled := domain.WithStage(domain.StageGeneration, cause)
	stage, _ := domain.StageOf(labeled)
	intent := route.Intent()
	if intent == "" {
		intent = domain.DefaultIntent
	}
	if chain == nil {
		chain = []domain.SpecialistID{}
	}

	if _, err := uc.sessions.AppendTurn(ctx, domain.Turn{
		SessionID:    sessionID,
		Query:        query,
		Intent:       intent,
		Chain:        chain,
		Response:     labeled.Error(),
		Citations:    []domain.Citation{},
		Trace:        executionTrace(chain),
		Status:       domain.TurnFailed,
		FailureStage: stage,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return errors.Join(labeled, fmt.Errorf("append failed turn: %w", err))
	}
	return labeled
}

func executionTrace(chain []domain.SpecialistID) string {
	steps := make([]string, 0, len(chain)+1)
	steps = append(steps, "Planner")
	for _, id := range chain {
		steps = append(steps, string(id))
	}
	return strings.Join(steps, " → ")
}

func truncateLabel(raw string) string {
	runes := []rune(strings.TrimSpace(raw))
	if len(runes) > 64 {
		return string(runes[:64])
	}
	return string(runes)
}
