package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/core/ports"
)

const anonymousUser = "anonymous"

type SessionUseCase struct {
	store ports.SessionStore
}

func NewSessionUseCase(store ports.SessionStore) *SessionUseCase {
	return &SessionUseCase{store: store}
}

func (uc *SessionUseCase) Start(ctx context.Context, userID string) (*domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = anonymousUser
	}
	session := domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &session, nil
}

// History returns the full turn log in order.
func (uc *SessionUseCase) History(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	if _, err := uc.store.GetSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	turns, err := uc.store.ListTurns(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("list session turns: %w", err)
	}
	return turns, nil
}
