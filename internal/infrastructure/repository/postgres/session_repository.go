package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, session domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sessions (id, user_id, created_at)
VALUES ($1, $2, $3)
`, session.ID, session.UserID, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, created_at
FROM sessions
WHERE id = $1
`, id)

	var session domain.Session
	if err := row.Scan(&session.ID, &session.UserID, &session.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &session, nil
}

// AppendTurn locks the session row so concurrent appends get consecutive
// indexes. The stored turn is returned with its index and timestamp.
func (r *SessionRepository) AppendTurn(ctx context.Context, turn domain.Turn) (domain.Turn, error) {
	chainJSON, err := json.Marshal(turn.Chain)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("marshal chain: %w", err)
	}
	citationsJSON, err := json.Marshal(turn.Citations)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("marshal citations: %w", err)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("begin append turn tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var sessionID string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, turn.SessionID).Scan(&sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Turn{}, domain.WrapError(domain.ErrSessionNotFound, "append turn", fmt.Errorf("id %s", turn.SessionID))
		}
		return domain.Turn{}, fmt.Errorf("lock session: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(turn_index), 0) + 1
FROM session_turns
WHERE session_id = $1
`, turn.SessionID).Scan(&turn.Index); err != nil {
		return domain.Turn{}, fmt.Errorf("next turn index: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO session_turns (session_id, turn_index, query, intent, chain, response, citations, trace, status, failure_stage, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		turn.SessionID, turn.Index, turn.Query, string(turn.Intent), chainJSON, turn.Response, citationsJSON,
		turn.Trace, string(turn.Status), string(turn.FailureStage), turn.CreatedAt,
	); err != nil {
		return domain.Turn{}, fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Turn{}, fmt.Errorf("commit append turn tx: %w", err)
	}
	return turn, nil
}

// ListTurns returns the last limit turns in chronological order; limit <= 0
// returns the whole log.
func (r *SessionRepository) ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	const columns = `session_id, turn_index, query, intent, chain, response, citations, trace, status, failure_stage, created_at`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+columns+`
FROM session_turns
WHERE session_id = $1
ORDER BY turn_index DESC
LIMIT $2
`, sessionID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `
SELECT `+columns+`
FROM session_turns
WHERE session_id = $1
ORDER BY turn_index ASC
`, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Turn, 0)
	for rows.Next() {
		var turn domain.Turn
		var intent, status, stage string
		var chainRaw, citationsRaw []byte
		if err := rows.Scan(
			&turn.SessionID, &turn.Index, &turn.Query, &intent, &chainRaw, &turn.Response, &citationsRaw,
			&turn.Trace, &status, &stage, &turn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal(chainRaw, &turn.Chain); err != nil {
			return nil, fmt.Errorf("unmarshal chain: %w", err)
		}
		if err := json.Unmarshal(citationsRaw, &turn.Citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
		turn.Intent = domain.Intent(intent)
		turn.Status = domain.TurnStatus(status)
		turn.FailureStage = domain.Stage(stage)
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	if limit > 0 {
		// Returned in descending order from SQL; reverse to keep chronological order.
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}
