package domain

import "time"

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type TurnStatus string

const (
	TurnAnswered TurnStatus = "answered"
	TurnFailed   TurnStatus = "failed"
)

// Turn is one entry of the append-only session log.
type Turn struct {
	SessionID    string         `json:"session_id"`
	Index        int            `json:"turn_index"`
	Query        string         `json:"query"`
	Intent       Intent         `json:"intent"`
	Chain        []SpecialistID `json:"chain"`
	Response     string         `json:"response"`
	Citations    []Citation     `json:"citations"`
	Trace        string         `json:"trace"`
	Status       TurnStatus     `json:"status"`
	FailureStage Stage          `json:"failure_stage,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
