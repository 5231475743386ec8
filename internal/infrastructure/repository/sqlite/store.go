// Package sqlite keeps documents and session logs in a local SQLite file for
// the single-process CLI.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

//go:embed schema.sql
var schema string

// Store implements both the document repository and the session store.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "./data/analyst.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps AppendTurn's read-then-insert race free.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const documentColumns = `id, title, filename, mime_type, storage_path, page_count, chunk_count, status, error_message, created_at, updated_at`

func (s *Store) Create(ctx context.Context, doc *domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.Title, doc.Filename, doc.MimeType, doc.StoragePath, doc.PageCount, doc.ChunkCount,
		string(doc.Status), doc.Error, doc.CreatedAt.UTC(), doc.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (s *Store) List(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listed document: %w", err)
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, error_message = ?, updated_at = ? WHERE id = ?
	`, string(status), errMessage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireAffected(res, "update document status", id)
}

func (s *Store) SaveIngestResult(ctx context.Context, id string, pageCount, chunkCount int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET page_count = ?, chunk_count = ?, updated_at = ? WHERE id = ?
	`, pageCount, chunkCount, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("save ingest result: %w", err)
	}
	return requireAffected(res, "save ingest result", id)
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id, user_id, created_at) VALUES (?, ?, ?)`,
		session.ID, session.UserID, session.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.QueryRowContext(ctx, `SELECT id, user_id, created_at FROM sessions WHERE id = ?`, id).
		Scan(&session.ID, &session.UserID, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("id %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &session, nil
}

func (s *Store) AppendTurn(ctx context.Context, turn domain.Turn) (domain.Turn, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("begin append turn tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE id = ?`, turn.SessionID).Scan(&exists); err != nil {
		return domain.Turn{}, fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return domain.Turn{}, domain.WrapError(domain.ErrSessionNotFound, "append turn", fmt.Errorf("id %s", turn.SessionID))
	}

	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(turn_index), 0) + 1 FROM session_turns WHERE session_id = ?
	`, turn.SessionID).Scan(&turn.Index); err != nil {
		return domain.Turn{}, fmt.Errorf("next turn index: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_turns (session_id, turn_index, query, intent, chain, response, citations, trace, status, failure_stage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, turn.SessionID, turn.Index, turn.Query, string(turn.Intent), string(chainJSON), turn.Response,
		string(citationsJSON), turn.Trace, string(turn.Status), string(turn.FailureStage), turn.CreatedAt.UTC()); err != nil {
		return domain.Turn{}, fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Turn{}, fmt.Errorf("commit append turn tx: %w", err)
	}
	return turn, nil
}

func (s *Store) ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, turn_index, query, intent, chain, response, citations, trace, status, failure_stage, created_at
		FROM (
			SELECT * FROM session_turns WHERE session_id = ? ORDER BY turn_index DESC LIMIT ?
		)
		ORDER BY turn_index ASC
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Turn, 0)
	for rows.Next() {
		var turn domain.Turn
		var intent, status, stage, chainJSON, citationsJSON string
		if err := rows.Scan(&turn.SessionID, &turn.Index, &turn.Query, &intent, &chainJSON, &turn.Response,
			&citationsJSON, &turn.Trace, &status, &stage, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(chainJSON), &turn.Chain); err != nil {
			return nil, fmt.Errorf("unmarshal chain: %w", err)
		}
		if err := json.Unmarshal([]byte(citationsJSON), &turn.Citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
		turn.Intent = domain.Intent(intent)
		turn.Status = domain.TurnStatus(status)
		turn.FailureStage = domain.Stage(stage)
		out = append(out, turn)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status string
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.PageCount,
		&doc.ChunkCount, &status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func requireAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id %s", id))
	}
	return nil
}
