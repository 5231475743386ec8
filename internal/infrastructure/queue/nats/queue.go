package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
	"github.com/kirillkom/docs-analyst/internal/infrastructure/resilience"
)

const workerQueueGroup = "ingest-workers"

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docs-analyst"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Dispatch hands the document to the worker pool.
func (q *Queue) Dispatch(ctx context.Context, documentID string) error {
	return q.PublishDocumentUploaded(ctx, documentID)
}

// PublishDocumentUploaded emits one document-uploaded event. The body is the
// document id; the publish time travels in a header for queue-lag logging.
func (q *Queue) PublishDocumentUploaded(ctx context.Context, documentID string) error {
	msg, err := newDocumentUploadedMsg(q.subject, documentID, time.Now())
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish document %s: %w", documentID, err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return queueError(opPublish, err)
}

func (q *Queue) SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		event, err := parseDocumentUploadedMsg(msg)
		if err != nil {
			slog.WarnContext(ctx, "document_event_rejected", "subject", msg.Subject, "error", err)
			return
		}
		if !event.publishedAt.IsZero() {
			slog.DebugContext(ctx, "document_event_received",
				"document_id", event.documentID,
				"queue_lag_ms", time.Since(event.publishedAt).Milliseconds(),
			)
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event.documentID); err != nil {
			stage, _ := domain.StageOf(err)
			if stage == "" {
				stage = domain.StageIngestion
			}
			slog.ErrorContext(ctx, "document_handler_failed",
				"document_id", event.documentID,
				"stage", stage,
				"error", err,
			)
		}
	})
	if err != nil {
		return queueError(opSubscribe, err)
	}

	if err := q.conn.Flush(); err != nil {
		return queueError(opSubscribe, fmt.Errorf("flush subscription: %w", err))
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return queueError(opDrain, err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return queueError(opDrain, fmt.Errorf("flush after drain: %w", err))
	}
	return nil
}

const publishedAtHeader = "Analyst-Published-At"

type documentUploadedEvent struct {
	documentID  string
	publishedAt time.Time
}

func newDocumentUploadedMsg(subject, documentID string, now time.Time) (*nats.Msg, error) {
	id := strings.TrimSpace(documentID)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, opPublish, errors.New("document id is empty"))
	}
	msg := nats.NewMsg(subject)
	msg.Data = []byte(id)
	msg.Header.Set(publishedAtHeader, now.UTC().Format(time.RFC3339Nano))
	return msg, nil
}

func parseDocumentUploadedMsg(msg *nats.Msg) (documentUploadedEvent, error) {
	id := strings.TrimSpace(string(msg.Data))
	if id == "" || !utf8.ValidString(id) || strings.ContainsAny(id, " \t\n") {
		return documentUploadedEvent{}, domain.WrapError(domain.ErrInvalidInput, "parse document event", fmt.Errorf("bad document id %q", id))
	}
	event := documentUploadedEvent{documentID: id}
	if raw := msg.Header.Get(publishedAtHeader); raw != "" {
		if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			event.publishedAt = at
		}
	}
	return event, nil
}
