package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docs-analyst/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		recorded  bool
	}{
		{"no servers", fmt.Errorf("publish: %w", nats.ErrNoServers), true, true},
		{"reconnecting", nats.ErrConnectionReconnecting, true, true},
		{"cancelled", context.Canceled, false, false},
		{"bad subject", nats.ErrBadSubject, false, false},
		{"max payload", fmt.Errorf("nats publish document d: %w", nats.ErrMaxPayload), false, false},
		{"invalid document id", domain.WrapError(domain.ErrInvalidInput, opPublish, errors.New("empty")), false, false},
		{"unknown", errors.New("boom"), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class := classifyNATSError(tc.err)
			if class.Retryable != tc.retryable || class.RecordFailure != tc.recorded {
				t.Fatalf("classifyNATSError() = %+v, want retryable=%v recorded=%v", class, tc.retryable, tc.recorded)
			}
		})
	}
}

func TestQueueErrorLabelsOperation(t *testing.T) {
	err := queueError(opPublish, nats.ErrTimeout)
	if !domain.IsKind(err, domain.ErrTemporary) || !strings.HasPrefix(err.Error(), "nats publish") {
		t.Fatalf("expected temporary publish error, got %v", err)
	}

	err = queueError(opDrain, nats.ErrBadSubscription)
	if domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, nats.ErrBadSubscription) {
		t.Fatalf("expected permanent drain error to keep its cause, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "nats drain") {
		t.Fatalf("expected drain label, got %v", err)
	}

	if queueError(opSubscribe, nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}

func TestDocumentUploadedMsgRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := newDocumentUploadedMsg("documents.uploaded", " doc-42 ", at)
	if err != nil {
		t.Fatalf("newDocumentUploadedMsg() error = %v", err)
	}
	if string(msg.Data) != "doc-42" || msg.Subject != "documents.uploaded" {
		t.Fatalf("unexpected message %q on %q", msg.Data, msg.Subject)
	}

	event, err := parseDocumentUploadedMsg(msg)
	if err != nil {
		t.Fatalf("parseDocumentUploadedMsg() error = %v", err)
	}
	if event.documentID != "doc-42" || !event.publishedAt.Equal(at) {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestDocumentUploadedMsgRejectsBadIDs(t *testing.T) {
	if _, err := newDocumentUploadedMsg("s", "  ", time.Now()); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty id, got %v", err)
	}
	for _, body := range []string{"", "two words", "\xff\xfe"} {
		msg := nats.NewMsg("s")
		msg.Data = []byte(body)
		if _, err := parseDocumentUploadedMsg(msg); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %q, got %v", body, err)
		}
	}

	legacy := &nats.Msg{Subject: "s", Data: []byte("doc-1")}
	event, err := parseDocumentUploadedMsg(legacy)
	if err != nil || event.documentID != "doc-1" || !event.publishedAt.IsZero() {
		t.Fatalf("message without headers should parse, got %+v / %v", event, err)
	}
}
