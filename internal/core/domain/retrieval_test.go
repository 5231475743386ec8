package domain

import (
	"strings"
	"testing"
)

func TestSnippetTruncatesOnRunes(t *testing.T) {
	short := "short text"
	if got := Snippet(short); got != short {
		t.Fatalf("Snippet(short) = %q", got)
	}

	long := strings.Repeat("ж", 250)
	got := Snippet(long)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis, got %q", got)
	}
	if n := len([]rune(strings.TrimSuffix(got, "..."))); n != SnippetMaxRunes {
		t.Fatalf("snippet rune length = %d", n)
	}
}

func TestRetrieveDocumentsInputValidate(t *testing.T) {
	in := RetrieveDocumentsInput{Query: "  revenue  "}
	if err := in.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if in.TopK != DefaultTopK || in.Query != "revenue" {
		t.Fatalf("unexpected normalized input %+v", in)
	}

	for _, bad := range []RetrieveDocumentsInput{{Query: " "}, {Query: "q", TopK: -1}, {Query: "q", TopK: MaxToolTopK + 1}} {
		if err := bad.Validate(); !IsKind(err, ErrInvalidInput) {
			t.Fatalf("Validate(%+v) = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func TestRetrieveDocumentsOutputValidate(t *testing.T) {
	in := RetrieveDocumentsInput{Query: "q", TopK: 2}
	ok := RetrieveDocumentsOutput{Results: []RetrievedDocument{
		{ChunkID: "a", Page: 1, Score: 0.9},
		{ChunkID: "b", Page: 2, Score: 0.9},
	}}
	if err := ok.Validate(in); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tooMany := RetrieveDocumentsOutput{Results: append(ok.Results, RetrievedDocument{ChunkID: "c", Page: 1})}
	if err := tooMany.Validate(in); err == nil {
		t.Fatalf("expected error for too many results")
	}

	unordered := RetrieveDocumentsOutput{Results: []RetrievedDocument{
		{ChunkID: "a", Page: 1, Score: 0.1},
		{ChunkID: "b", Page: 1, Score: 0.5},
	}}
	if err := unordered.Validate(in); err == nil {
		t.Fatalf("expected error for unordered results")
	}
}
