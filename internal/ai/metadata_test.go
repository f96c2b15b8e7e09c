package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testEnricher(url string) *Enricher {
	return &Enricher{
		endpoint: url,
		apiKey:   "key-1",
		httpc:    &http.Client{Timeout: 5 * time.Second},
	}
}

func modelResponse(text string) string {
	b, _ := json.Marshal(generateResponse{
		Candidates: []struct {
			Content genContent `json:"content"`
		}{{Content: genContent{Parts: []genPart{{Text: text}}}}},
	})
	return string(b)
}

func TestEnrichParsesStrictJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "key-1" {
			t.Errorf("api key header = %q", got)
		}
		io.WriteString(w, modelResponse(`{"title":"Better Title","description":"Punchy.","tags":["Go","api","GO","testing","web","extra"]}`))
	}))
	defer srv.Close()

	out, err := testEnricher(srv.URL).Enrich(context.Background(), Metadata{Title: "t", Description: "d"})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if out.Title != "Better Title" {
		t.Fatalf("title = %q", out.Title)
	}
	// Tags are lowercased, deduplicated, and capped at five.
	want := []string{"go", "api", "testing", "web", "extra"}
	if len(out.Tags) != len(want) {
		t.Fatalf("tags = %v", out.Tags)
	}
	for i := range want {
		if out.Tags[i] != want[i] {
			t.Fatalf("tags = %v", out.Tags)
		}
	}
}

func TestEnrichStripsMarkdownFences(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, modelResponse("```json\n{\"title\":\"Fenced\",\"description\":\"d\",\"tags\":[\"a\"]}\n```"))
	}))
	defer srv.Close()

	out, err := testEnricher(srv.URL).Enrich(context.Background(), Metadata{Title: "t", Description: "d"})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if out.Title != "Fenced" {
		t.Fatalf("title = %q", out.Title)
	}
}

func TestEnrichTruncatesLongFields(t *testing.T) {
	long := strings.Repeat("x", 500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, modelResponse(`{"title":"`+long+`","description":"`+long+`","tags":["a"]}`))
	}))
	defer srv.Close()

	out, err := testEnricher(srv.URL).Enrich(context.Background(), Metadata{Title: "t", Description: "d"})
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if len(out.Title) != maxTitleLen || len(out.Description) != maxDescriptionLen {
		t.Fatalf("lens = %d/%d", len(out.Title), len(out.Description))
	}
}

func TestEnrichReturnsInputOnFailure(t *testing.T) {
	in := Metadata{Title: "Original", Description: "Kept", Tags: []string{"go"}}

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		out, err := testEnricher(srv.URL).Enrich(context.Background(), in)
		if err == nil {
			t.Fatal("expected error")
		}
		if out.Title != in.Title {
			t.Fatalf("input not preserved: %+v", out)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, modelResponse("sorry, I can't do that"))
		}))
		defer srv.Close()
		out, err := testEnricher(srv.URL).Enrich(context.Background(), in)
		if err == nil {
			t.Fatal("expected error")
		}
		if out.Title != in.Title {
			t.Fatalf("input not preserved: %+v", out)
		}
	})
}

func TestNilEnricherIsDisabled(t *testing.T) {
	var e *Enricher
	if e.Enabled() {
		t.Fatal("nil enricher reported enabled")
	}
	in := Metadata{Title: "t"}
	out, err := e.Enrich(context.Background(), in)
	if err != nil || out.Title != "t" {
		t.Fatalf("nil Enrich: %+v %v", out, err)
	}
	if NewEnricher("") != nil {
		t.Fatal("NewEnricher with empty key should return nil")
	}
}
