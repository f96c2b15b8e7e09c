// Package ai enriches user-supplied video metadata through a generative
// text API. Enrichment is best-effort: any failure leaves the original
// metadata untouched.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"

	maxTitleLen       = 100
	maxDescriptionLen = 300
	maxTags           = 5
	maxTagLen         = 30
)

// Metadata is the triple the enricher rewrites.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Enricher calls the generative API. A nil *Enricher is valid and means
// enrichment is disabled.
type Enricher struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
}

// NewEnricher returns a working enricher, or nil when apiKey is empty.
func NewEnricher(apiKey string) *Enricher {
	if apiKey == "" {
		return nil
	}
	return &Enricher{
		endpoint: defaultEndpoint,
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether enrichment will actually run.
func (e *Enricher) Enabled() bool { return e != nil }

type genPart struct {
	Text string `json:"text"`
}

type genContent struct {
	Parts []genPart `json:"parts"`
}

type generateRequest struct {
	Contents []genContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content genContent `json:"content"`
	} `json:"candidates"`
}

// Enrich asks the model for an improved title, description and tag set.
// The returned metadata always satisfies the length constraints; on any
// error the input is returned unchanged along with the error so the caller
// can fall back.
func (e *Enricher) Enrich(ctx context.Context, in Metadata) (Metadata, error) {
	if e == nil {
		return in, nil
	}
	prompt := fmt.Sprintf(`You are a video metadata specialist. Improve and enhance video metadata.

Given:
- Title: %q
- Description: %q
- Existing Tags: %q

Please provide:
1. An improved, catchy title (max 100 characters, must be engaging)
2. An enhanced description (2-3 sentences, max 300 characters)
3. Exactly 5 relevant tags (most relevant first, no hashtags)

Important: the response must be ONLY valid JSON with no markdown formatting
or code blocks, in the form:
{"title": "...", "description": "...", "tags": ["t1","t2","t3","t4","t5"]}`,
		in.Title, in.Description, strings.Join(in.Tags, ", "))

	body, err := json.Marshal(generateRequest{
		Contents: []genContent{{Parts: []genPart{{Text: prompt}}}},
	})
	if err != nil {
		return in, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return in, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.httpc.Do(httpReq)
	if err != nil {
		return in, fmt.Errorf("metadata api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return in, fmt.Errorf("metadata api: status %d: %s", resp.StatusCode, msg)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return in, fmt.Errorf("metadata api: decode response: %w", err)
	}
	if len(gen.Candidates) == 0 || len(gen.Candidates[0].Content.Parts) == 0 {
		return in, fmt.Errorf("metadata api: empty response")
	}

	out, err := parseModelOutput(gen.Candidates[0].Content.Parts[0].Text)
	if err != nil {
		return in, err
	}
	return sanitize(out, in), nil
}

// parseModelOutput decodes the model's JSON answer, tolerating the markdown
// code fences models add despite instructions.
func parseModelOutput(text string) (Metadata, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var m Metadata
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return Metadata{}, fmt.Errorf("metadata api: parse output: %w", err)
	}
	return m, nil
}

// sanitize enforces length constraints, dropping back to the user's values
// where the model returned nothing usable.
func sanitize(m, fallback Metadata) Metadata {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		m.Title = fallback.Title
	}
	m.Title = truncate(m.Title, maxTitleLen)

	m.Description = strings.TrimSpace(m.Description)
	if m.Description == "" {
		m.Description = fallback.Description
	}
	m.Description = truncate(m.Description, maxDescriptionLen)

	seen := make(map[string]struct{}, maxTags)
	tags := make([]string, 0, maxTags)
	for _, tag := range m.Tags {
		tag = truncate(strings.ToLower(strings.TrimSpace(tag)), maxTagLen)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	if len(tags) == 0 {
		tags = fallback.Tags
	}
	m.Tags = tags
	return m
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Cut on a rune boundary.
	for max > 0 && s[max]&0xC0 == 0x80 {
		max--
	}
	return s[:max]
}
