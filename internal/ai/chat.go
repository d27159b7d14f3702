package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// DefaultChatEndpoint points to a local OpenAI-compatible endpoint.
	DefaultChatEndpoint = "http://127.0.0.1:8845/v1"
	// DefaultChatModel is used when TB_AI_MODEL is unset.
	DefaultChatModel = "local/editorial"
)

// ChatEngine runs every editorial operation through an OpenAI-compatible chat
// completions endpoint. Responses must be strict JSON; anything else is a
// transient error the caller's retry policy handles.
type ChatEngine struct {
	endpointURL string
	model       string
	client      *http.Client
}

// NewChatEngineFromEnv builds a chat engine from env vars.
//   - TB_AI_ENDPOINT (default: http://127.0.0.1:8845/v1)
//   - TB_AI_MODEL (default: local/editorial)
func NewChatEngineFromEnv() *ChatEngine {
	endpoint := strings.TrimSpace(os.Getenv("TB_AI_ENDPOINT"))
	model := strings.TrimSpace(os.Getenv("TB_AI_MODEL"))
	return NewChatEngine(endpoint, model)
}

func NewChatEngine(endpoint, model string) *ChatEngine {
	trimmedModel := strings.TrimSpace(model)
	if trimmedModel == "" {
		trimmedModel = DefaultChatModel
	}
	return &ChatEngine{
		endpointURL: chatCompletionsURL(normalizeEndpoint(endpoint)),
		model:       trimmedModel,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (e *ChatEngine) Name() string { return "chat" }

// ModelName returns the configured model identifier.
func (e *ChatEngine) ModelName() string {
	if e == nil {
		return ""
	}
	return e.model
}

func (e *ChatEngine) Score(ctx context.Context, item ScoreItem, regionSlug string) (ScoreResult, error) {
	prompt := fmt.Sprintf(
		"You score local-news relevance for the region %q on a 0-100 scale. "+
			"Respond with JSON only: {\"score\": number, \"tags\": [string], \"rationale\": string}.\n\n"+
			"Title: %s\nURL: %s\nBody:\n%s",
		regionSlug, item.Title, item.URL, item.Body)

	var result ScoreResult
	if err := e.complete(ctx, prompt, &result); err != nil {
		return ScoreResult{}, fmt.Errorf("score %q: %w", item.Title, err)
	}
	return result, nil
}

func (e *ChatEngine) Outline(ctx context.Context, item ScoreItem) (Outline, error) {
	prompt := fmt.Sprintf(
		"Produce an article outline. Respond with JSON only: "+
			"{\"title\": string, \"sections\": [string], \"key_points\": [string]}.\n\n"+
			"Title: %s\nBody:\n%s",
		item.Title, item.Body)

	var outline Outline
	if err := e.complete(ctx, prompt, &outline); err != nil {
		return Outline{}, fmt.Errorf("outline %q: %w", item.Title, err)
	}
	if strings.TrimSpace(outline.Title) == "" {
		outline.Title = item.Title
	}
	return outline, nil
}

func (e *ChatEngine) Claims(ctx context.Context, outline Outline) ([]Claim, error) {
	encoded, err := json.Marshal(outline)
	if err != nil {
		return nil, fmt.Errorf("encode outline: %w", err)
	}
	prompt := fmt.Sprintf(
		"Extract the verifiable factual claims from this outline. Respond with JSON only: "+
			"[{\"text\": string, \"importance\": string}].\n\n%s", encoded)

	var claims []Claim
	if err := e.complete(ctx, prompt, &claims); err != nil {
		return nil, fmt.Errorf("extract claims: %w", err)
	}
	return claims, nil
}

func (e *ChatEngine) FactCheck(ctx context.Context, claim Claim, contextText string) (ClaimVerdict, error) {
	prompt := fmt.Sprintf(
		"Verify this claim against the context. Respond with JSON only: "+
			"{\"result\": \"verified\"|\"plausible\"|\"unverified\"|\"disputed\", "+
			"\"confidence\": number, \"rationale\": string, \"sources\": [string]}.\n\n"+
			"Claim: %s\nContext:\n%s", claim.Text, contextText)

	var verdict ClaimVerdict
	if err := e.complete(ctx, prompt, &verdict); err != nil {
		return ClaimVerdict{}, fmt.Errorf("verify claim: %w", err)
	}
	return verdict, nil
}

func (e *ChatEngine) GenerateArticle(ctx context.Context, outline Outline, checks []FactCheckInput) (GeneratedArticle, error) {
	payload, err := json.Marshal(map[string]any{
		"outline":     outline,
		"fact_checks": checks,
	})
	if err != nil {
		return GeneratedArticle{}, fmt.Errorf("encode generation input: %w", err)
	}
	prompt := fmt.Sprintf(
		"Write a local-news article from this outline, honoring the fact-check verdicts. "+
			"Respond with JSON only: {\"title\": string, \"content\": string, "+
			"\"excerpt\": string, \"keywords\": [string]}.\n\n%s", payload)

	var article GeneratedArticle
	if err := e.complete(ctx, prompt, &article); err != nil {
		return GeneratedArticle{}, fmt.Errorf("generate article %q: %w", outline.Title, err)
	}
	if strings.TrimSpace(article.Title) == "" {
		article.Title = outline.Title
	}
	return article, nil
}

func (e *ChatEngine) complete(ctx context.Context, prompt string, out any) error {
	if e == nil {
		return fmt.Errorf("chat engine is nil")
	}

	body, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpointURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(os.Getenv("TB_AI_API_KEY")); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errPayload chatErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error.Message); msg != "" {
				return fmt.Errorf("chat endpoint status %d: %s", resp.StatusCode, msg)
			}
		}
		return fmt.Errorf("chat endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return fmt.Errorf("chat response missing choices")
	}

	content := extractJSONPayload(parsed.Choices[0].Message.Content)
	if content == "" {
		return fmt.Errorf("chat response was empty")
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("decode engine payload: %w", err)
	}
	return nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// extractJSONPayload trims markdown code fences some models wrap around JSON.
func extractJSONPayload(raw string) string {
	content := strings.TrimSpace(raw)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}
	return content
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return DefaultChatEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultChatEndpoint
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	if parsed.Path == "" {
		parsed.Path = "/v1"
	}
	return parsed.String()
}

func chatCompletionsURL(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultChatEndpoint + "/chat/completions"
	}

	path := strings.TrimRight(parsed.Path, "/")
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		parsed.Path = path
	case strings.HasSuffix(path, "/v1"):
		parsed.Path = path + "/chat/completions"
	case path == "":
		parsed.Path = "/v1/chat/completions"
	default:
		parsed.Path = path + "/v1/chat/completions"
	}

	return parsed.String()
}
