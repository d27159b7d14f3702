package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Topic keywords the offline scorer recognizes, with the tag they contribute.
var heuristicTopics = map[string]string{
	"council":    "community",
	"school":     "community",
	"volunteer":  "community",
	"business":   "business",
	"opening":    "opening",
	"restaurant": "restaurant",
	"market":     "business",
	"festival":   "festival",
	"concert":    "concert",
	"event":      "event",
	"team":       "sports",
	"game":       "sports",
	"road":       "news",
	"fire":       "news",
	"police":     "news",
	"mayor":      "news",
	"budget":     "news",
}

// HeuristicEngine is the deterministic offline backend. It keeps the pipeline
// runnable without a model endpoint; scores and content are derived from the
// raw text alone.
type HeuristicEngine struct{}

func NewHeuristicEngine() *HeuristicEngine {
	return &HeuristicEngine{}
}

func (e *HeuristicEngine) Name() string { return "heuristic" }

func (e *HeuristicEngine) Score(_ context.Context, item ScoreItem, _ string) (ScoreResult, error) {
	title := strings.ToLower(item.Title)
	body := strings.ToLower(item.Body)

	score := 50.0
	tags := make([]string, 0, 4)
	seen := map[string]struct{}{}
	for keyword, tag := range heuristicTopics {
		if !strings.Contains(title, keyword) && !strings.Contains(body, keyword) {
			continue
		}
		score += 5
		if _, dup := seen[tag]; !dup {
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	if len(item.Body) > 400 {
		score += 10
	}
	if strings.TrimSpace(item.URL) != "" {
		score += 5
	}
	if score > 100 {
		score = 100
	}

	sort.Strings(tags)
	return ScoreResult{
		Score:     score,
		Tags:      tags,
		Rationale: "keyword and length heuristics",
	}, nil
}

func (e *HeuristicEngine) Outline(_ context.Context, item ScoreItem) (Outline, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return Outline{}, fmt.Errorf("item has no title")
	}

	sentences := splitSentences(item.Body)
	sections := sentences
	if len(sections) > 3 {
		sections = sections[:3]
	}

	keyPoints := make([]string, 0, 5)
	for _, sentence := range sentences {
		if len(keyPoints) == 5 {
			break
		}
		if containsDigit(sentence) || containsTopicKeyword(sentence) {
			keyPoints = append(keyPoints, sentence)
		}
	}
	if len(keyPoints) == 0 {
		keyPoints = append(keyPoints, title)
	}

	return Outline{
		Title:     title,
		Sections:  sections,
		KeyPoints: keyPoints,
	}, nil
}

func (e *HeuristicEngine) Claims(_ context.Context, outline Outline) ([]Claim, error) {
	claims := make([]Claim, 0, len(outline.KeyPoints))
	for _, point := range outline.KeyPoints {
		trimmed := strings.TrimSpace(point)
		if trimmed == "" {
			continue
		}
		claims = append(claims, Claim{Text: trimmed})
	}
	return claims, nil
}

func (e *HeuristicEngine) FactCheck(_ context.Context, claim Claim, _ string) (ClaimVerdict, error) {
	// Without an external knowledge source the engine can only attest that the
	// claim came from the source text itself.
	verdict := ClaimVerdict{
		Result:     VerificationPlausible,
		Confidence: 70,
		Rationale:  "claim restates the source text",
	}
	if !containsDigit(claim.Text) {
		verdict.Confidence = 75
	}
	return verdict, nil
}

func (e *HeuristicEngine) GenerateArticle(_ context.Context, outline Outline, checks []FactCheckInput) (GeneratedArticle, error) {
	title := strings.TrimSpace(outline.Title)
	if title == "" {
		return GeneratedArticle{}, fmt.Errorf("outline has no title")
	}

	var paragraphs []string
	for _, section := range outline.Sections {
		if trimmed := strings.TrimSpace(section); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	for _, check := range checks {
		if check.Result == VerificationVerified || check.Result == VerificationPlausible {
			paragraphs = append(paragraphs, strings.TrimSpace(check.ClaimText))
		}
	}
	if len(paragraphs) == 0 {
		paragraphs = outline.KeyPoints
	}

	body := strings.Join(paragraphs, "\n\n")
	excerpt := body
	if len(excerpt) > 200 {
		excerpt = strings.TrimSpace(excerpt[:200])
	}

	return GeneratedArticle{
		Title:    title,
		Content:  body,
		Excerpt:  excerpt,
		Keywords: keywordsFromTitle(title),
	}, nil
}

func splitSentences(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	sentences := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}

func containsDigit(text string) bool {
	return strings.ContainsFunc(text, unicode.IsDigit)
}

func containsTopicKeyword(text string) bool {
	lowered := strings.ToLower(text)
	for keyword := range heuristicTopics {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func keywordsFromTitle(title string) []string {
	words := strings.Fields(strings.ToLower(title))
	keywords := make([]string, 0, 5)
	for _, word := range words {
		cleaned := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(cleaned) < 4 {
			continue
		}
		keywords = append(keywords, cleaned)
		if len(keywords) == 5 {
			break
		}
	}
	return keywords
}
