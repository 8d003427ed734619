package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/dreamer/internal/observe"
	"github.com/felixgeelhaar/dreamer/internal/provider"
	"github.com/felixgeelhaar/dreamer/internal/store"
)

const archivistPrompt = `You are an expert archivist. Your goal is to extract long-term facts about the user from their messages.
Ignore fleeting thoughts, questions, or small talk (e.g. 'Hello', 'How are you', 'What is the weather').
Focus on:
- Personal details (names, dates, location)
- Preferences (likes, dislikes)
- Relationships (friends, family)
- Work/Projects
- Goals/Dreams
If no relevant facts are found, return an empty list.

Respond with JSON of the form:
{"facts": [{"category": "Personal|Work|Preference|Relationship|Goal", "content": "User lives in Paris", "confidence": 0.0-1.0}]}`

// Archivist turns a user message into candidate facts.
type Archivist struct {
	llm provider.Provider
	obs *observe.Observer
}

func NewArchivist(llm provider.Provider, obs *observe.Observer) *Archivist {
	if obs == nil {
		obs = observe.Nop()
	}
	return &Archivist{llm: llm, obs: obs}
}

type extractedFact struct {
	Category   string  `json:"category"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

type factList struct {
	Facts []extractedFact `json:"facts"`
}

// Extract asks the model for facts in text. The returned facts are not yet
// stored. Unusable model output is reported as provider.ErrLLMFailure.
func (a *Archivist) Extract(ctx context.Context, text string) ([]store.Fact, error) {
	ctx, span := a.obs.StartSpan(ctx, "Archivist.Extract")
	defer span.End()

	resp, err := a.llm.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: archivistPrompt},
		{Role: provider.RoleUser, Content: text},
	}, provider.WithTemperature(0), provider.WithJSON())
	if err != nil {
		return nil, err
	}

	facts, err := parseFacts(resp.Content)
	if err != nil {
		return nil, err
	}

	a.obs.Log().Info().Int("facts", len(facts)).Msg("archivist extraction complete")
	return facts, nil
}

func parseFacts(raw string) ([]store.Fact, error) {
	body := stripFence(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty extraction response", provider.ErrLLMFailure)
	}

	var list factList
	if err := json.Unmarshal([]byte(body), &list); err != nil {
		// Some models answer with the bare array.
		if errArr := json.Unmarshal([]byte(body), &list.Facts); errArr != nil {
			return nil, fmt.Errorf("%w: failed to parse extracted facts: %v", provider.ErrLLMFailure, err)
		}
	}

	facts := make([]store.Fact, 0, len(list.Facts))
	for _, f := range list.Facts {
		content := strings.TrimSpace(f.Content)
		if content == "" {
			continue
		}
		facts = append(facts, store.Fact{
			Category:   strings.TrimSpace(f.Category),
			Content:    content,
			Confidence: f.Confidence,
		})
	}
	return facts, nil
}

// stripFence removes a surrounding ``` or ```json block.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
