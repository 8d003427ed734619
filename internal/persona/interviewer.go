package persona

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/dreamer/internal/gateway"
	"github.com/felixgeelhaar/dreamer/internal/observe"
	"github.com/felixgeelhaar/dreamer/internal/provider"
)

// FallbackQuestion is asked when the model cannot be reached.
const FallbackQuestion = "Tell me a small detail about your day?"

const interviewerPrompt = `You are the 'Interviewer' aspect of a personal AI companion.
Your goal is to learn more about the user to build a richer memory for future dreams and conversations.
Analyze the known facts below. Identify what is missing.
Look for gaps in:
- Basic demographics (Age, Location, Profession)
- Favorites (Colors, Foods, Seasons, Books, Music)
- Deep History (Childhood memories, Pivotal life moments)
- Current Context (Projects, stress levels, goals)

Select ONE missing piece of information that would be interesting to learn right now.
Generate a natural, conversational question to ask the user about it.
Do not be interrogative. Be curious and warm.
Only return the question.`

// Interviewer finds a gap in what is known about the user and asks about it.
type Interviewer struct {
	mem Memory
	llm provider.Provider
	obs *observe.Observer
}

func NewInterviewer(mem Memory, llm provider.Provider, obs *observe.Observer) *Interviewer {
	if obs == nil {
		obs = observe.Nop()
	}
	return &Interviewer{mem: mem, llm: llm, obs: obs}
}

// KnownFacts renders every stored fact for the prompt. A store failure is
// treated like an empty store.
func (i *Interviewer) KnownFacts(ctx context.Context) string {
	facts, err := i.mem.AllFacts(ctx)
	if err != nil {
		i.obs.Log().Warn().Err(err).Msg("interviewer could not load facts")
		facts = nil
	}
	return gateway.FormatFacts(facts, gateway.StyleBracketed)
}

// Ask returns one question. It never fails; on model errors it returns
// FallbackQuestion.
func (i *Interviewer) Ask(ctx context.Context) string {
	ctx, span := i.obs.StartSpan(ctx, "Interviewer.Ask")
	defer span.End()

	known := i.KnownFacts(ctx)
	resp, err := i.llm.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: interviewerPrompt},
		{Role: provider.RoleUser, Content: "Known Facts:\n" + known + "\n\nGenerate one question to fill a gap."},
	}, provider.WithTemperature(0.7))
	if err != nil {
		i.obs.Log().Error().Err(err).Msg("interviewer failed")
		return FallbackQuestion
	}

	q := strings.TrimSpace(resp.Content)
	if q == "" {
		return FallbackQuestion
	}
	return q
}
