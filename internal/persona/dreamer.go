package persona

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/dreamer/internal/gateway"
	"github.com/felixgeelhaar/dreamer/internal/observe"
	"github.com/felixgeelhaar/dreamer/internal/provider"
	"github.com/felixgeelhaar/dreamer/internal/store"
)

// FallbackDream is returned when the model cannot be reached.
const FallbackDream = "The dream faded before it could be spoken..."

const (
	dreamFacts    = 10
	dreamEchoes   = 5
	dreamSeed     = "feelings and events"
	dreamerPrompt = `You are 'The Dreamer'. Your role is to take the fragments of the user's life (facts and memories)
and weave them into a poetic, metaphorical dream sequence.
Do not just summarize; transform reality into symbols and echoes.
Be ethereal, supportive, and slightly mysterious.
The goal is to help the user see their life from a beautiful, new perspective.
Use rich imagery.`
)

// Dreamer weaves recent facts and recalled memories into a dream.
type Dreamer struct {
	mem Memory
	llm provider.Provider
	obs *observe.Observer
}

func NewDreamer(mem Memory, llm provider.Provider, obs *observe.Observer) *Dreamer {
	if obs == nil {
		obs = observe.Nop()
	}
	return &Dreamer{mem: mem, llm: llm, obs: obs}
}

// Prompt builds the human message from the latest facts and echoes.
func (d *Dreamer) Prompt(ctx context.Context) string {
	facts, err := d.mem.RecentFacts(ctx, dreamFacts)
	if err != nil {
		d.obs.Log().Warn().Err(err).Msg("dreamer could not load facts")
	}
	echoes := d.mem.Recall(ctx, dreamSeed, dreamEchoes)

	return fmt.Sprintf("Fragmented facts:\n%s\n\nRecent echoes of memory:\n%s\n\nWeave me a dream.",
		formatFragments(facts), gateway.FormatSnippets(echoes))
}

// Dream never fails; on model errors it returns FallbackDream.
func (d *Dreamer) Dream(ctx context.Context) string {
	ctx, span := d.obs.StartSpan(ctx, "Dreamer.Dream")
	defer span.End()

	d.obs.Log().Info().Msg("dreamer is weaving a new dream")
	resp, err := d.llm.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: dreamerPrompt},
		{Role: provider.RoleUser, Content: d.Prompt(ctx)},
	}, provider.WithTemperature(0.8))
	if err != nil {
		d.obs.Log().Error().Err(err).Msg("dreamer failed")
		return FallbackDream
	}

	dream := strings.TrimSpace(resp.Content)
	if dream == "" {
		return FallbackDream
	}
	return dream
}

// formatFragments leaves the section blank rather than printing the
// empty-store summary, so the dream is not seeded with it.
func formatFragments(facts []store.Fact) string {
	if len(facts) == 0 {
		return ""
	}
	return gateway.FormatFacts(facts, gateway.StyleColon)
}
