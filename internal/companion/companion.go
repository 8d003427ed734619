// Package companion runs a chat turn end to end: recall context, ask the
// interviewer for a question, answer, record both turns and queue fact
// extraction.
package companion

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/dreamer/internal/gateway"
	"github.com/felixgeelhaar/dreamer/internal/guard"
	"github.com/felixgeelhaar/dreamer/internal/memory"
	"github.com/felixgeelhaar/dreamer/internal/observe"
	"github.com/felixgeelhaar/dreamer/internal/persona"
	"github.com/felixgeelhaar/dreamer/internal/provider"
	"github.com/felixgeelhaar/dreamer/internal/runtime"
)

// RelatedMemories is how many snippets are recalled for each message.
const RelatedMemories = 3

const systemPrompt = "You are a personal AI companion named 'Dreamer'. " +
	"Your goal is to be a supportive, insightful friend. " +
	"Use the provided context from past conversations to make your responses more personal and relevant. " +
	"You also have an 'Interviewer' persona trying to learn more about the user. " +
	"Here is a suggested question to ask based on missing knowledge: '%s'. " +
	"If the conversation allows, naturally weave this question into your response, or ask it at the end. " +
	"However, prioritize answering the user's current query first. " +
	"Be concise but warm."

// Reply is the answer to one chat message.
type Reply struct {
	Response        string
	RelatedMemories []memory.Result
}

// Companion wires the personas to the memory gateway.
type Companion struct {
	llm         provider.Provider
	mem         *gateway.Gateway
	archivist   *persona.Archivist
	interviewer *persona.Interviewer
	dreamer     *persona.Dreamer
	tasks       *runtime.TaskQueue
	bus         *runtime.EventBus
	guard       *guard.Guard
	obs         *observe.Observer
	extract     bool
}

type Option func(*Companion)

func WithEventBus(b *runtime.EventBus) Option {
	return func(c *Companion) {
		if b != nil {
			c.bus = b
		}
	}
}

func WithGuard(g *guard.Guard) Option {
	return func(c *Companion) {
		if g != nil {
			c.guard = g
		}
	}
}

func WithObserver(o *observe.Observer) Option {
	return func(c *Companion) {
		if o != nil {
			c.obs = o
		}
	}
}

// WithExtraction turns background fact extraction on or off.
func WithExtraction(enabled bool) Option {
	return func(c *Companion) { c.extract = enabled }
}

func New(llm provider.Provider, mem *gateway.Gateway, tasks *runtime.TaskQueue, opts ...Option) *Companion {
	c := &Companion{
		llm:     llm,
		mem:     mem,
		tasks:   tasks,
		bus:     runtime.NewEventBus(),
		guard:   guard.New(guard.DefaultPolicy),
		obs:     observe.Nop(),
		extract: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.archivist = persona.NewArchivist(llm, c.obs)
	c.interviewer = persona.NewInterviewer(mem, llm, c.obs)
	c.dreamer = persona.NewDreamer(mem, llm, c.obs)
	return c
}

// Events exposes the bus so callers can subscribe.
func (c *Companion) Events() *runtime.EventBus {
	return c.bus
}

// Chat answers message. Only a failed reply or a failed write of the turn
// is returned as an error; recall and interviewer problems degrade
// silently.
func (c *Companion) Chat(ctx context.Context, message string) (Reply, error) {
	ctx, span := c.obs.StartSpan(ctx, "Companion.Chat")
	defer span.End()

	if err := c.guard.CheckMessage(message); err != nil {
		c.bus.PublishWithData(runtime.EventPolicyViolation, "chat", map[string]interface{}{"error": err.Error()})
		return Reply{}, err
	}

	related := c.mem.Recall(ctx, message, c.guard.ClampRecall(RelatedMemories))
	question := c.interviewer.Ask(ctx)

	resp, err := c.llm.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: fmt.Sprintf(systemPrompt, question)},
		{Role: provider.RoleUser, Content: fmt.Sprintf("Context from memory:\n%s\n\nUser: %s", gateway.FormatSnippets(related), message)},
	})
	if err != nil {
		c.obs.Log().Error().Err(err).Msg("companion reply failed")
		return Reply{}, fmt.Errorf("failed to generate reply: %w", err)
	}

	for _, turn := range []struct{ text, role string }{
		{message, gateway.RoleUser},
		{resp.Content, gateway.RoleAI},
	} {
		id, err := c.mem.RecordTurn(ctx, turn.text, turn.role)
		if err != nil {
			return Reply{}, err
		}
		c.bus.PublishWithData(runtime.EventTurnRecorded, id, map[string]interface{}{"role": turn.role})
	}

	c.scheduleExtraction(message)

	return Reply{Response: resp.Content, RelatedMemories: related}, nil
}

func (c *Companion) scheduleExtraction(message string) {
	if !c.extract || c.tasks == nil {
		c.obs.Log().Info().Msg("skipping fact extraction")
		return
	}
	if err := c.tasks.Submit("extract-facts", func(ctx context.Context) error {
		return c.ExtractFacts(ctx, message)
	}); err != nil {
		c.obs.Log().Warn().Err(err).Msg("fact extraction not scheduled")
		c.bus.PublishWithData(runtime.EventExtractionFailed, "extract-facts", map[string]interface{}{"error": err.Error()})
	}
}

// ExtractFacts runs the archivist over message and saves what it finds.
func (c *Companion) ExtractFacts(ctx context.Context, message string) error {
	facts, err := c.archivist.Extract(ctx, message)
	if err != nil {
		return c.extractionFailed(err)
	}

	saved, err := c.mem.SaveFacts(ctx, c.guard.LimitFacts(facts))
	if err != nil {
		return c.extractionFailed(err)
	}

	c.obs.Log().Info().Int("found", len(facts)).Int("saved", saved).Msg("archivist saved facts")
	c.bus.PublishWithData(runtime.EventFactsExtracted, "extract-facts", map[string]interface{}{
		"found": len(facts),
		"saved": saved,
	})
	return nil
}

func (c *Companion) extractionFailed(err error) error {
	c.bus.PublishWithData(runtime.EventExtractionFailed, "extract-facts", map[string]interface{}{"error": err.Error()})
	return fmt.Errorf("fact extraction failed: %w", err)
}

// Dream returns a dream woven from recent facts and memories.
func (c *Companion) Dream(ctx context.Context) string {
	ctx, span := c.obs.StartSpan(ctx, "Companion.Dream")
	defer span.End()

	dream := c.dreamer.Dream(ctx)
	c.bus.PublishWithData(runtime.EventDreamGenerated, "dream", map[string]interface{}{"length": len(dream)})
	return dream
}

// Question exposes the interviewer on its own.
func (c *Companion) Question(ctx context.Context) string {
	return c.interviewer.Ask(ctx)
}
