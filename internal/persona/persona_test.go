package persona

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/dreamer/internal/gateway"
	"github.com/felixgeelhaar/dreamer/internal/memory"
	"github.com/felixgeelhaar/dreamer/internal/memory/mock"
	"github.com/felixgeelhaar/dreamer/internal/provider"
	"github.com/felixgeelhaar/dreamer/internal/store"
)

func newGateway(t *testing.T) (*gateway.Gateway, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "facts.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	idx, err := memory.NewChromemIndex("", mock.New(), memory.Options{})
	if err != nil {
		t.Fatalf("NewChromemIndex failed: %v", err)
	}
	return gateway.New(s, idx), s
}

func TestArchivist_Extract(t *testing.T) {
	ctx := context.Background()

	t.Run("Facts", func(t *testing.T) {
		p := provider.NewStubProvider(`{"facts":[{"category":"Preference","content":"Loves hiking","confidence":0.9},{"category":"Work","content":"  ","confidence":0.5}]}`)
		a := NewArchivist(p, nil)

		facts, err := a.Extract(ctx, "I love hiking")
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if len(facts) != 1 {
			t.Fatalf("expected 1 fact, got %d", len(facts))
		}
		if facts[0].Category != "Preference" || facts[0].Content != "Loves hiking" || facts[0].Confidence != 0.9 {
			t.Errorf("unexpected fact %+v", facts[0])
		}

		msgs := p.LastCall()
		if len(msgs) != 2 || msgs[0].Role != provider.RoleSystem || msgs[1].Content != "I love hiking" {
			t.Errorf("unexpected prompt %+v", msgs)
		}
	})

	t.Run("Fenced", func(t *testing.T) {
		p := provider.NewStubProvider("```json\n{\"facts\":[{\"category\":\"Goal\",\"content\":\"Run a marathon\",\"confidence\":0.8}]}\n```")
		facts, err := NewArchivist(p, nil).Extract(ctx, "I want to run a marathon")
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if len(facts) != 1 || facts[0].Category != "Goal" {
			t.Errorf("unexpected facts %+v", facts)
		}
	})

	t.Run("BareArray", func(t *testing.T) {
		p := provider.NewStubProvider(`[{"category":"Relationship","content":"Has a sister","confidence":1}]`)
		facts, err := NewArchivist(p, nil).Extract(ctx, "my sister")
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if len(facts) != 1 {
			t.Errorf("expected 1 fact, got %d", len(facts))
		}
	})

	t.Run("NoFacts", func(t *testing.T) {
		p := provider.NewStubProvider(`{"facts":[]}`)
		facts, err := NewArchivist(p, nil).Extract(ctx, "hello")
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if len(facts) != 0 {
			t.Errorf("expected no facts, got %+v", facts)
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		p := provider.NewStubProvider("I'm not sure what you mean")
		if _, err := NewArchivist(p, nil).Extract(ctx, "hello"); !errors.Is(err, provider.ErrLLMFailure) {
			t.Errorf("expected ErrLLMFailure, got %v", err)
		}
	})

	t.Run("ProviderError", func(t *testing.T) {
		p := provider.NewStubProvider()
		p.Err = errors.New("boom")
		if _, err := NewArchivist(p, nil).Extract(ctx, "hello"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestInterviewer_Ask(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyStore", func(t *testing.T) {
		g, _ := newGateway(t)
		p := provider.NewStubProvider("  What is your favorite season?  ")
		i := NewInterviewer(g, p, nil)

		q := i.Ask(ctx)
		if q != "What is your favorite season?" {
			t.Errorf("unexpected question %q", q)
		}

		msgs := p.LastCall()
		if len(msgs) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(msgs))
		}
		if !strings.Contains(msgs[1].Content, "Known Facts:\nNo facts known yet.") {
			t.Errorf("expected empty-state summary in prompt, got %q", msgs[1].Content)
		}
	})

	t.Run("KnownFacts", func(t *testing.T) {
		g, s := newGateway(t)
		s.AddFact(ctx, "Work", "Is a nurse", 0.9)
		s.AddFact(ctx, "Goal", "Learn piano", 0.8)

		i := NewInterviewer(g, provider.NewStubProvider("q"), nil)
		if got := i.KnownFacts(ctx); got != "- [Work] Is a nurse\n- [Goal] Learn piano" {
			t.Errorf("unexpected summary %q", got)
		}
	})

	t.Run("Fallback", func(t *testing.T) {
		g, _ := newGateway(t)
		p := provider.NewStubProvider()
		p.Err = provider.ErrLLMFailure
		if q := NewInterviewer(g, p, nil).Ask(ctx); q != FallbackQuestion {
			t.Errorf("expected fallback question, got %q", q)
		}
	})
}

func TestDreamer_Dream(t *testing.T) {
	ctx := context.Background()

	t.Run("Prompt", func(t *testing.T) {
		g, s := newGateway(t)
		s.AddFact(ctx, "Preference", "Loves hiking", 0.9)
		s.AddFact(ctx, "Goal", "Learn piano", 0.8)
		g.RecordTurn(ctx, "I felt calm by the lake", gateway.RoleUser)

		p := provider.NewStubProvider("You wander through a forest of keys...")
		d := NewDreamer(g, p, nil)

		if got := d.Dream(ctx); got != "You wander through a forest of keys..." {
			t.Errorf("unexpected dream %q", got)
		}

		human := p.LastCall()[1].Content
		want := "Fragmented facts:\n- Goal: Learn piano\n- Preference: Loves hiking\n\nRecent echoes of memory:\n- I felt calm by the lake\n\nWeave me a dream."
		if human != want {
			t.Errorf("unexpected prompt:\n%s\nwant:\n%s", human, want)
		}
	})

	t.Run("Fallback", func(t *testing.T) {
		g, _ := newGateway(t)
		p := provider.NewStubProvider()
		p.Err = errors.New("quota")
		if got := NewDreamer(g, p, nil).Dream(ctx); got != FallbackDream {
			t.Errorf("expected fallback dream, got %q", got)
		}
	})
}
