package orchestrator

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/theapemachine/mnemos/pkg/cache"
	"github.com/theapemachine/mnemos/pkg/errors"
	"github.com/theapemachine/mnemos/pkg/memory"
	"github.com/theapemachine/mnemos/pkg/plan"
	"github.com/theapemachine/mnemos/pkg/planner"
	"github.com/theapemachine/mnemos/pkg/provider"
	"github.com/theapemachine/mnemos/pkg/retriever"
	"github.com/theapemachine/mnemos/pkg/synth"
)

const testPlanJSON = `{
	"strategy": "targeted",
	"directives": [
		{"search_text": "engineer", "target": "vector", "intent": "employment"},
		{"search_text": "bob", "target": "graph", "intent": "relationships"}
	]
}`

// countingVector wraps the in-memory store and counts searches.
type countingVector struct {
	*memory.MockVectorStore
	searches atomic.Int32
}

func (c *countingVector) Search(ctx context.Context, query, userID string, limit int) ([]memory.Hit, error) {
	c.searches.Add(1)
	return c.MockVectorStore.Search(ctx, query, userID, limit)
}

// countingGraph wraps the in-memory graph store and counts searches.
type countingGraph struct {
	*memory.MockGraphStore
	searches atomic.Int32
}

func (c *countingGraph) Search(ctx context.Context, query, userID string, limit int) ([]memory.Hit, error) {
	c.searches.Add(1)
	return c.MockGraphStore.Search(ctx, query, userID, limit)
}

// recordingSubmitter captures submitted messages; accept controls the return
// value so tests can simulate a saturated triage queue.
type recordingSubmitter struct {
	accept   bool
	messages []plan.Message
}

func (r *recordingSubmitter) Submit(msg plan.Message) bool {
	r.messages = append(r.messages, msg)
	return r.accept
}

type harness struct {
	orchestrator *Orchestrator
	provider     *provider.MockProvider
	vector       *countingVector
	graph        *countingGraph
	narratives   *cache.NarrativeCache
	triage       *recordingSubmitter
}

func newHarness(t *testing.T, responses ...string) *harness {
	t.Helper()

	planCache, err := cache.NewPlanCache(64, time.Minute)
	if err != nil {
		t.Fatalf("NewPlanCache: %v", err)
	}
	t.Cleanup(planCache.Close)

	h := &harness{
		provider:   provider.NewMockProvider(responses...),
		vector:     &countingVector{MockVectorStore: memory.NewInMemoryVectorStore()},
		graph:      &countingGraph{MockGraphStore: memory.NewInMemoryGraphStore()},
		narratives: cache.NewNarrativeCache(time.Hour),
		triage:     &recordingSubmitter{accept: true},
	}

	rtrvr := retriever.New(h.vector, h.graph)
	h.orchestrator = New(
		planner.New(h.provider, planCache),
		rtrvr,
		h.narratives,
		h.triage,
		h.provider,
	)

	return h
}

func (h *harness) seed(t *testing.T, contents ...string) {
	t.Helper()

	for _, content := range contents {
		record := memory.Record{UserID: "user-1", Content: content, Entities: []string{"Acme"}}
		if _, err := h.vector.Upsert(context.Background(), record); err != nil {
			t.Fatalf("vector Upsert: %v", err)
		}
		if _, err := h.graph.Upsert(context.Background(), record, nil); err != nil {
			t.Fatalf("graph Upsert: %v", err)
		}
	}
}

func TestHandleValidation(t *testing.T) {
	h := newHarness(t)

	for _, msg := range []plan.Message{
		{UserID: "", Text: "hello"},
		{UserID: "user-1", Text: "   "},
	} {
		_, err := h.orchestrator.Handle(context.Background(), msg)
		if err == nil {
			t.Fatalf("expected an error for %+v", msg)
		}
		if !errors.IsInput(err) {
			t.Errorf("got %v, want an input error", err)
		}
	}

	if len(h.triage.messages) != 0 {
		t.Errorf("malformed messages must not reach triage, got %d", len(h.triage.messages))
	}
}

func TestHandleNoContextWanted(t *testing.T) {
	for name, msg := range map[string]plan.Message{
		"needs_context false": {UserID: "user-1", Text: "I moved to Berlin", NeedsContext: false, Depth: plan.DepthBalanced},
		"depth none":          {UserID: "user-1", Text: "I moved to Berlin", NeedsContext: true, Depth: plan.DepthNone},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, testPlanJSON)
			h.seed(t, "Works at Acme")

			payload, err := h.orchestrator.Handle(context.Background(), msg)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}

			if !payload.Empty() {
				t.Errorf("expected an empty payload, got %q", payload.Text)
			}
			if h.provider.Calls() != 0 {
				t.Errorf("model called %d times, want 0", h.provider.Calls())
			}
			if h.vector.searches.Load() != 0 || h.graph.searches.Load() != 0 {
				t.Error("no store may be touched when context is not wanted")
			}
			if len(h.triage.messages) != 1 {
				t.Errorf("triage received %d messages, want 1", len(h.triage.messages))
			}
		})
	}
}

func TestHandleFastPath(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "Works at Acme", "Likes hiking")

	payload, err := h.orchestrator.Handle(context.Background(), plan.Message{
		UserID:       "user-1",
		Text:         "acme",
		NeedsContext: true,
		Depth:        plan.DepthFast,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if h.provider.Calls() != 0 {
		t.Errorf("fast depth called the model %d times", h.provider.Calls())
	}
	if payload.Empty() {
		t.Fatal("expected context from the heuristic vector search")
	}
	if !strings.Contains(payload.Text, "Works at Acme") {
		t.Errorf("got payload %q", payload.Text)
	}
}

func TestHandleBalancedPath(t *testing.T) {
	h := newHarness(t, testPlanJSON)
	h.seed(t, "Works at Acme as an engineer", "Knows Bob from the Acme contract team")

	payload, err := h.orchestrator.Handle(context.Background(), plan.Message{
		UserID:       "user-1",
		Text:         "remind me who I know at Acme and what I do there",
		NeedsContext: true,
		Depth:        plan.DepthBalanced,
		Format:       plan.FormatLayered,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if h.provider.Calls() != 1 {
		t.Errorf("model called %d times, want 1 planning call", h.provider.Calls())
	}
	if h.vector.searches.Load() == 0 || h.graph.searches.Load() == 0 {
		t.Error("the plan names both stores; both must be queried")
	}
	if !strings.Contains(payload.Text, "## employment") {
		t.Errorf("layered payload missing sections: %q", payload.Text)
	}
	if len(payload.Manifest) == 0 {
		t.Error("expected manifest entries")
	}
}

func TestHandleTriageIsolation(t *testing.T) {
	run := func(t *testing.T, accept bool) synth.Payload {
		h := newHarness(t, testPlanJSON)
		h.seed(t, "Works at Acme as an engineer")
		h.triage.accept = accept

		payload, err := h.orchestrator.Handle(context.Background(), plan.Message{
			UserID:       "user-1",
			Text:         "remind me who I know at Acme and what I do there",
			NeedsContext: true,
			Depth:        plan.DepthBalanced,
		})
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		return payload
	}

	healthy := run(t, true)
	degraded := run(t, false)

	if healthy.Text != degraded.Text {
		t.Errorf("a failing triage queue changed the response:\n%q\nvs\n%q",
			healthy.Text, degraded.Text)
	}
}

func TestHandleNewConversation(t *testing.T) {
	t.Run("serves the cached narrative without any model or store call", func(t *testing.T) {
		h := newHarness(t)
		h.narratives.Put("user-1", "Engineer at Acme, likes hiking.")

		payload, err := h.orchestrator.Handle(context.Background(), plan.Message{
			UserID:            "user-1",
			Text:              "hello again",
			IsNewConversation: true,
			NeedsContext:      true,
			Depth:             plan.DepthBalanced,
		})
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}

		if payload.Text != "Engineer at Acme, likes hiking." {
			t.Errorf("got payload %q", payload.Text)
		}
		if h.provider.Calls() != 0 {
			t.Errorf("model called %d times, want 0", h.provider.Calls())
		}
		if h.vector.searches.Load() != 0 || h.graph.searches.Load() != 0 {
			t.Error("a cached narrative must not touch the stores")
		}
	})

	t.Run("falls back to the identity plan without a narrative", func(t *testing.T) {
		h := newHarness(t)
		h.seed(t, "The user is an engineer at Acme and their goals include shipping the contracts project")

		payload, err := h.orchestrator.Handle(context.Background(), plan.Message{
			UserID:            "user-1",
			Text:              "hello again",
			IsNewConversation: true,
			NeedsContext:      true,
			Depth:             plan.DepthBalanced,
		})
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}

		if h.vector.searches.Load() == 0 || h.graph.searches.Load() == 0 {
			t.Error("the identity plan names both stores; both must be queried")
		}
		if payload.Empty() {
			t.Error("expected identity context for a user with stored memories")
		}
	})

	t.Run("serves a stale narrative and refreshes in the background", func(t *testing.T) {
		h := newHarness(t, "Engineer at Acme, freshly summarized.")
		h.seed(t, "The user is an engineer at Acme and their goals include shipping the contracts project")

		// Replace the narrative cache with one whose entries go stale
		// immediately.
		stale := cache.NewNarrativeCache(time.Nanosecond)
		stale.Put("user-1", "old summary")
		h.orchestrator.narratives = stale
		time.Sleep(time.Millisecond)

		payload, err := h.orchestrator.Handle(context.Background(), plan.Message{
			UserID:            "user-1",
			Text:              "hello again",
			IsNewConversation: true,
			NeedsContext:      true,
			Depth:             plan.DepthBalanced,
		})
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}

		if payload.Text != "old summary" {
			t.Errorf("a stale narrative must still be served, got %q", payload.Text)
		}

		deadline := time.Now().Add(2 * time.Second)
		for {
			entry, _, _ := stale.Get("user-1")
			if entry.Summary == "Engineer at Acme, freshly summarized." {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("narrative never refreshed, still %q", entry.Summary)
			}
			time.Sleep(5 * time.Millisecond)
		}
	})
}
