// Package orchestrator ties planning, retrieval, synthesis and background
// triage together per request. It owns the fast/medium/slow path decision and
// enforces the per-depth wall-clock budget.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/theapemachine/mnemos/pkg/cache"
	"github.com/theapemachine/mnemos/pkg/errors"
	"github.com/theapemachine/mnemos/pkg/plan"
	"github.com/theapemachine/mnemos/pkg/planner"
	"github.com/theapemachine/mnemos/pkg/provider"
	"github.com/theapemachine/mnemos/pkg/retriever"
	"github.com/theapemachine/mnemos/pkg/synth"
)

const narrativeInstructions = `Summarize who this user is in a few sentences,
based only on the memories below. Write it as briefing context for an
assistant opening a new conversation. Respond with the summary only.`

// Submitter hands a message to the background triage path. The only thing
// crossing this boundary is the immutable message itself.
type Submitter interface {
	Submit(msg plan.Message) bool
}

/*
Orchestrator is the single entry point for context assembly. It never
surfaces retrieval degradation as an error; the worst case for a well-formed
request is an empty or shorter payload.
*/
type Orchestrator struct {
	planner    *planner.Planner
	retriever  *retriever.Retriever
	narratives *cache.NarrativeCache
	triage     Submitter
	provider   provider.Interface
}

func New(
	plnr *planner.Planner,
	rtrvr *retriever.Retriever,
	narratives *cache.NarrativeCache,
	triage Submitter,
	prvdr provider.Interface,
) *Orchestrator {
	return &Orchestrator{
		planner:    plnr,
		retriever:  rtrvr,
		narratives: narratives,
		triage:     triage,
		provider:   prvdr,
	}
}

// Handle produces a context payload for one message. The raw message is
// always submitted to triage, regardless of which read path runs; triage
// shares no mutable state with this path and its failure cannot alter the
// returned payload.
func (o *Orchestrator) Handle(ctx context.Context, msg plan.Message) (synth.Payload, error) {
	if err := validate(msg); err != nil {
		return synth.Payload{}, err
	}

	if o.triage != nil {
		o.triage.Submit(msg)
	}

	// Fast path: no context wanted, return before touching any store.
	if !msg.NeedsContext || msg.Depth == plan.DepthNone {
		return synth.EmptyPayload(msg.Format), nil
	}

	profile := plan.ProfileFor(msg.Depth)

	ctx, cancel := context.WithTimeout(ctx, profile.WallClock)
	defer cancel()

	if msg.IsNewConversation {
		if payload, ok := o.fromNarrative(msg); ok {
			return payload, nil
		}
		return o.runPlan(ctx, msg, o.planner.IdentityPlan(msg.UserID), profile), nil
	}

	derived, err := o.planner.Plan(ctx, msg)
	if err != nil {
		// Planner already degrades internally; reaching here means the
		// budget expired before even the heuristic plan materialized.
		log.Warn("planning abandoned", "user", msg.UserID, "error", err)
		return synth.EmptyPayload(msg.Format), nil
	}

	return o.runPlan(ctx, msg, derived, profile), nil
}

// runPlan executes the retrieve-and-synthesize tail shared by the medium and
// slow paths. Retrieval degradation yields fewer items, never an error.
func (o *Orchestrator) runPlan(ctx context.Context, msg plan.Message, p *plan.Plan, profile plan.Profile) synth.Payload {
	retrieveCtx, cancel := context.WithTimeout(ctx, profile.RetrieveTimeout)
	defer cancel()

	items, err := o.retriever.Retrieve(retrieveCtx, p, msg.UserID, profile)
	if err != nil {
		log.Warn("retrieval degraded to empty", "user", msg.UserID, "error", err)
		return synth.EmptyPayload(msg.Format)
	}

	return synth.Synthesize(items, msg.Format)
}

// fromNarrative serves the precomputed conversation-opening summary. Stale
// entries are served once while a background refresh runs.
func (o *Orchestrator) fromNarrative(msg plan.Message) (synth.Payload, bool) {
	narrative, ok, stale := o.narratives.Get(msg.UserID)
	if !ok {
		return synth.Payload{}, false
	}

	if stale {
		userID := msg.UserID
		o.narratives.RefreshAsync(userID, func(ctx context.Context) (string, error) {
			return o.generateNarrative(ctx, userID)
		})
	}

	return synth.Payload{
		Text:   narrative.Summary,
		Format: msg.Format,
		Manifest: []synth.ManifestEntry{{
			Content: narrative.Summary,
			Source:  plan.TargetVector,
			Intent:  "narrative",
			Score:   1,
		}},
	}, true
}

// generateNarrative rebuilds a user's opening summary from their stored
// identity memories. Runs only inside the narrative cache's single-flight
// refresh.
func (o *Orchestrator) generateNarrative(ctx context.Context, userID string) (string, error) {
	profile := plan.ProfileFor(plan.DepthBalanced)

	items, err := o.retriever.Retrieve(ctx, o.planner.IdentityPlan(userID), userID, profile)
	if err != nil {
		return "", err
	}

	if len(items) == 0 {
		return "", fmt.Errorf("no memories to summarize for user %s", userID)
	}

	var input strings.Builder
	for _, item := range items {
		input.WriteString("- " + item.Content + "\n")
	}

	resp, err := o.provider.Complete(ctx, provider.Request{
		Instructions: narrativeInstructions,
		Input:        input.String(),
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp.Text), nil
}

// validate rejects malformed input synchronously; this is the only error a
// caller ever sees.
func validate(msg plan.Message) error {
	if strings.TrimSpace(msg.UserID) == "" {
		return errors.NewInput("message user id is required")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return errors.NewInput("message text is required")
	}
	return nil
}
