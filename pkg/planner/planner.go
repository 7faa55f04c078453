// Package planner classifies messages and produces retrieval plans, either
// heuristically (fast tier, trivial messages) or by asking the reasoning
// model for a structured strategy.
package planner

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/theapemachine/mnemos/pkg/cache"
	"github.com/theapemachine/mnemos/pkg/plan"
	"github.com/theapemachine/mnemos/pkg/provider"
)

const planInstructions = `You are a retrieval planner for a personal memory system.
Given a user message, decide what to search for in the user's long-term memory.
Respond with JSON only, no prose, in this shape:
{
  "strategy": "recent" | "targeted" | "comprehensive" | "progressive",
  "entities": ["..."],
  "temporal": "free-text temporal hint or empty",
  "directives": [
    {"search_text": "...", "target": "vector" | "graph" | "both", "intent": "..."}
  ]
}
Emit between one and five directives. Prefer "graph" for relationship or
entity questions, "vector" for semantic recall, "both" when unsure.`

// shortTextThreshold is the length below which a message is treated as too
// trivial to justify a model call.
const shortTextThreshold = 12

var greetings = map[string]bool{
	"hi": true, "hey": true, "hello": true, "yo": true, "sup": true,
	"good morning": true, "good evening": true, "thanks": true, "thank you": true,
}

/*
Planner turns one message into a retrieval plan, consulting the plan cache
first and falling back to a heuristic plan whenever the model path fails.
*/
type Planner struct {
	provider provider.Interface
	cache    *cache.PlanCache
}

func New(prvdr provider.Interface, planCache *cache.PlanCache) *Planner {
	return &Planner{
		provider: prvdr,
		cache:    planCache,
	}
}

// Plan produces a retrieval plan for a message. Model timeouts and parse
// failures degrade to the heuristic plan rather than propagating an error.
func (p *Planner) Plan(ctx context.Context, msg plan.Message) (*plan.Plan, error) {
	profile := plan.ProfileFor(msg.Depth)

	if !profile.UseModel || isTrivial(msg.Text) {
		return heuristicPlan(msg.Text), nil
	}

	fingerprint := plan.Fingerprint(msg.Text)

	return p.cache.GetOrCompute(ctx, fingerprint, func(ctx context.Context) (*plan.Plan, bool, error) {
		modelCtx, cancel := context.WithTimeout(ctx, profile.PlanTimeout)
		defer cancel()

		derived, err := p.modelPlan(modelCtx, msg.Text)
		if err != nil {
			log.Warn("model planning failed, using heuristic plan",
				"user", msg.UserID, "error", err)
			return heuristicPlan(msg.Text), false, nil
		}

		return derived, true, nil
	})
}

// IdentityPlan builds the targeted plan used when a new conversation has no
// cached narrative to serve.
func (p *Planner) IdentityPlan(userID string) *plan.Plan {
	return &plan.Plan{
		Strategy: plan.StrategyTargeted,
		Directives: []plan.Directive{
			{SearchText: "who the user is, their role, preferences and goals", Target: plan.TargetVector, Intent: "identity summary"},
			{SearchText: "user", Target: plan.TargetGraph, Intent: "identity relationships"},
		},
		CreatedAt: time.Now().UTC(),
	}
}

// modelPlan asks the reasoning model for a structured plan and parses it.
func (p *Planner) modelPlan(ctx context.Context, text string) (*plan.Plan, error) {
	resp, err := p.provider.Complete(ctx, provider.Request{
		Instructions: planInstructions,
		Input:        text,
	})
	if err != nil {
		return nil, err
	}

	return parsePlan(resp.Text)
}

type planEnvelope struct {
	Strategy   string `json:"strategy"`
	Entities   []string `json:"entities"`
	Temporal   string `json:"temporal"`
	Directives []struct {
		SearchText string `json:"search_text"`
		Target     string `json:"target"`
		Intent     string `json:"intent"`
	} `json:"directives"`
}

// parsePlan decodes the model's JSON reply into a Plan, tolerating fenced
// code blocks and rejecting replies without usable directives.
func parsePlan(text string) (*plan.Plan, error) {
	cleaned := stripFences(text)

	var envelope planEnvelope
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, err
	}

	derived := &plan.Plan{
		Strategy:  plan.Strategy(envelope.Strategy),
		Entities:  envelope.Entities,
		Temporal:  envelope.Temporal,
		CreatedAt: time.Now().UTC(),
	}

	switch derived.Strategy {
	case plan.StrategyRecent, plan.StrategyTargeted, plan.StrategyComprehensive, plan.StrategyProgressive:
	default:
		derived.Strategy = plan.StrategyTargeted
	}

	for _, d := range envelope.Directives {
		if strings.TrimSpace(d.SearchText) == "" {
			continue
		}

		target := plan.Target(d.Target)
		switch target {
		case plan.TargetVector, plan.TargetGraph, plan.TargetBoth:
		default:
			target = plan.TargetVector
		}

		derived.Directives = append(derived.Directives, plan.Directive{
			SearchText: d.SearchText,
			Target:     target,
			Intent:     d.Intent,
		})
	}

	if len(derived.Directives) == 0 {
		return nil, errNoDirectives
	}

	return derived, nil
}

var errNoDirectives = jsonError("plan contained no usable directives")

type jsonError string

func (e jsonError) Error() string { return string(e) }

// heuristicPlan is the shortcut path: one direct semantic search, no model.
func heuristicPlan(text string) *plan.Plan {
	return &plan.Plan{
		Strategy: plan.StrategyRecent,
		Directives: []plan.Directive{
			{SearchText: text, Target: plan.TargetVector, Intent: "direct search"},
		},
		CreatedAt: time.Now().UTC(),
	}
}

// isTrivial reports whether a message is too short or generic to plan for.
func isTrivial(text string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if len(trimmed) < shortTextThreshold {
		return true
	}

	return greetings[strings.TrimRight(trimmed, "!.? ")]
}

// stripFences removes a surrounding markdown code fence, which some models
// add despite being told not to.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
	}

	return strings.TrimSpace(trimmed)
}
