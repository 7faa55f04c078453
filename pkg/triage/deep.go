package triage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/theapemachine/mnemos/pkg/memory"
	"github.com/theapemachine/mnemos/pkg/plan"
	"github.com/theapemachine/mnemos/pkg/provider"
	"github.com/theapemachine/mnemos/pkg/retriever"
)

const consolidateInstructions = `You consolidate a user's long-term memory.
Given a new message and previously stored memories, write a single short
paragraph that merges the durable information into one coherent summary.
Respond with the paragraph only. If there is nothing durable to consolidate,
respond with an empty string.`

/*
Consolidator is the deeper, slower analysis behind high-confidence triage
hits. Every invocation constructs its own plan and runs its own retrieval;
no plan or result object is ever shared with a synchronous request.
*/
type Consolidator struct {
	provider  provider.Interface
	retriever *retriever.Retriever
}

func NewConsolidator(prvdr provider.Interface, rtrvr *retriever.Retriever) *Consolidator {
	return &Consolidator{
		provider:  prvdr,
		retriever: rtrvr,
	}
}

// Consolidate retrieves the user's related memories with a freshly built
// comprehensive plan and asks the model to merge them with the new message
// into one consolidated record.
func (c *Consolidator) Consolidate(ctx context.Context, msg plan.Message) (memory.Record, error) {
	fresh := &plan.Plan{
		Strategy: plan.StrategyComprehensive,
		Directives: []plan.Directive{
			{SearchText: msg.Text, Target: plan.TargetBoth, Intent: "consolidation"},
		},
		CreatedAt: time.Now().UTC(),
	}

	items, err := c.retriever.Retrieve(ctx, fresh, msg.UserID, plan.ProfileFor(plan.DepthComprehensive))
	if err != nil {
		return memory.Record{}, err
	}

	var input strings.Builder
	input.WriteString("New message:\n")
	input.WriteString(msg.Text)
	input.WriteString("\n\nStored memories:\n")
	for _, item := range items {
		input.WriteString("- " + item.Content + "\n")
	}

	resp, err := c.provider.Complete(ctx, provider.Request{
		Instructions: consolidateInstructions,
		Input:        input.String(),
	})
	if err != nil {
		return memory.Record{}, err
	}

	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return memory.Record{}, nil
	}

	return memory.Record{
		ID:         uuid.NewString(),
		UserID:     msg.UserID,
		Content:    summary,
		Origin:     "consolidation",
		Confidence: memory.ConfidenceHigh,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
