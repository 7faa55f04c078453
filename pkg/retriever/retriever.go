// Package retriever executes a retrieval plan as a bounded set of concurrent
// store queries and merges the results into a deduplicated, deterministically
// ordered item list.
package retriever

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/theapemachine/mnemos/pkg/memory"
	"github.com/theapemachine/mnemos/pkg/plan"
)

// Item is a single match surviving the merge step. Items are ephemeral;
// they exist only between retrieval and synthesis within one request.
type Item struct {
	Content   string
	Score     float64
	Source    plan.Target
	Intent    string
	CreatedAt time.Time
}

// perQueryLimit bounds how many hits one directive may contribute before the
// merge, so a single broad directive cannot crowd out the rest.
const perQueryLimit = 15

/*
Retriever fans a plan's directives out over the vector and graph stores.
A timed-out or failed query contributes zero items; the batch never fails.
*/
type Retriever struct {
	vector memory.VectorStore
	graph  memory.GraphStore
}

func New(vector memory.VectorStore, graph memory.GraphStore) *Retriever {
	return &Retriever{
		vector: vector,
		graph:  graph,
	}
}

// query is one concrete store lookup derived from a directive.
type query struct {
	directive plan.Directive
	source    plan.Target
}

// Retrieve runs every directive concurrently, bounded by the profile's
// fan-out limit, and merges the results. Zero items is a valid result.
func (r *Retriever) Retrieve(ctx context.Context, p *plan.Plan, userID string, profile plan.Profile) ([]Item, error) {
	queries := expand(p.Directives)
	if len(queries) == 0 {
		return []Item{}, nil
	}

	var (
		mu    sync.Mutex
		items []Item
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(profile.MaxFanOut)

	for _, q := range queries {
		group.Go(func() error {
			queryCtx, cancel := context.WithTimeout(groupCtx, profile.QueryTimeout)
			defer cancel()

			hits, err := r.run(queryCtx, q, userID)
			if err != nil {
				// Degrade to fewer items, never fail the batch.
				log.Warn("store query degraded",
					"source", q.source, "intent", q.directive.Intent, "error", err)
				return nil
			}

			mu.Lock()
			for _, hit := range hits {
				items = append(items, Item{
					Content:   hit.Content,
					Score:     hit.Score,
					Source:    q.source,
					Intent:    q.directive.Intent,
					CreatedAt: hit.CreatedAt,
				})
			}
			mu.Unlock()

			return nil
		})
	}

	// Workers never return errors; Wait only orders the merge after the
	// last query settles.
	_ = group.Wait()

	return merge(items, profile.MaxItems), nil
}

// run dispatches one query to its backing store.
func (r *Retriever) run(ctx context.Context, q query, userID string) ([]memory.Hit, error) {
	switch q.source {
	case plan.TargetGraph:
		return r.graph.Search(ctx, q.directive.SearchText, userID, perQueryLimit)
	default:
		return r.vector.Search(ctx, q.directive.SearchText, userID, perQueryLimit)
	}
}

// expand turns directives into concrete store queries; "both" issues one
// against each store.
func expand(directives []plan.Directive) []query {
	var queries []query

	for _, d := range directives {
		switch d.Target {
		case plan.TargetBoth:
			queries = append(queries,
				query{directive: d, source: plan.TargetVector},
				query{directive: d, source: plan.TargetGraph},
			)
		case plan.TargetGraph:
			queries = append(queries, query{directive: d, source: plan.TargetGraph})
		default:
			queries = append(queries, query{directive: d, source: plan.TargetVector})
		}
	}

	return queries
}

// merge collapses near-duplicate content, keeping the highest-relevance
// instance, then orders by score descending with recency breaking ties.
// Ordering is deterministic regardless of query completion order.
func merge(items []Item, maxItems int) []Item {
	deduped := make(map[string]Item, len(items))

	for _, item := range items {
		key := normalize(item.Content)
		if key == "" {
			continue
		}

		existing, ok := deduped[key]
		if !ok || prefer(item, existing) {
			deduped[key] = item
		}
	}

	merged := make([]Item, 0, len(deduped))
	for _, item := range deduped {
		merged = append(merged, item)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].Content < merged[j].Content
	})

	if maxItems > 0 && len(merged) > maxItems {
		merged = merged[:maxItems]
	}

	return merged
}

// prefer decides which of two same-key items survives dedup. Higher score
// wins; ties fall to recency, then source, then content, so the survivor
// does not depend on query completion order.
func prefer(candidate, existing Item) bool {
	if candidate.Score != existing.Score {
		return candidate.Score > existing.Score
	}
	if !candidate.CreatedAt.Equal(existing.CreatedAt) {
		return candidate.CreatedAt.After(existing.CreatedAt)
	}
	if candidate.Source != existing.Source {
		return candidate.Source < existing.Source
	}
	return candidate.Content < existing.Content
}

// normalize reduces content to a dedup key: lowercased, whitespace collapsed,
// trailing punctuation dropped.
func normalize(content string) string {
	lowered := strings.ToLower(strings.Join(strings.Fields(content), " "))
	return strings.TrimRight(lowered, ".!? ")
}
