// Package synth renders merged retrieval results into a context payload.
// Synthesis is a pure transformation: no I/O, no filtering, and byte-identical
// output for identical input, which the snapshot tests rely on.
package synth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/theapemachine/mnemos/pkg/plan"
	"github.com/theapemachine/mnemos/pkg/retriever"
)

// ManifestEntry records one item that contributed to a payload, for
// debuggability.
type ManifestEntry struct {
	Content string      `json:"content"`
	Source  plan.Target `json:"source"`
	Intent  string      `json:"intent"`
	Score   float64     `json:"score"`
}

// Payload is the final assembled context handed back to the caller. An empty
// payload is a valid value, not an error.
type Payload struct {
	Text     string          `json:"text"`
	Format   plan.Format     `json:"format"`
	Manifest []ManifestEntry `json:"manifest"`
}

// Empty reports whether the payload carries no context.
func (p Payload) Empty() bool {
	return p.Text == ""
}

// EmptyPayload returns the payload used for requests that need no context.
func EmptyPayload(format plan.Format) Payload {
	return Payload{Format: format, Manifest: []ManifestEntry{}}
}

// Synthesize renders items into a payload in the requested format. Items
// arrive already deduplicated and ordered; synthesis never drops any.
func Synthesize(items []retriever.Item, format plan.Format) Payload {
	if len(items) == 0 {
		return EmptyPayload(format)
	}

	payload := Payload{
		Format:   format,
		Manifest: make([]ManifestEntry, 0, len(items)),
	}

	for _, item := range items {
		payload.Manifest = append(payload.Manifest, ManifestEntry{
			Content: item.Content,
			Source:  item.Source,
			Intent:  item.Intent,
			Score:   item.Score,
		})
	}

	switch format {
	case plan.FormatLayered:
		payload.Text = layered(items)
	default:
		payload.Text = flat(items)
	}

	return payload
}

// flat joins item contents in merge order, lowest cost.
func flat(items []retriever.Item) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, "- "+item.Content)
	}
	return strings.Join(lines, "\n")
}

// layered groups items under section headers by intent, then source, keeping
// merge order inside each section. Section order is sorted so output stays
// deterministic.
func layered(items []retriever.Item) string {
	sections := make(map[string][]retriever.Item)
	for _, item := range items {
		key := sectionKey(item)
		sections[key] = append(sections[key], item)
	}

	keys := make([]string, 0, len(sections))
	for key := range sections {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for i, key := range keys {
		if i > 0 {
			builder.WriteString("\n\n")
		}

		builder.WriteString(fmt.Sprintf("## %s\n", key))
		for _, item := range sections[key] {
			builder.WriteString("- " + item.Content + "\n")
		}
	}

	return strings.TrimRight(builder.String(), "\n")
}

func sectionKey(item retriever.Item) string {
	if item.Intent != "" {
		return item.Intent
	}
	return string(item.Source)
}
