package synth

import (
	"testing"

	"github.com/theapemachine/mnemos/pkg/plan"
	"github.com/theapemachine/mnemos/pkg/retriever"
)

func sampleItems() []retriever.Item {
	return []retriever.Item{
		{Content: "Works at Acme", Score: 0.9, Source: plan.TargetVector, Intent: "employment"},
		{Content: "Knows Bob from the contract team", Score: 0.8, Source: plan.TargetGraph, Intent: "relationships"},
		{Content: "Likes hiking", Score: 0.5, Source: plan.TargetVector, Intent: "employment"},
	}
}

func TestSynthesizeFlat(t *testing.T) {
	payload := Synthesize(sampleItems(), plan.FormatFlat)

	want := "- Works at Acme\n- Knows Bob from the contract team\n- Likes hiking"
	if payload.Text != want {
		t.Errorf("got:\n%s\nwant:\n%s", payload.Text, want)
	}
	if payload.Empty() {
		t.Error("a payload with items must not be empty")
	}
	if len(payload.Manifest) != 3 {
		t.Fatalf("got %d manifest entries, want 3", len(payload.Manifest))
	}
	if payload.Manifest[0].Source != plan.TargetVector || payload.Manifest[0].Score != 0.9 {
		t.Errorf("unexpected manifest entry: %+v", payload.Manifest[0])
	}
}

func TestSynthesizeLayered(t *testing.T) {
	payload := Synthesize(sampleItems(), plan.FormatLayered)

	want := "## employment\n" +
		"- Works at Acme\n" +
		"- Likes hiking\n\n" +
		"## relationships\n" +
		"- Knows Bob from the contract team"
	if payload.Text != want {
		t.Errorf("got:\n%s\nwant:\n%s", payload.Text, want)
	}
}

func TestSynthesizeLayeredFallsBackToSource(t *testing.T) {
	items := []retriever.Item{
		{Content: "Works at Acme", Source: plan.TargetVector},
		{Content: "Knows Bob", Source: plan.TargetGraph},
	}

	payload := Synthesize(items, plan.FormatLayered)

	want := "## graph\n- Knows Bob\n\n## vector\n- Works at Acme"
	if payload.Text != want {
		t.Errorf("got:\n%s\nwant:\n%s", payload.Text, want)
	}
}

func TestSynthesizeDeterminism(t *testing.T) {
	for _, format := range []plan.Format{plan.FormatFlat, plan.FormatLayered} {
		first := Synthesize(sampleItems(), format)
		second := Synthesize(sampleItems(), format)

		if first.Text != second.Text {
			t.Errorf("%s output differs between identical runs", format)
		}
	}
}

func TestSynthesizeEmpty(t *testing.T) {
	payload := Synthesize(nil, plan.FormatFlat)

	if !payload.Empty() {
		t.Error("no items must synthesize to an empty payload")
	}
	if payload.Manifest == nil || len(payload.Manifest) != 0 {
		t.Errorf("empty payload must carry an empty, non-nil manifest: %#v", payload.Manifest)
	}
	if payload.Format != plan.FormatFlat {
		t.Errorf("got format %q", payload.Format)
	}
}
