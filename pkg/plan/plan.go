// Package plan defines the retrieval planning types shared by the planner,
// retriever and orchestrator: the inbound message, the depth tiers, and the
// structured retrieval plan produced per request.
package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Target selects which store(s) a directive runs against.
type Target string

const (
	TargetVector Target = "vector"
	TargetGraph  Target = "graph"
	TargetBoth   Target = "both"
)

// Strategy describes the overall shape of a retrieval plan.
type Strategy string

const (
	StrategyRecent        Strategy = "recent"
	StrategyTargeted      Strategy = "targeted"
	StrategyComprehensive Strategy = "comprehensive"
	StrategyProgressive   Strategy = "progressive"
)

// Directive is a single store query the retriever will execute.
type Directive struct {
	SearchText string `json:"search_text"`
	Target     Target `json:"target"`
	Intent     string `json:"intent"`
}

// Plan is a structured retrieval strategy derived from one message, either
// heuristically or by the reasoning model. A Plan is never mutated after
// creation; cached plans are shared read-only between requests.
type Plan struct {
	Directives []Directive `json:"directives"`
	Strategy   Strategy    `json:"strategy"`
	Entities   []string    `json:"entities,omitempty"`
	Temporal   string      `json:"temporal,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Message is the immutable unit of work handed to the orchestrator. The same
// value is passed to the background triage path; nothing derived from it is
// ever shared between the two.
type Message struct {
	UserID            string
	Text              string
	IsNewConversation bool
	NeedsContext      bool
	Depth             Depth
	Format            Format
}

// fingerprintMaxLen bounds how much of the message participates in the cache
// key, so trailing boilerplate does not defeat plan reuse.
const fingerprintMaxLen = 256

// Fingerprint normalizes message text into a plan-cache key. Case and
// whitespace insensitive, truncated, then hashed so keys stay fixed-width.
func Fingerprint(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if len(normalized) > fingerprintMaxLen {
		normalized = normalized[:fingerprintMaxLen]
	}

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}
