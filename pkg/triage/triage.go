// Package triage is the background write path: it decides whether a message
// contains durable personal information, extracts it, and persists records to
// every configured store. It runs fully decoupled from the synchronous
// response path and shares nothing with it except the immutable message.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/theapemachine/mnemos/pkg/errors"
	"github.com/theapemachine/mnemos/pkg/memory"
	"github.com/theapemachine/mnemos/pkg/metrics"
	"github.com/theapemachine/mnemos/pkg/plan"
	"github.com/theapemachine/mnemos/pkg/provider"
)

const triageInstructions = `You decide whether a message contains durable personal
information worth remembering long-term: facts about the user, their goals,
skills, relationships, preferences, or life events. Generic chatter, questions,
and temporary state are not durable. Respond with JSON only:
{
  "decision": "REMEMBER" | "SKIP",
  "confidence": "low" | "medium" | "high",
  "facts": [
    {"content": "...", "entities": ["..."], "temporal": "optional temporal hint"}
  ]
}
On SKIP, facts must be empty.`

// Decision is the triage outcome for one message.
type Decision string

const (
	DecisionRemember Decision = "REMEMBER"
	DecisionSkip     Decision = "SKIP"
)

// Outcome carries the parsed triage verdict.
type Outcome struct {
	Decision   Decision
	Confidence memory.Confidence
	Facts      []Fact
}

// Fact is one extracted piece of durable information.
type Fact struct {
	Content  string   `json:"content"`
	Entities []string `json:"entities"`
	Temporal string   `json:"temporal"`
}

// Config sizes the triage worker pool and its retry policy.
type Config struct {
	QueueSize     int
	Workers       int
	DecideTimeout time.Duration
	SaveTimeout   time.Duration
	MaxRetries    uint64
	// MinDeepConfidence gates the deeper consolidation pass; it is a
	// tunable policy, not a fixed rubric.
	MinDeepConfidence memory.Confidence
}

// DefaultConfig returns the default triage sizing.
func DefaultConfig() Config {
	return Config{
		QueueSize:         256,
		Workers:           2,
		DecideTimeout:     20 * time.Second,
		SaveTimeout:       15 * time.Second,
		MaxRetries:        2,
		MinDeepConfidence: memory.ConfidenceHigh,
	}
}

/*
Writer is a supervised fire-and-forget work queue. Submit never blocks the
caller; workers decide, extract and persist independently of any response
deadline, and report only through logs.
*/
type Writer struct {
	provider provider.Interface
	vector   memory.VectorStore
	graph    memory.GraphStore
	deep     DeepAnalyzer
	cfg      Config
	metrics  *metrics.TriageMetrics

	queue  chan plan.Message
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// DeepAnalyzer runs the slower consolidation pass with its own isolated
// planning/retrieval invocation. Optional.
type DeepAnalyzer interface {
	Consolidate(ctx context.Context, msg plan.Message) (memory.Record, error)
}

func NewWriter(prvdr provider.Interface, vector memory.VectorStore, graph memory.GraphStore, cfg Config) *Writer {
	// Zero fields fall back one by one so a partially filled config keeps
	// its explicit values. MaxRetries zero means no retries and stands.
	defaults := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.DecideTimeout <= 0 {
		cfg.DecideTimeout = defaults.DecideTimeout
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = defaults.SaveTimeout
	}
	if cfg.MinDeepConfidence == "" {
		cfg.MinDeepConfidence = defaults.MinDeepConfidence
	}

	writer := &Writer{
		provider: prvdr,
		vector:   vector,
		graph:    graph,
		cfg:      cfg,
		metrics:  metrics.NewTriageMetrics(),
		queue:    make(chan plan.Message, cfg.QueueSize),
	}

	for i := 0; i < cfg.Workers; i++ {
		writer.wg.Add(1)
		go writer.work()
	}

	return writer
}

// WithDeepAnalyzer attaches the optional consolidation pass.
func (w *Writer) WithDeepAnalyzer(deep DeepAnalyzer) *Writer {
	w.deep = deep
	return w
}

// Metrics exposes the write-path counters.
func (w *Writer) Metrics() *metrics.TriageMetrics {
	return w.metrics
}

// Submit enqueues a message for triage. It never blocks: a full queue drops
// the message with a dead-letter log entry and returns false.
func (w *Writer) Submit(msg plan.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		log.Warn("triage submit after close", "user", msg.UserID)
		w.metrics.RecordSubmit(false)
		return false
	}

	select {
	case w.queue <- msg:
		w.metrics.RecordSubmit(true)
		return true
	default:
		log.Error("triage queue full, message dropped",
			"user", msg.UserID, "excerpt", excerpt(msg.Text))
		w.metrics.RecordSubmit(false)
		return false
	}
}

// Close stops accepting work and drains the queue until ctx expires, after
// which remaining work is abandoned deliberately.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("triage drain abandoned: %w", ctx.Err())
	}
}

func (w *Writer) work() {
	defer w.wg.Done()

	for msg := range w.queue {
		w.process(msg)
	}
}

// process runs the full triage for one message. Every failure path ends in a
// log entry, never in anything visible to a caller.
func (w *Writer) process(msg plan.Message) {
	started := time.Now()

	outcome, err := w.Decide(context.Background(), msg)
	if err != nil {
		log.Error("triage decision failed",
			"user", msg.UserID, "excerpt", excerpt(msg.Text), "error", err)
		w.metrics.RecordDecisionFailure()
		return
	}

	remembered := outcome.Decision == DecisionRemember && len(outcome.Facts) > 0
	w.metrics.RecordDecision(remembered, time.Since(started))

	if !remembered {
		log.Debug("triage skip", "user", msg.UserID, "confidence", outcome.Confidence)
		return
	}

	records := w.buildRecords(msg, outcome)

	saveStart := time.Now()
	persisted := 0
	for _, record := range records {
		if err := w.saveWithRetry(record); err != nil {
			log.Error("triage dead-letter: record not persisted to any store",
				"user", msg.UserID, "record", record.ID,
				"excerpt", excerpt(record.Content), "error", err)
			w.metrics.RecordDeadLetter()
			continue
		}
		persisted++
	}
	w.metrics.RecordPersisted(persisted, time.Since(saveStart))

	if w.deep != nil && confidenceRank(outcome.Confidence) >= confidenceRank(w.cfg.MinDeepConfidence) {
		w.runDeepAnalysis(msg)
	}
}

// Decide asks the reasoning model for a REMEMBER/SKIP verdict. Exported so
// tests can exercise the decision parsing without a worker pool.
func (w *Writer) Decide(ctx context.Context, msg plan.Message) (Outcome, error) {
	decideCtx, cancel := context.WithTimeout(ctx, w.cfg.DecideTimeout)
	defer cancel()

	resp, err := w.provider.Complete(decideCtx, provider.Request{
		Instructions: triageInstructions,
		Input:        msg.Text,
	})
	if err != nil {
		return Outcome{}, err
	}

	return parseOutcome(resp.Text)
}

func (w *Writer) buildRecords(msg plan.Message, outcome Outcome) []memory.Record {
	records := make([]memory.Record, 0, len(outcome.Facts))

	for _, fact := range outcome.Facts {
		if strings.TrimSpace(fact.Content) == "" {
			continue
		}

		records = append(records, memory.Record{
			ID:         uuid.NewString(),
			UserID:     msg.UserID,
			Content:    fact.Content,
			Origin:     excerpt(msg.Text),
			Confidence: outcome.Confidence,
			Entities:   fact.Entities,
			Temporal:   fact.Temporal,
			CreatedAt:  time.Now().UTC(),
		})
	}

	return records
}

// saveWithRetry writes one record to all stores in parallel. Partial failure
// per store is logged but not fatal; only an all-stores failure retries and
// eventually dead-letters.
func (w *Writer) saveWithRetry(record memory.Record) error {
	operation := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.SaveTimeout)
		defer cancel()

		return w.save(ctx, record)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), w.cfg.MaxRetries)
	return backoff.Retry(operation, policy)
}

func (w *Writer) save(ctx context.Context, record memory.Record) error {
	var (
		wg        sync.WaitGroup
		vectorErr error
		graphErr  error
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		if _, err := w.vector.Upsert(ctx, record); err != nil {
			vectorErr = err
		}
	}()

	go func() {
		defer wg.Done()
		if _, err := w.graph.Upsert(ctx, record, nil); err != nil {
			graphErr = err
		}
	}()

	wg.Wait()

	if vectorErr != nil {
		log.Warn("vector store write failed", "record", record.ID, "error", vectorErr)
	}
	if graphErr != nil {
		log.Warn("graph store write failed", "record", record.ID, "error", graphErr)
	}

	// At-least-one-success is acceptable.
	if vectorErr != nil && graphErr != nil {
		return errors.NewError("all stores failed", vectorErr, graphErr)
	}

	return nil
}

// runDeepAnalysis performs the slower consolidation pass. It gets its own
// context and a freshly constructed plan inside the analyzer; nothing here
// touches the response path.
func (w *Writer) runDeepAnalysis(msg plan.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.SaveTimeout+w.cfg.DecideTimeout)
	defer cancel()

	consolidated, err := w.deep.Consolidate(ctx, msg)
	if err != nil {
		log.Warn("deep analysis failed", "user", msg.UserID, "error", err)
		return
	}

	if strings.TrimSpace(consolidated.Content) == "" {
		return
	}

	if err := w.saveWithRetry(consolidated); err != nil {
		log.Error("triage dead-letter: consolidated record not persisted",
			"user", msg.UserID, "error", err)
		w.metrics.RecordDeadLetter()
		return
	}
	w.metrics.RecordPersisted(1, 0)
}

func parseOutcome(text string) (Outcome, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	var envelope struct {
		Decision   string `json:"decision"`
		Confidence string `json:"confidence"`
		Facts      []Fact `json:"facts"`
	}

	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return Outcome{}, fmt.Errorf("failed to parse triage response: %w", err)
	}

	outcome := Outcome{
		Confidence: memory.Confidence(envelope.Confidence),
		Facts:      envelope.Facts,
	}

	switch Decision(strings.ToUpper(envelope.Decision)) {
	case DecisionRemember:
		outcome.Decision = DecisionRemember
	default:
		outcome.Decision = DecisionSkip
	}

	switch outcome.Confidence {
	case memory.ConfidenceLow, memory.ConfidenceMedium, memory.ConfidenceHigh:
	default:
		outcome.Confidence = memory.ConfidenceLow
	}

	return outcome, nil
}

func confidenceRank(c memory.Confidence) int {
	switch c {
	case memory.ConfidenceHigh:
		return 2
	case memory.ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

func excerpt(text string) string {
	const max = 120
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
