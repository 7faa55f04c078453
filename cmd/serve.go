package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theapemachine/mnemos/pkg/cache"
	"github.com/theapemachine/mnemos/pkg/memory"
	"github.com/theapemachine/mnemos/pkg/orchestrator"
	"github.com/theapemachine/mnemos/pkg/planner"
	"github.com/theapemachine/mnemos/pkg/provider"
	"github.com/theapemachine/mnemos/pkg/retriever"
	"github.com/theapemachine/mnemos/pkg/service"
	"github.com/theapemachine/mnemos/pkg/triage"
)

var (
	addrFlag string
	demoFlag bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the context orchestration service",
		Long:  longServe,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&addrFlag, "addr", "a", "", "Address to serve on (overrides config)")
	serveCmd.Flags().BoolVar(&demoFlag, "demo", false, "Run with in-memory stores and a scripted model")
}

func serve() error {
	vector, graph := buildStores()
	prvdr := buildProvider()

	planCache, err := cache.NewPlanCache(
		viper.GetInt64("cache.plan_max_entries"),
		viper.GetDuration("cache.plan_ttl"),
	)
	if err != nil {
		return err
	}
	defer planCache.Close()

	narratives := cache.NewNarrativeCache(viper.GetDuration("cache.narrative_freshness"))

	plnr := planner.New(prvdr, planCache)
	rtrvr := retriever.New(vector, graph)

	triageCfg := triage.DefaultConfig()
	if size := viper.GetInt("triage.queue_size"); size > 0 {
		triageCfg.QueueSize = size
	}
	if workers := viper.GetInt("triage.workers"); workers > 0 {
		triageCfg.Workers = workers
	}

	writer := triage.NewWriter(prvdr, vector, graph, triageCfg).
		WithDeepAnalyzer(triage.NewConsolidator(prvdr, retriever.New(vector, graph)))

	orch := orchestrator.New(plnr, rtrvr, narratives, writer, prvdr)
	srv := service.NewServer(orch)

	addr := addrFlag
	if addr == "" {
		addr = viper.GetString("server.addr")
	}

	// Shut down on SIGINT/SIGTERM, draining the triage queue deliberately
	// instead of leaking in-flight saves.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		log.Info("shutting down, draining triage queue")

		drainTimeout := viper.GetDuration("triage.drain_timeout")
		if drainTimeout <= 0 {
			drainTimeout = 30 * time.Second
		}

		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()

		if err := writer.Close(ctx); err != nil {
			log.Warn("triage queue not fully drained", "error", err)
		}

		snapshot := writer.Metrics().Snapshot()
		log.Info("triage totals",
			"submitted", snapshot.Submitted,
			"dropped", snapshot.Dropped,
			"persisted", snapshot.RecordsPersisted,
			"dead_letters", snapshot.DeadLetters)

		if err := srv.Shutdown(); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("serving", "addr", addr, "demo", demoFlag)
	return srv.Start(addr)
}

// buildStores returns the configured store adapters, or in-memory ones in
// demo mode.
func buildStores() (memory.VectorStore, memory.GraphStore) {
	if demoFlag {
		return memory.NewInMemoryVectorStore(), memory.NewInMemoryGraphStore()
	}

	embedding := memory.NewOpenAIEmbeddingService("")

	vector := memory.NewQdrantVectorStore(
		viper.GetString("stores.qdrant.endpoint"),
		viper.GetString("stores.qdrant.collection"),
		embedding,
	)

	graph := memory.NewNeo4jGraphStore(
		viper.GetString("stores.neo4j.endpoint"),
		viper.GetString("stores.neo4j.username"),
		viper.GetString("stores.neo4j.password"),
	)

	return vector, graph
}

// buildProvider returns the configured reasoning model provider.
func buildProvider() provider.Interface {
	if demoFlag {
		return provider.NewMockProvider(`{"decision":"SKIP","confidence":"low","facts":[]}`)
	}

	switch viper.GetString("provider.kind") {
	case "anthropic":
		return provider.NewAnthropicProvider(
			provider.WithAnthropicModel(viper.GetString("provider.anthropic_model")),
		)
	default:
		return provider.NewOpenAIProvider(
			provider.WithOpenAIModel(viper.GetString("provider.model")),
		)
	}
}

var longServe = `
Serve the mnemos context orchestration API.

Examples:
  # Serve against configured Qdrant/Neo4j backends
  mnemos serve

  # Serve with in-memory stores and a scripted model, for local poking
  mnemos serve --demo --addr :8080
`
