// Command forge drives one end-to-end contract generation workflow from the
// command line. Configuration loading, flag parsing, and banners are thin by
// design — the orchestrator package is where the engineering lives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/contractforge/forge/internal/corelog"
	"github.com/contractforge/forge/internal/obs"
	"github.com/contractforge/forge/internal/workflowcontext"
	"github.com/contractforge/forge/internal/workspace"
	"github.com/contractforge/forge/pkg/agentmemory"
	"github.com/contractforge/forge/pkg/artifactstore"
	"github.com/contractforge/forge/pkg/guardrails"
	"github.com/contractforge/forge/pkg/modelrouter"
	"github.com/contractforge/forge/pkg/modelrouter/providers/anthropic"
	"github.com/contractforge/forge/pkg/orchestrator"
	"github.com/contractforge/forge/pkg/repair"
	"github.com/contractforge/forge/pkg/toolchain"
)

func main() {
	prompt := flag.String("prompt", "", "natural-language description of the contract to generate")
	workspaceRoot := flag.String("workspace", "./.forge", "workspace directory (created if missing)")
	network := flag.String("network", "sepolia", "target network label")
	rpcURL := flag.String("rpc-url", os.Getenv("FORGE_RPC_URL"), "JSON-RPC endpoint for deployment")
	chainID := flag.Int64("chain-id", 11155111, "chain ID for deployment and verification")
	testOnly := flag.Bool("test-only", false, "compile and audit only; never deploy")
	autoVerify := flag.Bool("auto-verify", true, "verify source on the block explorer after a successful deploy")
	allowInsecure := flag.Bool("allow-insecure", false, "deploy despite a high/critical audit finding")
	uploadScope := flag.String("upload-scope", "none", "none|team|community: where to upload the finished workflow context")
	maxRetries := flag.Int("max-retries", guardrails.DefaultMaxRetriesPerStage, "per-stage retry ceiling before escalation")
	webhookURL := flag.String("escalation-webhook", os.Getenv("FORGE_ESCALATION_WEBHOOK"), "optional webhook notified on escalation")
	logLevel := flag.String("log-level", "info", "debug|info|warn|error")
	flag.Parse()

	if *prompt == "" {
		fmt.Fprintln(os.Stderr, "forge: -prompt is required")
		os.Exit(1)
	}

	logger := corelog.New(corelog.Config{Level: *logLevel, Format: "text", Output: os.Stderr})

	shutdownTracing, err := obs.Bootstrap(context.Background(), obs.BootstrapConfig{
		OTLPEndpoint: os.Getenv("FORGE_OTLP_ENDPOINT"),
		ServiceName:  "forge",
	})
	if err != nil {
		logger.Warn("tracing disabled", map[string]interface{}{"error": err.Error()})
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	root, err := workspace.Prepare(*workspaceRoot)
	if err != nil {
		log.Fatalf("forge: %v", err)
	}

	deps, err := buildDependencies(root, logger, *webhookURL)
	if err != nil {
		log.Fatalf("forge: %v", err)
	}

	opts := orchestrator.Options{
		Network:          *network,
		AutoVerification: *autoVerify,
		TestOnly:         *testOnly,
		AllowInsecure:    *allowInsecure,
		UploadScope:      orchestrator.UploadScope(*uploadScope),
		RAGScope:         orchestrator.RAGScopeOfficialOnly,
		MaxRetries:       *maxRetries,
		RPCURL:           *rpcURL,
		ChainID:          *chainID,
		PrivateKey:       os.Getenv("FORGE_DEPLOYER_KEY"),
		WorkspaceRoot:    root.Path,
	}

	orch := orchestrator.New(root.Path, deps)
	snapshot, err := orch.Run(context.Background(), *prompt, opts)
	if err != nil {
		log.Fatalf("forge: workflow could not start: %v", err)
	}

	report(snapshot)
}

func buildDependencies(root *workspace.Root, logger corelog.Logger, webhookURL string) (orchestrator.Dependencies, error) {
	catalog := modelrouter.NewCatalog([]modelrouter.ModelEntry{
		{Name: "claude-sonnet-4", Provider: "anthropic", Tier: modelrouter.TierPro, MaxInputTokens: 200_000, MaxOutputTokens: 8_192, CostPer1KInput: 0.003, CostPer1KOutput: 0.015, Enabled: true, Priority: 1},
	})
	tracker, err := modelrouter.NewTracker(root.Sub(".workflow_contexts", "model_performance.json"))
	if err != nil {
		return orchestrator.Dependencies{}, fmt.Errorf("model tracker: %w", err)
	}
	router, err := modelrouter.NewRouter(modelrouter.RouterConfig{
		Catalog: catalog,
		Tracker: tracker,
		Logger:  logger,
		Factories: map[string]modelrouter.ClientFactory{
			"anthropic": func(model modelrouter.ModelEntry) (modelrouter.Client, error) {
				return anthropic.New(os.Getenv("ANTHROPIC_API_KEY")), nil
			},
		},
	})
	if err != nil {
		return orchestrator.Dependencies{}, fmt.Errorf("model router: %w", err)
	}

	memory, err := agentmemory.New(root.Sub(".workflow_contexts", "agent_memory.json"), agentmemory.DefaultMaxEntries)
	if err != nil {
		return orchestrator.Dependencies{}, fmt.Errorf("agent memory: %w", err)
	}

	store, err := artifactstore.New(artifactstore.Config{
		Pinner:      artifactstore.NewPinataPinner(),
		GatewayBase: "https://gateway.pinata.cloud/ipfs",
		TeamCredentials: artifactstore.Credentials{
			APIKey:    os.Getenv("FORGE_PINATA_TEAM_KEY"),
			APISecret: os.Getenv("FORGE_PINATA_TEAM_SECRET"),
		},
		CommunityCredentials: artifactstore.Credentials{
			APIKey:    os.Getenv("FORGE_PINATA_COMMUNITY_KEY"),
			APISecret: os.Getenv("FORGE_PINATA_COMMUNITY_SECRET"),
		},
		TeamRegistryPath:      root.Sub("data", "ipfs_registries", "team.json"),
		CommunityRegistryPath: root.Sub("data", "ipfs_registries", "community.json"),
	})
	if err != nil {
		return orchestrator.Dependencies{}, fmt.Errorf("artifact store: %w", err)
	}

	escalator := guardrails.NewEscalator(root.EscalationsDir(), webhookURL, logger)

	var mirror *agentmemory.RedisMirror
	if redisURL := os.Getenv("FORGE_REDIS_URL"); redisURL != "" {
		m, err := agentmemory.NewRedisMirror(redisURL, os.Getenv("FORGE_REDIS_NAMESPACE"))
		if err != nil {
			logger.Warn("redis mirror disabled", map[string]interface{}{"error": err.Error()})
		} else {
			mirror = m
		}
	}

	return orchestrator.Dependencies{
		Router:      router,
		Repairer:    repair.NewRepairer(memory),
		Memory:      memory,
		Mirror:      mirror,
		Store:       store,
		Resolver:    toolchain.NewFoundryResolver(root.TempEnvsDir(), logger),
		Compiler:    toolchain.NewFoundryCompiler(logger),
		Deployer:    toolchain.NewCastDeployer(logger),
		Verifier:    toolchain.NewExplorerVerifier(os.Getenv("FORGE_EXPLORER_API_KEY"), logger),
		Auditor:     toolchain.NewSlitherAuditor(logger),
		Retriever:   orchestrator.NewArtifactRetriever(store),
		Escalator:   escalator,
		RateLimiter: guardrails.NewRateLimiter(guardrails.DefaultRateLimitTokens, guardrails.DefaultRateLimitWindow),
		Logger:      logger,
		ToolVersions: map[string]string{
			"forge": "foundry",
		},
	}, nil
}

func report(snapshot workflowcontext.Snapshot) {
	switch snapshot.Status {
	case workflowcontext.StatusError:
		fmt.Fprintf(os.Stderr, "workflow failed at a critical stage. diagnostic bundle: %s\n", snapshot.DiagnosticBundlePath)
		for i, e := range snapshot.ErrorHistory {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s: %s\n", i+1, e.Stage, e.ErrorType, e.ErrorMessage)
		}
		os.Exit(1)
	case workflowcontext.StatusCompletedWithErrors:
		fmt.Printf("workflow completed with non-critical errors. diagnostic bundle: %s\n", snapshot.DiagnosticBundlePath)
		for stage := range snapshot.FailedStages {
			fmt.Printf("  failed: %s\n", stage)
		}
	default:
		fmt.Printf("workflow succeeded. diagnostic bundle: %s\n", snapshot.DiagnosticBundlePath)
	}

	if snapshot.ContractInfo != nil {
		fmt.Printf("contract: %s (%s)\n", snapshot.ContractInfo.Name, snapshot.ContractInfo.Category)
	}
	fmt.Printf("retries: %s\n", formatRetries(snapshot.RetryAttempts))
}

func formatRetries(retries map[workflowcontext.StageName]int) string {
	if len(retries) == 0 {
		return "none"
	}
	out := ""
	for stage, count := range retries {
		if out != "" {
			out += ", "
		}
		out += string(stage) + "=" + strconv.Itoa(count)
	}
	return out
}
