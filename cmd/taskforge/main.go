package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahul/taskforge/internal/agent"
	"github.com/rahul/taskforge/internal/gateway"
	"github.com/rahul/taskforge/internal/governance"
	"github.com/rahul/taskforge/internal/observability"
	"github.com/rahul/taskforge/internal/store"
	"github.com/rahul/taskforge/internal/tools"
	"github.com/rahul/taskforge/internal/workspace"
	"github.com/rahul/taskforge/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

func main() {
	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	cfg := config.LoadConfig("config.json")

	tgCfg, ok := cfg.GetTelegramConfig()
	if !ok {
		log.Fatal("Telegram gateway is not enabled or token is missing")
	}

	memory, err := store.NewMemoryStore(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer memory.Close()

	prompts := agent.NewPromptManager("./prompts")
	logger := observability.NewLogger()

	gov := governance.NewDefaultPolicyEngine()
	// Default safety rules: Block dangerous destructive commands
	_ = gov.DenyArguments(`rm\s+-rf`)
	_ = gov.DenyArguments(`mkfs`)
	_ = gov.DenyArguments(`shutdown`)
	_ = gov.DenyArguments(`reboot`)

	snapshot := workspace.NewSnapshot(workspace.Manifest{})
	runner := tools.ShellRunner(cfg.App.ScratchDir)

	registry := tools.NewRegistry()
	registry.Register(tools.NewCreateFileTool(snapshot))
	registry.Register(tools.NewEditFileTool(snapshot))
	registry.Register(tools.NewDeleteFileTool(snapshot))
	registry.Register(tools.NewReadFileTool(snapshot))
	registry.Register(tools.NewListFilesTool(snapshot))
	registry.Register(tools.NewRunCommandTool(runner))
	registry.Register(tools.NewInstallPackageTool(tools.RegistryInstaller(runner)))
	registry.Register(tools.NewGenerateImageTool(snapshot, tools.PlaceholderSynthesizer()))
	registry.Register(tools.NewCompleteStepTool())

	searchTool, err := tools.NewSearchTool()
	if err != nil {
		log.Printf("Warning: Failed to initialize search tool: %v", err)
	} else {
		registry.Register(searchTool)
	}
	registry.Register(tools.NewFetchWebpageTool())

	previewTool := tools.NewPreviewSiteTool(snapshot, cfg.App.ScratchDir)
	registry.Register(previewTool)
	defer previewTool.Close()

	// Initialize LLM (using default enabled provider)
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var llm llms.Model
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}

	if err != nil {
		log.Fatal(err)
	}

	dispatcher := tools.NewDispatcher(registry, gov, logger)
	planner := agent.NewPlanner(llm, prompts, logger)
	verifier := agent.NewVerifier(llm, prompts, logger)
	assembler := agent.NewContextAssembler(memory, cfg.Engine.CompactionThreshold, cfg.Engine.MemoryLimit, cfg.Engine.LearningLimit, logger)

	engine := agent.NewEngine(llm, registry, dispatcher, planner, verifier, assembler, memory, prompts, snapshot, logger, cfg.Engine)

	scheduler := agent.NewScheduler(engine, 16)

	tg, err := gateway.NewTelegramGateway(tgCfg.Token, scheduler, memory)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go scheduler.Run(ctx)

	// Start Live Resource Dashboard (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
			}
		}
	}()

	// Start Gateway in a goroutine so we can wait for context in the main loop
	go func() {
		if err := tg.Start(); err != nil {
			log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
			stop() // stop caller if gateway dies
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	// Reset terminal aesthetics
	observability.CleanupTerminal()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] CORE DE-INITIALIZED. GOODBYE.\033[0m")
}
