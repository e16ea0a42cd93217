// Command sidekick runs an interactive agent session on the terminal.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"sidekick/internal/llmimpl/anthropic"
	"sidekick/internal/llmimpl/openaiofficial"
	"sidekick/pkg/config"
	"sidekick/pkg/eventlog"
	"sidekick/pkg/llm"
	"sidekick/pkg/logx"
	"sidekick/pkg/sidekick"
	"sidekick/pkg/tools"
	"sidekick/pkg/utils"
)

func main() {
	configPath := flag.String("config", "sidekick.yaml", "path to the YAML config file")
	criteria := flag.String("criteria", "", "success criteria applied to every message")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		logx.SetDebug(true)
	}
	logger := logx.NewLogger("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sidekick: %v\n", err)
		os.Exit(1)
	}

	var events *eventlog.Log
	if cfg.EventLogPath != "" {
		events, err = eventlog.Open(cfg.EventLogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sidekick: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = events.Close() }()
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	worker, err := buildClient(cfg, cfg.Worker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sidekick: %v\n", err)
		os.Exit(1)
	}
	evaluator, err := buildClient(cfg, cfg.Evaluator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sidekick: %v\n", err)
		os.Exit(1)
	}

	registry := buildToolRegistry(cfg, logger)

	orch := sidekick.New(sidekick.Options{
		Worker:    worker,
		Evaluator: evaluator,
		Tools:     registry,
		Retry: llm.RetryConfig{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: cfg.Retry.InitialDelay.Std(),
			MaxDelay:     cfg.Retry.MaxDelay.Std(),
		},
		MaxCycles:   cfg.MaxCycles,
		ToolTimeout: cfg.Tools.Timeout.Std(),
		Events:      events,
	})

	if err := runInteractive(orch, *criteria); err != nil {
		fmt.Fprintf(os.Stderr, "sidekick: %v\n", err)
		os.Exit(1)
	}
}

// buildClient constructs the model client for one role.
func buildClient(cfg *config.Config, mc config.ModelConfig) (llm.Client, error) {
	switch mc.Provider {
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClient(cfg.OpenAIKey, mc.Model), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClient(cfg.AnthropicKey, mc.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", mc.Provider)
	}
}

// buildToolRegistry registers every tool the configuration has credentials for.
func buildToolRegistry(cfg *config.Config, logger *logx.Logger) *tools.Registry {
	registry := tools.NewRegistry()
	registry.MustRegister(tools.NewReadFileTool(cfg.Tools.SandboxRoot, 0))
	registry.MustRegister(tools.NewWriteFileTool(cfg.Tools.SandboxRoot))
	registry.MustRegister(tools.NewListFilesTool(cfg.Tools.SandboxRoot))
	registry.MustRegister(tools.NewWikipediaTool(""))

	if cfg.SerperKey != "" {
		registry.MustRegister(tools.NewWebSearchTool(
			tools.NewSerperProvider(cfg.SerperKey, cfg.Tools.SerperEndpoint)))
	} else {
		logger.Info("SERPER_API_KEY not set, web_search disabled")
	}
	if cfg.PushoverKey != "" && cfg.PushoverUser != "" {
		registry.MustRegister(tools.NewPushTool(cfg.PushoverKey, cfg.PushoverUser, cfg.Tools.PushoverEndpoint))
	} else {
		logger.Info("Pushover credentials not set, push_notification disabled")
	}

	logger.Info("registered tools: %s", strings.Join(registry.Names(), ", "))
	return registry
}

func serveMetrics(addr string, logger *logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics on %s", addr)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed: %v", err)
	}
}

// runInteractive reads messages from stdin until EOF or /quit. Each message
// runs one full turn; the turn's history is carried forward.
func runInteractive(orch *sidekick.Orchestrator, criteria string) error {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Println("sidekick ready. Type a task, /new for a fresh session, /criteria <text> to set criteria, /quit to exit.")
	}

	sessionID := uuid.NewString()
	var history []sidekick.HistoryItem
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), sidekick.MaxMessageLen+1024)

	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/new":
			orch.EvictSession(sessionID)
			sessionID = uuid.NewString()
			history = nil
			logx.Infof("started session %s", sessionID)
			fmt.Println("started a new session")
			continue
		case strings.HasPrefix(line, "/criteria "):
			criteria = strings.TrimSpace(strings.TrimPrefix(line, "/criteria "))
			fmt.Println("success criteria updated")
			continue
		}

		logx.Debugf("sending ~%d token message", utils.CountTokensSimple(line))
		updated, err := orch.RunTurn(context.Background(), sessionID, line, criteria, history)
		if err != nil {
			logx.Warnf("turn rejected: %v", err)
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		history = updated
		fmt.Println(history[len(history)-1].Content)
	}
}
