// chatRAG TUI - A terminal client for the chatRAG backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatrag-tui/internal/config"
	"github.com/jeranaias/chatrag-tui/internal/download"
	"github.com/jeranaias/chatrag-tui/internal/gateway"
	"github.com/jeranaias/chatrag-tui/internal/model"
	"github.com/jeranaias/chatrag-tui/internal/orchestrator"
	"github.com/jeranaias/chatrag-tui/internal/session"
	"github.com/jeranaias/chatrag-tui/internal/ui"
	"github.com/jeranaias/chatrag-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		backendURL  = flag.String("backend", "", "backend base URL (overrides config)")
		token       = flag.String("token", "", "session credential (overrides config and CHATRAG_TOKEN)")
		configPath  = flag.String("config", "", "path to config file (default ~/.chatrag/config.toml)")
		mode        = flag.String("mode", "", `agent mode at startup: "local" or "enligne"`)
		verbose     = flag.Bool("verbose", false, "log backend requests to stderr")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("chatrag-tui %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	// Flag overrides are session-only; the saved file keeps what it
	// already had for these fields.
	savedBackend := cfg.Backend
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
	}
	if *token != "" {
		cfg.Backend.Credential = *token
	}
	if *mode != "" {
		cfg.Chat.DefaultMode = *mode
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Backend.Credential == "" {
		fmt.Fprintln(os.Stderr, "Error: no session credential; pass -token or set CHATRAG_TOKEN")
		os.Exit(1)
	}

	styles.ForceProfile(cfg.UI.Theme)

	client := gateway.New(cfg.Backend.URL).
		WithTimeout(cfg.Timeout()).
		WithVerbose(*verbose)
	client.SetCredential(cfg.Backend.Credential)

	monitor := download.NewMonitor(client).
		WithPollInterval(cfg.PollInterval()).
		WithNoticeDuration(cfg.NoticeDuration())

	orc := orchestrator.New(session.NewStore(), client, monitor).
		WithInitialMode(model.AgentMode(cfg.Chat.DefaultMode)).
		WithPreferredModel(cfg.Chat.DefaultModel)
	defer orc.Close()

	program := tea.NewProgram(
		ui.New(orc, cfg.UI.Markdown),
		tea.WithAltScreen(),
	)
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Remember the last used mode and model for the next launch. A
	// custom -config path is left alone.
	if *configPath == "" {
		cfg.Backend = savedBackend
		cfg.Chat.DefaultMode = string(orc.Mode())
		if desc, ok := orc.SelectedModel(); ok {
			cfg.Chat.DefaultModel = desc.ID
		}
		if err := config.Save(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: config not saved: %v\n", err)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
