package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/ArtemShamro/roadmap-generator/config"
	"github.com/ArtemShamro/roadmap-generator/internal/pkg/apiclient"
	"github.com/ArtemShamro/roadmap-generator/internal/service/roadmap"
	"github.com/ArtemShamro/roadmap-generator/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg := config.GetConfig()

	var agentURL, simURL, logFile, saveConfig string
	flagSet := pflag.NewFlagSet("roadmap-tui", pflag.ContinueOnError)
	flagSet.StringVar(&agentURL, "agent-url", cfg.Backends.AgentURL, "Agent backend base URL (relative URLs resolve against server.public_url)")
	flagSet.StringVar(&simURL, "sim-url", cfg.Backends.SimURL, "Search backend base URL")
	flagSet.DurationVar(&cfg.Backends.Timeout, "timeout", cfg.Backends.Timeout, "per-request timeout")
	flagSet.IntVar(&cfg.Backends.SearchK, "k", cfg.Backends.SearchK, "number of articles to request per step")
	flagSet.StringVar(&logFile, "log-file", "", "write klog output to this file (logs are discarded otherwise)")
	flagSet.StringVar(&saveConfig, "save-config", "", "write the effective configuration to this file and exit")

	// klog 的 -v 等参数一并注册
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	flagSet.AddGoFlagSet(klogFlags)

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	defer klog.Flush()

	if saveConfig != "" {
		cfg.Backends.AgentURL = agentURL
		cfg.Backends.SimURL = simURL
		return cfg.Save(saveConfig)
	}

	// 终端被界面占用，日志只能写文件
	klog.LogToStderr(false)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		defer f.Close()
		klog.SetOutput(f)
	} else {
		klog.SetOutput(io.Discard)
	}

	agent, err := newClient(cfg, "agent", agentURL)
	if err != nil {
		return err
	}
	sim, err := newClient(cfg, "sim", simURL)
	if err != nil {
		return err
	}

	model := tui.NewModel(roadmap.NewService(agent, sim, cfg.Backends.SearchK), tui.Options{
		SearchK:      cfg.Backends.SearchK,
		LinkTemplate: cfg.Articles.LinkTemplate,
		Timeout:      cfg.Backends.Timeout,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}

func newClient(cfg *config.Config, name, rawURL string) (*apiclient.Client, error) {
	baseURL, err := cfg.ResolveBackendURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid %s url %q: %w", name, rawURL, err)
	}
	return apiclient.New(name, baseURL, apiclient.Options{
		Timeout:         cfg.Backends.Timeout,
		WithCredentials: cfg.Backends.WithCredentials,
	})
}
