// Command poke is an interactive terminal dashboard for an Ethereum
// node (spec §1): it dials one RPC endpoint, ingests new blocks and
// their transactions into a bounded ring, and renders a live,
// keyboard-driven view alongside a toolkit of address/encoding
// utilities and anvil dev-node conveniences.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"poke/internal/abiregistry"
	"poke/internal/anvil"
	"poke/internal/command"
	"poke/internal/config"
	"poke/internal/engine"
	"poke/internal/labelstore"
	"poke/internal/state"
	"poke/internal/transport"
	"poke/internal/ui"
)

// Exit codes (spec §6): 0 clean, 2 a bad/ambiguous endpoint flag
// combination, 3 the initial connection didn't come up within 5s.
const (
	exitOK             = 0
	exitBadEndpoint    = 2
	exitConnectTimeout = 3
)

const ringCapacity = 256

func main() {
	app := &cli.App{
		Name:  "poke",
		Usage: "an interactive terminal dashboard for an Ethereum node",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rpc", Usage: "http(s):// JSON-RPC endpoint"},
			&cli.StringFlag{Name: "ws", Usage: "ws(s):// JSON-RPC endpoint"},
			&cli.StringFlag{Name: "ipc", Usage: "unix socket JSON-RPC endpoint"},
			&cli.StringFlag{Name: "config", Usage: "path to a poke config.toml, overriding the default search path"},
			&cli.StringFlag{Name: "loglevel", Value: "warn", Usage: "debug, info, warn, or error"},
			&cli.StringFlag{Name: "logfile", Usage: "path to write logs to (default: $TMPDIR/poke.log, never the terminal)"},
			&cli.StringFlag{Name: "abi-root", Value: ".", Usage: "directory tree to scan for contract ABI JSON"},
			&cli.StringFlag{Name: "labels", Usage: "path to the sqlite label database (default: ~/.poke.labels.db)"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Error())
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ep, err := resolveEndpoint(c)
	if err != nil {
		return cli.Exit(err.Error(), exitBadEndpoint)
	}

	logFile, err := setupLogging(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer logFile.Close()

	cfg, warn := loadConfig(c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	tp, err := transport.Dial(ctx, ep)
	cancel()
	if err != nil {
		return cli.Exit(fmt.Sprintf("poke: failed to connect to %s within 5s: %v", ep.URL, err), exitConnectTimeout)
	}

	ing := engine.New(tp, ringCapacity)

	labelPath := c.String("labels")
	if labelPath == "" {
		labelPath = defaultLabelPath()
	}
	labels, err := labelstore.Open(labelPath)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer labels.Close()

	registry := abiregistry.NewManager(c.String("abi-root"))
	registry.TriggerScan(4)

	st := state.NewModel(ringCapacity)
	st.SetConfigTokens(toStateTokens(cfg.TokenListEntries()))
	if warn != "" {
		st.SetStatus(warn, state.SeverityWarn)
	}

	cmds := command.New(registry)
	cmds.Ingestion = ing
	cmds.Anvil = &anvil.Manager{}

	model := ui.New(st, cmds, ing, registry, labels)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go ing.Run(runCtx)

	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		return cli.Exit(fmt.Sprintf("poke: %v", err), 1)
	}
	return nil
}

// resolveEndpoint enforces that exactly one of --rpc/--ws/--ipc is set
// (spec §6), defaulting to http://localhost:8545 when none are.
func resolveEndpoint(c *cli.Context) (transport.Endpoint, error) {
	set := 0
	var ep transport.Endpoint
	if v := c.String("rpc"); v != "" {
		set++
		ep = transport.Endpoint{Kind: transport.KindHTTP, URL: v}
	}
	if v := c.String("ws"); v != "" {
		set++
		ep = transport.Endpoint{Kind: transport.KindWS, URL: v}
	}
	if v := c.String("ipc"); v != "" {
		set++
		ep = transport.Endpoint{Kind: transport.KindIPC, URL: v}
	}
	switch set {
	case 0:
		return transport.Endpoint{Kind: transport.KindHTTP, URL: "http://localhost:8545"}, nil
	case 1:
		return ep, nil
	default:
		return transport.Endpoint{}, errors.New("poke: --rpc, --ws, and --ipc are mutually exclusive")
	}
}

func loadConfig(c *cli.Context) (config.Config, string) {
	if path := c.String("config"); path != "" {
		os.Setenv("POKE_CONFIG", path)
	}
	return config.Load()
}

func toStateTokens(in []config.TokenEntry) []state.TokenListEntry {
	out := make([]state.TokenListEntry, len(in))
	for i, t := range in {
		out[i] = state.TokenListEntry{ChainID: t.ChainID, Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals}
	}
	return out
}

func defaultLabelPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".poke.labels.db"
	}
	return filepath.Join(home, ".poke.labels.db")
}

// setupLogging installs a file-backed logger (spec §6): the terminal
// belongs entirely to the bubbletea program, so every log line goes to
// --logfile (default $TMPDIR/poke.log) instead of stdout/stderr.
func setupLogging(c *cli.Context) (*os.File, error) {
	path := c.String("logfile")
	if path == "" {
		path = filepath.Join(os.TempDir(), "poke.log")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("poke: open logfile %s: %w", path, err)
	}
	level := parseLevel(c.String("loglevel"))
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(f, level, false)))
	return f, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return log.LevelDebug
	case "info":
		return log.LevelInfo
	case "error":
		return log.LevelError
	default:
		return log.LevelWarn
	}
}
