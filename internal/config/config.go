// Package config loads poke's TOML configuration file (spec §6):
// named RPC endpoints, a chain-scoped token list, and extra ABI roots
// (parsed into Config.AbiRoots; the registry scanner is not given
// them and walks only the --abi-root directory).
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Endpoint is one named, dialable RPC target.
type Endpoint struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"` // "http", "ws", or "ipc"
	URL  string `toml:"url"`
}

// Token is one known ERC-20-shaped token, scoped to a chain id (spec
// §9 open question, resolved per-chain-id in §12).
type Token struct {
	Address  string `toml:"address"`
	Symbol   string `toml:"symbol"`
	Decimals uint8  `toml:"decimals"`
	ChainID  uint64 `toml:"chain_id"`
}

// Config is the parsed, zero-value-safe configuration. A missing or
// malformed file yields a zero Config rather than aborting startup
// (spec §6 "A missing or malformed file never prevents startup").
type Config struct {
	Endpoints []Endpoint `toml:"endpoints"`
	Tokens    []Token    `toml:"tokens"`
	AbiRoots  []string   `toml:"abi_roots"`
}

// Load resolves the config path (POKE_CONFIG, then
// $XDG_CONFIG_HOME/poke/config.toml, then ~/.poke.toml) and parses it.
// On any failure to locate or parse a file it returns a zero Config
// and a human-readable warning string instead of an error — the
// caller is expected to surface the warning as a status-line toast,
// never to treat it as fatal.
func Load() (Config, string) {
	path, warn := resolvePath()
	if path == "" {
		return Config{}, warn
	}
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, "config: failed to parse " + path + ": " + err.Error()
	}
	return cfg, ""
}

func resolvePath() (string, string) {
	if p := os.Getenv("POKE_CONFIG"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", "config: POKE_CONFIG=" + p + " is not readable: " + err.Error()
		}
		return p, ""
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		p := filepath.Join(xdg, "poke", "config.toml")
		if _, err := os.Stat(p); err == nil {
			return p, ""
		}
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".poke.toml")
		if _, err := os.Stat(p); err == nil {
			return p, ""
		}
	}
	return "", "" // absence is not a warning; an unconfigured poke is a valid poke
}

// TokenListEntries converts the parsed token list into the address-typed
// form internal/state expects, skipping any entry whose address does
// not parse as a 20-byte hex address.
func (c Config) TokenListEntries() []TokenEntry {
	out := make([]TokenEntry, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			continue
		}
		out = append(out, TokenEntry{
			ChainID:  t.ChainID,
			Address:  common.HexToAddress(t.Address),
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
		})
	}
	return out
}

// TokenEntry mirrors internal/state.TokenListEntry. Config does not
// import internal/state (it sits below it in the dependency graph, and
// cmd/poke is the only place that needs to know both shapes), so
// cmd/poke converts TokenEntry into state.TokenListEntry at wiring time.
type TokenEntry struct {
	ChainID  uint64
	Address  common.Address
	Symbol   string
	Decimals uint8
}
