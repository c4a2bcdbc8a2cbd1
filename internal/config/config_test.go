package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleToml = `
abi_roots = ["contracts/out"]

[[endpoints]]
name = "local"
kind = "http"
url = "http://127.0.0.1:8545"

[[tokens]]
address = "0x0000000000000000000000000000000000000aaa"
symbol = "AAA"
decimals = 18
chain_id = 1
`

func TestLoadViaPokeConfigEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(sampleToml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("POKE_CONFIG", path)

	cfg, warn := Load()
	if warn != "" {
		t.Fatalf("unexpected warning: %s", warn)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0].Name != "local" {
		t.Fatalf("endpoints = %+v", cfg.Endpoints)
	}
	if len(cfg.AbiRoots) != 1 || cfg.AbiRoots[0] != "contracts/out" {
		t.Fatalf("abi_roots = %+v", cfg.AbiRoots)
	}
	entries := cfg.TokenListEntries()
	if len(entries) != 1 || entries[0].Symbol != "AAA" || entries[0].ChainID != 1 {
		t.Fatalf("token entries = %+v", entries)
	}
}

func TestLoadMissingPokeConfigIsAWarningNotAnError(t *testing.T) {
	t.Setenv("POKE_CONFIG", filepath.Join(t.TempDir(), "does-not-exist.toml"))
	cfg, warn := Load()
	if warn == "" {
		t.Fatalf("expected a warning for an unreadable POKE_CONFIG path")
	}
	if len(cfg.Endpoints) != 0 {
		t.Fatalf("expected a zero-value Config on failure, got %+v", cfg)
	}
}

func TestLoadMalformedFileWarnsInsteadOfFailing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("not = [valid toml"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("POKE_CONFIG", path)

	cfg, warn := Load()
	if warn == "" {
		t.Fatalf("expected a warning for malformed toml")
	}
	if len(cfg.Endpoints) != 0 {
		t.Fatalf("expected a zero-value Config on parse failure")
	}
}

func TestTokenListEntriesSkipsBadAddresses(t *testing.T) {
	cfg := Config{Tokens: []Token{
		{Address: "not-an-address", Symbol: "BAD", ChainID: 1},
		{Address: "0x0000000000000000000000000000000000000bbb", Symbol: "GOOD", ChainID: 1},
	}}
	entries := cfg.TokenListEntries()
	if len(entries) != 1 || entries[0].Symbol != "GOOD" {
		t.Fatalf("expected only the valid address to survive, got %+v", entries)
	}
}
