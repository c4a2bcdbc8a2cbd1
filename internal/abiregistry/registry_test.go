package abiregistry

import (
	"os"
	"path/filepath"
	"testing"
)

const erc20Artifact = `{
	"abi": [
		{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
	]
}`

func writeArtifact(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScanDiscoversOnlyMatchingPaths(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "out/Token.sol/Token.json", erc20Artifact)
	writeArtifact(t, dir, "artifacts/contracts/Token.json", erc20Artifact)
	writeArtifact(t, dir, "src/Token.json", erc20Artifact)            // no out/artifacts segment: excluded
	writeArtifact(t, dir, "node_modules/out/Ignored.json", erc20Artifact) // inside skipped dir
	writeArtifact(t, dir, "out/notjson.txt", erc20Artifact)            // wrong suffix

	reg, err := Scan(dir, 0, 2)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	sel := Selector("transfer(address,uint256)")
	entries := reg.FunctionsFor(sel)
	if len(entries) != 2 {
		t.Fatalf("expected 2 matches (out + artifacts), got %d", len(entries))
	}
	if reg.Generation() != 1 {
		t.Fatalf("generation = %d, want 1", reg.Generation())
	}
}

func TestScanKeepsEverySameSelectorEntry(t *testing.T) {
	dir := t.TempDir()
	other := `{"abi":[{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]}]}`
	writeArtifact(t, dir, "out/A.json", erc20Artifact)
	writeArtifact(t, dir, "out/B.json", other)

	reg, err := Scan(dir, 0, 2)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	sel := Selector("transfer(address,uint256)")
	if len(reg.FunctionsFor(sel)) != 2 {
		t.Fatalf("expected both same-selector entries kept in the multimap")
	}
}

func TestManagerTriggerScanPublishesSingleSlot(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "out/Token.json", erc20Artifact)

	m := NewManager(dir)
	if m.Current().Generation() != 0 {
		t.Fatalf("expected empty starting registry")
	}
	m.TriggerScan(2)
	reg := <-m.Ready()
	m.Install(reg)
	if m.Current().Generation() != 1 {
		t.Fatalf("generation after install = %d, want 1", m.Current().Generation())
	}

	m.TriggerScan(2)
	reg2 := <-m.Ready()
	m.Install(reg2)
	if m.Current().Generation() != 2 {
		t.Fatalf("generation after second install = %d, want 2", m.Current().Generation())
	}
}
