package ui

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"poke/internal/abiregistry"
	"poke/internal/command"
	"poke/internal/engine"
	"poke/internal/state"
	"poke/internal/transport"
)

const transferArtifact = `{
	"abi": [
		{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
	]
}`

func newTestModel(t *testing.T) *Model {
	t.Helper()
	reg := abiregistry.NewManager(t.TempDir())
	st := state.NewModel(10)
	ing := engine.New(nil, 10)
	return New(st, command.New(reg), ing, reg, nil)
}

func TestApplyEventFoldsHeadAdvancedIntoState(t *testing.T) {
	m := newTestModel(t)
	b := state.Block{Number: 1, Hash: common.HexToHash("0x01")}
	m.applyEvent(engine.HeadAdvanced{Block: b})
	if len(m.State.Blocks()) != 1 || m.State.Blocks()[0].Number != 1 {
		t.Fatalf("expected block 1 applied, got %v", m.State.Blocks())
	}
}

func TestApplyEventConnectedUpdatesState(t *testing.T) {
	m := newTestModel(t)
	m.applyEvent(engine.Connected{NodeKind: 0, ChainID: 31337})
	if !m.State.Connected || m.State.ChainID != 31337 {
		t.Fatalf("expected connected state with chain 31337, got %+v", m.State)
	}
}

func TestApplyLogsReadyDecodesAgainstRegistry(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "out", "Token.json")
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(transferArtifact), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg := abiregistry.NewManager(dir)
	st := state.NewModel(10)
	m := New(st, command.New(reg), engine.New(nil, 10), reg, nil)

	got, err := abiregistry.Scan(dir, 0, 2)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	reg.Install(got)

	from := common.HexToAddress("0xAAA0000000000000000000000000000000000A")
	to := common.HexToAddress("0xBBB0000000000000000000000000000000000B")
	topic0 := abiregistry.Topic0("Transfer(address,address,uint256)")
	value := common.BigToHash(big.NewInt(42))
	raw := engine.RawLogEntry{
		Address: from,
		Topics: []common.Hash{
			common.Hash(topic0),
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: value.Bytes(),
	}
	m.applyLogsReady(engine.LogsReady{Addr: from, Logs: []engine.RawLogEntry{raw}})

	if len(m.decodedLogs) != 1 {
		t.Fatalf("expected one decoded log entry, got %d", len(m.decodedLogs))
	}
	if m.decodedLogs[0].name != "Transfer" {
		t.Fatalf("expected decoded event name Transfer, got %q", m.decodedLogs[0].name)
	}
}

func TestApplyLogsReadyLeavesUnmatchedLogUndecoded(t *testing.T) {
	m := newTestModel(t)
	raw := engine.RawLogEntry{
		Address: common.HexToAddress("0xAAA0000000000000000000000000000000000A"),
		Topics:  []common.Hash{common.HexToHash("0xdead")},
	}
	m.applyLogsReady(engine.LogsReady{Logs: []engine.RawLogEntry{raw}})
	if len(m.decodedLogs) != 1 || m.decodedLogs[0].name != "" {
		t.Fatalf("expected one undecoded entry, got %+v", m.decodedLogs)
	}
}

func TestApplyMempoolStatusUnsupportedSetsWarnStatus(t *testing.T) {
	m := newTestModel(t)
	m.applyMempoolStatus(engine.MempoolStatus{Supported: false})
	if m.State.StatusLine.Severity != state.SeverityWarn {
		t.Fatalf("expected a warn status, got %+v", m.State.StatusLine)
	}
}

func TestApplyDevRpcResultReportsError(t *testing.T) {
	m := newTestModel(t)
	m.applyDevRpcResult(engine.DevRpcResult{Method: "anvil_mine", Err: &transport.Error{Kind: transport.ErrNetwork}})
	if m.State.StatusLine.Severity != state.SeverityWarn {
		t.Fatalf("expected a warn status on dev rpc error, got %+v", m.State.StatusLine)
	}
}
