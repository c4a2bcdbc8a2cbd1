package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func blockN(n uint64, parent common.Hash) Block {
	return Block{Number: n, Hash: common.BigToHash(new(big.Int).SetUint64(n)), ParentHash: parent}
}

func TestBlockRingMonotonicAndBounded(t *testing.T) {
	m := NewModel(3)
	var parent common.Hash
	for n := uint64(1); n <= 5; n++ {
		b := blockN(n, parent)
		parent = b.Hash
		m.ApplyHeadAdvanced(b, nil)
	}
	blocks := m.Blocks()
	if len(blocks) != 3 {
		t.Fatalf("ring len = %d, want 3 (capacity)", len(blocks))
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i].Number >= blocks[i-1].Number {
			t.Fatalf("ring not strictly decreasing at %d: %v", i, blocks)
		}
	}
	if blocks[0].Number != 5 {
		t.Fatalf("newest block = %d, want 5", blocks[0].Number)
	}
}

func TestReorgReconciliation(t *testing.T) {
	m := NewModel(10)
	b98 := blockN(98, common.Hash{})
	b99 := blockN(99, b98.Hash)
	b100 := blockN(100, b99.Hash)
	m.ApplyHeadAdvanced(b98, nil)
	m.ApplyHeadAdvanced(b99, nil)
	m.ApplyHeadAdvanced(b100, nil)

	// Incoming block 100' whose parent does not match our block 99's hash:
	// reorg should drop 99 and 100 before re-accepting 100'.
	b100prime := Block{Number: 100, Hash: common.HexToHash("0xbad"), ParentHash: common.HexToHash("0xdead")}
	m.ApplyHeadAdvanced(b100prime, nil)

	blocks := m.Blocks()
	for _, b := range blocks {
		if b.Number == 99 {
			t.Fatalf("expected block 99 to be dropped by reorg reconciliation")
		}
	}
}

func TestFilterRetainsOnlyMatching(t *testing.T) {
	m := NewModel(10)
	aaa := common.HexToAddress("0xAAA0000000000000000000000000000000000A")
	bbb := common.HexToAddress("0xBBB0000000000000000000000000000000000B")
	b := blockN(1, common.Hash{})
	txs := []Transaction{
		{Hash: common.HexToHash("0x01"), To: &aaa, Value: big.NewInt(0)},
		{Hash: common.HexToHash("0x02"), To: &bbb, Value: big.NewInt(0)},
	}
	m.ApplyHeadAdvanced(b, txs)

	if err := m.SetFilter("to:" + aaa.Hex()); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	visible := m.VisibleTxs()
	if len(visible) != 1 || visible[0].Hash != txs[0].Hash {
		t.Fatalf("expected only the AAA tx visible, got %v", visible)
	}

	if err := m.SetFilter("clear"); err != nil {
		t.Fatalf("SetFilter(clear): %v", err)
	}
	if len(m.VisibleTxs()) != 2 {
		t.Fatalf("expected both txs visible after clear")
	}
}

func TestSelectionClampsOnUnderflow(t *testing.T) {
	m := NewModel(10)
	m.SelectedTx = 5
	m.recomputeVisible()
	if m.SelectedTx != 0 {
		t.Fatalf("SelectedTx = %d, want 0 after clamp on empty ring", m.SelectedTx)
	}
}

func TestViewStackNeverEmpty(t *testing.T) {
	m := NewModel(10)
	m.PopView()
	m.PopView()
	if m.ViewDepth() == 0 {
		t.Fatalf("view stack must never be empty")
	}
	if m.CurrentView() != ViewDashboard {
		t.Fatalf("expected dashboard to remain after popping past the root")
	}
	m.PushView(ViewTrace)
	if m.CurrentView() != ViewTrace {
		t.Fatalf("expected trace view on top after push")
	}
	m.PopView()
	if m.CurrentView() != ViewDashboard {
		t.Fatalf("expected dashboard after pop")
	}
}

func TestConfigTokensFilterByCurrentChain(t *testing.T) {
	m := NewModel(10)
	usdcMainnet := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	usdcSepolia := common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
	m.SetConfigTokens([]TokenListEntry{
		{ChainID: 1, Address: usdcMainnet, Symbol: "USDC", Decimals: 6},
		{ChainID: 11155111, Address: usdcSepolia, Symbol: "USDC", Decimals: 6},
	})

	// Before any connection, CurrentChain is 0: nothing matches.
	if len(m.Tokens) != 0 {
		t.Fatalf("expected no tokens visible before a chain is known, got %v", m.Tokens)
	}

	m.ApplyConnected("geth", 1)
	if len(m.Tokens) != 1 || m.Tokens[0].Address != usdcMainnet {
		t.Fatalf("expected only the mainnet entry visible on chain 1, got %v", m.Tokens)
	}

	m.ApplyConnected("anvil", 11155111)
	if len(m.Tokens) != 1 || m.Tokens[0].Address != usdcSepolia {
		t.Fatalf("expected only the sepolia entry visible on chain 11155111, got %v", m.Tokens)
	}
}

func TestParseFilterValuePredicateUnits(t *testing.T) {
	f, err := ParseFilter("value:>1.5ether")
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	big18, _ := new(big.Int).SetString("1600000000000000000", 10)
	tx := Transaction{Value: big18}
	if !f.Matches(tx, "") {
		t.Fatalf("expected 1.6 ether tx to match value:>1.5ether")
	}
	tx2 := Transaction{Value: big.NewInt(1)}
	if f.Matches(tx2, "") {
		t.Fatalf("expected tiny tx to not match value:>1.5ether")
	}
}
