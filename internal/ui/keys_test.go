package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"

	"poke/internal/state"
)

type fakeLabelStore struct {
	labels  map[string]string
	setErr  error
	setCall []string
}

func (f *fakeLabelStore) LoadAll() (map[string]string, error) { return f.labels, nil }
func (f *fakeLabelStore) Set(addr, label string) error {
	f.setCall = append(f.setCall, addr+"="+label)
	return f.setErr
}
func (f *fakeLabelStore) Clear(addr string) error { return nil }
func (f *fakeLabelStore) Close() error             { return nil }

func keyMsg(r rune) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}} }

func TestMoveSelectionClampsWithinBlockPanel(t *testing.T) {
	m := newTestModel(t)
	m.focusedPanel = panelBlocks
	m.State.ApplyHeadAdvanced(state.Block{Number: 1}, nil)
	m.State.ApplyHeadAdvanced(state.Block{Number: 2, ParentHash: common.Hash{}}, nil)

	m.moveSelection(5)
	if m.State.SelectedBlock != 1 {
		t.Fatalf("expected selection to clamp at the oldest of 2 blocks (index 1), got %d", m.State.SelectedBlock)
	}
	m.moveSelection(-10)
	if m.State.SelectedBlock != 0 {
		t.Fatalf("expected selection to clamp at 0 on underflow, got %d", m.State.SelectedBlock)
	}
}

func TestJumpSectionPushesMatchingView(t *testing.T) {
	m := newTestModel(t)
	m.jumpSection("4")
	if m.State.CurrentView() != state.ViewTrace {
		t.Fatalf("expected view 4 to be ViewTrace, got %v", m.State.CurrentView())
	}
}

func TestJumpSectionIgnoresOutOfRangeDigit(t *testing.T) {
	m := newTestModel(t)
	depth := m.State.ViewDepth()
	m.jumpSection("9")
	if m.State.ViewDepth() != depth {
		t.Fatalf("expected an out-of-range digit to be a no-op")
	}
}

func TestSlashEntersSearchModeAndCommitsFilter(t *testing.T) {
	m := newTestModel(t)
	aaa := common.HexToAddress("0xAAA0000000000000000000000000000000000A")
	m.State.ApplyHeadAdvanced(state.Block{Number: 1}, []state.Transaction{{Hash: common.HexToHash("0x01"), To: &aaa}})

	m.handleNormalKey(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	if m.State.Mode != state.InputSearch {
		t.Fatalf("expected InputSearch mode after /")
	}
	for _, r := range "to:" + aaa.Hex() {
		m.handleLineInput(keyMsg(r))
	}
	m.handleLineInput(tea.KeyMsg{Type: tea.KeyEnter})

	if m.State.Mode != state.InputNormal {
		t.Fatalf("expected InputNormal mode after committing the filter")
	}
	if len(m.State.VisibleTxs()) != 1 {
		t.Fatalf("expected the filter to narrow to one tx, got %d", len(m.State.VisibleTxs()))
	}
}

func TestCommandModeEnterAppliesQuitAction(t *testing.T) {
	m := newTestModel(t)
	m.State.Mode = state.InputCommand
	for _, r := range "quit" {
		m.handleLineInput(keyMsg(r))
	}
	m.handleLineInput(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.quitting {
		t.Fatalf("expected :quit to set quitting")
	}
}

func TestPromptLabelCommitsToStateAndStore(t *testing.T) {
	m := newTestModel(t)
	store := &fakeLabelStore{labels: map[string]string{}}
	m.Labels = store
	addr := common.HexToAddress("0xAAA0000000000000000000000000000000000A")
	m.State.ApplyHeadAdvanced(state.Block{Number: 1}, []state.Transaction{{Hash: common.HexToHash("0x01"), To: &addr}})
	m.State.SelectedTx = 0
	m.focusedPanel = panelTxs

	m.promptLabel()
	if m.State.Mode != state.InputPrompt || m.promptKind != "label" {
		t.Fatalf("expected a label prompt, got mode=%v kind=%q", m.State.Mode, m.promptKind)
	}
	for _, r := range "whale" {
		m.handlePromptInput(keyMsg(r))
	}
	m.handlePromptInput(tea.KeyMsg{Type: tea.KeyEnter})

	if got := m.State.Labels[strings.ToLower(addr.Hex())]; got != "whale" {
		t.Fatalf("expected label %q in state, got %q", "whale", got)
	}
	if len(store.setCall) != 1 {
		t.Fatalf("expected the label store to be written through once, got %v", store.setCall)
	}
}

func TestToggleWatchSelectedFlipsAddress(t *testing.T) {
	m := newTestModel(t)
	addr := common.HexToAddress("0xAAA0000000000000000000000000000000000A")
	m.State.ApplyHeadAdvanced(state.Block{Number: 1}, []state.Transaction{{Hash: common.HexToHash("0x01"), To: &addr}})
	m.State.SelectedTx = 0
	m.focusedPanel = panelTxs

	m.toggleWatchSelected()
	if !m.State.Watched[addr] {
		t.Fatalf("expected address watched after toggle")
	}
	m.toggleWatchSelected()
	if m.State.Watched[addr] {
		t.Fatalf("expected address unwatched after second toggle")
	}
}

func TestParseSlotLiteralAcceptsHexAndDecimal(t *testing.T) {
	hex, err := parseSlotLiteral("0x01")
	if err != nil {
		t.Fatalf("parseSlotLiteral(0x01): %v", err)
	}
	dec, err := parseSlotLiteral("1")
	if err != nil {
		t.Fatalf("parseSlotLiteral(1): %v", err)
	}
	if hex != dec {
		t.Fatalf("expected 0x01 and 1 to parse to the same slot, got %s vs %s", hex, dec)
	}
}
