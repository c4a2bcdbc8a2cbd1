package ui

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	tea "github.com/charmbracelet/bubbletea"

	"poke/internal/command"
	"poke/internal/engine"
	"poke/internal/state"
)

// handleKey processes exactly one terminal input event (spec §4.D
// "processes at most one user input event" per tick — bubbletea already
// dispatches one tea.KeyMsg per Update call, so this satisfies that
// bound trivially). Routing depends on the current input mode.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.State.Mode {
	case state.InputCommand, state.InputSearch:
		return m.handleLineInput(msg)
	case state.InputPrompt:
		return m.handlePromptInput(msg)
	default:
		return m.handleNormalKey(msg)
	}
}

// handleNormalKey implements the spec §6 keyboard interface for
// InputNormal.
func (m *Model) handleNormalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.quitting = true
		return m, nil
	case "j", "down":
		m.moveSelection(1)
	case "k", "up":
		m.moveSelection(-1)
	case "h", "left":
		m.focusedPanel = panelBlocks
	case "l", "right":
		m.focusedPanel = panelTxs
	case "tab":
		m.focusedPanel = (m.focusedPanel + 1) % 2
	case "1", "2", "3", "4", "5":
		m.jumpSection(msg.String())
	case "enter":
		m.descend()
	case "esc":
		m.State.PopView()
	case "/":
		m.State.Mode = state.InputSearch
		m.inputBuf = ""
	case ":":
		m.State.Mode = state.InputCommand
		m.inputBuf = ""
	case " ":
		m.State.Paused = !m.State.Paused
	case "r":
		m.refreshSelected()
	case "p":
		m.pokeSelectedBalance()
	case "o":
		m.promptStorageSlot()
	case "t":
		m.openTraceForSelected()
	case "e":
		m.toggleSelectedFrame()
	case "w":
		m.toggleWatchSelected()
	case "n":
		m.promptLabel()
	case "y":
		m.copySelectedIdentifier()
	case "?":
		m.showHelp = !m.showHelp
	}
	return m, nil
}

func (m *Model) moveSelection(delta int) {
	if m.State.CurrentView() == state.ViewTrace {
		m.State.SelectedTraceFrame = clampIndex(m.State.SelectedTraceFrame+delta, len(m.currentTraceFrames()))
		return
	}
	switch m.focusedPanel {
	case panelBlocks:
		m.State.SelectedBlock = clampIndex(m.State.SelectedBlock+delta, len(m.State.Blocks()))
	default:
		m.State.SelectedTx = clampIndex(m.State.SelectedTx+delta, len(m.State.VisibleTxs()))
	}
}

// currentTraceFrames returns the frame arena of the trace currently on
// screen, so moveSelection can clamp j/k against it (spec §3: selected
// indices are always in-range).
func (m *Model) currentTraceFrames() []state.TraceFrame {
	if m.State.CurrentTraceHash == nil {
		return nil
	}
	tree, ok := m.State.Traces[*m.State.CurrentTraceHash]
	if !ok {
		return nil
	}
	return tree.Frames
}

func clampIndex(i, n int) int {
	if n == 0 {
		return 0
	}
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// jumpSection maps digits 1-5 onto the five views named in spec §4.D's
// view_stack (Dashboard, BlockDetail, TxDetail, Trace, AddressDetail).
func (m *Model) jumpSection(digit string) {
	n, _ := strconv.Atoi(digit)
	views := []state.ViewToken{
		state.ViewDashboard, state.ViewBlockDetail, state.ViewTxDetail,
		state.ViewTrace, state.ViewAddressDetail,
	}
	if n < 1 || n > len(views) {
		return
	}
	m.State.PushView(views[n-1])
}

func (m *Model) descend() {
	switch m.State.CurrentView() {
	case state.ViewDashboard:
		if m.focusedPanel == panelBlocks {
			m.State.PushView(state.ViewBlockDetail)
		} else {
			m.State.PushView(state.ViewTxDetail)
		}
	case state.ViewTxDetail:
		m.openTraceForSelected()
	}
}

func (m *Model) selectedTx() (state.Transaction, bool) {
	txs := m.State.VisibleTxs()
	if m.State.SelectedTx < 0 || m.State.SelectedTx >= len(txs) {
		return state.Transaction{}, false
	}
	return txs[m.State.SelectedTx], true
}

func (m *Model) selectedAddress() (common.Address, bool) {
	addrs := m.sortedAddresses()
	if m.State.SelectedAddress < 0 || m.State.SelectedAddress >= len(addrs) {
		return common.Address{}, false
	}
	return addrs[m.State.SelectedAddress], true
}

func (m *Model) sortedAddresses() []common.Address {
	out := make([]common.Address, 0, len(m.State.Addresses))
	for a := range m.State.Addresses {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

func (m *Model) refreshSelected() {
	m.State.SetStatus("refreshed", state.SeverityInfo)
}

func (m *Model) pokeSelectedBalance() {
	addr, ok := m.addressOfInterest()
	if !ok {
		return
	}
	if !m.Ingest.PostCommand(engine.FetchBalances{Addr: addr}) {
		m.State.SetStatus("balance request queue full, try again", state.SeverityWarn)
		return
	}
	m.State.PendingBalanceRequest = &addr
}

// addressOfInterest resolves "the selected address" across whichever
// view is active: the AddressDetail view's own selection, or the
// From/To of the selected transaction otherwise.
func (m *Model) addressOfInterest() (common.Address, bool) {
	if m.State.CurrentView() == state.ViewAddressDetail {
		return m.selectedAddress()
	}
	tx, ok := m.selectedTx()
	if !ok {
		return common.Address{}, false
	}
	if tx.To != nil {
		return *tx.To, true
	}
	return tx.From, true
}

func (m *Model) promptStorageSlot() {
	addr, ok := m.addressOfInterest()
	if !ok {
		return
	}
	m.State.Mode = state.InputPrompt
	m.promptKind = "storage-slot"
	m.promptAddr = addr.Hex()
	m.inputBuf = ""
}

func (m *Model) openTraceForSelected() {
	tx, ok := m.selectedTx()
	if !ok {
		return
	}
	if !m.Ingest.PostCommand(engine.FetchTrace{Hash: tx.Hash}) {
		m.State.SetStatus("trace request queue full, try again", state.SeverityWarn)
		return
	}
	m.State.PendingTraceHash = &tx.Hash
	m.State.SetCurrentTrace(tx.Hash)
	m.State.PushView(state.ViewTrace)
}

func (m *Model) toggleSelectedFrame() {
	tx, ok := m.selectedTx()
	if !ok {
		return
	}
	tree, ok := m.State.Traces[tx.Hash]
	if !ok {
		return
	}
	if tree.Collapsed == nil {
		tree.Collapsed = map[int]bool{}
	}
	frame := m.State.SelectedTraceFrame
	tree.Collapsed[frame] = !tree.Collapsed[frame]
	m.State.Traces[tx.Hash] = tree
}

func (m *Model) toggleWatchSelected() {
	addr, ok := m.addressOfInterest()
	if !ok {
		return
	}
	m.State.ToggleWatch(addr)
}

func (m *Model) promptLabel() {
	addr, ok := m.addressOfInterest()
	if !ok {
		return
	}
	m.State.Mode = state.InputPrompt
	m.promptKind = "label"
	m.promptAddr = addr.Hex()
	m.inputBuf = ""
}

// copySelectedIdentifier implements `y` (spec §6 "copies the selected
// entity's primary identifier to the clipboard"): emitted as an
// OSC52 escape sequence, the terminal-native clipboard write bubbletea
// programs use without a dedicated clipboard dependency.
func (m *Model) copySelectedIdentifier() {
	text, ok := m.primaryIdentifier()
	if !ok {
		return
	}
	writeOSC52Clipboard(text)
	m.State.SetStatus("copied "+text, state.SeverityInfo)
}

func (m *Model) primaryIdentifier() (string, bool) {
	switch m.State.CurrentView() {
	case state.ViewAddressDetail:
		addr, ok := m.selectedAddress()
		return addr.Hex(), ok
	default:
		tx, ok := m.selectedTx()
		if !ok {
			blocks := m.State.Blocks()
			if m.State.SelectedBlock < len(blocks) {
				return blocks[m.State.SelectedBlock].Hash.Hex(), true
			}
			return "", false
		}
		return tx.Hash.Hex(), true
	}
}

// handleLineInput accumulates keystrokes for Command/Search mode until
// Enter commits the line or Esc cancels it.
func (m *Model) handleLineInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.State.Mode = state.InputNormal
		m.inputBuf = ""
	case tea.KeyEnter:
		line := m.inputBuf
		m.inputBuf = ""
		wasSearch := m.State.Mode == state.InputSearch
		m.State.Mode = state.InputNormal
		if wasSearch {
			if err := m.State.SetFilter(line); err != nil {
				m.State.SetStatus(err.Error(), state.SeverityWarn)
			}
			return m, nil
		}
		return m.applyAction(m.Commands.Execute(line))
	case tea.KeyBackspace:
		if len(m.inputBuf) > 0 {
			m.inputBuf = m.inputBuf[:len(m.inputBuf)-1]
		}
	default:
		m.inputBuf += msg.String()
	}
	return m, nil
}

// handlePromptInput collects a single-line value for the `n` (label)
// or `o` (storage slot) prompts.
func (m *Model) handlePromptInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.State.Mode = state.InputNormal
		m.inputBuf = ""
		return m, nil
	case tea.KeyEnter:
		value := m.inputBuf
		kind := m.promptKind
		addrHex := m.promptAddr
		m.inputBuf = ""
		m.State.Mode = state.InputNormal
		m.commitPrompt(kind, addrHex, value)
		return m, nil
	case tea.KeyBackspace:
		if len(m.inputBuf) > 0 {
			m.inputBuf = m.inputBuf[:len(m.inputBuf)-1]
		}
	default:
		m.inputBuf += msg.String()
	}
	return m, nil
}

func (m *Model) commitPrompt(kind, addrHex, value string) {
	addr := common.HexToAddress(addrHex)
	switch kind {
	case "label":
		m.State.SetLabel(addr, value)
		if m.Labels != nil {
			if err := m.Labels.Set(addrHex, value); err != nil {
				m.State.SetStatus("label persist failed: "+err.Error(), state.SeverityWarn)
			}
		}
	case "storage-slot":
		slot, err := parseSlotLiteral(value)
		if err != nil {
			m.State.SetStatus("bad slot: "+err.Error(), state.SeverityWarn)
			return
		}
		if !m.Ingest.PostCommand(engine.FetchStorage{Addr: addr, Slot: slot}) {
			m.State.SetStatus("storage request queue full, try again", state.SeverityWarn)
			return
		}
		m.State.PendingStorageRequest = &struct {
			Addr common.Address
			Slot common.Hash
		}{Addr: addr, Slot: slot}
	}
}

// parseSlotLiteral accepts either a 0x-prefixed hex slot or a plain
// decimal slot number, matching the literal forms command.slotCmd
// already accepts for the `:slot` verb.
func parseSlotLiteral(v string) (common.Hash, error) {
	if strings.HasPrefix(v, "0x") {
		n, err := uint256.FromHex(v)
		if err != nil {
			return common.Hash{}, err
		}
		return common.Hash(n.Bytes32()), nil
	}
	n, err := uint256.FromDecimal(v)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(n.Bytes32()), nil
}

// applyAction executes one command.Action against the Model (spec
// §4.E "Applying Navigate pushes or pops the view stack; applying
// QueueRpc sets one of the pending_* fields").
func (m *Model) applyAction(a command.Action) (tea.Model, tea.Cmd) {
	switch a.Kind {
	case command.ActionNavigate:
		m.State.PushView(a.NavigateTo)
	case command.ActionNotify:
		m.State.SetStatus(a.Message, a.Severity)
	case command.ActionCopy:
		writeOSC52Clipboard(a.CopyText)
		m.State.SetStatus("copied "+a.CopyText, state.SeverityInfo)
	case command.ActionOpenCommand:
		m.State.Mode = state.InputCommand
		m.inputBuf = a.Prefix
	case command.ActionQueueRpc:
		if !m.Ingest.PostCommand(a.Rpc) {
			m.State.SetStatus("request queue full, try again", state.SeverityWarn)
			return m, nil
		}
		if a.NavigateTo != state.ViewDashboard {
			m.State.PushView(a.NavigateTo)
		}
	case command.ActionQuit:
		m.quitting = true
	case command.ActionReloadAbi:
		m.Registry.TriggerScan(4)
		m.State.SetStatus("abi reload triggered", state.SeverityInfo)
	}
	return m, nil
}
