package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"poke/internal/state"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	panelStyle  = lipgloss.NewStyle().MarginRight(2)
	selStyle    = lipgloss.NewStyle().Reverse(true)
)

// render draws the current view (spec §4.D tick contract: tick drains
// events, applies at most one input event, then draws). Per §1/§11,
// color is reserved for status-line severity; panel/table layout is
// plain text laid out with lipgloss spacing helpers.
func (m *Model) render() string {
	if m.showHelp {
		return m.renderHelp()
	}
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	switch m.State.CurrentView() {
	case state.ViewTrace:
		b.WriteString(m.renderTrace())
	case state.ViewAddressDetail:
		b.WriteString(m.renderAddressDetail())
	case state.ViewBlockDetail:
		b.WriteString(m.renderBlockDetail())
	case state.ViewTxDetail:
		b.WriteString(m.renderTxDetail())
	default:
		b.WriteString(m.renderDashboard())
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderStatusLine())
	b.WriteString(m.renderInputLine())
	return b.String()
}

func (m *Model) renderHeader() string {
	conn := "disconnected"
	if m.State.Connected {
		conn = fmt.Sprintf("%s chain=%d", m.State.NodeKind, m.State.ChainID)
	}
	sync := "synced"
	if m.State.Syncing {
		sync = fmt.Sprintf("syncing %d/%d", m.State.SyncCurrent, m.State.SyncTarget)
	}
	paused := ""
	if m.State.Paused {
		paused = "  [PAUSED]"
	}
	return headerStyle.Render(fmt.Sprintf("poke — %s  peers=%d  %s%s", conn, m.State.PeerN, sync, paused))
}

func (m *Model) renderDashboard() string {
	blocks := m.renderBlockList()
	txs := m.renderTxList()
	return lipgloss.JoinHorizontal(lipgloss.Top, panelStyle.Render(blocks), txs)
}

func (m *Model) renderBlockList() string {
	var b strings.Builder
	b.WriteString("BLOCKS\n")
	for i, blk := range m.State.Blocks() {
		line := fmt.Sprintf("#%d  %d tx  %s", blk.Number, blk.TxCount, blk.Hash.Hex()[:10])
		if i == m.State.SelectedBlock && m.focusedPanel == panelBlocks {
			line = selStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderTxList() string {
	var b strings.Builder
	b.WriteString("TRANSACTIONS")
	if !m.State.Filter.IsEmpty() {
		b.WriteString(fmt.Sprintf(" (filter: %s)", m.State.Filter.Raw()))
	}
	b.WriteString("\n")
	for i, tx := range m.State.VisibleTxs() {
		to := "(create)"
		if tx.To != nil {
			to = m.labelOrHex(*tx.To)
		}
		desc := fmt.Sprintf("%s -> %s", m.labelOrHex(tx.From), to)
		if tx.DecodedMethod != nil {
			desc = fmt.Sprintf("%s  %s(...)", desc, *tx.DecodedMethod)
		}
		line := fmt.Sprintf("%s  %s  %s", tx.Hash.Hex()[:10], statusGlyph(tx.Status), desc)
		if i == m.State.SelectedTx && m.focusedPanel == panelTxs {
			line = selStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) labelOrHex(addr interface{ Hex() string }) string {
	h := strings.ToLower(addr.Hex())
	if label, ok := m.State.Labels[h]; ok {
		return label
	}
	return addr.Hex()[:10]
}

func statusGlyph(s state.TxStatus) string {
	switch s {
	case state.StatusSuccess:
		return "OK"
	case state.StatusReverted:
		return "REVERT"
	default:
		return "pending"
	}
}

func (m *Model) renderBlockDetail() string {
	blocks := m.State.Blocks()
	if m.State.SelectedBlock >= len(blocks) {
		return "(no block selected)"
	}
	blk := blocks[m.State.SelectedBlock]
	return fmt.Sprintf("Block #%d\nhash   %s\nparent %s\ngas    %d / %d\ntxs    %d",
		blk.Number, blk.Hash.Hex(), blk.ParentHash.Hex(), blk.GasUsed, blk.GasLimit, blk.TxCount)
}

func (m *Model) renderTxDetail() string {
	tx, ok := m.selectedTx()
	if !ok {
		return "(no transaction selected)"
	}
	to := "(contract creation)"
	if tx.To != nil {
		to = tx.To.Hex()
	}
	method := "(undecoded)"
	if tx.DecodedMethod != nil {
		method = *tx.DecodedMethod
	}
	return fmt.Sprintf("Tx %s\nfrom   %s\nto     %s\nvalue  %s\nstatus %s\nmethod %s",
		tx.Hash.Hex(), tx.From.Hex(), to, tx.Value, statusGlyph(tx.Status), method)
}

func (m *Model) renderTrace() string {
	if m.State.CurrentTraceHash == nil {
		return "(no trace loaded)"
	}
	tree, ok := m.State.Traces[*m.State.CurrentTraceHash]
	if !ok {
		return "tracing…"
	}
	var b strings.Builder
	m.renderFrame(&b, tree, tree.Root, 0)
	return b.String()
}

func (m *Model) renderFrame(b *strings.Builder, tree state.TraceTree, idx, depth int) {
	if idx < 0 || idx >= len(tree.Frames) {
		return
	}
	f := tree.Frames[idx]
	indent := strings.Repeat("  ", depth)
	line := fmt.Sprintf("%s%s %s -> %s", indent, f.Type, f.From.Hex()[:10], f.To.Hex()[:10])
	if idx == m.State.SelectedTraceFrame {
		line = selStyle.Render(line)
	}
	b.WriteString(line)
	b.WriteString("\n")

	// A frame's collapse state is explicit once toggled (spec §6 `e`);
	// otherwise it falls back to the default-by-depth rule (spec §3).
	collapsed := state.CollapsedByDefault(depth)
	if tree.Collapsed != nil {
		if explicit, toggled := tree.Collapsed[idx]; toggled {
			collapsed = explicit
		}
	}
	if collapsed {
		b.WriteString(indent + "  …\n")
		return
	}
	for _, child := range f.Children {
		m.renderFrame(b, tree, child, depth+1)
	}
}

func (m *Model) renderAddressDetail() string {
	addr, ok := m.selectedAddress()
	if !ok {
		return "(no address watched or selected)"
	}
	rec, ok := m.State.Addresses[addr]
	if !ok {
		return addr.Hex() + "\n(no data yet, press p to fetch a balance)"
	}
	balance := "(unknown, press p)"
	if rec.Balance != nil {
		balance = rec.Balance.String()
	}
	watched := ""
	if m.State.Watched[addr] {
		watched = "  [watched]"
	}
	var tokens strings.Builder
	for _, t := range m.State.TokenBalances[addr] {
		fmt.Fprintf(&tokens, "\n  %s %s", t.Symbol, t.Amount)
	}
	return fmt.Sprintf("%s%s\nbalance %s%s", addr.Hex(), watched, balance, tokens.String())
}

func (m *Model) renderStatusLine() string {
	msg := m.State.StatusLine.Message
	if msg == "" {
		return ""
	}
	switch m.State.StatusLine.Severity {
	case state.SeverityWarn:
		return color.YellowString(msg)
	case state.SeverityError:
		return color.RedString(msg)
	default:
		return color.CyanString(msg)
	}
}

func (m *Model) renderInputLine() string {
	switch m.State.Mode {
	case state.InputSearch:
		return "\n/" + m.inputBuf
	case state.InputCommand:
		return "\n:" + m.inputBuf
	case state.InputPrompt:
		return fmt.Sprintf("\n%s (%s)> %s", m.promptKind, m.promptAddr, m.inputBuf)
	default:
		return ""
	}
}

func (m *Model) renderHelp() string {
	return strings.Join([]string{
		"j/k move   h/l panel   Tab focus   1-5 jump view",
		"Enter descend   Esc back   / filter   : command",
		"Space pause   r refresh   p balance   o storage   t trace",
		"e collapse frame   w watch   n label   y copy   ? help   q quit",
	}, "\n")
}
