package state

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenBalance mirrors the ingestion engine's per-token balance result
// (kept as its own type here, rather than imported, so that state
// never depends on engine — the UI glue layer converts one into the
// other while draining the event channel).
type TokenBalance struct {
	Symbol   string
	Decimals uint8
	Amount   *big.Int
}

// TokenListEntry is one chain-scoped known token (spec §9 open
// question: "Token list scoping by chain-id... the correct behavior
// is per-chain-id").
type TokenListEntry struct {
	ChainID  uint64
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Model is the single state projection the UI renders from (spec
// §4.D). Every mutating method is meant to be called only from the UI
// thread during tick processing; there are no locks because there is
// only ever one writer and one reader, the same goroutine.
type Model struct {
	ring *blockRing

	Addresses map[common.Address]*Address
	Contracts map[common.Address]*Address

	Labels map[string]string // address (lowercased hex) -> label

	Tokens       []TokenListEntry // filtered to CurrentChain
	configTokens []TokenListEntry // full config list, all chains
	CurrentChain uint64

	Filter     Filter
	visibleTxs []Transaction

	SelectedBlock      int
	SelectedTx         int
	SelectedTraceFrame int
	SelectedAddress    int
	CurrentTraceHash   *common.Hash

	views *viewStack
	Mode  InputMode

	Traces         map[common.Hash]TraceTree
	TokenBalances  map[common.Address][]TokenBalance

	PendingTraceHash      *common.Hash
	PendingBalanceRequest *common.Address
	PendingStorageRequest *struct {
		Addr common.Address
		Slot common.Hash
	}

	StatusLine StatusLine

	NodeKind    string
	ChainID     uint64
	PeerN       uint64
	SyncCurrent uint64
	SyncTarget  uint64
	Syncing     bool
	Connected   bool

	Paused bool

	// Watched is the set of addresses the user has flagged with `w`
	// (spec §6 keyboard interface); it has no effect on ingestion, it is
	// purely a UI-visible marker.
	Watched map[common.Address]bool
}

// NewModel constructs an empty projection with a non-empty view stack
// and a block ring of ringCapacity blocks (DefaultRingCapacity when
// ringCapacity <= 0).
func NewModel(ringCapacity int) *Model {
	return &Model{
		ring:      newBlockRing(ringCapacity),
		Addresses: make(map[common.Address]*Address),
		Contracts: make(map[common.Address]*Address),
		Labels:        make(map[string]string),
		Traces:        make(map[common.Hash]TraceTree),
		TokenBalances: make(map[common.Address][]TokenBalance),
		Watched:       make(map[common.Address]bool),
		views:         newViewStack(),
	}
}

// ToggleWatch flips an address's watched marker.
func (m *Model) ToggleWatch(addr common.Address) {
	m.Watched[addr] = !m.Watched[addr]
	if !m.Watched[addr] {
		delete(m.Watched, addr)
	}
}

// Blocks returns the block ring, newest first.
func (m *Model) Blocks() []Block { return m.ring.blocks }

// Txs returns every transaction currently in the ring, derived from
// blocks (spec §4.D "txs: ... derived from blocks").
func (m *Model) Txs() []Transaction { return m.ring.allTxs() }

// VisibleTxs returns the transactions passing the current filter.
func (m *Model) VisibleTxs() []Transaction { return m.visibleTxs }

func (m *Model) recomputeVisible() {
	m.visibleTxs = m.Filter.Apply(m.ring.allTxs(), m.Labels)
	m.clampSelections()
}

// ApplyHeadAdvanced folds a newly observed head block (and its
// transactions) into the ring. If the selected row was at the head
// (index 0) and the view is not a detail view, the selection follows
// the new head (spec §4.D "Selection invariant").
func (m *Model) ApplyHeadAdvanced(b Block, txs []Transaction) {
	followingHead := m.SelectedTx == 0 && m.views.Top() == ViewDashboard
	m.applyBlock(b, txs)
	if !followingHead {
		return
	}
	m.SelectedTx = 0
	m.SelectedBlock = 0
}

// ApplyBlockFilled folds a gap-filled (non-head) block into the ring;
// selection does not follow it.
func (m *Model) ApplyBlockFilled(b Block, txs []Transaction) {
	m.applyBlock(b, txs)
}

func (m *Model) applyBlock(b Block, txs []Transaction) {
	if m.reorgRequired(b) {
		m.reconcileReorg(b)
	}
	m.ring.upsert(b, txs)
	m.recomputeVisible()
}

// reorgRequired detects a parent-hash mismatch against the block
// currently occupying b.Number-1 (spec §4.B "On a parent-hash mismatch
// ... mark a reorg").
func (m *Model) reorgRequired(b Block) bool {
	if b.Number == 0 {
		return false
	}
	for _, existing := range m.ring.blocks {
		if existing.Number == b.Number-1 {
			return existing.Hash != b.ParentHash
		}
	}
	return false
}

// reconcileReorg drops the block at b.Number-1 and every newer block
// from the ring (spec §4.B, §8 scenario 7); older blocks are kept and
// are not compared against the new chain.
func (m *Model) reconcileReorg(b Block) {
	m.ring.dropFrom(b.Number - 1)
}

// ApplyTxStatusUpdated updates one transaction's status in place.
func (m *Model) ApplyTxStatusUpdated(hash common.Hash, status TxStatus) {
	m.ring.updateTxStatus(hash, status)
	m.recomputeVisible()
}

func (m *Model) ApplyPeerCount(n uint64)            { m.PeerN = n }
func (m *Model) ApplySyncProgress(current, target uint64) {
	m.Syncing = current < target
	m.SyncCurrent = current
	m.SyncTarget = target
}

func (m *Model) ApplyTraceReady(tree TraceTree) {
	m.Traces[tree.TxHash] = tree
	if m.PendingTraceHash != nil && *m.PendingTraceHash == tree.TxHash {
		m.PendingTraceHash = nil
	}
}

func (m *Model) ApplyBalancesReady(addr common.Address, balances []TokenBalance) {
	if m.PendingBalanceRequest != nil && *m.PendingBalanceRequest == addr {
		m.PendingBalanceRequest = nil
	}
	rec := m.addressRecord(addr)
	var tokens []TokenBalance
	for _, b := range balances {
		if b.Symbol == "" {
			rec.Balance = b.Amount
			continue
		}
		tokens = append(tokens, b)
	}
	m.TokenBalances[addr] = tokens
}

func (m *Model) ApplyStorageReady(addr common.Address, slot, word common.Hash) {
	if m.PendingStorageRequest != nil && m.PendingStorageRequest.Addr == addr && m.PendingStorageRequest.Slot == slot {
		m.PendingStorageRequest = nil
	}
	m.SetStatus("storage["+slot.Hex()+"] = "+word.Hex(), SeverityInfo)
}

func (m *Model) ApplyRpcError(context, message string) {
	m.SetStatus(context+": "+message, SeverityWarn)
}

func (m *Model) ApplyConnected(nodeKind string, chainID uint64) {
	m.Connected = true
	m.NodeKind = nodeKind
	m.ChainID = chainID
	m.CurrentChain = chainID
	m.Tokens = tokensForChain(m.configTokens, chainID)
}

// SetConfigTokens installs the full, all-chains token list read from
// config at startup (spec §12 "Token list, scoped by chain-id"). It is
// re-filtered down to CurrentChain every time Connected fires.
func (m *Model) SetConfigTokens(entries []TokenListEntry) {
	m.configTokens = entries
	m.Tokens = tokensForChain(m.configTokens, m.CurrentChain)
}

func tokensForChain(all []TokenListEntry, chainID uint64) []TokenListEntry {
	var out []TokenListEntry
	for _, t := range all {
		if t.ChainID == chainID {
			out = append(out, t)
		}
	}
	return out
}

func (m *Model) ApplyDisconnected() {
	m.Connected = false
	m.SetStatus("disconnected, reconnecting…", SeverityWarn)
}

// addressRecord returns (creating if needed) the Address record for
// addr, applying the user label if one is known.
func (m *Model) addressRecord(addr common.Address) *Address {
	rec, ok := m.Addresses[addr]
	if !ok {
		rec = &Address{Addr: addr}
		m.Addresses[addr] = rec
	}
	if label, ok := m.Labels[strings.ToLower(addr.Hex())]; ok {
		rec.Label = &label
	}
	return rec
}

// SetLabel writes a label both into the in-memory map (read on every
// render, spec §3) and leaves persistence to the caller (the UI's
// label prompt writes through to the label store synchronously).
func (m *Model) SetLabel(addr common.Address, label string) {
	m.Labels[strings.ToLower(addr.Hex())] = label
	m.recomputeVisible()
}

func (m *Model) ClearLabel(addr common.Address) {
	delete(m.Labels, strings.ToLower(addr.Hex()))
	m.recomputeVisible()
}

// SetFilter parses and installs a new filter, recomputing the visible
// transaction set.
func (m *Model) SetFilter(text string) error {
	f, err := ParseFilter(text)
	if err != nil {
		return err
	}
	m.Filter = f
	m.recomputeVisible()
	return nil
}

// clampSelections enforces spec §3 "Selection indices... are always
// in-range or coerced to 0 on underflow."
func (m *Model) clampSelections() {
	m.SelectedBlock = clamp(m.SelectedBlock, len(m.ring.blocks))
	m.SelectedTx = clamp(m.SelectedTx, len(m.visibleTxs))
	m.SelectedAddress = clamp(m.SelectedAddress, len(m.Addresses))
	if m.CurrentTraceHash != nil {
		if tree, ok := m.Traces[*m.CurrentTraceHash]; ok {
			m.SelectedTraceFrame = clamp(m.SelectedTraceFrame, len(tree.Frames))
		}
	}
}

// SetCurrentTrace records which trace the Trace view is displaying, so
// selection clamping has a frame count to clamp against.
func (m *Model) SetCurrentTrace(hash common.Hash) {
	m.CurrentTraceHash = &hash
	m.SelectedTraceFrame = 0
}

func clamp(i, n int) int {
	if n == 0 {
		return 0
	}
	if i < 0 || i >= n {
		return 0
	}
	return i
}

// PushView / PopView / CurrentView expose the view stack.
func (m *Model) PushView(t ViewToken) { m.views.Push(t) }
func (m *Model) PopView()             { m.views.Pop() }
func (m *Model) CurrentView() ViewToken { return m.views.Top() }
func (m *Model) ViewDepth() int       { return m.views.Len() }

// SetStatus installs a status-line message with the current time.
func (m *Model) SetStatus(msg string, sev Severity) {
	m.StatusLine = StatusLine{Message: msg, Severity: sev, At: time.Now()}
}
