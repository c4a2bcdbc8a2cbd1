package ui

import (
	"fmt"

	"poke/internal/abiregistry"
	"poke/internal/engine"
	"poke/internal/state"
)

// drainEngineEvents folds up to eventsPerTick engine events into the
// state projection (spec §4.D "drains up to N events, N=1024"), unless
// paused (Space toggles Paused; pausing freezes application, not
// fetching, per spec §6).
func (m *Model) drainEngineEvents() {
	if m.State.Paused {
		return
	}
	for i := 0; i < eventsPerTick; i++ {
		select {
		case ev := <-m.Ingest.Events():
			m.applyEvent(ev)
		default:
			return
		}
	}
}

// drainRegistry installs a freshly completed ABI scan, if one is
// waiting on the single-slot channel (spec §4.C "Reload").
func (m *Model) drainRegistry() {
	select {
	case reg := <-m.Registry.Ready():
		m.Registry.Install(reg)
		if n := len(reg.Conflicts()); n > 0 {
			m.State.SetStatus(fmt.Sprintf("abi scan: %d selector conflict(s)", n), state.SeverityInfo)
		}
	default:
	}
}

// applyEvent type-switches one engine.Event into the matching
// state.Model.Apply* call, or into a UI-local side effect for the
// three event types the State Projection doesn't model directly
// (LogsReady, MempoolStatus, DevRpcResult).
func (m *Model) applyEvent(ev engine.Event) {
	switch e := ev.(type) {
	case engine.HeadAdvanced:
		m.State.ApplyHeadAdvanced(e.Block, e.Txs)
	case engine.BlockFilled:
		m.State.ApplyBlockFilled(e.Block, e.Txs)
	case engine.TxStatusUpdated:
		m.State.ApplyTxStatusUpdated(e.Hash, e.Status)
	case engine.PeerCount:
		m.State.ApplyPeerCount(e.N)
	case engine.SyncProgress:
		m.State.ApplySyncProgress(e.Current, e.Target)
	case engine.TraceReady:
		m.State.ApplyTraceReady(e.Tree)
	case engine.BalancesReady:
		m.State.ApplyBalancesReady(e.Addr, toStateBalances(e.Balances))
	case engine.StorageReady:
		m.State.ApplyStorageReady(e.Addr, e.Slot, e.Word)
	case engine.RpcError:
		m.State.ApplyRpcError(e.Context, e.Err.Error())
	case engine.Connected:
		m.State.ApplyConnected(e.NodeKind.String(), e.ChainID)
	case engine.Disconnected:
		m.State.ApplyDisconnected()
	case engine.LogsReady:
		m.applyLogsReady(e)
	case engine.MempoolStatus:
		m.applyMempoolStatus(e)
	case engine.DevRpcResult:
		m.applyDevRpcResult(e)
	}
}

func toStateBalances(in []engine.TokenBalance) []state.TokenBalance {
	out := make([]state.TokenBalance, len(in))
	for i, b := range in {
		out[i] = state.TokenBalance{Symbol: b.Symbol, Decimals: b.Decimals, Amount: b.Amount}
	}
	return out
}

// applyLogsReady decodes each raw log against the live registry
// snapshot (spec §12 "logs" ops verb) and keeps the result in the UI
// layer's own scratch slice, since the State Projection has no
// log-ring field of its own.
func (m *Model) applyLogsReady(e engine.LogsReady) {
	reg := m.Registry.Current()
	m.decodedLogs = m.decodedLogs[:0]
	for _, raw := range e.Logs {
		entry := decodedLogEntry{entry: raw}
		if len(raw.Topics) > 0 {
			matches := reg.EventsFor([32]byte(raw.Topics[0]))
			if len(matches) > 0 {
				args, err := abiregistry.DecodeLog(matches[0], raw.Topics, raw.Data)
				if err == nil {
					entry.name = matches[0].Name
					entry.args = args
				}
			}
		}
		m.decodedLogs = append(m.decodedLogs, entry)
	}
	m.State.SetStatus(fmt.Sprintf("logs: %d entries for %s", len(e.Logs), e.Addr.Hex()), state.SeverityInfo)
}

func (m *Model) applyMempoolStatus(e engine.MempoolStatus) {
	if !e.Supported {
		m.State.SetStatus("mempool: not supported by this node", state.SeverityWarn)
		return
	}
	m.State.SetStatus(fmt.Sprintf("mempool: %d pending, %d queued", e.Pending, e.Queued), state.SeverityInfo)
}

func (m *Model) applyDevRpcResult(e engine.DevRpcResult) {
	if e.Err != nil {
		m.State.SetStatus(fmt.Sprintf("%s: %v", e.Method, e.Err), state.SeverityWarn)
		return
	}
	m.State.SetStatus(fmt.Sprintf("%s -> %s", e.Method, e.Result), state.SeverityInfo)
}
