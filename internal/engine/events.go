package engine

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poke/internal/state"
	"poke/internal/transport"
)

// Event is the closed set the ingestion engine emits on its event
// channel (spec §4.B). The State Projection type-switches on these
// while draining the channel each tick.
type Event interface{ isEvent() }

// HeadAdvanced and BlockFilled both carry the block's full transaction
// set (fetched with eth_getBlockByNumber(n, true), spec §4.B) so the
// State Projection can derive its transaction ring without a second
// round-trip per block.
type HeadAdvanced struct {
	Block state.Block
	Txs   []state.Transaction
}
type BlockFilled struct {
	Block state.Block
	Txs   []state.Transaction
}
type TxStatusUpdated struct {
	Hash   common.Hash
	Status state.TxStatus
}
type PeerCount struct{ N uint64 }
type SyncProgress struct{ Current, Target uint64 }
type TraceReady struct {
	Hash common.Hash
	Tree state.TraceTree
}
type BalancesReady struct {
	Addr     common.Address
	Balances []TokenBalance
}
type StorageReady struct {
	Addr common.Address
	Slot common.Hash
	Word common.Hash
}
type RpcError struct {
	Context string
	Err     *transport.Error
}
type Connected struct {
	NodeKind transport.NodeKind
	ChainID  uint64
}
type Disconnected struct{}

// RawLogEntry is one undecoded event log, as fetched by FetchLogs. The
// engine does not know about the ABI registry (spec's layering keeps
// it a separate collaborator), so decoding indexed/non-indexed
// arguments happens one layer up, in internal/ui, against the current
// abiregistry snapshot.
type RawLogEntry struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
}

// LogsReady answers a FetchLogs command (spec §12 "logs" ops verb).
type LogsReady struct {
	Addr common.Address
	Logs []RawLogEntry
}

// MempoolStatus answers a FetchMempoolStatus command. Supported is
// false when neither eth_pendingTransactions nor txpool_status is
// available, per spec §12's fallback-to-"not supported" policy.
type MempoolStatus struct {
	Pending   uint64
	Queued    uint64
	Supported bool
}

// DevRpcResult answers a DevRpcCall command — the shared shape for the
// anvil/evm passthrough verbs (impersonate/mine/snapshot/revert),
// which are all a single named RPC method with no bespoke response
// parsing of their own.
type DevRpcResult struct {
	Method string
	Result string // raw JSON result, rendered as-is for the status line
	Err    *transport.Error
}

func (HeadAdvanced) isEvent()    {}
func (BlockFilled) isEvent()     {}
func (TxStatusUpdated) isEvent() {}
func (PeerCount) isEvent()       {}
func (SyncProgress) isEvent()    {}
func (TraceReady) isEvent()      {}
func (BalancesReady) isEvent()   {}
func (StorageReady) isEvent()    {}
func (RpcError) isEvent()        {}
func (Connected) isEvent()       {}
func (Disconnected) isEvent()    {}
func (LogsReady) isEvent()       {}
func (MempoolStatus) isEvent()   {}
func (DevRpcResult) isEvent()    {}

// TokenBalance is one entry of a BalancesReady event: a known token
// (or the bare native asset when Symbol == "") and its balance.
type TokenBalance struct {
	Symbol   string
	Decimals uint8
	Amount   *big.Int
}

// Command is the closed set the UI/command engine posts into the
// engine's bounded request queue (spec §4.B).
type Command interface{ isCommand() }

type FetchTrace struct{ Hash common.Hash }
type FetchBalances struct {
	Addr   common.Address
	Tokens []common.Address
}
type FetchStorage struct {
	Addr common.Address
	Slot common.Hash
}
type Reconnect struct{ Endpoint transport.Endpoint }
type FetchLogs struct {
	Addr      common.Address
	FromBlock uint64
	ToBlock   uint64
}
type FetchMempoolStatus struct{}
type DevRpcCall struct {
	Method string
	Params []interface{}
}

func (FetchTrace) isCommand()          {}
func (FetchBalances) isCommand()       {}
func (FetchStorage) isCommand()        {}
func (Reconnect) isCommand()           {}
func (FetchLogs) isCommand()           {}
func (FetchMempoolStatus) isCommand()  {}
func (DevRpcCall) isCommand()          {}
