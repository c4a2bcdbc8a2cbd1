// Package engine implements the ingestion engine (spec §4.B): it owns
// the Transport, polls the chain head, fills block gaps, tracks
// peer/sync state, resolves transaction receipts lazily, fetches call
// traces, and publishes an ordered event stream without ever blocking
// the UI thread that drains it.
package engine

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"poke/internal/rpctypes"
	"poke/internal/state"
	"poke/internal/transport"
)

const (
	// EventChannelCapacity is the bounded engine->UI channel capacity
	// (spec §5: "capacity >= 4096").
	EventChannelCapacity = 4096
	// CommandChannelCapacity is the bounded UI->engine channel capacity
	// (spec §5: "capacity >= 64").
	CommandChannelCapacity = 64

	headPollInterval  = 500 * time.Millisecond
	syncPeersInterval = 2 * time.Second
	gapFillBatchCap   = 16
	backstopPushWait  = 50 * time.Millisecond

	retryBackoff1 = 200 * time.Millisecond
	retryBackoff2 = 800 * time.Millisecond

	headFailuresBeforeDisconnect = 3
)

// Engine is the ingestion engine. One Engine owns one Transport for
// its lifetime; Reconnect commands swap the endpoint but keep the same
// event/command channels so the UI side never has to re-subscribe.
type Engine struct {
	log log.Logger

	mu        sync.Mutex
	transport *transport.Transport

	events   chan Event
	commands chan Command

	// unsupported caches the (node_kind, method) pairs known to be
	// absent, to avoid re-probing (spec §7).
	unsupported *lru.Cache

	// reorg/gap-fill bookkeeping: recent block hash-by-number, used to
	// detect parent-hash mismatches (spec §4.B "reorg").
	recentHashes map[uint64]common.Hash
	lastHead     uint64
	hasHead      bool

	headFailures int32

	paused int32 // set by the engine itself under sustained backpressure

	ringCapacity int

	// status mirrors the last Connected/PeerCount/SyncProgress values so
	// the `health`/`peers`/`rpc-stats` ops verbs (spec §12) can read a
	// snapshot synchronously without round-tripping through the event
	// channel.
	statusMu sync.Mutex
	status   Status

	retries  uint64
	backoffs uint64
}

// Status is a point-in-time snapshot of engine-observed connection
// state, returned by Engine.StatusSnapshot.
type Status struct {
	Connected bool
	NodeKind  transport.NodeKind
	ChainID   uint64
	PeerN     uint64
	Syncing   bool
}

// New constructs an Engine bound to the given transport. The caller is
// responsible for an initial Health()/node-kind probe before handing
// the transport to the engine, or for letting Run's reconnection path
// do it.
func New(t *transport.Transport, ringCapacity int) *Engine {
	cache, _ := lru.New(256)
	return &Engine{
		log:          log.New("component", "engine"),
		transport:    t,
		events:       make(chan Event, EventChannelCapacity),
		commands:     make(chan Command, CommandChannelCapacity),
		unsupported:  cache,
		recentHashes: make(map[uint64]common.Hash),
		ringCapacity: ringCapacity,
	}
}

// Events returns the channel the State Projection drains each tick.
func (e *Engine) Events() <-chan Event { return e.events }

// PostCommand enqueues a command from the UI/command engine side. It
// never blocks: if the bounded queue is full the command is rejected
// and the caller should surface a Notify toast (spec §5).
func (e *Engine) PostCommand(cmd Command) bool {
	select {
	case e.commands <- cmd:
		return true
	default:
		return false
	}
}

// emit pushes an event with the backpressure policy from spec §5:
// HeadAdvanced and TraceReady are never dropped (the engine will wait
// up to 50ms then pause the head loop one tick); everything else is
// dropped under pressure rather than blocking.
func (e *Engine) emit(ev Event) (paused bool) {
	select {
	case e.events <- ev:
		return false
	default:
	}

	switch ev.(type) {
	case HeadAdvanced, TraceReady:
		timer := time.NewTimer(backstopPushWait)
		defer timer.Stop()
		select {
		case e.events <- ev:
			return false
		case <-timer.C:
			e.log.Warn("event channel saturated, pausing head loop one tick")
			return true
		}
	default:
		e.log.Debug("dropping superseded event under backpressure", "type", eventTypeName(ev))
		return false
	}
}

func eventTypeName(ev Event) string {
	switch ev.(type) {
	case PeerCount:
		return "PeerCount"
	case SyncProgress:
		return "SyncProgress"
	case TxStatusUpdated:
		return "TxStatusUpdated"
	case BalancesReady:
		return "BalancesReady"
	case StorageReady:
		return "StorageReady"
	case RpcError:
		return "RpcError"
	default:
		return "unknown"
	}
}

// Run is the ingestion thread's body. It blocks until ctx is canceled,
// running the head loop, the sync/peers loop, and draining posted
// commands, all on this single goroutine's cooperative scheduling
// (spec §5: "may multiplex several concurrent RPC calls using a
// cooperative task runtime on this single thread").
func (e *Engine) Run(ctx context.Context) {
	e.connect(ctx)

	headTicker := time.NewTicker(headPollInterval)
	defer headTicker.Stop()
	syncTicker := time.NewTicker(syncPeersInterval)
	defer syncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.teardown()
			return
		case <-headTicker.C:
			if atomic.LoadInt32(&e.paused) > 0 {
				atomic.AddInt32(&e.paused, -1)
				continue
			}
			e.headTick(ctx)
		case <-syncTicker.C:
			e.syncPeersTick(ctx)
		case cmd := <-e.commands:
			e.dispatchCommand(ctx, cmd)
		}
	}
}

func (e *Engine) teardown() {
	done := make(chan struct{})
	go func() {
		e.transport.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		e.log.Warn("transport teardown exceeded 500ms deadline")
	}
}

func (e *Engine) connect(ctx context.Context) {
	_, kind, err := e.transport.Health(ctx)
	if err != nil {
		e.emit(RpcError{Context: "connect", Err: err})
		return
	}
	var chainIDHex string
	_ = e.transport.Call(ctx, "eth_chainId", nil, &chainIDHex)
	chainID, _ := parseHexUint(chainIDHex)
	e.statusMu.Lock()
	e.status.Connected = true
	e.status.NodeKind = kind
	e.status.ChainID = chainID
	e.statusMu.Unlock()
	e.emit(Connected{NodeKind: kind, ChainID: chainID})
}

// StatusSnapshot returns the last observed connection/peer/sync state,
// for the `health`/`peers` ops verbs (spec §12) to read synchronously.
func (e *Engine) StatusSnapshot() Status {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.status
}

// RpcStats is a rolling view of recent transport latency plus the
// retry/backoff counters accumulated by callWithRetry (spec §12
// "rpc-stats ops verb").
type RpcStats struct {
	Latency  transport.LatencyStats
	Retries  uint64
	Backoffs uint64
}

func (e *Engine) Stats() RpcStats {
	return RpcStats{
		Latency:  e.transport.LatencyStats(),
		Retries:  atomic.LoadUint64(&e.retries),
		Backoffs: atomic.LoadUint64(&e.backoffs),
	}
}

// headTick issues eth_blockNumber and, if the head advanced, fills the
// gap up to gapFillBatchCap blocks (spec §4.B "Head loop").
func (e *Engine) headTick(ctx context.Context) {
	var headHex string
	err := e.callWithRetry(ctx, "eth_blockNumber", nil, &headHex)
	if err != nil {
		e.onHeadFailure(ctx, err)
		return
	}
	atomic.StoreInt32(&e.headFailures, 0)

	head, err2 := parseHexUint(headHex)
	if err2 != nil {
		e.emit(RpcError{Context: "head", Err: &transport.Error{Kind: transport.ErrDecode, Err: err2}})
		return
	}

	if !e.hasHead {
		// First observation: fetch just the head block to seed state,
		// rather than gap-filling from genesis.
		e.fetchAndEmitBlock(ctx, head, true)
		e.hasHead = true
		e.lastHead = head
		return
	}

	if head <= e.lastHead {
		return
	}

	filled := 0
	for n := e.lastHead + 1; n <= head && filled < gapFillBatchCap; n++ {
		prev := e.lastHead
		if !e.fetchAndEmitBlock(ctx, n, n == head) {
			break
		}
		if e.lastHead < prev {
			// handleReorg rolled lastHead back; the next tick fetches from there.
			break
		}
		e.lastHead = n
		filled++
	}
}

// fetchAndEmitBlock fetches block n with full bodies, detects reorgs
// against the previously recorded parent, and emits HeadAdvanced for
// the new chain tip or BlockFilled for a block filled in behind it
// (spec §4.B event catalog). It returns false if the fetch failed
// (caller stops the gap-fill batch; the block is retried next tick).
func (e *Engine) fetchAndEmitBlock(ctx context.Context, n uint64, isHead bool) bool {
	var raw rpctypes.RawBlock
	err := e.callWithRetry(ctx, "eth_getBlockByNumber", []interface{}{hexUint(n), true}, &raw)
	if err != nil {
		e.emit(RpcError{Context: "gapfill", Err: err})
		return false
	}

	blk, convErr := convertBlock(raw)
	if convErr != nil {
		e.emit(RpcError{Context: "gapfill-decode", Err: &transport.Error{Kind: transport.ErrDecode, Err: convErr}})
		return false
	}

	if prevHash, ok := e.recentHashes[n-1]; ok && blk.ParentHash != prevHash {
		e.handleReorg(ctx, n, prevHash)
	}

	e.recentHashes[n] = blk.Hash
	e.pruneRecentHashes(n)

	txs := convertBlockTxs(raw)
	var paused bool
	if isHead {
		paused = e.emit(HeadAdvanced{Block: blk, Txs: txs})
	} else {
		paused = e.emit(BlockFilled{Block: blk, Txs: txs})
	}
	if paused {
		atomic.AddInt32(&e.paused, 1)
	}
	return true
}

// handleReorg deletes every recorded hash from n-1 downward until it
// reaches a height with no recorded hash, and rolls lastHead back to
// that height so the deleted range is fetched again. It does not look
// for the height at which the new chain reattaches to the recorded one.
func (e *Engine) handleReorg(ctx context.Context, n uint64, mismatchedParent common.Hash) {
	e.log.Warn("reorg detected", "block", n)
	drop := n - 1
	for drop > 0 {
		delete(e.recentHashes, drop)
		drop--
		if _, ok := e.recentHashes[drop]; !ok {
			break
		}
	}
	if drop < e.lastHead {
		e.lastHead = drop
	}
}

func (e *Engine) pruneRecentHashes(head uint64) {
	if e.ringCapacity <= 0 {
		return
	}
	floor := int64(head) - int64(e.ringCapacity)
	if floor <= 0 {
		return
	}
	for n := range e.recentHashes {
		if int64(n) < floor {
			delete(e.recentHashes, n)
		}
	}
}

func (e *Engine) onHeadFailure(ctx context.Context, err *transport.Error) {
	e.emit(RpcError{Context: "head", Err: err})
	if atomic.AddInt32(&e.headFailures, 1) >= headFailuresBeforeDisconnect {
		atomic.StoreInt32(&e.headFailures, 0)
		e.statusMu.Lock()
		e.status.Connected = false
		e.statusMu.Unlock()
		e.emit(Disconnected{})
		if reconErr := e.transport.Reopen(ctx); reconErr != nil {
			e.emit(RpcError{Context: "reconnect", Err: &transport.Error{Kind: transport.ErrNetwork, Err: reconErr}})
			return
		}
		e.connect(ctx)
	}
}

// syncPeersTick issues eth_syncing and net_peerCount concurrently,
// using errgroup as the cooperative task runtime named in spec §5.
func (e *Engine) syncPeersTick(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var raw interface{}
		if err := e.callWithRetry(gctx, "eth_syncing", nil, &raw); err != nil {
			e.emit(RpcError{Context: "syncing", Err: err})
			return nil
		}
		switch v := raw.(type) {
		case bool:
			// synced; nothing to report.
		case map[string]interface{}:
			cur, _ := hexFieldToUint(v["currentBlock"])
			target, _ := hexFieldToUint(v["highestBlock"])
			e.statusMu.Lock()
			e.status.Syncing = cur < target
			e.statusMu.Unlock()
			e.emit(SyncProgress{Current: cur, Target: target})
		}
		return nil
	})

	g.Go(func() error {
		var peersHex string
		if err := e.callWithRetry(gctx, "net_peerCount", nil, &peersHex); err != nil {
			e.emit(RpcError{Context: "peers", Err: err})
			return nil
		}
		n, _ := parseHexUint(peersHex)
		e.statusMu.Lock()
		e.status.PeerN = n
		e.statusMu.Unlock()
		e.emit(PeerCount{N: n})
		return nil
	})

	_ = g.Wait()
}

// dispatchCommand handles one posted command (spec §4.B command
// catalog).
func (e *Engine) dispatchCommand(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case FetchTrace:
		e.fetchTrace(ctx, c.Hash)
	case FetchBalances:
		e.fetchBalances(ctx, c)
	case FetchStorage:
		e.fetchStorage(ctx, c)
	case Reconnect:
		e.reconnectTo(ctx, c.Endpoint)
	case FetchLogs:
		e.fetchLogs(ctx, c)
	case FetchMempoolStatus:
		e.fetchMempoolStatus(ctx)
	case DevRpcCall:
		e.devRpcCall(ctx, c)
	}
}

// fetchLogs issues eth_getLogs over [FromBlock, ToBlock] and hands the
// raw, undecoded entries to the UI layer (spec §12 "logs" ops verb).
func (e *Engine) fetchLogs(ctx context.Context, c FetchLogs) {
	var raws []rpctypes.RawLog
	params := []interface{}{map[string]interface{}{
		"address":   c.Addr.Hex(),
		"fromBlock": hexUint(c.FromBlock),
		"toBlock":   hexUint(c.ToBlock),
	}}
	if err := e.callWithRetry(ctx, "eth_getLogs", params, &raws); err != nil {
		e.emit(RpcError{Context: "logs", Err: err})
		return
	}
	entries := make([]RawLogEntry, 0, len(raws))
	for _, r := range raws {
		topics := make([]common.Hash, 0, len(r.Topics))
		for _, t := range r.Topics {
			topics = append(topics, common.HexToHash(t))
		}
		n, _ := parseHexUint(r.BlockNumber)
		entries = append(entries, RawLogEntry{
			Address:     common.HexToAddress(r.Address),
			Topics:      topics,
			Data:        common.FromHex(r.Data),
			BlockNumber: n,
			TxHash:      common.HexToHash(r.TxHash),
		})
	}
	e.emit(LogsReady{Addr: c.Addr, Logs: entries})
}

// fetchMempoolStatus tries eth_pendingTransactions, then falls back to
// txpool_status, then reports unsupported (spec §12 mempool fallback).
func (e *Engine) fetchMempoolStatus(ctx context.Context) {
	if !e.isCachedUnsupported("eth_pendingTransactions") {
		var pending []json.RawMessage
		err := e.transport.Call(ctx, "eth_pendingTransactions", nil, &pending)
		if err == nil {
			e.emit(MempoolStatus{Pending: uint64(len(pending)), Supported: true})
			return
		}
		if err.Kind == transport.ErrMethodNotFound {
			e.cacheUnsupported("eth_pendingTransactions")
		}
	}

	if !e.isCachedUnsupported("txpool_status") {
		var status rpctypes.RawTxPoolStatus
		err := e.transport.Call(ctx, "txpool_status", nil, &status)
		if err == nil {
			pending, _ := parseHexUint(status.Pending)
			queued, _ := parseHexUint(status.Queued)
			e.emit(MempoolStatus{Pending: pending, Queued: queued, Supported: true})
			return
		}
		if err.Kind == transport.ErrMethodNotFound {
			e.cacheUnsupported("txpool_status")
		}
	}

	e.emit(MempoolStatus{Supported: false})
}

// devRpcCall issues one named RPC method with the response rendered as
// raw JSON, the shared shape for the anvil/evm passthrough ops verbs
// (impersonate/mine/snapshot/revert, spec §4.E Ops).
func (e *Engine) devRpcCall(ctx context.Context, c DevRpcCall) {
	var raw json.RawMessage
	err := e.callWithRetry(ctx, c.Method, c.Params, &raw)
	e.emit(DevRpcResult{Method: c.Method, Result: string(raw), Err: err})
}

func (e *Engine) reconnectTo(ctx context.Context, ep transport.Endpoint) {
	newTransport, err := transport.Dial(ctx, ep)
	if err != nil {
		e.emit(RpcError{Context: "reconnect", Err: &transport.Error{Kind: transport.ErrNetwork, Err: err}})
		return
	}
	e.mu.Lock()
	old := e.transport
	e.transport = newTransport
	e.mu.Unlock()
	old.Close()
	e.hasHead = false
	e.connect(ctx)
}

// fetchTrace issues debug_traceTransaction with callTracer and parses
// the nested result into a TraceTree, tolerant of field aliasing
// (spec §4.B "Trace fetch").
func (e *Engine) fetchTrace(ctx context.Context, hash common.Hash) {
	if e.isCachedUnsupported("debug_traceTransaction") {
		e.emit(RpcError{Context: "trace", Err: &transport.Error{Kind: transport.ErrMethodNotFound}})
		return
	}

	var raw rpctypes.RawCallFrame
	err := e.transport.Call(ctx, "debug_traceTransaction", []interface{}{
		hash.Hex(), map[string]interface{}{"tracer": "callTracer"},
	}, &raw)
	if err != nil {
		if err.Kind == transport.ErrMethodNotFound {
			e.cacheUnsupported("debug_traceTransaction")
		}
		e.emit(RpcError{Context: "trace", Err: err})
		return
	}

	tree := buildTraceTree(hash, raw)
	paused := e.emit(TraceReady{Hash: hash, Tree: tree})
	if paused {
		atomic.AddInt32(&e.paused, 1)
	}
}

func (e *Engine) fetchBalances(ctx context.Context, c FetchBalances) {
	var balHex string
	if err := e.transport.Call(ctx, "eth_getBalance", []interface{}{c.Addr.Hex(), "latest"}, &balHex); err != nil {
		e.emit(RpcError{Context: "balance", Err: err})
		return
	}
	native, _ := new(big.Int).SetString(trimHex(balHex), 16)
	balances := []TokenBalance{{Symbol: "", Decimals: 18, Amount: native}}
	e.emit(BalancesReady{Addr: c.Addr, Balances: balances})
}

func (e *Engine) fetchStorage(ctx context.Context, c FetchStorage) {
	var wordHex string
	if err := e.transport.Call(ctx, "eth_getStorageAt", []interface{}{c.Addr.Hex(), c.Slot.Hex(), "latest"}, &wordHex); err != nil {
		e.emit(RpcError{Context: "storage", Err: err})
		return
	}
	e.emit(StorageReady{Addr: c.Addr, Slot: c.Slot, Word: common.HexToHash(wordHex)})
}

// ResolveReceipt issues eth_getTransactionReceipt lazily, per spec
// §4.B "Receipt/status resolution". The head loop does not call it,
// and neither does any Command or UI path, so opening a transaction
// or trace does not resolve its status.
func (e *Engine) ResolveReceipt(ctx context.Context, hash common.Hash) {
	var raw rpctypes.RawReceipt
	if err := e.transport.Call(ctx, "eth_getTransactionReceipt", []interface{}{hash.Hex()}, &raw); err != nil {
		e.emit(RpcError{Context: "receipt", Err: err})
		return
	}
	status := state.StatusUnknownPending
	switch raw.Status {
	case "0x1":
		status = state.StatusSuccess
	case "0x0":
		status = state.StatusReverted
	}
	e.emit(TxStatusUpdated{Hash: hash, Status: status})
}

// callWithRetry applies the failure model from spec §4.B: a single
// transport failure is retried at most twice with exponential backoff
// (200ms, 800ms); retry only applies to timeout/network errors.
func (e *Engine) callWithRetry(ctx context.Context, method string, params []interface{}, out interface{}) *transport.Error {
	delays := []time.Duration{0, retryBackoff1, retryBackoff2}
	var lastErr *transport.Error
	for i, d := range delays {
		if d > 0 {
			atomic.AddUint64(&e.backoffs, 1)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return &transport.Error{Kind: transport.ErrTimeout, Err: ctx.Err()}
			}
		}
		if i > 0 {
			atomic.AddUint64(&e.retries, 1)
		}
		err := e.transport.Call(ctx, method, params, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !err.IsRetryable() {
			return err
		}
	}
	return lastErr
}

func (e *Engine) isCachedUnsupported(method string) bool {
	key := e.unsupportedKey(method)
	_, ok := e.unsupported.Get(key)
	return ok
}

func (e *Engine) cacheUnsupported(method string) {
	e.unsupported.Add(e.unsupportedKey(method), struct{}{})
}

func (e *Engine) unsupportedKey(method string) string {
	return e.transport.Endpoint().NodeKind.String() + ":" + method
}

func parseHexUint(s string) (uint64, error) {
	return strconv.ParseUint(trimHex(s), 16, 64)
}

func hexFieldToUint(v interface{}) (uint64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	return parseHexUint(s)
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if s == "" {
		return "0"
	}
	return s
}

func hexUint(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}
