package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"poke/internal/abiregistry"
	"poke/internal/anvil"
	"poke/internal/engine"
	"poke/internal/state"
	"poke/internal/transport"
)

// ActionKind is the closed set of effects a parsed command can produce
// (spec §4.E: "Every action yields one of: Navigate, Notify, Copy,
// OpenCommand, QueueRpc, Quit, or None").
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionNavigate
	ActionNotify
	ActionCopy
	ActionOpenCommand
	ActionQueueRpc
	ActionQuit
	ActionReloadAbi
)

// Action is the result of executing one parsed command.
type Action struct {
	Kind ActionKind

	NavigateTo state.ViewToken
	Message    string
	Severity   state.Severity
	CopyText   string
	Prefix     string
	Rpc        engine.Command
}

// Engine executes parsed commands against the current model and ABI
// registry snapshot. It holds no mutable state of its own beyond what
// it is handed on each call.
type Engine struct {
	Registry *abiregistry.Manager

	// Ingestion and Anvil are optional collaborators: a bare Engine
	// (e.g. in unit tests) still parses and executes toolkit verbs, but
	// the ops verbs that read live connection state or spawn a local
	// node degrade to a "not wired" notify when these are nil.
	Ingestion *engine.Engine
	Anvil     *anvil.Manager
}

// New constructs a command Engine bound to an ABI registry manager
// (toolkit verbs like 4byte/decode/encode read through it). Ingestion
// and Anvil collaborators are attached afterward by setting the
// exported fields, since most callers (including every test in this
// package) only need the registry.
func New(reg *abiregistry.Manager) *Engine {
	return &Engine{Registry: reg}
}

// Execute parses and dispatches one `:command` string (without its
// leading `:`). Filter strings entered after `/` do not go through
// this path; they go straight to state.SetFilter.
func (e *Engine) Execute(text string) Action {
	pc := Tokenize(text)
	if pc.Verb == "" {
		return Action{Kind: ActionNone}
	}

	switch pc.Verb {
	case VerbBlocks:
		return Action{Kind: ActionNavigate, NavigateTo: state.ViewDashboard}
	case VerbTxs:
		return Action{Kind: ActionNavigate, NavigateTo: state.ViewDashboard}
	case VerbAddress:
		if len(pc.Args) < 1 {
			return notify("address requires an address argument", state.SeverityWarn)
		}
		return Action{Kind: ActionNavigate, NavigateTo: state.ViewAddressDetail}
	case VerbTrace:
		if len(pc.Args) < 1 {
			return notify("trace requires a transaction hash", state.SeverityWarn)
		}
		hash := common.HexToHash(pc.Args[0])
		return Action{Kind: ActionQueueRpc, Rpc: engine.FetchTrace{Hash: hash}, NavigateTo: state.ViewTrace}
	case VerbConvert:
		return e.convert(pc.Args)
	case VerbHex:
		return e.hexInspect(pc.Args)
	case VerbHash:
		return e.hashCmd(pc.Args)
	case VerbSelector:
		return e.selectorCmd(pc.Args)
	case Verb4byte:
		return e.fourByteCmd(pc.Args)
	case VerbChecksum:
		return e.checksumCmd(pc.Args)
	case VerbTimestamp:
		return e.timestampCmd(pc.Args)
	case VerbSlot:
		return e.slotCmd(pc.Args)
	case VerbCreate:
		return e.createCmd(pc.Args)
	case VerbCreate2:
		return e.create2Cmd(pc.Args)
	case VerbEncode:
		return e.encodeCmd(pc.Args)
	case VerbDecode:
		return e.decodeCmd(pc.Args)
	case VerbReloadAbi:
		return Action{Kind: ActionReloadAbi}
	case VerbQuit:
		return Action{Kind: ActionQuit}
	case VerbConnect:
		return e.connectCmd(pc.Args)
	case VerbAnvil:
		return e.anvilCmd(pc.Args)
	case VerbImpersonate:
		return e.devRpc("anvil_impersonateAccount", pc.Args)
	case VerbMine:
		return e.mineCmd(pc.Args)
	case VerbSnapshot:
		return e.devRpc("evm_snapshot", nil)
	case VerbRevert:
		return e.devRpc("evm_revert", pc.Args)
	case VerbHealth:
		return e.healthCmd()
	case VerbPeers:
		return e.peersCmd()
	case VerbRpcStats:
		return e.rpcStatsCmd()
	case VerbMempool:
		return e.mempoolCmd()
	case VerbLogs:
		return e.logsCmd(pc.Args)
	default:
		return notify(fmt.Sprintf("unknown command %q", pc.Verb), state.SeverityWarn)
	}
}

// notWired is the fallback for an ops verb whose optional collaborator
// (Ingestion or Anvil) was never attached to this Engine.
func notWired(verb Verb) Action {
	return notify(fmt.Sprintf("%s: not wired to a live endpoint in this build", verb), state.SeverityInfo)
}

func (e *Engine) connectCmd(args []string) Action {
	if len(args) < 1 {
		return notify("connect requires an endpoint url", state.SeverityWarn)
	}
	return Action{Kind: ActionQueueRpc, Rpc: engine.Reconnect{Endpoint: transport.Endpoint{
		Kind: endpointKindFromURL(args[0]),
		URL:  args[0],
	}}}
}

// endpointKindFromURL infers a transport.Kind from a URL's scheme
// (spec §6 "--rpc/--ws/--ipc" uses the same three kinds; `:connect`
// infers the kind instead of taking a separate flag since it is a
// single free-form argument).
func endpointKindFromURL(url string) transport.Kind {
	switch {
	case strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://"):
		return transport.KindWS
	case strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://"):
		return transport.KindHTTP
	default:
		return transport.KindIPC
	}
}

func (e *Engine) anvilCmd(args []string) Action {
	if e.Anvil == nil {
		return notWired(VerbAnvil)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ep, err := e.Anvil.Start(ctx, 8545, args...)
	if err != nil {
		return notify(fmt.Sprintf("anvil: %v", err), state.SeverityWarn)
	}
	return notify("anvil listening at "+ep.URL, state.SeverityInfo)
}

func (e *Engine) mineCmd(args []string) Action {
	n := "0x1"
	if len(args) > 0 {
		if blocks, err := strconv.ParseUint(args[0], 10, 64); err == nil {
			n = "0x" + strconv.FormatUint(blocks, 16)
		}
	}
	return Action{Kind: ActionQueueRpc, Rpc: engine.DevRpcCall{Method: "anvil_mine", Params: []interface{}{n}}}
}

func (e *Engine) devRpc(method string, args []string) Action {
	params := make([]interface{}, len(args))
	for i, a := range args {
		params[i] = a
	}
	return Action{Kind: ActionQueueRpc, Rpc: engine.DevRpcCall{Method: method, Params: params}}
}

func (e *Engine) healthCmd() Action {
	if e.Ingestion == nil {
		return notWired(VerbHealth)
	}
	st := e.Ingestion.StatusSnapshot()
	msg := fmt.Sprintf("connected=%v node=%s chain=%d syncing=%v", st.Connected, st.NodeKind, st.ChainID, st.Syncing)
	return notify(msg, state.SeverityInfo)
}

func (e *Engine) peersCmd() Action {
	if e.Ingestion == nil {
		return notWired(VerbPeers)
	}
	st := e.Ingestion.StatusSnapshot()
	return notify(fmt.Sprintf("%d peers", st.PeerN), state.SeverityInfo)
}

func (e *Engine) rpcStatsCmd() Action {
	if e.Ingestion == nil {
		return notWired(VerbRpcStats)
	}
	s := e.Ingestion.Stats()
	msg := fmt.Sprintf("p50=%s p90=%s max=%s (n=%d) retries=%d backoffs=%d",
		s.Latency.P50, s.Latency.P90, s.Latency.Max, s.Latency.Samples, s.Retries, s.Backoffs)
	return notify(msg, state.SeverityInfo)
}

func (e *Engine) mempoolCmd() Action {
	if e.Ingestion == nil {
		return notWired(VerbMempool)
	}
	return Action{Kind: ActionQueueRpc, Rpc: engine.FetchMempoolStatus{}}
}

func (e *Engine) logsCmd(args []string) Action {
	if len(args) < 3 {
		return notify("logs requires an address, a from-block, and a to-block", state.SeverityWarn)
	}
	addr := common.HexToAddress(args[0])
	from, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return notify(fmt.Sprintf("bad from-block %q: %v", args[1], err), state.SeverityWarn)
	}
	to, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return notify(fmt.Sprintf("bad to-block %q: %v", args[2], err), state.SeverityWarn)
	}
	return Action{Kind: ActionQueueRpc, Rpc: engine.FetchLogs{Addr: addr, FromBlock: from, ToBlock: to}}
}

func notify(msg string, sev state.Severity) Action {
	return Action{Kind: ActionNotify, Message: msg, Severity: sev}
}
