// Package state is the single model the UI renders from (spec §4.D).
// It is owned exclusively by the UI thread: every mutation happens
// during tick processing, draining the engine's event channel, or in
// response to a single user input event. No locks are needed in
// steady state.
package state

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxStatus mirrors spec §3's success/reverted/unknown-pending.
type TxStatus int

const (
	StatusUnknownPending TxStatus = iota
	StatusSuccess
	StatusReverted
)

// Block is the bounded-ring block summary (spec §3).
type Block struct {
	Number       uint64
	Hash         common.Hash
	ParentHash   common.Hash
	Timestamp    uint64
	GasUsed      uint64
	GasLimit     uint64
	BaseFee      *big.Int // nil when absent (pre-EIP-1559)
	TxCount      int
	TxHashes     []common.Hash // ordered in mined order
}

// Transaction is the bounded-ring transaction summary (spec §3).
type Transaction struct {
	Hash            common.Hash
	BlockNumber     uint64
	Index           int
	From            common.Address
	To              *common.Address // nil for contract creation
	Value           *big.Int
	Gas             uint64
	EffectiveGasPrice *big.Int
	Input           []byte
	Status          TxStatus

	// Populated once calldata has been decoded against the ABI
	// registry (spec §3, §4.C).
	DecodedMethod *string
	DecodedParams []DecodedParam
}

// DecodedParam is one decoded function argument, rendered as part of
// function(args) display.
type DecodedParam struct {
	Name  string
	Type  string
	Value interface{}
}

// Address is the address record from spec §3.
type Address struct {
	Addr        common.Address
	Label       *string
	Nonce       uint64
	NonceKnown  bool
	Balance     *big.Int // lazy: nil until polked
	IsContract  bool
	ProbedCode  bool // whether the code-presence probe has run
}

// CallType enumerates the trace frame call kinds (spec §3).
type CallType int

const (
	CallCALL CallType = iota
	CallDELEGATECALL
	CallSTATICCALL
	CallCREATE
	CallCREATE2
	CallSELFDESTRUCT
)

func ParseCallType(s string) CallType {
	switch s {
	case "DELEGATECALL":
		return CallDELEGATECALL
	case "STATICCALL":
		return CallSTATICCALL
	case "CREATE":
		return CallCREATE
	case "CREATE2":
		return CallCREATE2
	case "SELFDESTRUCT", "SUICIDE":
		return CallSELFDESTRUCT
	default:
		return CallCALL
	}
}

func (c CallType) String() string {
	switch c {
	case CallDELEGATECALL:
		return "DELEGATECALL"
	case CallSTATICCALL:
		return "STATICCALL"
	case CallCREATE:
		return "CREATE"
	case CallCREATE2:
		return "CREATE2"
	case CallSELFDESTRUCT:
		return "SELFDESTRUCT"
	default:
		return "CALL"
	}
}

// TraceFrame is one node in the call tree (spec §3, §9). Frames are
// stored in a flat arena (TraceTree.Frames) addressed by index rather
// than as a pointer tree, so deep/cyclic-looking traces never create
// Go-level ownership cycles and collapse state is a trivial side-table
// keyed by index.
type TraceFrame struct {
	Type         CallType
	From         common.Address
	To           common.Address
	Value        *big.Int
	Input        []byte
	Output       []byte
	GasSupplied  uint64
	GasUsed      uint64
	Error        *string
	RevertReason *string
	Children     []int // indices into TraceTree.Frames
}

// TraceTree is the arena holding a decoded call trace plus per-frame
// collapse state.
type TraceTree struct {
	TxHash    common.Hash
	Frames    []TraceFrame
	Root      int // index of the root frame, normally 0
	Collapsed map[int]bool
}

// DefaultCollapseDepth is the depth beyond which frames render
// collapsed by default (spec §3: "rendering collapses by default
// beyond depth 2").
const DefaultCollapseDepth = 2

// CollapsedByDefault reports whether a frame at the given depth should
// start collapsed, absent an explicit user toggle.
func CollapsedByDefault(depth int) bool { return depth > DefaultCollapseDepth }

// Severity ranks a StatusLine message.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

// StatusLine is the status bar message (spec §4.D).
type StatusLine struct {
	Message  string
	Severity Severity
	At       time.Time
}
