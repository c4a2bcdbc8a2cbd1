package transport

import (
	"strings"
	"time"
)

// NodeKind identifies the JSON-RPC server implementation behind an
// endpoint, detected from web3_clientVersion (spec §4.A).
type NodeKind int

const (
	NodeUnknown NodeKind = iota
	NodeAnvil
	NodeGeth
	NodeReth
	NodeNethermind
	NodeBesu
)

func (k NodeKind) String() string {
	switch k {
	case NodeAnvil:
		return "anvil"
	case NodeGeth:
		return "geth"
	case NodeReth:
		return "reth"
	case NodeNethermind:
		return "nethermind"
	case NodeBesu:
		return "besu"
	default:
		return "unknown"
	}
}

// DetectNodeKind parses a web3_clientVersion string into a NodeKind by
// substring match, per spec §4.A. Unknown clients fall back to a
// conservative feature profile via FeatureProfile.
func DetectNodeKind(clientVersion string) NodeKind {
	v := strings.ToLower(clientVersion)
	switch {
	case strings.Contains(v, "anvil"):
		return NodeAnvil
	case strings.Contains(v, "geth"):
		return NodeGeth
	case strings.Contains(v, "reth"):
		return NodeReth
	case strings.Contains(v, "nethermind"):
		return NodeNethermind
	case strings.Contains(v, "besu"):
		return NodeBesu
	default:
		return NodeUnknown
	}
}

// FeatureProfile captures what a node kind is known to support, used to
// avoid probing methods that are known-absent.
type FeatureProfile struct {
	SupportsAnvilNamespace bool
	SupportsDebugTrace     TriState
}

// TriState models "unsure" in addition to yes/no, for features the
// engine has not yet probed.
type TriState int

const (
	Unsure TriState = iota
	Supported
	Unsupported
)

// Profile returns the conservative feature profile for a node kind.
func Profile(kind NodeKind) FeatureProfile {
	switch kind {
	case NodeAnvil:
		return FeatureProfile{SupportsAnvilNamespace: true, SupportsDebugTrace: Supported}
	case NodeGeth, NodeReth:
		return FeatureProfile{SupportsAnvilNamespace: false, SupportsDebugTrace: Supported}
	case NodeNethermind, NodeBesu:
		return FeatureProfile{SupportsAnvilNamespace: false, SupportsDebugTrace: Unsure}
	default:
		return FeatureProfile{SupportsAnvilNamespace: false, SupportsDebugTrace: Unsure}
	}
}

// Kind is a tagged variant over the three transport mechanisms the
// spec allows (§3 Endpoint, §6 External Interfaces).
type Kind int

const (
	KindHTTP Kind = iota
	KindWS
	KindIPC
)

// Endpoint describes a single JSON-RPC endpoint and the engine's most
// recently observed facts about it (spec §3).
type Endpoint struct {
	Kind Kind
	// URL holds the http(s):// or ws(s):// URL for KindHTTP/KindWS, and
	// the socket path for KindIPC.
	URL string

	NodeKind        NodeKind
	LatestLatency   time.Duration
	HeadBlockNumber uint64
	PeerCount       uint64
}
