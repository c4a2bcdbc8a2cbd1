// Package command implements the Command Engine (spec §4.E): parses
// `:command` strings typed by the user into a discrete Action (`/filter`
// text is parsed by internal/state), and supplies the synchronous toolkit computations those
// actions can require.
package command

import "strings"

// Verb is the canonical (alias-resolved) first token of a command.
type Verb string

const (
	VerbBlocks      Verb = "blocks"
	VerbTxs         Verb = "txs"
	VerbAddress     Verb = "address"
	VerbTrace       Verb = "trace"
	VerbConvert     Verb = "convert"
	VerbHex         Verb = "hex"
	VerbHash        Verb = "hash"
	VerbSelector    Verb = "selector"
	Verb4byte       Verb = "4byte"
	VerbChecksum    Verb = "checksum"
	VerbTimestamp   Verb = "timestamp"
	VerbSlot        Verb = "slot"
	VerbCreate      Verb = "create"
	VerbCreate2     Verb = "create2"
	VerbEncode      Verb = "encode"
	VerbDecode      Verb = "decode"
	VerbHealth      Verb = "health"
	VerbPeers       Verb = "peers"
	VerbRpcStats    Verb = "rpc-stats"
	VerbMempool     Verb = "mempool"
	VerbLogs        Verb = "logs"
	VerbConnect     Verb = "connect"
	VerbAnvil       Verb = "anvil"
	VerbImpersonate Verb = "impersonate"
	VerbMine        Verb = "mine"
	VerbSnapshot    Verb = "snapshot"
	VerbRevert      Verb = "revert"
	VerbReloadAbi   Verb = "reload-abi"
	VerbQuit        Verb = "quit"
)

// verbAliases maps every accepted spelling onto its canonical verb
// (spec §4.E "Recognized verbs (alias → canonical)").
var verbAliases = map[string]Verb{
	"blocks": VerbBlocks, "blk": VerbBlocks,
	"txs": VerbTxs, "transactions": VerbTxs, "tx": VerbTxs,
	"address": VerbAddress, "addr": VerbAddress,
	"trace": VerbTrace,
	"convert": VerbConvert,
	"hex":     VerbHex,
	"hash":    VerbHash,
	"selector": VerbSelector,
	"4byte":    Verb4byte,
	"checksum": VerbChecksum,
	"timestamp": VerbTimestamp,
	"slot":      VerbSlot,
	"create":    VerbCreate,
	"create2":   VerbCreate2,
	"encode":    VerbEncode,
	"decode":    VerbDecode,
	"health":    VerbHealth,
	"peers":     VerbPeers,
	"rpc-stats": VerbRpcStats,
	"mempool":   VerbMempool,
	"logs":      VerbLogs,
	"connect":     VerbConnect,
	"anvil":       VerbAnvil,
	"impersonate": VerbImpersonate,
	"mine":        VerbMine,
	"snapshot":    VerbSnapshot,
	"revert":      VerbRevert,
	"reload-abi":  VerbReloadAbi,
	"q": VerbQuit, "quit": VerbQuit,
}

// CommandHints is the inline help table looked up against the verb a
// user is currently typing (spec §4.E "Command hints").
var CommandHints = map[Verb]string{
	VerbBlocks:      "blocks — show the block ring",
	VerbTxs:         "txs — show the transaction ring",
	VerbAddress:     "address <addr> — open address detail",
	VerbTrace:       "trace <txhash> — fetch and open a call trace",
	VerbConvert:     "convert <value> [unit] — convert an ether-denominated amount",
	VerbHex:         "hex <value> — inspect a hex or decimal value",
	VerbHash:        "hash <value> — keccak256 of a string or 0x-hex blob",
	VerbSelector:    "selector <sig> — compute a 4-byte function selector",
	Verb4byte:       "4byte <selector> — look up a selector in the ABI registry",
	VerbChecksum:    "checksum <addr> — EIP-55 checksum an address",
	VerbTimestamp:   "timestamp [n|now] — render a unix timestamp",
	VerbSlot:        "slot mapping|array <slot> <key|index> — compute a storage slot",
	VerbCreate:      "create <deployer> <nonce> — compute a CREATE address",
	VerbCreate2:     "create2 <deployer> <salt> <initcode|hash> — compute a CREATE2 address",
	VerbEncode:      "encode <sig> <args...> — ABI-encode a call",
	VerbDecode:      "decode <calldata> — ABI-decode a call",
	VerbHealth:      "health — show connection state, node kind and chain id",
	VerbPeers:       "peers — show peer count",
	VerbRpcStats:    "rpc-stats — show rolling RPC latency/retry counters",
	VerbMempool:     "mempool — show pending transaction counts",
	VerbLogs:        "logs <addr> <fromBlock> <toBlock> — fetch and decode event logs",
	VerbConnect:     "connect <url> — switch to a different endpoint",
	VerbAnvil:       "anvil [args] — spawn a local anvil node",
	VerbImpersonate: "impersonate <addr> — anvil_impersonateAccount",
	VerbMine:        "mine [n] — anvil_mine",
	VerbSnapshot:    "snapshot — evm_snapshot",
	VerbRevert:      "revert [id] — evm_revert",
	VerbReloadAbi:   "reload-abi — rescan the working directory for contract artifacts",
	VerbQuit:        "quit — exit poke",
}

// ParsedCommand is the tokenized form of a `:`-prefixed command string.
type ParsedCommand struct {
	Verb Verb
	Args []string
	Raw  string
}

// Tokenize splits a command string on whitespace; the first token is
// resolved through the alias table (spec §4.E "tokenize on whitespace;
// first token is the verb, remainder is the argument string").
func Tokenize(text string) ParsedCommand {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ParsedCommand{Raw: text}
	}
	verb, ok := verbAliases[strings.ToLower(fields[0])]
	if !ok {
		verb = Verb(strings.ToLower(fields[0]))
	}
	return ParsedCommand{Verb: verb, Args: fields[1:], Raw: text}
}

// Hint returns the best-matching inline help text for a verb prefix
// being typed, or "" if nothing matches.
func Hint(prefix string) string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return ""
	}
	if h, ok := CommandHints[Verb(prefix)]; ok {
		return h
	}
	if v, ok := verbAliases[prefix]; ok {
		return CommandHints[v]
	}
	for v, h := range CommandHints {
		if strings.HasPrefix(string(v), prefix) {
			return h
		}
	}
	return ""
}
