// Package rpctypes holds the raw JSON-RPC 2.0 envelope types and the
// wire-format block/transaction/trace shapes the engine decodes,
// written to tolerate the field-naming divergence real nodes exhibit
// (spec §4.B "trace field tolerance", §3).
package rpctypes

import "encoding/json"

// Request is a JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// Response is a JSON-RPC 2.0 response object; exactly one of Result or
// Error is populated.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RawBlock is the wire shape of eth_getBlockByNumber(n, true): it
// deliberately keeps every field as a string/raw hex so the caller
// controls parsing and can tolerate absent optional fields (e.g.
// baseFeePerGas pre-London).
type RawBlock struct {
	Number        string  `json:"number"`
	Hash          string  `json:"hash"`
	ParentHash    string  `json:"parentHash"`
	Timestamp     string  `json:"timestamp"`
	GasUsed       string  `json:"gasUsed"`
	GasLimit      string  `json:"gasLimit"`
	BaseFeePerGas string  `json:"baseFeePerGas,omitempty"`
	Transactions  []RawTx `json:"transactions"`
}

// RawTx is the wire shape of a transaction embedded in a block.
type RawTx struct {
	Hash             string `json:"hash"`
	BlockNumber      string `json:"blockNumber"`
	TransactionIndex string `json:"transactionIndex"`
	From             string `json:"from"`
	To               string `json:"to"`
	Value            string `json:"value"`
	Gas              string `json:"gas"`
	GasPrice         string `json:"gasPrice"`
	Input            string `json:"input"`
}

// RawReceipt is the wire shape of eth_getTransactionReceipt.
type RawReceipt struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	GasUsed         string `json:"gasUsed"`
}

// RawSyncing is the wire shape of the eth_syncing progress object (the
// method returns a bare `false` when synced). The engine decodes the
// result through interface{} rather than through this struct.
type RawSyncing struct {
	CurrentBlock string `json:"currentBlock"`
	HighestBlock string `json:"highestBlock"`
}

// RawLog is the wire shape of one eth_getLogs result entry.
type RawLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
}

// RawTxPoolStatus is the wire shape of txpool_status.
type RawTxPoolStatus struct {
	Pending string `json:"pending"`
	Queued  string `json:"queued"`
}

// RawCallFrame is the wire shape of a debug_traceTransaction callTracer
// node, with every alias the field-tolerance policy in spec §4.B names.
type RawCallFrame struct {
	Type    string `json:"type"`
	From    string `json:"from"`
	To      string `json:"to"`
	Value   string `json:"value"`
	Gas     string `json:"gas"`

	// gas used is aliased across nodes as gasUsed / gas_used.
	GasUsed    string `json:"gasUsed,omitempty"`
	GasUsedAlt string `json:"gas_used,omitempty"`

	// input is aliased as calldata on some nodes.
	Input       string `json:"input,omitempty"`
	InputAlt    string `json:"calldata,omitempty"`
	Output      string `json:"output,omitempty"`

	Error string `json:"error,omitempty"`

	// revert reason is read as a string field beside error; an
	// object-valued revertReason is not decoded.
	RevertReason string          `json:"revertReason,omitempty"`
	Calls        []RawCallFrame  `json:"calls,omitempty"`
}
