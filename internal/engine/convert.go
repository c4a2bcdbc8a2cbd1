package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"poke/internal/rpctypes"
	"poke/internal/state"
)

func convertBlock(raw rpctypes.RawBlock) (state.Block, error) {
	number, err := parseHexUint(raw.Number)
	if err != nil {
		return state.Block{}, fmt.Errorf("number: %w", err)
	}
	ts, err := parseHexUint(raw.Timestamp)
	if err != nil {
		return state.Block{}, fmt.Errorf("timestamp: %w", err)
	}
	gasUsed, _ := parseHexUint(raw.GasUsed)
	gasLimit, _ := parseHexUint(raw.GasLimit)

	var baseFee *big.Int
	if raw.BaseFeePerGas != "" {
		baseFee, _ = new(big.Int).SetString(trimHex(raw.BaseFeePerGas), 16)
	}

	hashes := make([]common.Hash, 0, len(raw.Transactions))
	for _, tx := range raw.Transactions {
		hashes = append(hashes, common.HexToHash(tx.Hash))
	}

	return state.Block{
		Number:     number,
		Hash:       common.HexToHash(raw.Hash),
		ParentHash: common.HexToHash(raw.ParentHash),
		Timestamp:  ts,
		GasUsed:    gasUsed,
		GasLimit:   gasLimit,
		BaseFee:    baseFee,
		TxCount:    len(raw.Transactions),
		TxHashes:   hashes,
	}, nil
}

func convertBlockTxs(raw rpctypes.RawBlock) []state.Transaction {
	txs := make([]state.Transaction, 0, len(raw.Transactions))
	for _, t := range raw.Transactions {
		txs = append(txs, convertTx(t))
	}
	return txs
}

func convertTx(raw rpctypes.RawTx) state.Transaction {
	blockNumber, _ := parseHexUint(raw.BlockNumber)
	index, _ := parseHexUint(raw.TransactionIndex)

	var to *common.Address
	if raw.To != "" {
		a := common.HexToAddress(raw.To)
		to = &a
	}

	value, _ := new(big.Int).SetString(trimHex(raw.Value), 16)
	if value == nil {
		value = new(big.Int)
	}
	gas, _ := parseHexUint(raw.Gas)
	gasPrice, _ := new(big.Int).SetString(trimHex(raw.GasPrice), 16)
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}

	var input []byte
	if raw.Input != "" {
		input = common.FromHex(raw.Input)
	}

	return state.Transaction{
		Hash:              common.HexToHash(raw.Hash),
		BlockNumber:       blockNumber,
		Index:             int(index),
		From:              common.HexToAddress(raw.From),
		To:                to,
		Value:             value,
		Gas:               gas,
		EffectiveGasPrice: gasPrice,
		Input:             input,
		Status:            state.StatusUnknownPending,
	}
}

// buildTraceTree flattens a nested RawCallFrame into the index-addressed
// arena used by state.TraceTree (spec §9 "recursive, cyclic, and deep
// trees"), applying the field-tolerance rules of spec §4.B: input may
// arrive as calldata, gas used may be gasUsed or gas_used, output may
// be absent, and the error and revert reason are read as the plain
// string fields error and revertReason (an object-valued revertReason
// is not decoded).
func buildTraceTree(hash common.Hash, raw rpctypes.RawCallFrame) state.TraceTree {
	tree := state.TraceTree{
		TxHash:    hash,
		Collapsed: make(map[int]bool),
	}
	root := appendFrame(&tree, raw, 0)
	tree.Root = root
	return tree
}

func appendFrame(tree *state.TraceTree, raw rpctypes.RawCallFrame, depth int) int {
	input := raw.Input
	if input == "" {
		input = raw.InputAlt
	}
	gasUsed := raw.GasUsed
	if gasUsed == "" {
		gasUsed = raw.GasUsedAlt
	}

	frame := state.TraceFrame{
		Type:        state.ParseCallType(raw.Type),
		From:        common.HexToAddress(raw.From),
		To:          common.HexToAddress(raw.To),
		Value:       hexToBigOrZero(raw.Value),
		Input:       common.FromHex(input),
		Output:      common.FromHex(raw.Output),
		GasSupplied: mustParseHexUint(raw.Gas),
		GasUsed:     mustParseHexUint(gasUsed),
	}
	if raw.Error != "" {
		e := raw.Error
		frame.Error = &e
	}
	if raw.RevertReason != "" {
		r := raw.RevertReason
		frame.RevertReason = &r
	}

	idx := len(tree.Frames)
	tree.Frames = append(tree.Frames, frame)
	tree.Collapsed[idx] = state.CollapsedByDefault(depth)

	children := make([]int, 0, len(raw.Calls))
	for _, c := range raw.Calls {
		children = append(children, appendFrame(tree, c, depth+1))
	}
	tree.Frames[idx].Children = children
	return idx
}

func hexToBigOrZero(s string) *big.Int {
	if s == "" {
		return new(big.Int)
	}
	v, ok := new(big.Int).SetString(trimHex(s), 16)
	if !ok {
		return new(big.Int)
	}
	return v
}

func mustParseHexUint(s string) uint64 {
	n, _ := parseHexUint(s)
	return n
}
