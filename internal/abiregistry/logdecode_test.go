package abiregistry

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestDecodeLogIndexedAndData(t *testing.T) {
	params := []Descriptor{
		{Kind: KindAddress},
		{Kind: KindAddress},
		{Kind: KindInteger, Width: 256},
	}
	sig := CanonicalSignature("Transfer", params)
	entry := EventEntry{
		Topic0:  Topic0(sig),
		Name:    "Transfer",
		Params:  params,
		Indexed: []bool{true, true, false},
	}

	from := common.HexToAddress("0x0000000000000000000000000000000000000001")
	to := common.HexToAddress("0x0000000000000000000000000000000000000002")

	data, err := EncodeArgs([]DecodedValue{
		{Descriptor: Descriptor{Kind: KindInteger, Width: 256}, Value: big.NewInt(100)},
	})
	if err != nil {
		t.Fatalf("encode data: %v", err)
	}

	topics := []common.Hash{
		common.Hash(entry.Topic0),
		common.BytesToHash(from.Bytes()),
		common.BytesToHash(to.Bytes()),
	}

	decoded, err := DecodeLog(entry, topics, data)
	if err != nil {
		t.Fatalf("DecodeLog: %v", err)
	}
	if decoded[0].Value.(common.Address) != from {
		t.Fatalf("from mismatch: %v", decoded[0].Value)
	}
	if decoded[1].Value.(common.Address) != to {
		t.Fatalf("to mismatch: %v", decoded[1].Value)
	}
	amount, ok := decoded[2].Value.(*big.Int)
	if !ok || amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("value mismatch: %v", decoded[2].Value)
	}
}

func TestDecodeLogTopic0Mismatch(t *testing.T) {
	entry := EventEntry{Topic0: Topic0("Transfer(address,address,uint256)")}
	_, err := DecodeLog(entry, []common.Hash{common.HexToHash("0xdead")}, nil)
	if err == nil {
		t.Fatalf("expected topic0 mismatch error")
	}
}
