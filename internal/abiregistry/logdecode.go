package abiregistry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// DecodedLog is the result of matching a raw log's topic0 against the
// registry and decoding its indexed/non-indexed arguments.
type DecodedLog struct {
	Event EventEntry
	Args  []DecodedValue
}

// DecodeLog decodes a raw log's topics/data against a matched event
// entry. Indexed arguments of dynamic type are represented only by
// their topic hash (the ABI does not recover the original value from a
// topic), so their DecodedValue carries the raw 32 bytes rather than a
// decoded string/bytes/array.
func DecodeLog(entry EventEntry, topics []common.Hash, data []byte) ([]DecodedValue, error) {
	if len(topics) == 0 || topics[0] != entry.Topic0 {
		return nil, fmt.Errorf("topic0 mismatch")
	}

	var nonIndexed []Descriptor
	for i, p := range entry.Params {
		if !entry.Indexed[i] {
			nonIndexed = append(nonIndexed, p)
		}
	}
	nonIndexedValues, err := DecodeArgs(data, nonIndexed)
	if err != nil {
		return nil, fmt.Errorf("decode data section: %w", err)
	}

	out := make([]DecodedValue, len(entry.Params))
	topicPos := 1
	dataPos := 0
	for i, p := range entry.Params {
		if !entry.Indexed[i] {
			out[i] = nonIndexedValues[dataPos]
			dataPos++
			continue
		}
		if topicPos >= len(topics) {
			return nil, fmt.Errorf("missing topic for indexed arg %d", i)
		}
		topic := topics[topicPos]
		topicPos++
		if p.IsDynamic() {
			// Dynamic indexed args are hashed, not encoded: surface the
			// raw topic as fixed bytes rather than pretending to decode it.
			out[i] = DecodedValue{Descriptor: Descriptor{Kind: KindFixedBytes, FixedBytesLen: 32}, Value: topic.Bytes()}
			continue
		}
		v, err := decodeAt(topic.Bytes(), 0, p)
		if err != nil {
			return nil, fmt.Errorf("indexed arg %d: %w", i, err)
		}
		out[i] = DecodedValue{Descriptor: p, Value: v}
	}
	return out, nil
}
