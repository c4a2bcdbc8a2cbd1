// codec.go implements the Ethereum ABI head/tail encoding rules named
// in spec §4.C: 32-byte padding, dynamic types addressable by offset,
// recursive tuples and arrays.
package abiregistry

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const wordSize = 32

// DecodedValue is the dynamically-typed decode result for one
// parameter. Concrete Go types used: *big.Int (integers), bool,
// common.Address, []byte (fixed/dynamic bytes), string, []DecodedValue
// (arrays/tuples).
type DecodedValue struct {
	Descriptor Descriptor
	Value      interface{}
}

// DecodeArgs decodes a calldata argument blob (calldata with the
// 4-byte selector already stripped) against an ordered parameter list,
// per the head/tail encoding rules.
func DecodeArgs(data []byte, params []Descriptor) ([]DecodedValue, error) {
	out := make([]DecodedValue, len(params))
	headPos := 0
	for i, p := range params {
		v, err := decodeHead(data, 0, headPos, p)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out[i] = DecodedValue{Descriptor: p, Value: v}
		headPos += staticWords(p) * wordSize
	}
	return out, nil
}

// staticWords returns the number of head-region words descriptor d
// occupies: 1 for every dynamic type (it's addressed by an offset
// pointer) and for elementary static types, and the recursive sum of
// component/element words for static tuples and fixed-size arrays.
func staticWords(d Descriptor) int {
	if d.IsDynamic() {
		return 1
	}
	switch d.Kind {
	case KindArray:
		return d.ArrayLen * staticWords(*d.Elem)
	case KindTuple:
		n := 0
		for _, c := range d.Components {
			n += staticWords(c)
		}
		return n
	default:
		return 1
	}
}

// decodeHead reads one value starting at the head slot for descriptor
// d; if d is dynamic, the head slot holds an offset counted from base,
// the start of the enclosing encoding (0 for the top-level argument
// list, the element area of an array, the start of a tuple), and the
// value itself is decoded from data[base+offset:].
func decodeHead(data []byte, base, pos int, d Descriptor) (interface{}, error) {
	if d.IsDynamic() {
		offset, err := readUint(data, pos)
		if err != nil {
			return nil, err
		}
		return decodeAt(data, base+int(offset.Uint64()), d)
	}
	return decodeAt(data, pos, d)
}

// decodeAt decodes a value of descriptor d whose encoding starts at
// byte offset `at` in data (the tail region for dynamic types, the
// head region for static types).
func decodeAt(data []byte, at int, d Descriptor) (interface{}, error) {
	switch d.Kind {
	case KindInteger:
		word, err := readWord(data, at)
		if err != nil {
			return nil, err
		}
		v := new(big.Int).SetBytes(word[:])
		if d.Signed && word[0]&0x80 != 0 {
			v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 256))
		}
		return v, nil
	case KindBool:
		word, err := readWord(data, at)
		if err != nil {
			return nil, err
		}
		return word[31] != 0, nil
	case KindAddress:
		word, err := readWord(data, at)
		if err != nil {
			return nil, err
		}
		return common.BytesToAddress(word[12:]), nil
	case KindFixedBytes:
		word, err := readWord(data, at)
		if err != nil {
			return nil, err
		}
		out := make([]byte, d.FixedBytesLen)
		copy(out, word[:d.FixedBytesLen])
		return out, nil
	case KindDynamicBytes:
		length, err := readUint(data, at)
		if err != nil {
			return nil, err
		}
		n := int(length.Uint64())
		start := at + wordSize
		if start+n > len(data) {
			return nil, fmt.Errorf("bytes out of range")
		}
		out := make([]byte, n)
		copy(out, data[start:start+n])
		return out, nil
	case KindString:
		raw, err := decodeAt(data, at, Descriptor{Kind: KindDynamicBytes})
		if err != nil {
			return nil, err
		}
		return string(raw.([]byte)), nil
	case KindArray:
		return decodeArray(data, at, d)
	case KindTuple:
		return decodeTuple(data, at, d)
	default:
		return nil, fmt.Errorf("unknown descriptor kind %d", d.Kind)
	}
}

func decodeArray(data []byte, at int, d Descriptor) ([]DecodedValue, error) {
	n := d.ArrayLen
	elemsStart := at
	if d.IsDynArray {
		length, err := readUint(data, at)
		if err != nil {
			return nil, err
		}
		n = int(length.Uint64())
		elemsStart = at + wordSize
	}
	out := make([]DecodedValue, n)
	pos := elemsStart
	elemWords := staticWords(*d.Elem)
	for i := 0; i < n; i++ {
		v, err := decodeHead(data, elemsStart, pos, *d.Elem)
		if err != nil {
			return nil, fmt.Errorf("elem %d: %w", i, err)
		}
		out[i] = DecodedValue{Descriptor: *d.Elem, Value: v}
		pos += elemWords * wordSize
	}
	return out, nil
}

func decodeTuple(data []byte, at int, d Descriptor) ([]DecodedValue, error) {
	out := make([]DecodedValue, len(d.Components))
	pos := at
	for i, c := range d.Components {
		v, err := decodeHead(data, at, pos, c)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = DecodedValue{Descriptor: c, Value: v}
		pos += staticWords(c) * wordSize
	}
	return out, nil
}

func readWord(data []byte, at int) ([wordSize]byte, error) {
	var w [wordSize]byte
	if at < 0 || at+wordSize > len(data) {
		return w, fmt.Errorf("word out of range at %d (len %d)", at, len(data))
	}
	copy(w[:], data[at:at+wordSize])
	return w, nil
}

func readUint(data []byte, at int) (*big.Int, error) {
	w, err := readWord(data, at)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w[:]), nil
}

// EncodeArgs re-encodes a decoded value list back into calldata (sans
// selector), producing the head/tail layout that satisfies the
// round-trip invariant encode(decode(calldata)) == calldata (spec §8).
func EncodeArgs(values []DecodedValue) ([]byte, error) {
	heads := make([][]byte, len(values))
	tails := make([][]byte, len(values))
	for i, v := range values {
		h, t, err := encodeOne(v.Descriptor, v.Value)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		heads[i] = h
		tails[i] = t
	}
	return assembleHeadsTails(heads, tails), nil
}

// assembleHeadsTails concatenates per-slot heads with tail offsets
// rewritten relative to the start of the whole head region.
func assembleHeadsTails(heads, tails [][]byte) []byte {
	headLen := 0
	for i, h := range heads {
		if len(tails[i]) > 0 {
			headLen += wordSize
		} else {
			headLen += len(h)
		}
	}
	var out []byte
	tailOffset := headLen
	for i, h := range heads {
		if len(tails[i]) > 0 {
			out = append(out, encodeUint(uint64(tailOffset))...)
			tailOffset += len(tails[i])
		} else {
			out = append(out, h...)
		}
	}
	for _, t := range tails {
		out = append(out, t...)
	}
	return out
}

// encodeOne returns (head, tail) for one top-level or nested value: for
// static types head is the encoded word(s) and tail is empty; for
// dynamic types head is ignored by the caller (replaced with an
// offset) and tail holds the actual encoding.
func encodeOne(d Descriptor, v interface{}) (head, tail []byte, err error) {
	switch d.Kind {
	case KindInteger:
		n, ok := v.(*big.Int)
		if !ok {
			return nil, nil, fmt.Errorf("expected *big.Int for %s", d.CanonicalTypeName())
		}
		return encodeBigInt(n, d.Signed), nil, nil
	case KindBool:
		b, _ := v.(bool)
		if b {
			return encodeUint(1), nil, nil
		}
		return encodeUint(0), nil, nil
	case KindAddress:
		a, ok := v.(common.Address)
		if !ok {
			return nil, nil, fmt.Errorf("expected common.Address")
		}
		var w [wordSize]byte
		copy(w[12:], a.Bytes())
		return w[:], nil, nil
	case KindFixedBytes:
		b, _ := v.([]byte)
		var w [wordSize]byte
		copy(w[:], b)
		return w[:], nil, nil
	case KindDynamicBytes:
		b, _ := v.([]byte)
		return nil, encodeBytesPadded(b), nil
	case KindString:
		s, _ := v.(string)
		return nil, encodeBytesPadded([]byte(s)), nil
	case KindArray:
		return encodeArray(d, v)
	case KindTuple:
		return encodeTuple(d, v)
	default:
		return nil, nil, fmt.Errorf("unknown descriptor kind %d", d.Kind)
	}
}

func encodeArray(d Descriptor, v interface{}) (head, tail []byte, err error) {
	elems, ok := v.([]DecodedValue)
	if !ok {
		return nil, nil, fmt.Errorf("expected []DecodedValue for array")
	}
	innerHeads := make([][]byte, len(elems))
	innerTails := make([][]byte, len(elems))
	for i, e := range elems {
		h, t, err := encodeOne(*d.Elem, e.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("elem %d: %w", i, err)
		}
		innerHeads[i] = h
		innerTails[i] = t
	}
	body := assembleHeadsTails(innerHeads, innerTails)
	if d.IsDynArray {
		out := append(encodeUint(uint64(len(elems))), body...)
		return nil, out, nil
	}
	// Fixed-size array: dynamic only if its element type is dynamic, in
	// which case it behaves like a tuple's tail; otherwise it is the
	// concatenation of each element's static word(s), returned as head.
	if d.IsDynamic() {
		return nil, body, nil
	}
	return body, nil, nil
}

func encodeTuple(d Descriptor, v interface{}) (head, tail []byte, err error) {
	fields, ok := v.([]DecodedValue)
	if !ok {
		return nil, nil, fmt.Errorf("expected []DecodedValue for tuple")
	}
	innerHeads := make([][]byte, len(fields))
	innerTails := make([][]byte, len(fields))
	for i, f := range fields {
		h, t, err := encodeOne(d.Components[i], f.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("field %d: %w", i, err)
		}
		innerHeads[i] = h
		innerTails[i] = t
	}
	body := assembleHeadsTails(innerHeads, innerTails)
	if d.IsDynamic() {
		return nil, body, nil
	}
	return body, nil, nil
}

func encodeUint(n uint64) []byte {
	var w [wordSize]byte
	binary.BigEndian.PutUint64(w[wordSize-8:], n)
	return w[:]
}

func encodeBigInt(n *big.Int, signed bool) []byte {
	var w [wordSize]byte
	if signed && n.Sign() < 0 {
		twos := new(big.Int).Add(n, new(big.Int).Lsh(big.NewInt(1), 256))
		b := twos.Bytes()
		copy(w[wordSize-len(b):], b)
		return w[:]
	}
	b := n.Bytes()
	if len(b) > wordSize {
		b = b[len(b)-wordSize:]
	}
	copy(w[wordSize-len(b):], b)
	return w[:]
}

func encodeBytesPadded(b []byte) []byte {
	out := encodeUint(uint64(len(b)))
	out = append(out, b...)
	pad := (wordSize - len(b)%wordSize) % wordSize
	out = append(out, make([]byte, pad)...)
	return out
}
