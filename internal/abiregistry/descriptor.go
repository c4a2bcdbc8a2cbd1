// Package abiregistry implements the ABI Registry (spec §4.C): a
// concurrent filesystem scanner that indexes contract-artifact JSON
// into a selector -> (name, signature, params) map and a
// topic0 -> event map, plus a calldata/event decoder and encoder built
// on a closed set of parameter-descriptor variants (spec §9
// "Polymorphic ABI parameter descriptors").
package abiregistry

import (
	"fmt"
	"strings"
)

// Kind is the closed set of descriptor variants named in spec §9.
type Kind int

const (
	KindInteger Kind = iota
	KindAddress
	KindBool
	KindFixedBytes
	KindDynamicBytes
	KindString
	KindArray
	KindTuple
)

// Descriptor is one element-by-element ABI parameter type description
// (spec §3 "ABI entry"). A single decode/encode function dispatches on
// Kind; no open extension is needed.
type Descriptor struct {
	Kind Kind

	// KindInteger
	Width  int // bit width, e.g. 256
	Signed bool

	// KindFixedBytes
	FixedBytesLen int

	// KindArray
	Elem       *Descriptor
	ArrayLen   int  // >=0 for fixed-length arrays
	IsDynArray bool // true for T[] (length-prefixed dynamic array)

	// KindTuple
	TupleName  string // optional field name carried for display
	Components []Descriptor
}

// IsDynamic reports whether the descriptor's ABI encoding is dynamic
// (head/tail encoding addresses it by offset), per the Ethereum ABI
// spec: string, bytes, T[] are always dynamic; T[k] and tuples are
// dynamic iff any component is dynamic.
func (d Descriptor) IsDynamic() bool {
	switch d.Kind {
	case KindString, KindDynamicBytes:
		return true
	case KindArray:
		if d.IsDynArray {
			return true
		}
		return d.Elem != nil && d.Elem.IsDynamic()
	case KindTuple:
		for _, c := range d.Components {
			if c.IsDynamic() {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// CanonicalTypeName renders the descriptor the way it appears inside a
// canonical function/event signature: normalized elementary names, no
// spaces, tuples expanded as (t1,t2,...), arrays with their bracket
// suffix (spec §2/§4.C "canonicalize").
func (d Descriptor) CanonicalTypeName() string {
	switch d.Kind {
	case KindInteger:
		prefix := "uint"
		if d.Signed {
			prefix = "int"
		}
		return fmt.Sprintf("%s%d", prefix, d.Width)
	case KindAddress:
		return "address"
	case KindBool:
		return "bool"
	case KindFixedBytes:
		return fmt.Sprintf("bytes%d", d.FixedBytesLen)
	case KindDynamicBytes:
		return "bytes"
	case KindString:
		return "string"
	case KindArray:
		inner := ""
		if d.Elem != nil {
			inner = d.Elem.CanonicalTypeName()
		}
		if d.IsDynArray {
			return inner + "[]"
		}
		return fmt.Sprintf("%s[%d]", inner, d.ArrayLen)
	case KindTuple:
		parts := make([]string, len(d.Components))
		for i, c := range d.Components {
			parts[i] = c.CanonicalTypeName()
		}
		return "(" + strings.Join(parts, ",") + ")"
	default:
		return "unknown"
	}
}

// ParseTypeName parses a single Solidity type name (already appearing
// inside a canonical signature, or from a raw ABI JSON "type" field)
// into a Descriptor. Tuple component descriptors must be supplied by
// the caller via components (parsed from the ABI JSON "components"
// array) since tuple syntax alone ("tuple", "tuple[]", ...) carries no
// element types.
func ParseTypeName(raw string, components []Descriptor) (Descriptor, error) {
	name := normalizeElementary(raw)

	// Array suffix stripping: handle arbitrarily nested [N] / [] from
	// the right, recursing on the element type.
	if idx := strings.LastIndexByte(name, ']'); idx == len(name)-1 {
		open := strings.LastIndexByte(name, '[')
		if open < 0 {
			return Descriptor{}, fmt.Errorf("malformed array type %q", raw)
		}
		inner := name[:open]
		lenPart := name[open+1 : idx]

		elemDesc, err := ParseTypeName(inner, components)
		if err != nil {
			return Descriptor{}, err
		}
		if lenPart == "" {
			return Descriptor{Kind: KindArray, Elem: &elemDesc, IsDynArray: true}, nil
		}
		var n int
		if _, err := fmt.Sscanf(lenPart, "%d", &n); err != nil {
			return Descriptor{}, fmt.Errorf("bad array length in %q: %w", raw, err)
		}
		return Descriptor{Kind: KindArray, Elem: &elemDesc, ArrayLen: n}, nil
	}

	switch {
	case name == "address":
		return Descriptor{Kind: KindAddress}, nil
	case name == "bool":
		return Descriptor{Kind: KindBool}, nil
	case name == "string":
		return Descriptor{Kind: KindString}, nil
	case name == "bytes":
		return Descriptor{Kind: KindDynamicBytes}, nil
	case strings.HasPrefix(name, "bytes"):
		var n int
		if _, err := fmt.Sscanf(name[len("bytes"):], "%d", &n); err != nil {
			return Descriptor{}, fmt.Errorf("bad fixed-bytes type %q", raw)
		}
		return Descriptor{Kind: KindFixedBytes, FixedBytesLen: n}, nil
	case strings.HasPrefix(name, "uint"):
		w := 256
		if rest := name[len("uint"):]; rest != "" {
			fmt.Sscanf(rest, "%d", &w)
		}
		return Descriptor{Kind: KindInteger, Width: w, Signed: false}, nil
	case strings.HasPrefix(name, "int"):
		w := 256
		if rest := name[len("int"):]; rest != "" {
			fmt.Sscanf(rest, "%d", &w)
		}
		return Descriptor{Kind: KindInteger, Width: w, Signed: true}, nil
	case name == "tuple" || strings.HasPrefix(raw, "tuple"):
		return Descriptor{Kind: KindTuple, Components: components}, nil
	default:
		return Descriptor{}, fmt.Errorf("unsupported abi type %q", raw)
	}
}

// normalizeElementary applies the elementary-type normalization rules
// named in spec §4.C: "uint" -> "uint256", "int" -> "int256", no
// spaces.
func normalizeElementary(raw string) string {
	name := strings.ReplaceAll(raw, " ", "")
	switch name {
	case "uint":
		return "uint256"
	case "int":
		return "int256"
	case "fixed":
		return "fixed128x18"
	case "ufixed":
		return "ufixed128x18"
	default:
		return name
	}
}
