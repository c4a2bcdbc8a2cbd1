package abiregistry

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Param is one named, typed function/event parameter as it appears in
// artifact JSON.
type Param struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Indexed    bool    `json:"indexed"`
	Components []Param `json:"components"`
}

// rawEntry mirrors one element of an artifact's top-level "abi" array.
type rawEntry struct {
	Type    string  `json:"type"`
	Name    string  `json:"name"`
	Inputs  []Param `json:"inputs"`
	Outputs []Param `json:"outputs"`
}

// FunctionEntry is one registered ABI entry (spec §3 "ABI entry").
type FunctionEntry struct {
	Selector  [4]byte
	Name      string
	Signature string // canonical signature string
	Params    []Descriptor
	ParamNames []string
}

// EventEntry mirrors FunctionEntry for logs (topic0 instead of a
// 4-byte selector).
type EventEntry struct {
	Topic0     [32]byte
	Name       string
	Signature  string
	Params     []Descriptor
	ParamNames []string
	Indexed    []bool
}

func paramToDescriptor(p Param) (Descriptor, error) {
	var components []Descriptor
	for _, c := range p.Components {
		cd, err := paramToDescriptor(c)
		if err != nil {
			return Descriptor{}, err
		}
		components = append(components, cd)
	}
	return ParseTypeName(p.Type, components)
}

// CanonicalSignature builds "name(type1,type2,...)" from a name and a
// parameter list (spec §4.C), with tuples expanded recursively.
func CanonicalSignature(name string, params []Descriptor) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.CanonicalTypeName()
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}

// Selector computes the first 4 bytes of keccak256(signature).
func Selector(signature string) [4]byte {
	h := crypto.Keccak256([]byte(signature))
	var sel [4]byte
	copy(sel[:], h[:4])
	return sel
}

// Topic0 computes the full 32-byte keccak256(signature) used as an
// event's topic0.
func Topic0(signature string) [32]byte {
	h := crypto.Keccak256([]byte(signature))
	var t [32]byte
	copy(t[:], h)
	return t
}

func parseFunctionEntry(e rawEntry) (FunctionEntry, error) {
	var params []Descriptor
	var names []string
	for _, in := range e.Inputs {
		d, err := paramToDescriptor(in)
		if err != nil {
			return FunctionEntry{}, err
		}
		params = append(params, d)
		names = append(names, in.Name)
	}
	sig := CanonicalSignature(e.Name, params)
	return FunctionEntry{
		Selector:   Selector(sig),
		Name:       e.Name,
		Signature:  sig,
		Params:     params,
		ParamNames: names,
	}, nil
}

func parseEventEntry(e rawEntry) (EventEntry, error) {
	var params []Descriptor
	var names []string
	var indexed []bool
	for _, in := range e.Inputs {
		d, err := paramToDescriptor(in)
		if err != nil {
			return EventEntry{}, err
		}
		params = append(params, d)
		names = append(names, in.Name)
		indexed = append(indexed, in.Indexed)
	}
	sig := CanonicalSignature(e.Name, params)
	return EventEntry{
		Topic0:     Topic0(sig),
		Name:       e.Name,
		Signature:  sig,
		Params:     params,
		ParamNames: names,
		Indexed:    indexed,
	}, nil
}

// artifact is the subset of a Foundry/Hardhat build artifact this
// registry reads (spec §4.C "Parsing").
type artifact struct {
	ABI json.RawMessage `json:"abi"`
}

func parseArtifact(data []byte) (functions []FunctionEntry, events []EventEntry, err error) {
	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, nil, err
	}
	if len(art.ABI) == 0 {
		return nil, nil, nil
	}
	var entries []rawEntry
	if err := json.Unmarshal(art.ABI, &entries); err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		switch e.Type {
		case "function":
			fe, err := parseFunctionEntry(e)
			if err != nil {
				continue // skip entries this registry can't describe; don't fail the whole artifact
			}
			functions = append(functions, fe)
		case "event":
			ee, err := parseEventEntry(e)
			if err != nil {
				continue
			}
			events = append(events, ee)
		}
	}
	return functions, events, nil
}
