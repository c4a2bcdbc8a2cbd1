package command

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"poke/internal/abiregistry"
	"poke/internal/state"
)

var convertUnits = map[string]uint64{
	"wei": 0, "kwei": 3, "mwei": 6, "gwei": 9,
	"szabo": 12, "finney": 15, "ether": 18, "eth": 18,
}

// convert parses "<n>[unit]" and reports the amount in wei, gwei, and
// ether in one response (spec §4.E "convert").
func (e *Engine) convert(args []string) Action {
	if len(args) < 1 {
		return notify("convert requires a value", state.SeverityWarn)
	}
	numStr := args[0]
	unit := "ether"
	if len(args) > 1 {
		unit = strings.ToLower(args[1])
	}
	decimals, ok := convertUnits[unit]
	if !ok {
		return notify(fmt.Sprintf("unknown unit %q", unit), state.SeverityWarn)
	}

	wei, err := decimalToWei(numStr, decimals)
	if err != nil {
		return notify(fmt.Sprintf("bad value %q: %v", numStr, err), state.SeverityWarn)
	}

	gweiDiv := uint256.NewInt(1_000_000_000)
	etherDiv := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))
	gwei := new(uint256.Int).Div(wei, gweiDiv)
	etherWhole := new(uint256.Int).Div(wei, etherDiv)
	etherRem := new(uint256.Int).Mod(wei, etherDiv)

	msg := fmt.Sprintf("%s wei = %s gwei = %s.%018s ether", wei.Dec(), gwei.Dec(), etherWhole.Dec(), etherRem.Dec())
	return notify(msg, state.SeverityInfo)
}

// decimalToWei renders a decimal string (possibly with a fractional
// part) at `decimals` of precision into an overflow-checked 256-bit
// wei amount. github.com/holiman/uint256 is used here (256-bit) rather than
// a hand-rolled 128-bit integer: it is the pack's grounded fixed-width
// arithmetic type and still provides the explicit overflow detection
// spec §4.E asks for.
func decimalToWei(numStr string, decimals uint64) (*uint256.Int, error) {
	neg := strings.HasPrefix(numStr, "-")
	if neg {
		return nil, fmt.Errorf("negative amounts are not supported")
	}
	whole, frac, _ := strings.Cut(numStr, ".")
	if whole == "" {
		whole = "0"
	}
	for uint64(len(frac)) < decimals {
		frac += "0"
	}
	if uint64(len(frac)) > decimals {
		frac = frac[:decimals]
	}
	combined := whole + frac
	if combined == "" {
		combined = "0"
	}
	v, err := uint256.FromDecimal(combined)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// hexInspect implements the polymorphic `hex` verb (spec §4.E "hex").
func (e *Engine) hexInspect(args []string) Action {
	if len(args) < 1 {
		return notify("hex requires a value", state.SeverityWarn)
	}
	v := args[0]
	switch {
	case strings.HasPrefix(v, "0x"):
		b := common.FromHex(v)
		msg := fmt.Sprintf("%d bytes", len(b))
		if len(b) <= 16 {
			n := new(uint256.Int).SetBytes(b)
			msg += fmt.Sprintf(", decimal %s", n.Dec())
		}
		if isPrintable(b) {
			msg += fmt.Sprintf(", utf8 %q", string(b))
		}
		return notify(msg, state.SeverityInfo)
	case isAllDigits(v):
		n, err := uint256.FromDecimal(v)
		if err != nil {
			return notify(fmt.Sprintf("bad decimal %q: %v", v, err), state.SeverityWarn)
		}
		b32 := n.Bytes32()
		return notify(fmt.Sprintf("hex 0x%x, bytes32 0x%x", n.Bytes(), b32), state.SeverityInfo)
	default:
		return notify(fmt.Sprintf("0x%x", []byte(v)), state.SeverityInfo)
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return len(b) > 0
}

// hashCmd computes keccak256 over raw string bytes, or over decoded
// bytes if the input is 0x-prefixed hex (spec §4.E "hash").
func (e *Engine) hashCmd(args []string) Action {
	input := strings.Join(args, " ")
	var data []byte
	if strings.HasPrefix(input, "0x") {
		data = common.FromHex(input)
	} else {
		data = []byte(input)
	}
	h := crypto.Keccak256(data)
	return notify(fmt.Sprintf("0x%x", h), state.SeverityInfo)
}

// selectorCmd normalizes a signature and computes its 4-byte selector
// (spec §4.E "selector").
func (e *Engine) selectorCmd(args []string) Action {
	if len(args) < 1 {
		return notify("selector requires a signature", state.SeverityWarn)
	}
	sig := normalizeSignature(strings.Join(args, ""))
	sel := abiregistry.Selector(sig)
	return notify(fmt.Sprintf("0x%x", sel), state.SeverityInfo)
}

func normalizeSignature(sig string) string {
	sig = strings.ReplaceAll(sig, " ", "")
	if idx := strings.Index(sig, "returns"); idx >= 0 {
		sig = sig[:idx]
	}
	return sig
}

// fourByteCmd looks a selector up against the current ABI registry
// snapshot (spec §4.E "4byte").
func (e *Engine) fourByteCmd(args []string) Action {
	if len(args) < 1 {
		return notify("4byte requires a selector", state.SeverityWarn)
	}
	raw := common.FromHex(args[0])
	if len(raw) != 4 {
		return notify("selector must be 4 bytes", state.SeverityWarn)
	}
	var sel [4]byte
	copy(sel[:], raw)
	if e.Registry == nil {
		return notify("not in cache", state.SeverityInfo)
	}
	entries := e.Registry.Current().FunctionsFor(sel)
	if len(entries) == 0 {
		return notify("not in cache", state.SeverityInfo)
	}
	return notify(entries[0].Signature, state.SeverityInfo)
}

// checksumCmd applies EIP-55 (spec §4.E "checksum"): lowercase the 40
// hex digits, hash them, uppercase digit i if hash_hex[i] >= '8'.
func (e *Engine) checksumCmd(args []string) Action {
	if len(args) < 1 {
		return notify("checksum requires an address", state.SeverityWarn)
	}
	addr := strings.ToLower(strings.TrimPrefix(args[0], "0x"))
	if len(addr) != 40 {
		return notify("address must be 20 bytes", state.SeverityWarn)
	}
	hash := crypto.Keccak256([]byte(addr))
	hashHex := fmt.Sprintf("%x", hash)

	var out strings.Builder
	out.WriteString("0x")
	for i, c := range addr {
		if c >= '0' && c <= '9' {
			out.WriteRune(c)
			continue
		}
		if hashHex[i] >= '8' {
			out.WriteRune(c - 32) // uppercase
		} else {
			out.WriteRune(c)
		}
	}
	return Action{Kind: ActionCopy, CopyText: out.String(), Message: out.String(), Severity: state.SeverityInfo}
}

// timestampCmd renders a unix timestamp (spec §4.E "timestamp").
func (e *Engine) timestampCmd(args []string) Action {
	var t time.Time
	if len(args) == 0 || args[0] == "now" {
		t = time.Now().UTC()
	} else {
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return notify(fmt.Sprintf("bad timestamp %q: %v", args[0], err), state.SeverityWarn)
		}
		t = time.Unix(n, 0).UTC()
	}
	return notify(t.Format(time.RFC3339), state.SeverityInfo)
}

// slotCmd computes mapping/array storage slots (spec §4.E "slot").
func (e *Engine) slotCmd(args []string) Action {
	if len(args) < 3 {
		return notify("slot requires kind, slot number, and key/index", state.SeverityWarn)
	}
	kind, slotStr, keyStr := args[0], args[1], args[2]
	slotNum, ok := parseUint256(slotStr)
	if !ok {
		return notify(fmt.Sprintf("bad slot number %q", slotStr), state.SeverityWarn)
	}
	slotPadded := slotNum.Bytes32()

	switch kind {
	case "mapping":
		keyPadded := padKey(keyStr)
		buf := append(append([]byte{}, keyPadded[:]...), slotPadded[:]...)
		h := crypto.Keccak256(buf)
		return notify(fmt.Sprintf("0x%x", h), state.SeverityInfo)
	case "array":
		idx, ok := parseUint256(keyStr)
		if !ok {
			return notify(fmt.Sprintf("bad index %q", keyStr), state.SeverityWarn)
		}
		base := crypto.Keccak256(slotPadded[:])
		baseInt := new(uint256.Int).SetBytes(base)
		result := new(uint256.Int).Add(baseInt, idx)
		b32 := result.Bytes32()
		return notify(fmt.Sprintf("0x%x", b32), state.SeverityInfo)
	default:
		return notify(fmt.Sprintf("slot kind must be mapping or array, got %q", kind), state.SeverityWarn)
	}
}

// parseUint256 accepts either a 0x-prefixed hex literal or a decimal
// string.
func parseUint256(s string) (*uint256.Int, bool) {
	if strings.HasPrefix(s, "0x") {
		n, err := uint256.FromHex(s)
		if err != nil {
			return nil, false
		}
		return n, true
	}
	n, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, false
	}
	return n, true
}

// padKey left-pads a key to 32 bytes; hex keys are right-aligned (the
// ABI encoding of `address` in a mapping key), decimal keys are
// rendered as a big-endian 256-bit integer.
func padKey(keyStr string) [32]byte {
	var out [32]byte
	if strings.HasPrefix(keyStr, "0x") {
		b := common.FromHex(keyStr)
		if len(b) > 32 {
			b = b[len(b)-32:]
		}
		copy(out[32-len(b):], b)
		return out
	}
	n, ok := parseUint256(keyStr)
	if !ok {
		return out
	}
	return n.Bytes32()
}

// createCmd implements CREATE address computation (spec §4.E "create"):
// keccak256(rlp([deployer, nonce]))[12:32].
func (e *Engine) createCmd(args []string) Action {
	if len(args) < 2 {
		return notify("create requires deployer and nonce", state.SeverityWarn)
	}
	deployer := common.HexToAddress(args[0])
	nonce, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return notify(fmt.Sprintf("bad nonce %q: %v", args[1], err), state.SeverityWarn)
	}
	encoded, err := rlp.EncodeToBytes([]interface{}{deployer, nonce})
	if err != nil {
		return notify(fmt.Sprintf("rlp encode: %v", err), state.SeverityWarn)
	}
	h := crypto.Keccak256(encoded)
	addr := common.BytesToAddress(h[12:])
	return Action{Kind: ActionCopy, CopyText: addr.Hex(), Message: addr.Hex(), Severity: state.SeverityInfo}
}

// create2Cmd implements CREATE2 (spec §4.E "create2"):
// keccak256(0xff || deployer || salt || initcode_hash)[12:32]. The
// third argument is either a 32-byte initcode hash or raw initcode
// bytes, hashed first if its length isn't 32 bytes.
func (e *Engine) create2Cmd(args []string) Action {
	if len(args) < 3 {
		return notify("create2 requires deployer, salt, and initcode or its hash", state.SeverityWarn)
	}
	deployer := common.HexToAddress(args[0])
	salt := common.HexToHash(args[1])
	raw := common.FromHex(args[2])

	var initcodeHash []byte
	if len(raw) == 32 {
		initcodeHash = raw
	} else {
		h := crypto.Keccak256(raw)
		initcodeHash = h
	}

	buf := make([]byte, 0, 1+20+32+32)
	buf = append(buf, 0xff)
	buf = append(buf, deployer.Bytes()...)
	buf = append(buf, salt.Bytes()...)
	buf = append(buf, initcodeHash...)
	h := crypto.Keccak256(buf)
	addr := common.BytesToAddress(h[12:])
	return Action{Kind: ActionCopy, CopyText: addr.Hex(), Message: addr.Hex(), Severity: state.SeverityInfo}
}

// encodeCmd ABI-encodes a call given its signature and argument
// strings (spec §4.E "encode" — "Delegates to the ABI registry's
// decoder/encoder").
func (e *Engine) encodeCmd(args []string) Action {
	if len(args) < 1 {
		return notify("encode requires a signature", state.SeverityWarn)
	}
	sig := args[0]
	sel := abiregistry.Selector(sig)
	params, err := paramsFromSignature(sig)
	if err != nil {
		return notify(fmt.Sprintf("bad signature %q: %v", sig, err), state.SeverityWarn)
	}
	values, err := valuesFromStrings(params, args[1:])
	if err != nil {
		return notify(fmt.Sprintf("bad argument: %v", err), state.SeverityWarn)
	}
	encoded, err := abiregistry.EncodeArgs(values)
	if err != nil {
		return notify(fmt.Sprintf("encode: %v", err), state.SeverityWarn)
	}
	full := append(sel[:], encoded...)
	return Action{Kind: ActionCopy, CopyText: fmt.Sprintf("0x%x", full), Message: fmt.Sprintf("0x%x", full), Severity: state.SeverityInfo}
}

// decodeCmd ABI-decodes calldata against the registered selector if
// known, otherwise reports the raw hex and "selector not registered"
// (spec §4.C "On decode failure, surface raw hex... do not throw").
func (e *Engine) decodeCmd(args []string) Action {
	if len(args) < 1 {
		return notify("decode requires calldata", state.SeverityWarn)
	}
	data := common.FromHex(args[0])
	if len(data) < 4 {
		return notify(fmt.Sprintf("raw: 0x%x (too short for a selector)", data), state.SeverityWarn)
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	if e.Registry == nil {
		return notify(fmt.Sprintf("raw: 0x%x (no registry loaded)", data), state.SeverityInfo)
	}
	entries := e.Registry.Current().FunctionsFor(sel)
	if len(entries) == 0 {
		return notify(fmt.Sprintf("raw: 0x%x (selector %x not registered)", data, sel), state.SeverityInfo)
	}
	entry := entries[0]
	decoded, err := abiregistry.DecodeArgs(data[4:], entry.Params)
	if err != nil {
		return notify(fmt.Sprintf("%s(...) — decode failed: %v, raw 0x%x", entry.Name, err, data), state.SeverityWarn)
	}
	parts := make([]string, len(decoded))
	for i, d := range decoded {
		parts[i] = fmt.Sprintf("%v", d.Value)
	}
	return notify(fmt.Sprintf("%s(%s)", entry.Name, strings.Join(parts, ", ")), state.SeverityInfo)
}

// paramsFromSignature parses the type list out of a canonical-looking
// "name(type1,type2,...)" string. Tuple-typed arguments are not
// supported here: a canonical signature renders a tuple as "(t1,t2)",
// but abiregistry.ParseTypeName needs a tuple's component descriptors
// supplied separately (as parsed artifact JSON does), which a bare
// signature string does not carry.
func paramsFromSignature(sig string) ([]abiregistry.Descriptor, error) {
	open := strings.IndexByte(sig, '(')
	closeIdx := strings.LastIndexByte(sig, ')')
	if open < 0 || closeIdx < 0 || closeIdx < open {
		return nil, fmt.Errorf("missing parentheses in %q", sig)
	}
	inner := strings.TrimSpace(sig[open+1 : closeIdx])
	if inner == "" {
		return nil, nil
	}
	typeStrs := splitTopLevelCommas(inner)
	params := make([]abiregistry.Descriptor, len(typeStrs))
	for i, ts := range typeStrs {
		ts = strings.TrimSpace(ts)
		if strings.HasPrefix(ts, "(") {
			return nil, fmt.Errorf("tuple-typed arguments are not supported from a bare signature string")
		}
		d, err := abiregistry.ParseTypeName(ts, nil)
		if err != nil {
			return nil, err
		}
		params[i] = d
	}
	return params, nil
}

// splitTopLevelCommas splits on commas that are not nested inside
// parentheses (so "(a,b),c" splits into ["(a,b)", "c"]).
func splitTopLevelCommas(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// valuesFromStrings converts CLI argument strings into DecodedValues
// matching params, for `:encode`.
func valuesFromStrings(params []abiregistry.Descriptor, args []string) ([]abiregistry.DecodedValue, error) {
	if len(args) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(args))
	}
	out := make([]abiregistry.DecodedValue, len(params))
	for i, p := range params {
		v, err := valueFromString(p, args[i])
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out[i] = abiregistry.DecodedValue{Descriptor: p, Value: v}
	}
	return out, nil
}

func valueFromString(d abiregistry.Descriptor, s string) (interface{}, error) {
	switch d.Kind {
	case abiregistry.KindInteger:
		n, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return nil, fmt.Errorf("bad integer %q", s)
		}
		return n, nil
	case abiregistry.KindBool:
		return strconv.ParseBool(s)
	case abiregistry.KindAddress:
		return common.HexToAddress(s), nil
	case abiregistry.KindFixedBytes, abiregistry.KindDynamicBytes:
		return common.FromHex(s), nil
	case abiregistry.KindString:
		return s, nil
	default:
		return nil, fmt.Errorf("%s arguments are not supported from the CLI encode verb", d.CanonicalTypeName())
	}
}
