package state

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// comparator is one of the value-predicate operators named in spec
// §4.D ("Filter parsing").
type comparator int

const (
	cmpEq comparator = iota
	cmpGt
	cmpGte
	cmpLt
	cmpLte
)

type valuePredicate struct {
	op  comparator
	wei *big.Int
}

// Filter is a parsed set of predicates over Transaction (spec §3
// "Filter"). The zero value matches everything.
type Filter struct {
	raw        string
	from       *common.Address
	to         *common.Address
	method     string
	value      *valuePredicate
	substrings []string
}

// Raw returns the filter text it was parsed from, for display.
func (f Filter) Raw() string { return f.raw }

// IsEmpty reports whether this filter matches every transaction.
func (f Filter) IsEmpty() bool {
	return f.from == nil && f.to == nil && f.method == "" && f.value == nil && len(f.substrings) == 0
}

var unitToWei = map[string]*big.Int{
	"wei":    big.NewInt(1),
	"kwei":   big.NewInt(1_000),
	"mwei":   big.NewInt(1_000_000),
	"gwei":   big.NewInt(1_000_000_000),
	"szabo":  big.NewInt(1_000_000_000_000),
	"finney": big.NewInt(1_000_000_000_000_000),
	"ether":  new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
}

// ParseFilter tokenizes and parses a filter string per spec §4.D.
// "clear"/"reset"/"none" (after trimming) produce the empty filter.
func ParseFilter(text string) (Filter, error) {
	trimmed := strings.TrimSpace(text)
	switch strings.ToLower(trimmed) {
	case "", "clear", "reset", "none":
		return Filter{raw: trimmed}, nil
	}

	f := Filter{raw: trimmed}
	for _, tok := range strings.Fields(trimmed) {
		switch {
		case strings.HasPrefix(tok, "from:"):
			a := common.HexToAddress(strings.TrimPrefix(tok, "from:"))
			f.from = &a
		case strings.HasPrefix(tok, "to:"):
			a := common.HexToAddress(strings.TrimPrefix(tok, "to:"))
			f.to = &a
		case strings.HasPrefix(tok, "method:"):
			f.method = strings.TrimPrefix(tok, "method:")
		case strings.HasPrefix(tok, "value:"):
			vp, err := parseValuePredicate(strings.TrimPrefix(tok, "value:"))
			if err != nil {
				return Filter{}, fmt.Errorf("value predicate %q: %w", tok, err)
			}
			f.value = &vp
		case strings.HasPrefix(tok, "label:"):
			f.substrings = append(f.substrings, strings.ToLower(strings.TrimPrefix(tok, "label:")))
		default:
			f.substrings = append(f.substrings, strings.ToLower(tok))
		}
	}
	return f, nil
}

// parseValuePredicate parses "<op><number>[unit]" where op defaults to
// "=" and unit defaults to ether (spec §4.D).
func parseValuePredicate(s string) (valuePredicate, error) {
	op := cmpEq
	switch {
	case strings.HasPrefix(s, ">="):
		op, s = cmpGte, s[2:]
	case strings.HasPrefix(s, "<="):
		op, s = cmpLte, s[2:]
	case strings.HasPrefix(s, ">"):
		op, s = cmpGt, s[1:]
	case strings.HasPrefix(s, "<"):
		op, s = cmpLt, s[1:]
	case strings.HasPrefix(s, "="):
		op, s = cmpEq, s[1:]
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return valuePredicate{}, fmt.Errorf("missing number")
	}
	numStr := fields[0]
	unit := "ether"
	if len(fields) > 1 {
		unit = strings.ToLower(fields[1])
	} else if idx := firstLetterIndex(numStr); idx >= 0 {
		unit = strings.ToLower(numStr[idx:])
		numStr = numStr[:idx]
	}

	wei, err := toWei(numStr, unit)
	if err != nil {
		return valuePredicate{}, err
	}
	return valuePredicate{op: op, wei: wei}, nil
}

func firstLetterIndex(s string) int {
	for i, r := range s {
		if (r == 'e' || r == 'E') && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
			continue // exponent of a number in scientific notation
		}
		if (r < '0' || r > '9') && r != '.' && r != '-' {
			return i
		}
	}
	return -1
}

// toWei converts a quantity written as an integer, a decimal fraction
// or in scientific notation ("1e18") in the given unit (wei, kwei,
// mwei, gwei, szabo, finney, ether) into an integer wei amount.
func toWei(numStr, unit string) (*big.Int, error) {
	mult, ok := unitToWei[unit]
	if !ok {
		return nil, fmt.Errorf("unknown unit %q", unit)
	}

	if !strings.ContainsAny(numStr, ".eE") {
		n, ok := new(big.Int).SetString(numStr, 10)
		if !ok {
			return nil, fmt.Errorf("bad number %q", numStr)
		}
		return new(big.Int).Mul(n, mult), nil
	}

	f, ok := new(big.Float).SetPrec(256).SetString(numStr)
	if !ok {
		return nil, fmt.Errorf("bad number %q", numStr)
	}
	f.Mul(f, new(big.Float).SetInt(mult))
	wei, _ := f.Int(nil)
	return wei, nil
}

// Matches reports whether tx satisfies every predicate in f (spec §8
// invariant: "For all transactions in the visible set, the filter
// predicate returns true").
func (f Filter) Matches(tx Transaction, label string) bool {
	if f.from != nil && tx.From != *f.from {
		return false
	}
	if f.to != nil {
		if tx.To == nil || *tx.To != *f.to {
			return false
		}
	}
	if f.method != "" {
		if tx.DecodedMethod == nil || !strings.EqualFold(*tx.DecodedMethod, f.method) {
			return false
		}
	}
	if f.value != nil && !f.value.matches(tx.Value) {
		return false
	}
	for _, sub := range f.substrings {
		if !matchesSubstring(tx, label, sub) {
			return false
		}
	}
	return true
}

func (vp valuePredicate) matches(v *big.Int) bool {
	if v == nil {
		v = new(big.Int)
	}
	c := v.Cmp(vp.wei)
	switch vp.op {
	case cmpGt:
		return c > 0
	case cmpGte:
		return c >= 0
	case cmpLt:
		return c < 0
	case cmpLte:
		return c <= 0
	default:
		return c == 0
	}
}

func matchesSubstring(tx Transaction, label, sub string) bool {
	if strings.Contains(strings.ToLower(tx.Hash.Hex()), sub) {
		return true
	}
	if strings.Contains(strings.ToLower(tx.From.Hex()), sub) {
		return true
	}
	if tx.To != nil && strings.Contains(strings.ToLower(tx.To.Hex()), sub) {
		return true
	}
	if strings.Contains(strings.ToLower(label), sub) {
		return true
	}
	return false
}

// Apply returns the subset of txs that match f, preserving order.
func (f Filter) Apply(txs []Transaction, labels map[string]string) []Transaction {
	if f.IsEmpty() {
		return txs
	}
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		label := labels[strings.ToLower(tx.From.Hex())]
		if tx.To != nil {
			if l2, ok := labels[strings.ToLower(tx.To.Hex())]; ok {
				label = label + " " + l2
			}
		}
		if f.Matches(tx, label) {
			out = append(out, tx)
		}
	}
	return out
}
