package command

import (
	"strings"
	"testing"

	"poke/internal/abiregistry"
)

func TestTokenizeResolvesAliases(t *testing.T) {
	cases := []struct {
		text string
		verb Verb
	}{
		{"blk", VerbBlocks},
		{"tx", VerbTxs},
		{"addr 0xabc", VerbAddress},
		{"q", VerbQuit},
		{"  selector   transfer(address,uint256)  ", VerbSelector},
	}
	for _, c := range cases {
		pc := Tokenize(c.text)
		if pc.Verb != c.verb {
			t.Fatalf("Tokenize(%q).Verb = %q, want %q", c.text, pc.Verb, c.verb)
		}
	}
}

func TestHintLooksUpAliasAndPrefix(t *testing.T) {
	if Hint("") != "" {
		t.Fatalf("expected no hint for empty prefix")
	}
	if h := Hint("blk"); !strings.Contains(h, "block ring") {
		t.Fatalf("expected alias lookup to resolve to the canonical hint, got %q", h)
	}
	if h := Hint("conv"); !strings.Contains(h, "convert") {
		t.Fatalf("expected prefix match for %q, got %q", "conv", h)
	}
}

func TestConvertEtherScenario(t *testing.T) {
	e := New(nil)
	a := e.Execute("convert 1.5 ether")
	if a.Kind != ActionNotify {
		t.Fatalf("expected a notify action, got %v", a.Kind)
	}
	for _, want := range []string{"1500000000000000000 wei", "1500000000 gwei", "1.500000000000000000 ether"} {
		if !strings.Contains(a.Message, want) {
			t.Fatalf("convert message %q missing %q", a.Message, want)
		}
	}
}

func TestConvertUnknownUnit(t *testing.T) {
	e := New(nil)
	a := e.Execute("convert 1 parsec")
	if a.Kind != ActionNotify {
		t.Fatalf("expected notify, got %v", a.Kind)
	}
	if !strings.Contains(a.Message, "unknown unit") {
		t.Fatalf("expected unknown-unit message, got %q", a.Message)
	}
}

func TestSelectorScenario(t *testing.T) {
	e := New(nil)
	a := e.Execute("selector transfer(address,uint256)")
	if a.Message != "0xa9059cbb" {
		t.Fatalf("selector = %s, want 0xa9059cbb", a.Message)
	}
}

func TestChecksumScenario(t *testing.T) {
	e := New(nil)
	a := e.Execute("checksum 0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	want := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	if a.CopyText != want {
		t.Fatalf("checksum = %s, want %s", a.CopyText, want)
	}
}

func TestHashEmptyString(t *testing.T) {
	e := New(nil)
	a := e.Execute("hash")
	want := "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if a.Message != want {
		t.Fatalf("hash of empty string = %s, want %s", a.Message, want)
	}
}

func TestSlotMappingScenario(t *testing.T) {
	e := New(nil)
	// Mapping at slot 3 with key 0x...dEaD: keccak256(pad(key) || pad(3)).
	// Only the shape of the result (a 32-byte hex word) is checked.
	a := e.Execute("slot mapping 3 0x0000000000000000000000000000000000000000000000000000000000dEaD")
	if a.Kind != ActionNotify {
		t.Fatalf("expected notify action, got %v", a.Kind)
	}
	if !strings.HasPrefix(a.Message, "0x") || len(a.Message) != 66 {
		t.Fatalf("expected a 32-byte hex slot, got %q", a.Message)
	}
}

func TestSlotArrayScenario(t *testing.T) {
	e := New(nil)
	a := e.Execute("slot array 5 2")
	if a.Kind != ActionNotify || !strings.HasPrefix(a.Message, "0x") {
		t.Fatalf("expected a hex slot notify, got %+v", a)
	}
}

func TestCreateAddress(t *testing.T) {
	e := New(nil)
	a := e.Execute("create 0x6ac7ea33f8831ea9dcc53393aaa88b25a785dbf0 0")
	if a.Kind != ActionCopy {
		t.Fatalf("expected a copy action, got %v", a.Kind)
	}
	if !strings.HasPrefix(a.CopyText, "0x") || len(a.CopyText) != 42 {
		t.Fatalf("expected a 20-byte address, got %q", a.CopyText)
	}
}

func TestCreate2Address(t *testing.T) {
	e := New(nil)
	a := e.Execute("create2 0x0000000000000000000000000000000000000000 0x00 0x00")
	if a.Kind != ActionCopy || len(a.CopyText) != 42 {
		t.Fatalf("expected a 20-byte address copy, got %+v", a)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := New(nil)
	encoded := e.Execute("encode transfer(address,uint256) 0x000000000000000000000000000000000000aa 5")
	if encoded.Kind != ActionCopy {
		t.Fatalf("expected a copy action from encode, got %v: %s", encoded.Kind, encoded.Message)
	}
	if !strings.HasPrefix(encoded.CopyText, "0xa9059cbb") {
		t.Fatalf("expected encoded calldata to start with the transfer selector, got %s", encoded.CopyText)
	}

	decoded := e.Execute("decode " + encoded.CopyText)
	if decoded.Kind != ActionNotify {
		t.Fatalf("expected a notify action from decode, got %v", decoded.Kind)
	}
	if !strings.Contains(decoded.Message, "no registry loaded") {
		t.Fatalf("expected an unregistered-selector notice with a nil registry, got %q", decoded.Message)
	}
}

func TestEncodeRejectsWrongArgCount(t *testing.T) {
	e := New(nil)
	a := e.Execute("encode transfer(address,uint256) 0x00")
	if a.Kind != ActionNotify || !strings.Contains(a.Message, "bad argument") {
		t.Fatalf("expected a bad-argument notify, got %+v", a)
	}
}

func TestParamsFromSignatureRejectsTuples(t *testing.T) {
	_, err := paramsFromSignature("f((uint256,uint256))")
	if err == nil {
		t.Fatalf("expected an error for a tuple-typed argument parsed from a bare signature")
	}
}

func TestSplitTopLevelCommasRespectsNesting(t *testing.T) {
	got := splitTopLevelCommas("(a,b),c,d")
	want := []string{"(a,b)", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("splitTopLevelCommas = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitTopLevelCommas[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReloadAbiProducesDedicatedAction(t *testing.T) {
	e := New(abiregistry.NewManager(t.TempDir()))
	a := e.Execute("reload-abi")
	if a.Kind != ActionReloadAbi {
		t.Fatalf("expected ActionReloadAbi, got %v", a.Kind)
	}
}

func TestUnwiredOpsVerbsNotify(t *testing.T) {
	e := New(nil)
	a := e.Execute("peers")
	if a.Kind != ActionNotify {
		t.Fatalf("expected notify for an unwired ops verb, got %v", a.Kind)
	}
}
