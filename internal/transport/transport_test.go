package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func jsonRPCServer(t *testing.T, handler func(method string) (interface{}, *struct {
	Code    int
	Message string
})) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		result, rpcErr := handler(req.Method)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = map[string]interface{}{"code": rpcErr.Code, "message": rpcErr.Message}
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestCallHTTPDecodesResult(t *testing.T) {
	srv := jsonRPCServer(t, func(method string) (interface{}, *struct {
		Code    int
		Message string
	}) {
		if method == "web3_clientVersion" {
			return "Geth/v1.13.14", nil
		}
		return nil, nil
	})
	defer srv.Close()

	tp, err := Dial(context.Background(), Endpoint{Kind: KindHTTP, URL: srv.URL})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	var version string
	if callErr := tp.Call(context.Background(), "web3_clientVersion", nil, &version); callErr != nil {
		t.Fatalf("Call: %v", callErr)
	}
	if version != "Geth/v1.13.14" {
		t.Fatalf("version = %q", version)
	}
}

func TestCallHTTPMapsMethodNotFound(t *testing.T) {
	srv := jsonRPCServer(t, func(method string) (interface{}, *struct {
		Code    int
		Message string
	}) {
		return nil, &struct {
			Code    int
			Message string
		}{Code: -32601, Message: "method not found"}
	})
	defer srv.Close()

	tp, err := Dial(context.Background(), Endpoint{Kind: KindHTTP, URL: srv.URL})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	callErr := tp.Call(context.Background(), "debug_traceTransaction", nil, nil)
	if callErr == nil || callErr.Kind != ErrMethodNotFound {
		t.Fatalf("expected ErrMethodNotFound, got %v", callErr)
	}
	if callErr.IsRetryable() {
		t.Fatalf("method-not-found should not be retryable")
	}
}

func TestHealthRecordsLatencySamples(t *testing.T) {
	srv := jsonRPCServer(t, func(method string) (interface{}, *struct {
		Code    int
		Message string
	}) {
		return "anvil/v0.2.0", nil
	})
	defer srv.Close()

	tp, err := Dial(context.Background(), Endpoint{Kind: KindHTTP, URL: srv.URL})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, _, healthErr := tp.Health(context.Background()); healthErr != nil {
			t.Fatalf("Health: %v", healthErr)
		}
	}
	stats := tp.LatencyStats()
	if stats.Samples != 3 {
		t.Fatalf("samples = %d, want 3", stats.Samples)
	}
	if stats.Max < stats.P50 {
		t.Fatalf("max (%s) should be >= p50 (%s)", stats.Max, stats.P50)
	}
}

func TestDetectNodeKindFromClientVersion(t *testing.T) {
	cases := map[string]NodeKind{
		"anvil/v0.2.0":               NodeAnvil,
		"Geth/v1.13.14-stable/linux": NodeGeth,
		"reth/v0.1.0":                NodeReth,
		"Nethermind/v1.25":           NodeNethermind,
		"besu/v23":                   NodeBesu,
		"totally unknown client":     NodeUnknown,
	}
	for v, want := range cases {
		if got := DetectNodeKind(v); got != want {
			t.Fatalf("DetectNodeKind(%q) = %v, want %v", v, got, want)
		}
	}
}

func TestCallRespectsContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	tp, err := Dial(context.Background(), Endpoint{Kind: KindHTTP, URL: srv.URL})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	callErr := tp.Call(ctx, "eth_blockNumber", nil, nil)
	if callErr == nil {
		t.Fatalf("expected a timeout error")
	}
}
