// Package transport implements the single-endpoint JSON-RPC contract
// from spec §4.A: call/health over HTTP, WebSocket, or a local socket,
// with a 3s per-call timeout budget and no autonomous retry — the
// engine owns retry policy.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"

	"poke/internal/rpctypes"
)

// DefaultCallTimeout is the per-call budget named in spec §4.A.
const DefaultCallTimeout = 3 * time.Second

// IdlePingInterval keeps persistent (WS/IPC) connections alive.
const IdlePingInterval = 1 * time.Second

// Transport owns one JSON-RPC endpoint connection. It is safe for
// concurrent use by multiple callers (the ingestion thread multiplexes
// several in-flight calls on it), but is intended to be owned by a
// single ingestion thread per spec §5.
type Transport struct {
	endpoint Endpoint
	log      log.Logger

	idCounter uint64

	httpClient *http.Client

	// persistent connection state, used for KindWS/KindIPC. gen
	// identifies the current connection generation: a read loop or
	// idle-ping goroutine started by an earlier generation (one
	// Reopen ago) compares its gen against t.gen before mutating
	// shared state, so a stale goroutine racing against a fresh
	// reconnect can never clobber it.
	mu       sync.Mutex
	gen      uint64
	wsConn   *websocket.Conn
	ipcConn  net.Conn
	pending  map[uint64]chan pendingResult
	closed   bool
	closeErr error

	statsMu sync.Mutex
	samples []time.Duration // ring of the last latencySampleCap Health() latencies
}

// latencySampleCap bounds the rolling latency window the `rpc-stats`
// ops verb reports over (spec §12: "observed over the last 64 calls").
const latencySampleCap = 64

// LatencyStats is a rolling view of recent Health() latency.
type LatencyStats struct {
	P50, P90, Max time.Duration
	Samples       int
}

func (t *Transport) recordLatency(d time.Duration) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.samples = append(t.samples, d)
	if len(t.samples) > latencySampleCap {
		t.samples = t.samples[len(t.samples)-latencySampleCap:]
	}
}

// LatencyStats computes p50/p90/max over the recorded Health() window.
func (t *Transport) LatencyStats() LatencyStats {
	t.statsMu.Lock()
	sorted := append([]time.Duration(nil), t.samples...)
	t.statsMu.Unlock()
	if len(sorted) == 0 {
		return LatencyStats{}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	p50 := sorted[percentileIndex(len(sorted), 50)]
	p90 := sorted[percentileIndex(len(sorted), 90)]
	return LatencyStats{P50: p50, P90: p90, Max: sorted[len(sorted)-1], Samples: len(sorted)}
}

func percentileIndex(n, pct int) int {
	i := n * pct / 100
	if i >= n {
		return n - 1
	}
	return i
}

// Dial opens the transport for the given endpoint. For HTTP this only
// constructs a client (no connection is made yet); for WS/IPC it
// establishes the persistent connection and starts a read loop.
func Dial(ctx context.Context, ep Endpoint) (*Transport, error) {
	t := &Transport{
		endpoint: ep,
		log:      log.New("component", "transport"),
		pending:  make(map[uint64]chan pendingResult),
	}

	if ep.Kind == KindHTTP {
		t.httpClient = &http.Client{Timeout: DefaultCallTimeout}
		return t, nil
	}
	if err := t.connect(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// connect establishes (or re-establishes) the persistent WS/IPC
// connection bound to t and starts its read loop and idle-ping
// goroutines against t itself — never against a separate *Transport —
// so reconnects adopt t.pending in place instead of stranding it.
func (t *Transport) connect(ctx context.Context) error {
	switch t.endpoint.Kind {
	case KindWS:
		dialer := websocket.Dialer{HandshakeTimeout: DefaultCallTimeout}
		conn, _, err := dialer.DialContext(ctx, t.endpoint.URL, nil)
		if err != nil {
			return newErr(ErrNetwork, err)
		}
		t.mu.Lock()
		t.gen++
		gen := t.gen
		t.wsConn = conn
		t.pending = make(map[uint64]chan pendingResult)
		t.closed = false
		t.mu.Unlock()
		go t.readLoopWS(gen, conn)
		go t.idlePing(gen)
	case KindIPC:
		conn, err := net.Dial("unix", t.endpoint.URL)
		if err != nil {
			return newErr(ErrNetwork, err)
		}
		t.mu.Lock()
		t.gen++
		gen := t.gen
		t.ipcConn = conn
		t.pending = make(map[uint64]chan pendingResult)
		t.closed = false
		t.mu.Unlock()
		go t.readLoopIPC(gen, conn)
		go t.idlePing(gen)
	default:
		return newErr(ErrNotConnected, fmt.Errorf("unknown endpoint kind %d", t.endpoint.Kind))
	}
	return nil
}

// Endpoint returns the endpoint this transport is bound to.
func (t *Transport) Endpoint() Endpoint { return t.endpoint }

// Reopen closes and re-establishes a persistent connection (WS/IPC).
// Per spec §4.A, the transport only reconnects to reopen a socket that
// was previously closed — it never reconnects proactively on its own.
func (t *Transport) Reopen(ctx context.Context) error {
	t.mu.Lock()
	oldWS := t.wsConn
	oldIPC := t.ipcConn
	t.mu.Unlock()
	if oldWS != nil {
		oldWS.Close()
	}
	if oldIPC != nil {
		oldIPC.Close()
	}
	return t.connect(ctx)
}

// Close tears down any persistent connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.wsConn != nil {
		return t.wsConn.Close()
	}
	if t.ipcConn != nil {
		return t.ipcConn.Close()
	}
	return nil
}

// Call issues one JSON-RPC request and decodes its result into out (if
// non-nil). It respects ctx for cancellation but always applies
// DefaultCallTimeout as an upper bound when ctx carries none shorter.
func (t *Transport) Call(ctx context.Context, method string, params []interface{}, out interface{}) *Error {
	ctx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()

	req := rpctypes.Request{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&t.idCounter, 1),
		Method:  method,
		Params:  params,
	}

	var resp rpctypes.Response
	var err *Error
	switch t.endpoint.Kind {
	case KindHTTP:
		resp, err = t.callHTTP(ctx, req)
	case KindWS, KindIPC:
		resp, err = t.callPersistent(ctx, req)
	default:
		return newErr(ErrNotConnected, fmt.Errorf("transport not connected"))
	}
	if err != nil {
		return err
	}
	if resp.Error != nil {
		if resp.Error.Code == -32601 {
			return &Error{Kind: ErrMethodNotFound, Code: resp.Error.Code, Msg: resp.Error.Message}
		}
		return &Error{Kind: ErrRPCError, Code: resp.Error.Code, Msg: resp.Error.Message, Data: resp.Error.Data}
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return newErr(ErrDecode, err)
		}
	}
	return nil
}

func (t *Transport) callHTTP(ctx context.Context, req rpctypes.Request) (rpctypes.Response, *Error) {
	var resp rpctypes.Response
	body, err := json.Marshal(req)
	if err != nil {
		return resp, newErr(ErrDecode, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return resp, newErr(ErrNetwork, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return resp, newErr(ErrTimeout, err)
		}
		return resp, newErr(ErrNetwork, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return resp, newErr(ErrNetwork, err)
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return resp, newErr(ErrDecode, err)
	}
	return resp, nil
}

func (t *Transport) callPersistent(ctx context.Context, req rpctypes.Request) (rpctypes.Response, *Error) {
	var resp rpctypes.Response

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return resp, newErr(ErrNotConnected, fmt.Errorf("connection closed"))
	}
	ch := make(chan pendingResult, 1)
	t.pending[req.ID] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return resp, newErr(ErrDecode, err)
	}

	t.mu.Lock()
	if t.wsConn != nil {
		err = t.wsConn.WriteMessage(websocket.TextMessage, body)
	} else if t.ipcConn != nil {
		_, err = t.ipcConn.Write(append(body, '\n'))
	} else {
		err = fmt.Errorf("no persistent connection")
	}
	t.mu.Unlock()
	if err != nil {
		return resp, newErr(ErrNetwork, err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return resp, newErr(ErrNetwork, r.err)
		}
		return r.resp, nil
	case <-ctx.Done():
		return resp, newErr(ErrTimeout, ctx.Err())
	}
}

// readLoopWS and readLoopIPC each own one connection, captured at
// start rather than re-read off t, so a goroutine from an earlier
// generation never begins reading a connection a later Reopen
// installed. gen identifies which generation this loop belongs to, so
// its terminal failPending/deliver calls are dropped if a newer
// generation has since taken over.
func (t *Transport) readLoopWS(gen uint64, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.failPending(gen, err)
			return
		}
		t.dispatch(gen, raw)
	}
}

func (t *Transport) readLoopIPC(gen uint64, conn net.Conn) {
	dec := json.NewDecoder(conn)
	for {
		var resp rpctypes.Response
		if err := dec.Decode(&resp); err != nil {
			t.failPending(gen, err)
			return
		}
		t.deliver(gen, resp)
	}
}

func (t *Transport) dispatch(gen uint64, raw []byte) {
	var resp rpctypes.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.log.Warn("malformed rpc frame", "err", err)
		return
	}
	t.deliver(gen, resp)
}

func (t *Transport) deliver(gen uint64, resp rpctypes.Response) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	ch, ok := t.pending[resp.ID]
	t.mu.Unlock()
	if ok {
		ch <- pendingResult{resp: resp}
	}
}

func (t *Transport) failPending(gen uint64, err error) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.closeErr = err
	pending := t.pending
	t.pending = make(map[uint64]chan pendingResult)
	t.mu.Unlock()
	for _, ch := range pending {
		ch <- pendingResult{err: err}
	}
}

// pendingResult is delivered to a blocked Call once its response frame
// arrives, or once the connection dies (err set, resp zero).
type pendingResult struct {
	resp rpctypes.Response
	err  error
}

// idlePing keeps a persistent connection alive (spec §4.A: "for
// WebSocket and socket transports, an additional 1-second idle ping").
// WS has a protocol-level ping control frame; a unix socket has none,
// so IPC keepalive is a bare newline — valid whitespace between JSON-
// RPC frames for any decoder reading newline-delimited JSON, and a
// real write syscall that surfaces a dead peer promptly.
func (t *Transport) idlePing(gen uint64) {
	ticker := time.NewTicker(IdlePingInterval)
	defer ticker.Stop()
	for range ticker.C {
		t.mu.Lock()
		if gen != t.gen || t.closed {
			t.mu.Unlock()
			return
		}
		ws := t.wsConn
		ipc := t.ipcConn
		t.mu.Unlock()

		switch {
		case ws != nil:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(IdlePingInterval)); err != nil {
				return
			}
		case ipc != nil:
			if _, err := ipc.Write([]byte("\n")); err != nil {
				return
			}
		}
	}
}

// Health issues web3_clientVersion and measures wall-clock latency
// (spec §4.A).
func (t *Transport) Health(ctx context.Context) (time.Duration, NodeKind, *Error) {
	start := time.Now()
	var version string
	if err := t.Call(ctx, "web3_clientVersion", nil, &version); err != nil {
		return 0, NodeUnknown, err
	}
	latency := time.Since(start)
	kind := DetectNodeKind(version)
	t.endpoint.NodeKind = kind
	t.endpoint.LatestLatency = latency
	t.recordLatency(latency)
	return latency, kind, nil
}
