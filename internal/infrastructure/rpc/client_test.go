package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pmarket/marketd/internal/domain/bid"
	"github.com/p2pmarket/marketd/internal/domain/chain"
	"github.com/p2pmarket/marketd/internal/protocol"
)

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id"`
}

// fakeDaemon answers JSON-RPC calls from a method table and records requests.
type fakeDaemon struct {
	mu       sync.Mutex
	results  map[string]any
	requests []rpcRequest
}

func (d *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d.mu.Lock()
	d.requests = append(d.requests, req)
	result, ok := d.results[req.Method]
	d.mu.Unlock()

	resp := map[string]any{"id": req.ID, "result": result, "error": nil}
	if !ok {
		resp["result"] = nil
		resp["error"] = map[string]any{"code": -32601, "message": "Method not found"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (d *fakeDaemon) last() rpcRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[len(d.requests)-1]
}

func newTestClient(t *testing.T, results map[string]any) (*Client, *fakeDaemon) {
	t.Helper()
	d := &fakeDaemon{results: results}
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{URL: srv.URL, User: "u", Pass: "p"}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, d
}

// particlTx is a standard Particl transaction: version and type bytes, the
// lock time ahead of the inputs, and a type byte on each output.
const particlTx = "a000" + "00000000" +
	"01" + "1111111111111111111111111111111111111111111111111111111111111111" + "00000000" + "00" + "ffffffff" +
	"01" + "01" + "8813000000000000" + "01" + "51"

func TestClient_Send(t *testing.T) {
	c, d := newTestClient(t, map[string]any{
		"smsgsend": map[string]any{"result": "Sent.", "msgid": "abc", "txid": "tx1", "fee": 0.0001},
	})
	msg := protocol.NewMessage(&protocol.BidCancelAction{
		ActionBase: protocol.ActionBase{Type: protocol.TypeBidCancel, Generated: 1, Hash: "h"},
		BidRef:     protocol.BidRef{Bid: "b"},
	})

	res, err := c.Send(context.Background(), msg, chain.SendParams{From: "pbuyer", To: "pseller", Paid: true, DaysRetention: 7})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.MsgID)
	assert.Equal(t, btcutil.Amount(10000), res.Fee)
	assert.Empty(t, res.Error)

	req := d.last()
	require.Len(t, req.Params, 6)
	assert.JSONEq(t, `"pbuyer"`, string(req.Params[0]))
	var body string
	require.NoError(t, json.Unmarshal(req.Params[2], &body))
	decoded, err := protocol.Decode([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeBidCancel, decoded.Type())
}

func TestClient_SendNotSent(t *testing.T) {
	c, _ := newTestClient(t, map[string]any{
		"smsgsend": map[string]any{"result": "Send failed.", "error": "insufficient funds"},
	})
	msg := protocol.NewMessage(&protocol.BidRejectAction{
		ActionBase: protocol.ActionBase{Type: protocol.TypeBidReject, Generated: 1, Hash: "h"},
	})

	res, err := c.Send(context.Background(), msg, chain.SendParams{From: "a", To: "b"})
	require.NoError(t, err)
	assert.Equal(t, "insufficient funds", res.Error)
}

func TestClient_Query(t *testing.T) {
	c, d := newTestClient(t, map[string]any{
		"getaddressbalance":  map[string]any{"balance": 250000000, "received": 300000000},
		"getblockchaininfo":  map[string]any{"chain": "test", "blocks": 42, "moneysupply": 1000.5},
		"sendrawtransaction": "txid-1",
	})
	ctx := context.Background()

	bal, err := c.GetAddressBalance(ctx, "pvoter")
	require.NoError(t, err)
	assert.Equal(t, btcutil.Amount(250000000), bal)
	assert.JSONEq(t, `{"addresses":["pvoter"]}`, string(d.last().Params[0]))

	info, err := c.GetBlockchainInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), info.Blocks)
	assert.Equal(t, 1000.5, info.MoneySupply)

	txid, err := c.BroadcastTransaction(ctx, particlTx)
	require.NoError(t, err)
	assert.Equal(t, "txid-1", txid)
	assert.JSONEq(t, `"`+particlTx+`"`, string(d.last().Params[0]))

	calls := len(d.requests)
	_, err = c.BroadcastTransaction(ctx, "zz")
	assert.ErrorContains(t, err, "not hex")
	_, err = c.BroadcastTransaction(ctx, " ")
	assert.ErrorContains(t, err, "empty")
	assert.Len(t, d.requests, calls)
}

func TestClient_BuildEscrow(t *testing.T) {
	c, d := newTestClient(t, map[string]any{"mpescrowbuild": "0100"})
	bids := []*bid.Bid{
		{Type: protocol.TypeBid, Hash: "b1", Payload: json.RawMessage(`{"type":"MPA_BID"}`)},
		{Type: protocol.TypeBidAccept, Hash: "b2", Payload: json.RawMessage(`{"type":"MPA_ACCEPT"}`)},
	}

	raw, err := c.Build(context.Background(), protocol.TypeEscrowLock, bids)
	require.NoError(t, err)
	assert.Equal(t, "0100", raw)

	req := d.last()
	assert.Equal(t, "mpescrowbuild", req.Method)
	assert.JSONEq(t, `"MPA_LOCK"`, string(req.Params[0]))
	var sent []escrowBid
	require.NoError(t, json.Unmarshal(req.Params[1], &sent))
	require.Len(t, sent, 2)
	assert.Equal(t, "b2", sent[1].Hash)
}

func TestClient_RPCError(t *testing.T) {
	c, _ := newTestClient(t, map[string]any{})

	_, err := c.GetBlockchainInfo(context.Background())
	assert.ErrorContains(t, err, "getblockchaininfo failed")
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(Config{URL: "not a url"}, zerolog.Nop())
	assert.Error(t, err)
}
