package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/rs/zerolog"

	"github.com/p2pmarket/marketd/internal/domain/bid"
	"github.com/p2pmarket/marketd/internal/domain/chain"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// DefaultEscrowMethod is the wallet call that assembles escrow transactions.
const DefaultEscrowMethod = "mpescrowbuild"

type Config struct {
	URL          string
	User         string
	Pass         string
	EscrowMethod string
}

// Client talks to the chain daemon over JSON-RPC. It serves as the message
// transport, the chain query and the escrow builder.
type Client struct {
	rpc          *rpcclient.Client
	escrowMethod string
	logger       zerolog.Logger
}

var (
	_ chain.Transport     = (*Client)(nil)
	_ chain.Query         = (*Client)(nil)
	_ chain.EscrowBuilder = (*Client)(nil)
)

// NewClient creates a JSON-RPC client for the chain daemon.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rpc url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("rpc url must include a host: %q", cfg.URL)
	}
	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         u.Host + u.Path,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   u.Scheme != "https",
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc client: %w", err)
	}
	method := cfg.EscrowMethod
	if method == "" {
		method = DefaultEscrowMethod
	}
	return &Client{
		rpc:          rpc,
		escrowMethod: method,
		logger:       logger.With().Str("service", "rpc").Logger(),
	}, nil
}

// Close shuts down the underlying RPC client.
func (c *Client) Close() {
	c.rpc.Shutdown()
}

// call issues method and decodes its result into out. Context cancellation
// abandons the wait but not the request already posted.
func (c *Client) call(ctx context.Context, method string, out any, params ...any) error {
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode %s params: %w", method, err)
		}
		raw = append(raw, b)
	}

	future := c.rpc.RawRequestAsync(method, raw)
	done := make(chan struct{})
	var (
		result json.RawMessage
		err    error
	)
	go func() {
		result, err = future.Receive()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

type smsgSendResult struct {
	Result string  `json:"result"`
	MsgID  string  `json:"msgid"`
	TxID   string  `json:"txid"`
	Fee    float64 `json:"fee"`
	Error  string  `json:"error"`
}

// Send publishes msg through smsgsend.
func (c *Client) Send(ctx context.Context, msg *protocol.Message, params chain.SendParams) (*chain.SendResult, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	var res smsgSendResult
	err = c.call(ctx, "smsgsend", &res,
		params.From, params.To, string(body), params.Paid, params.DaysRetention, params.EstimateFee)
	if err != nil {
		return nil, err
	}

	fee, err := btcutil.NewAmount(res.Fee)
	if err != nil {
		return nil, fmt.Errorf("invalid fee %v: %w", res.Fee, err)
	}
	out := &chain.SendResult{MsgID: res.MsgID, TxID: res.TxID, Fee: fee, Error: res.Error}
	if out.Error == "" && !params.EstimateFee && !strings.EqualFold(res.Result, "Sent.") {
		out.Error = res.Result
	}
	c.logger.Debug().
		Str("action", string(msg.Type())).
		Str("msgid", out.MsgID).
		Bool("estimate", params.EstimateFee).
		Msg("smsgsend")
	return out, nil
}

// GetAddressBalance returns the confirmed balance of address.
func (c *Client) GetAddressBalance(ctx context.Context, address string) (btcutil.Amount, error) {
	var res struct {
		Balance int64 `json:"balance"`
	}
	arg := map[string][]string{"addresses": {address}}
	if err := c.call(ctx, "getaddressbalance", &res, arg); err != nil {
		return 0, err
	}
	return btcutil.Amount(res.Balance), nil
}

// GetBlockchainInfo returns the daemon chain state.
func (c *Client) GetBlockchainInfo(ctx context.Context) (*chain.BlockchainInfo, error) {
	var info chain.BlockchainInfo
	if err := c.call(ctx, "getblockchaininfo", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// BroadcastTransaction submits a signed raw transaction and returns its txid.
func (c *Client) BroadcastTransaction(ctx context.Context, rawTx string) (string, error) {
	if err := checkRawTx(rawTx); err != nil {
		return "", err
	}
	var txid string
	if err := c.call(ctx, "sendrawtransaction", &txid, rawTx); err != nil {
		return "", err
	}
	return txid, nil
}

// checkRawTx rejects a payload that is not hex before it reaches the daemon.
// The transaction layout is left to sendrawtransaction.
func checkRawTx(rawTx string) error {
	if strings.TrimSpace(rawTx) == "" {
		return fmt.Errorf("raw transaction is empty")
	}
	if _, err := hex.DecodeString(rawTx); err != nil {
		return fmt.Errorf("raw transaction is not hex: %w", err)
	}
	return nil
}

type escrowBid struct {
	Type    protocol.ActionType `json:"type"`
	Hash    string              `json:"hash"`
	Payload json.RawMessage     `json:"payload"`
}

// Build asks the wallet for the escrow transaction of step.
func (c *Client) Build(ctx context.Context, step protocol.ActionType, bids []*bid.Bid) (string, error) {
	chainArg := make([]escrowBid, 0, len(bids))
	for _, b := range bids {
		chainArg = append(chainArg, escrowBid{Type: b.Type, Hash: b.Hash, Payload: b.Payload})
	}
	var rawTx string
	if err := c.call(ctx, c.escrowMethod, &rawTx, string(step), chainArg); err != nil {
		return "", err
	}
	return rawTx, nil
}
