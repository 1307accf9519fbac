package chain

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_chain.go -package=mocks . Transport,Query,EscrowBuilder,Signer

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/p2pmarket/marketd/internal/domain/bid"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// SendParams addresses an outgoing message.
type SendParams struct {
	From          string
	To            string
	Paid          bool
	DaysRetention int
	EstimateFee   bool
}

// SendResult is what the transport reports for a send or estimate.
type SendResult struct {
	MsgID string         `json:"msgid,omitempty"`
	TxID  string         `json:"txid,omitempty"`
	Fee   btcutil.Amount `json:"fee"`
	Error string         `json:"error,omitempty"`
}

// BlockchainInfo is the subset of chain state the node reads.
type BlockchainInfo struct {
	Chain       string  `json:"chain"`
	Blocks      int64   `json:"blocks"`
	MoneySupply float64 `json:"moneysupply"`
}

// Transport sends messages over the store-and-forward network.
type Transport interface {
	Send(ctx context.Context, msg *protocol.Message, params SendParams) (*SendResult, error)
}

// Query reads and writes chain state.
type Query interface {
	GetAddressBalance(ctx context.Context, address string) (btcutil.Amount, error)
	GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error)
	BroadcastTransaction(ctx context.Context, rawTx string) (string, error)
}

// EscrowBuilder constructs the raw transaction for an escrow step.
type EscrowBuilder interface {
	Build(ctx context.Context, step protocol.ActionType, chain []*bid.Bid) (string, error)
}

// Signer signs messages with wallet keys.
type Signer interface {
	SignMessage(address, message string) (string, error)
}
