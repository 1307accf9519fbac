package store

import (
	"context"

	"github.com/p2pmarket/marketd/internal/domain/bid"
	"github.com/p2pmarket/marketd/internal/domain/comment"
	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/domain/listing"
	"github.com/p2pmarket/marketd/internal/domain/market"
	"github.com/p2pmarket/marketd/internal/domain/order"
	"github.com/p2pmarket/marketd/internal/domain/proposal"
)

// Repositories gives access to every repository bound to one connection
// or transaction.
type Repositories interface {
	Bids() bid.Repository
	Orders() order.Repository
	Listings() listing.Repository
	Markets() market.Repository
	Comments() comment.Repository
	Proposals() proposal.Repository
	Envelopes() envelope.Repository
}

// TxFunc runs inside a transaction. Returning an error rolls it back.
type TxFunc func(ctx context.Context, tx Repositories) error

// Store is the persistence root.
type Store interface {
	Repositories
	// InTx runs fn in one transaction serialised with every other InTx
	// call sharing lockKey.
	InTx(ctx context.Context, lockKey string, fn TxFunc) error
}

// Lock keys for the units of mutual exclusion.
func OrderLockKey(chainHash string) string { return "order:" + chainHash }

// ProposalLockKey serialises work on one proposal.
func ProposalLockKey(proposalHash string) string { return "proposal:" + proposalHash }

// ObjectLockKey serialises work on a standalone object.
func ObjectLockKey(hash string) string { return "object:" + hash }
