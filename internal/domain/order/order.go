package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// ItemStatus is the lifecycle state of an OrderItem.
type ItemStatus string

const (
	ItemBidded          ItemStatus = "BIDDED"
	ItemBidCancelled    ItemStatus = "BID_CANCELLED"
	ItemBidRejected     ItemStatus = "BID_REJECTED"
	ItemAwaitingEscrow  ItemStatus = "AWAITING_ESCROW"
	ItemEscrowLocked    ItemStatus = "ESCROW_LOCKED"
	ItemEscrowCompleted ItemStatus = "ESCROW_COMPLETED"
	ItemShipping        ItemStatus = "SHIPPING"
	ItemComplete        ItemStatus = "COMPLETE"
	ItemEscrowRefunded  ItemStatus = "ESCROW_REFUNDED"
)

// AllItemStatuses lists every OrderItem state.
var AllItemStatuses = []ItemStatus{
	ItemBidded,
	ItemBidCancelled,
	ItemBidRejected,
	ItemAwaitingEscrow,
	ItemEscrowLocked,
	ItemEscrowCompleted,
	ItemShipping,
	ItemComplete,
	ItemEscrowRefunded,
}

// Status is the aggregate state of an Order.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusProcessing Status = "PROCESSING"
	StatusShipping   Status = "SHIPPING"
	StatusComplete   Status = "COMPLETE"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// A cancelled item may still be completed by a seller completion that was
// already in flight when the buyer cancelled. Refunds extend the base table:
// a locked or completed escrow may move to ESCROW_REFUNDED.
var transitions = map[ItemStatus][]ItemStatus{
	ItemBidded:          {ItemBidCancelled, ItemBidRejected, ItemAwaitingEscrow},
	ItemAwaitingEscrow:  {ItemBidCancelled, ItemEscrowLocked},
	ItemEscrowLocked:    {ItemBidCancelled, ItemEscrowCompleted, ItemEscrowRefunded},
	ItemEscrowCompleted: {ItemShipping, ItemComplete, ItemEscrowRefunded},
	ItemShipping:        {ItemComplete},
	ItemBidCancelled:    {ItemEscrowCompleted},
}

var orderStatuses = map[ItemStatus]Status{
	ItemBidded:          StatusCreated,
	ItemAwaitingEscrow:  StatusProcessing,
	ItemEscrowLocked:    StatusProcessing,
	ItemEscrowCompleted: StatusProcessing,
	ItemShipping:        StatusShipping,
	ItemComplete:        StatusComplete,
	ItemBidRejected:     StatusRejected,
	ItemBidCancelled:    StatusCancelled,
	ItemEscrowRefunded:  StatusRefunded,
}

var stepTargets = map[protocol.ActionType]ItemStatus{
	protocol.TypeBidAccept:      ItemAwaitingEscrow,
	protocol.TypeBidReject:      ItemBidRejected,
	protocol.TypeBidCancel:      ItemBidCancelled,
	protocol.TypeEscrowLock:     ItemEscrowLocked,
	protocol.TypeEscrowComplete: ItemEscrowCompleted,
	protocol.TypeOrderItemShip:  ItemShipping,
	protocol.TypeEscrowRelease:  ItemComplete,
	protocol.TypeEscrowRefund:   ItemEscrowRefunded,
}

// IsLegalTransition reports whether target directly follows current.
func IsLegalTransition(current, target ItemStatus) bool {
	for _, s := range transitions[current] {
		if s == target {
			return true
		}
	}
	return false
}

// CanEventuallyTransition reports whether target is reachable from current
// through one or more legal transitions.
func CanEventuallyTransition(current, target ItemStatus) bool {
	seen := map[ItemStatus]bool{current: true}
	queue := []ItemStatus{current}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, s := range transitions[next] {
			if s == target {
				return true
			}
			if !seen[s] {
				seen[s] = true
				queue = append(queue, s)
			}
		}
	}
	return false
}

// StatusFor maps an item state to the order state it implies.
func StatusFor(item ItemStatus) Status {
	return orderStatuses[item]
}

// TargetFor returns the item state a chain step drives toward.
func TargetFor(step protocol.ActionType) (ItemStatus, bool) {
	s, ok := stepTargets[step]
	return s, ok
}

// Order aggregates the items bought through one bid chain.
type Order struct {
	ID        uuid.UUID `json:"id"`
	Hash      string    `json:"hash"`
	Buyer     string    `json:"buyer"`
	Seller    string    `json:"seller"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Item is one purchased listing within an Order.
type Item struct {
	ID          uuid.UUID  `json:"id"`
	OrderID     uuid.UUID  `json:"orderId"`
	BidHash     string     `json:"bidHash"`
	ListingHash string     `json:"listingHash"`
	Status      ItemStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// New opens an order for a freshly received or sent bid.
func New(bidHash, listingHash, buyer, seller string) (*Order, *Item) {
	now := time.Now().UTC()
	o := &Order{
		ID:        uuid.New(),
		Hash:      bidHash,
		Buyer:     buyer,
		Seller:    seller,
		Status:    StatusFor(ItemBidded),
		CreatedAt: now,
		UpdatedAt: now,
	}
	it := &Item{
		ID:          uuid.New(),
		OrderID:     o.ID,
		BidHash:     bidHash,
		ListingHash: listingHash,
		Status:      ItemBidded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return o, it
}

// Advance moves the item to target and derives the order status from it.
// Neither value is touched when the transition is illegal.
func Advance(o *Order, it *Item, target ItemStatus) error {
	if !IsLegalTransition(it.Status, target) {
		return apperr.BusinessRule("order item %s cannot move from %s to %s", it.BidHash, it.Status, target)
	}
	now := time.Now().UTC()
	it.Status = target
	it.UpdatedAt = now
	o.Status = StatusFor(target)
	o.UpdatedAt = now
	return nil
}
