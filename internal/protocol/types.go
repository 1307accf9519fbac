package protocol

import (
	"encoding/json"
	"fmt"
)

// ActionType is the wire tag of a marketplace action.
type ActionType string

const (
	TypeListingAdd      ActionType = "MPA_LISTING_ADD"
	TypeBid             ActionType = "MPA_BID"
	TypeBidAccept       ActionType = "MPA_ACCEPT"
	TypeBidReject       ActionType = "MPA_REJECT"
	TypeBidCancel       ActionType = "MPA_CANCEL"
	TypeEscrowLock      ActionType = "MPA_LOCK"
	TypeEscrowComplete  ActionType = "MPA_COMPLETE"
	TypeEscrowRelease   ActionType = "MPA_RELEASE"
	TypeEscrowRefund    ActionType = "MPA_REFUND"
	TypeOrderItemShip   ActionType = "MPA_SHIP"
	TypeProposalAdd     ActionType = "MPA_PROPOSAL_ADD"
	TypeVote            ActionType = "MPA_VOTE"
	TypeMarketAdd       ActionType = "MPA_MARKET_ADD"
	TypeListingImageAdd ActionType = "MPA_LISTING_IMAGE_ADD"
	TypeCommentAdd      ActionType = "MPA_COMMENT_ADD"
)

// AllActionTypes lists every action kind the node understands.
var AllActionTypes = []ActionType{
	TypeListingAdd,
	TypeBid,
	TypeBidAccept,
	TypeBidReject,
	TypeBidCancel,
	TypeEscrowLock,
	TypeEscrowComplete,
	TypeEscrowRelease,
	TypeEscrowRefund,
	TypeOrderItemShip,
	TypeProposalAdd,
	TypeVote,
	TypeMarketAdd,
	TypeListingImageAdd,
	TypeCommentAdd,
}

// IsBidChainStep reports whether t is one of the steps following an MPA_BID.
func (t ActionType) IsBidChainStep() bool {
	switch t {
	case TypeBidAccept, TypeBidReject, TypeBidCancel,
		TypeEscrowLock, TypeEscrowComplete, TypeEscrowRelease, TypeEscrowRefund,
		TypeOrderItemShip:
		return true
	}
	return false
}

// ObjectKey names a known entry of the objects side-channel.
type ObjectKey string

const (
	KeyTxidLock     ObjectKey = "txid.lock"
	KeyTxidComplete ObjectKey = "txid.complete"
	KeyTxidRelease  ObjectKey = "txid.release"
	KeyTxidRefund   ObjectKey = "txid.refund"
	KeyShippingMemo ObjectKey = "shipping.memo"
	KeyRejectReason ObjectKey = "reject.reason"
	KeyReleaseMemo  ObjectKey = "release.memo"
	KeyRefundMemo   ObjectKey = "refund.memo"
)

// KVS is one objects entry.
type KVS struct {
	Key   ObjectKey `json:"key"`
	Value string    `json:"value"`
}

// Objects is the key-value side-channel attached to an action.
type Objects []KVS

// Get returns the value stored under key.
func (o Objects) Get(key ObjectKey) (string, bool) {
	for _, kv := range o {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Set stores value under key, replacing an earlier value.
func (o *Objects) Set(key ObjectKey, value string) {
	for i, kv := range *o {
		if kv.Key == key {
			(*o)[i].Value = value
			return
		}
	}
	*o = append(*o, KVS{Key: key, Value: value})
}

// Action is the sealed sum type of all marketplace actions.
type Action interface {
	Header() *ActionBase
	sealed()
}

// ActionBase carries the fields common to every action.
type ActionBase struct {
	Type      ActionType `json:"type"`
	Generated int64      `json:"generated"`
	Hash      string     `json:"hash"`
	Objects   Objects    `json:"objects,omitempty"`
}

func (b *ActionBase) Header() *ActionBase { return b }

func (b *ActionBase) sealed() {}

// Object is a typed accessor over the side-channel.
func (b *ActionBase) Object(key ObjectKey) string {
	v, _ := b.Objects.Get(key)
	return v
}

// BidRef ties a chain step to the MPA_BID that opened the chain.
type BidRef struct {
	Bid string `json:"bid"`
}

func (r BidRef) BidHash() string { return r.Bid }

// ChainStep is implemented by every action that advances a bid chain.
type ChainStep interface {
	Action
	BidHash() string
}

// ListingPayload describes a listing as announced on the market.
type ListingPayload struct {
	Seller      string `json:"seller"`
	Market      string `json:"market"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Expires     int64  `json:"expires"`
}

type ListingAddAction struct {
	ActionBase
	Item ListingPayload `json:"item"`
}

type ShippingAddress struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type BuyerInfo struct {
	Address         string           `json:"address"`
	ShippingAddress *ShippingAddress `json:"shippingAddress,omitempty"`
}

type BidAction struct {
	ActionBase
	Item   string    `json:"item"`
	Buyer  BuyerInfo `json:"buyer"`
	Amount int64     `json:"amount"`
}

type BidAcceptAction struct {
	ActionBase
	BidRef
	Listing *ListingPayload `json:"listing,omitempty"`
}

type BidRejectAction struct {
	ActionBase
	BidRef
}

type BidCancelAction struct {
	ActionBase
	BidRef
}

// EscrowType identifies the escrow construction used by the external crypto library.
type EscrowType string

const (
	EscrowMultisig EscrowType = "MULTISIG"
	EscrowMAD      EscrowType = "MAD"
	EscrowMADCT    EscrowType = "MAD_CT"
)

type EscrowLockAction struct {
	ActionBase
	BidRef
	Escrow EscrowType `json:"escrow"`
}

type EscrowCompleteAction struct {
	ActionBase
	BidRef
}

type EscrowReleaseAction struct {
	ActionBase
	BidRef
}

type EscrowRefundAction struct {
	ActionBase
	BidRef
}

type OrderItemShipAction struct {
	ActionBase
	BidRef
}

// ProposalCategory selects the removal rules applied to a proposal.
type ProposalCategory string

const (
	CategoryPublicVote ProposalCategory = "PUBLIC_VOTE"
	CategoryItemVote   ProposalCategory = "ITEM_VOTE"
	CategoryMarketVote ProposalCategory = "MARKET_VOTE"
)

// Option descriptions used by flagging proposals.
const (
	OptionKeep   = "KEEP"
	OptionRemove = "REMOVE"
)

type ProposalOptionPayload struct {
	OptionID    int    `json:"optionId"`
	Description string `json:"description"`
}

type ProposalAddAction struct {
	ActionBase
	Submitter   string                  `json:"submitter"`
	Title       string                  `json:"title"`
	Description string                  `json:"description,omitempty"`
	Category    ProposalCategory        `json:"category"`
	Target      string                  `json:"target,omitempty"`
	TimeStart   int64                   `json:"timeStart"`
	TimeEnd     int64                   `json:"timeEnd"`
	Options     []ProposalOptionPayload `json:"options"`
}

type VoteAction struct {
	ActionBase
	ProposalHash string `json:"proposalHash"`
	OptionID     int    `json:"optionId"`
	Voter        string `json:"voter"`
	Signature    string `json:"signature"`
}

// SignedPayload is the text a voter signs. It covers the generated time so
// an old vote cannot be replayed as a newer one.
func (v *VoteAction) SignedPayload() string {
	return fmt.Sprintf("%s:%d:%s:%d", v.ProposalHash, v.OptionID, v.Voter, v.Generated)
}

type MarketAddAction struct {
	ActionBase
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MarketType  string `json:"marketType"`
	ReceiveKey  string `json:"receiveKey"`
	PublishKey  string `json:"publishKey"`
}

type ListingImageAddAction struct {
	ActionBase
	Target   string `json:"target"`
	Data     string `json:"data"`
	Featured bool   `json:"featured,omitempty"`
}

type CommentAddAction struct {
	ActionBase
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver"`
	Target      string `json:"target"`
	Parent      string `json:"parentCommentHash,omitempty"`
	Message     string `json:"message"`
	CommentType string `json:"commentType"`
}

// DecodePayload decodes an action payload.
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func decodeAs[T any, P interface {
	*T
	Action
}](raw json.RawMessage) (Action, error) {
	v, err := DecodePayload[T](raw)
	if err != nil {
		return nil, err
	}
	return P(&v), nil
}

// DecodeAction decodes an action object into its concrete type.
func DecodeAction(raw json.RawMessage) (Action, error) {
	var head struct {
		Type ActionType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode action header: %w", err)
	}
	switch head.Type {
	case TypeListingAdd:
		return decodeAs[ListingAddAction](raw)
	case TypeBid:
		return decodeAs[BidAction](raw)
	case TypeBidAccept:
		return decodeAs[BidAcceptAction](raw)
	case TypeBidReject:
		return decodeAs[BidRejectAction](raw)
	case TypeBidCancel:
		return decodeAs[BidCancelAction](raw)
	case TypeEscrowLock:
		return decodeAs[EscrowLockAction](raw)
	case TypeEscrowComplete:
		return decodeAs[EscrowCompleteAction](raw)
	case TypeEscrowRelease:
		return decodeAs[EscrowReleaseAction](raw)
	case TypeEscrowRefund:
		return decodeAs[EscrowRefundAction](raw)
	case TypeOrderItemShip:
		return decodeAs[OrderItemShipAction](raw)
	case TypeProposalAdd:
		return decodeAs[ProposalAddAction](raw)
	case TypeVote:
		return decodeAs[VoteAction](raw)
	case TypeMarketAdd:
		return decodeAs[MarketAddAction](raw)
	case TypeListingImageAdd:
		return decodeAs[ListingImageAddAction](raw)
	case TypeCommentAdd:
		return decodeAs[CommentAddAction](raw)
	case "":
		return nil, fmt.Errorf("action type is required")
	default:
		return nil, fmt.Errorf("unsupported action type: %s", head.Type)
	}
}

// Direction tells whether a message was produced locally or received.
type Direction string

const (
	DirectionIncoming Direction = "INCOMING"
	DirectionOutgoing Direction = "OUTGOING"
)
