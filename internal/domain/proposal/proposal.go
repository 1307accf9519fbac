package proposal

import (
	"time"

	"github.com/google/uuid"

	"github.com/p2pmarket/marketd/internal/protocol"
)

// Proposal is a governance question voted on with stake weight.
type Proposal struct {
	ID            uuid.UUID                 `json:"id"`
	Hash          string                    `json:"hash"`
	Submitter     string                    `json:"submitter"`
	Title         string                    `json:"title"`
	Description   string                    `json:"description,omitempty"`
	Category      protocol.ProposalCategory `json:"category"`
	Target        string                    `json:"target,omitempty"`
	TimeStart     time.Time                 `json:"timeStart"`
	TimeEnd       time.Time                 `json:"timeEnd"`
	Options       []Option                  `json:"options"`
	FinalResultID *uuid.UUID                `json:"finalResultId,omitempty"`
	CreatedAt     time.Time                 `json:"createdAt"`
}

// Option is one answer of a proposal.
type Option struct {
	OptionID    int    `json:"optionId"`
	Description string `json:"description"`
}

// Expired reports whether voting has closed at t.
func (p *Proposal) Expired(t time.Time) bool {
	return t.After(p.TimeEnd)
}

// HasOption reports whether optionID belongs to the proposal.
func (p *Proposal) HasOption(optionID int) bool {
	for _, o := range p.Options {
		if o.OptionID == optionID {
			return true
		}
	}
	return false
}

// Result is an immutable tally snapshot.
type Result struct {
	ID           uuid.UUID      `json:"id"`
	ProposalHash string         `json:"proposalHash"`
	Options      []OptionResult `json:"options"`
	CalculatedAt time.Time      `json:"calculatedAt"`
}

// OptionResult holds the weight and voter count of one option.
type OptionResult struct {
	OptionID    int    `json:"optionId"`
	Description string `json:"description"`
	Weight      int64  `json:"weight"`
	Voters      int    `json:"voters"`
}

// NewResult creates an empty snapshot with one zero entry per option.
func NewResult(p *Proposal, at time.Time) *Result {
	r := &Result{
		ID:           uuid.New(),
		ProposalHash: p.Hash,
		Options:      make([]OptionResult, 0, len(p.Options)),
		CalculatedAt: at,
	}
	for _, o := range p.Options {
		r.Options = append(r.Options, OptionResult{OptionID: o.OptionID, Description: o.Description})
	}
	return r
}

// Add accumulates a vote into its option. Votes for unknown options are ignored.
func (r *Result) Add(optionID int, weight int64) bool {
	for i := range r.Options {
		if r.Options[i].OptionID == optionID {
			r.Options[i].Weight += weight
			r.Options[i].Voters++
			return true
		}
	}
	return false
}

// ByDescription finds the option result whose description matches.
func (r *Result) ByDescription(desc string) *OptionResult {
	for i := range r.Options {
		if r.Options[i].Description == desc {
			return &r.Options[i]
		}
	}
	return nil
}

// Vote is the current choice of one voter on one proposal.
type Vote struct {
	ID           uuid.UUID `json:"id"`
	Hash         string    `json:"hash"`
	MsgID        string    `json:"msgid"`
	ProposalHash string    `json:"proposalHash"`
	Voter        string    `json:"voter"`
	OptionID     int       `json:"optionId"`
	Signature    string    `json:"signature"`
	Weight       int64     `json:"weight"`
	VotedAt      time.Time `json:"votedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FlaggedItem is a listing or market under a removal vote.
type FlaggedItem struct {
	ID           uuid.UUID                 `json:"id"`
	ProposalHash string                    `json:"proposalHash"`
	Target       string                    `json:"target"`
	Category     protocol.ProposalCategory `json:"category"`
	Reason       string                    `json:"reason,omitempty"`
	Removed      bool                      `json:"removed"`
	CreatedAt    time.Time                 `json:"createdAt"`
}
