package tally

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/p2pmarket/marketd/internal/protocol"
)

// DefaultRemovalPercent applies when no category percentage is configured.
const DefaultRemovalPercent = 0.1

// Policy decides whether a flagging vote removes its target.
type Policy struct {
	ItemPercent   float64
	MarketPercent float64
	expr          *govaluate.EvaluableExpression
}

// NewPolicy creates a removal policy. An empty expression keeps the default
// rule: remove - keep > threshold. A custom expression sees the variables
// remove, keep, threshold and supply and must evaluate to a boolean.
func NewPolicy(itemPercent, marketPercent float64, expression string) (*Policy, error) {
	p := &Policy{ItemPercent: itemPercent, MarketPercent: marketPercent}
	if expr := strings.TrimSpace(expression); expr != "" {
		compiled, err := govaluate.NewEvaluableExpression(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid removal expression: %w", err)
		}
		p.expr = compiled
	}
	return p, nil
}

// Percentage returns the share of the network supply needed to remove a
// target of the given category.
func (p *Policy) Percentage(category protocol.ProposalCategory) float64 {
	var pct float64
	switch category {
	case protocol.CategoryItemVote:
		pct = p.ItemPercent
	case protocol.CategoryMarketVote:
		pct = p.MarketPercent
	}
	if pct <= 0 {
		return DefaultRemovalPercent
	}
	return pct
}

// Threshold is the weight margin REMOVE needs over KEEP.
func (p *Policy) Threshold(category protocol.ProposalCategory, supply btcutil.Amount) float64 {
	return float64(supply) / 100 * p.Percentage(category)
}

// Remove applies the rule to the REMOVE and KEEP weights.
func (p *Policy) Remove(remove, keep int64, threshold float64, supply btcutil.Amount) (bool, error) {
	if p.expr == nil {
		return float64(remove-keep) > threshold, nil
	}
	result, err := p.expr.Evaluate(map[string]interface{}{
		"remove":    float64(remove),
		"keep":      float64(keep),
		"threshold": threshold,
		"supply":    float64(supply),
	})
	if err != nil {
		return false, err
	}
	switch v := result.(type) {
	case bool:
		return v, nil
	default:
		return false, errors.New("removal expression did not evaluate to boolean")
	}
}
