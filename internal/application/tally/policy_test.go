package tally

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pmarket/marketd/internal/protocol"
)

func TestPolicy_Percentage(t *testing.T) {
	p, err := NewPolicy(2, 0, "")
	require.NoError(t, err)

	assert.Equal(t, 2.0, p.Percentage(protocol.CategoryItemVote))
	assert.Equal(t, DefaultRemovalPercent, p.Percentage(protocol.CategoryMarketVote))
	assert.Equal(t, DefaultRemovalPercent, p.Percentage(protocol.CategoryPublicVote))
}

func TestPolicy_ThresholdBoundary(t *testing.T) {
	p, err := NewPolicy(1, 1, "")
	require.NoError(t, err)
	supply, err := btcutil.NewAmount(1e8)
	require.NoError(t, err)
	require.EqualValues(t, 1e16, supply)

	threshold := p.Threshold(protocol.CategoryItemVote, supply)
	assert.Equal(t, 1e14, threshold)

	tests := []struct {
		name         string
		remove, keep int64
		want         bool
	}{
		{"far below", 6e11, 1e11, false},
		{"equal does not remove", 1e14 + 1e11, 1e11, false},
		{"above threshold", 1.0001e14 + 1e11 + 1, 1e11, true},
		{"keep wins", 1e11, 6e11, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Remove(tt.remove, tt.keep, threshold, supply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicy_Expression(t *testing.T) {
	p, err := NewPolicy(0, 0, "remove > keep * 2")
	require.NoError(t, err)

	got, err := p.Remove(300, 100, 1e18, 0)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = p.Remove(150, 100, 0, 0)
	require.NoError(t, err)
	assert.False(t, got)

	t.Run("non boolean", func(t *testing.T) {
		p, err := NewPolicy(0, 0, "remove - keep")
		require.NoError(t, err)
		_, err = p.Remove(1, 0, 0, 0)
		assert.Error(t, err)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := NewPolicy(0, 0, "remove >")
		assert.Error(t, err)
	})
}
