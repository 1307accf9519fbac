package redis

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pmarket/marketd/internal/domain/notification"
	"github.com/p2pmarket/marketd/internal/protocol"
)

func TestSink_Args(t *testing.T) {
	s := NewSink(nil, "", 1000)
	n := notification.New(protocol.TypeBid, uuid.New(), "bid-hash", "pbuyer", "pseller", "listing")

	args := s.args(n)

	assert.Equal(t, DefaultStream, args.Stream)
	assert.EqualValues(t, 1000, args.MaxLen)
	assert.True(t, args.Approx)
	values, ok := args.Values.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "MPA_BID", values["event"])
	assert.Equal(t, "pseller", values["to"])

	var decoded notification.Notification
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, n.NotificationID, decoded.NotificationID)
	assert.Equal(t, "listing", decoded.Target)
}
