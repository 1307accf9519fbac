package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/protocol"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.MessageSent(protocol.TypeBid, "sent")
	r.MessageSent(protocol.TypeBid, "sent")
	r.MessageSent(protocol.TypeBid, "rejected")
	r.MessageProcessed(protocol.TypeBidAccept, envelope.StatusProcessed, 5*time.Millisecond)
	r.MessageProcessed("", envelope.StatusProcessingFailed, time.Millisecond)
	r.ProposalsFinalized(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.sent.WithLabelValues("MPA_BID", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sent.WithLabelValues("MPA_BID", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.processed.WithLabelValues("MPA_ACCEPT", "PROCESSED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.processed.WithLabelValues("UNKNOWN", "PROCESSING_FAILED")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.finalized))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.MessageSent(protocol.TypeVote, "sent")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `marketd_outbox_messages_total{action="MPA_VOTE",result="sent"} 1`)
}
