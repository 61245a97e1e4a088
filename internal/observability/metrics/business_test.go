package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func histogramSampleCount(t *testing.T, h prometheus.Observer) uint64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, h.(prometheus.Metric).Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestRecordPoll_ObservesDuration(t *testing.T) {
	observer := PollDuration.WithLabelValues("duration_test", "check")
	before := histogramSampleCount(t, observer)

	RecordPoll("duration_test", "check", OutcomeSuccess, 2*time.Second)

	assert.Equal(t, before+1, histogramSampleCount(t, observer))
}

func TestRecordPoll(t *testing.T) {
	tests := []struct {
		name     string
		typ      string
		function string
		outcome  string
	}{
		{name: "success", typ: "federal_bills", function: "check", outcome: OutcomeSuccess},
		{name: "network", typ: "regulations", function: "check", outcome: OutcomeNetwork},
		{name: "malformed", typ: "court_opinions", function: "search", outcome: OutcomeMalformed},
		{name: "unexpected", typ: "feed", function: "initialize", outcome: OutcomeUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(PollsTotal.WithLabelValues(tt.typ, tt.function, tt.outcome))
			RecordPoll(tt.typ, tt.function, tt.outcome, 150*time.Millisecond)
			after := testutil.ToFloat64(PollsTotal.WithLabelValues(tt.typ, tt.function, tt.outcome))
			assert.Equal(t, before+1, after)
		})
	}
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("metrics_test", "hit"))
	misses := testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("metrics_test", "miss"))

	RecordCacheLookup("metrics_test", true)
	RecordCacheLookup("metrics_test", false)
	RecordCacheLookup("metrics_test", false)

	assert.Equal(t, hits+1, testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("metrics_test", "hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(CacheLookupsTotal.WithLabelValues("metrics_test", "miss")))
}

func TestRecordSeenItems_IgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(SeenItemsTotal.WithLabelValues("zero_test"))
	RecordSeenItems("zero_test", 0)
	RecordSeenItems("zero_test", -1)
	assert.Equal(t, before, testutil.ToFloat64(SeenItemsTotal.WithLabelValues("zero_test")))

	RecordSeenItems("zero_test", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(SeenItemsTotal.WithLabelValues("zero_test")))
}

func TestRecordSuppressed(t *testing.T) {
	before := testutil.ToFloat64(SuppressedItemsTotal.WithLabelValues("federal_bills", ReasonBackfill))
	RecordSuppressed("federal_bills", ReasonBackfill, 2)
	assert.Equal(t, before+2, testutil.ToFloat64(SuppressedItemsTotal.WithLabelValues("federal_bills", ReasonBackfill)))
}

func TestRecordReceipt(t *testing.T) {
	receipts := testutil.ToFloat64(ReceiptsTotal.WithLabelValues("email", "daily"))
	sent := testutil.ToFloat64(DeliveriesSentTotal.WithLabelValues("email", "daily"))

	RecordReceipt("email", "daily", 5)

	assert.Equal(t, receipts+1, testutil.ToFloat64(ReceiptsTotal.WithLabelValues("email", "daily")))
	assert.Equal(t, sent+5, testutil.ToFloat64(DeliveriesSentTotal.WithLabelValues("email", "daily")))
}

func TestRecordSMSTruncation(t *testing.T) {
	truncated := testutil.ToFloat64(SMSTruncationsTotal.WithLabelValues("truncated"))
	dropped := testutil.ToFloat64(SMSTruncationsTotal.WithLabelValues("dropped"))

	RecordSMSTruncation(false)
	RecordSMSTruncation(true)

	assert.Equal(t, truncated+1, testutil.ToFloat64(SMSTruncationsTotal.WithLabelValues("truncated")))
	assert.Equal(t, dropped+1, testutil.ToFloat64(SMSTruncationsTotal.WithLabelValues("dropped")))
}

func TestDeliveryCounters_NoPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordDeliveryScheduled("email", "immediate")
		RecordSendFailure("sms")
		RecordFloodTrip("email", "daily")
		RecordDBQuery("list_deliveries", 3*time.Millisecond)
		RecordOperationDuration("check_cycle", time.Second)
		UpdateDBConnectionStats(4, 6)
	})
}
