package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTx(t *testing.T) {
	before := testutil.ToFloat64(txOutcomes.WithLabelValues("payment", "success"))
	RecordTx("payment", "success", 2*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(txOutcomes.WithLabelValues("payment", "success")))
}

func TestRecordCounters(t *testing.T) {
	p := testutil.ToFloat64(pollAttempts)
	RecordPoll()
	assert.Equal(t, p+1, testutil.ToFloat64(pollAttempts))

	d := testutil.ToFloat64(keyDecrypts.WithLabelValues("false"))
	RecordDecrypt(false)
	assert.Equal(t, d+1, testutil.ToFloat64(keyDecrypts.WithLabelValues("false")))

	a := testutil.ToFloat64(challengeAuth.WithLabelValues("ok"))
	RecordAuth("ok")
	assert.Equal(t, a+1, testutil.ToFloat64(challengeAuth.WithLabelValues("ok")))

	g := testutil.ToFloat64(grpcRequests.WithLabelValues("/x/Pay", "OK"))
	RecordGRPC("/x/Pay", "OK")
	assert.Equal(t, g+1, testutil.ToFloat64(grpcRequests.WithLabelValues("/x/Pay", "OK")))
}

func TestHandler_Exposes(t *testing.T) {
	RecordPoll()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "stellarkeeper_tx_status_polls_total")
}
