package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoute(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Middleware(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /v1/things/{id}", "418"))
	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/things/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /v1/things/{id}", "418"))
	require.Equal(t, before+2, after)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBridgeObserver(t *testing.T) {
	var o BridgeObserver

	o.StateChanged(broker.StateReady)
	require.Equal(t, 2.0, testutil.ToFloat64(brokerState))

	o.PendingChanged(3)
	require.Equal(t, 3.0, testutil.ToFloat64(rpcPending))

	before := testutil.ToFloat64(rpcCallsTotal.WithLabelValues("chat", "timeout"))
	o.CallFinished(broker.QueueChat, "timeout", 10*time.Second)
	require.Equal(t, before+1, testutil.ToFloat64(rpcCallsTotal.WithLabelValues("chat", "timeout")))

	before = testutil.ToFloat64(repliesDroppedTotal.WithLabelValues("unknown_id"))
	o.ReplyDropped("unknown_id")
	require.Equal(t, before+1, testutil.ToFloat64(repliesDroppedTotal.WithLabelValues("unknown_id")))
}
