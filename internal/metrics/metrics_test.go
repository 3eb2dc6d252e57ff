package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(bookingsCreated)
	IncBookingCreated()
	assert.Equal(t, before+1, testutil.ToFloat64(bookingsCreated))

	IncBookingFailure("room_unavailable")
	assert.Equal(t, float64(1), testutil.ToFloat64(bookingFailures.WithLabelValues("room_unavailable")))

	AddBookingsExpired(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(bookingsExpired))

	IncGatewayRequest("verify", errors.New("timeout"))
	IncGatewayRequest("verify", nil)
	assert.Equal(t, float64(1), testutil.ToFloat64(gatewayRequests.WithLabelValues("verify", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(gatewayRequests.WithLabelValues("verify", "ok")))

	ObserveHTTP("POST", "", 404, time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(httpRequests.WithLabelValues("POST", "unmatched", "404")))
}

func TestHandler(t *testing.T) {
	Register()
	IncReconciliation("paid")

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `guesthouse_payment_reconciliations_total{outcome="paid"}`)
}
