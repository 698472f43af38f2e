package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(reconcileOutcomes.WithLabelValues("booking", "created"))
	IncReconcile("booking", "created")
	assert.Equal(t, before+1, testutil.ToFloat64(reconcileOutcomes.WithLabelValues("booking", "created")))

	assert.NotPanics(t, func() {
		IncSlot("reserve", "ok")
		IncRefund("failed")
		IncManualReconciliation()
		IncApproval("delete_session", "direct")
		ObserveHTTP("GET", "/healthz", "200", 0.01)
		ObserveQuery("ExecContext", 0.001)
	})
}
