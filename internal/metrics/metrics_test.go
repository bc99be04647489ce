package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewIsShared(t *testing.T) {
	a := New()
	b := New()
	assert.Same(t, a, b)

	before := testutil.ToFloat64(a.TransitionsTotal.WithLabelValues("launch", "ok"))
	b.Transition("launch", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(a.TransitionsTotal.WithLabelValues("launch", "ok")))

	var nilMetrics *Metrics
	nilMetrics.Transition("launch", "ok")
}
