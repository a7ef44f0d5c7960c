package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNetwork_ShouldRecordPerNetwork(t *testing.T) {
	m := New()
	libera := m.For("libera")
	oftc := m.For("oftc")

	libera.LineIn()
	libera.LineIn()
	oftc.LineIn()
	libera.LineOut()
	libera.Lag(1500 * time.Millisecond)
	libera.Disconnected("eof")
	libera.Connected()
	libera.SASLFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.linesIn.WithLabelValues("libera")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linesIn.WithLabelValues("oftc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linesOut.WithLabelValues("libera")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.lag.WithLabelValues("libera")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.disconnects.WithLabelValues("libera", "eof")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connects.WithLabelValues("libera")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saslFailures.WithLabelValues("libera")))
}

func TestNetwork_WhenNil_ShouldBeNoop(t *testing.T) {
	var m *Metrics
	n := m.For("x")
	assert.Nil(t, n)
	assert.NotPanics(t, func() {
		n.LineIn()
		n.LineOut()
		n.Lag(time.Second)
		n.Connected()
		n.Disconnected("eof")
		n.SASLFailed()
	})
}

func TestHandler_ShouldExposeMetrics(t *testing.T) {
	m := New()
	m.For("libera").LineIn()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "irc_lines_received_total"))
}
