package fit

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetric_UnavailableMarshalsAsNull(t *testing.T) {
	d := Diagnostics{
		Divergences: []int{0, 0},
		MaxRHat:     Metric(math.NaN()),
		MinESS:      Metric(math.Inf(1)),
	}
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"max_r_hat":null`)
	assert.Contains(t, string(b), `"min_ess":null`)

	var back Diagnostics
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, math.IsNaN(float64(back.MaxRHat)))
	assert.True(t, math.IsNaN(float64(back.MinESS)))
}

func TestMetric_FiniteValueRoundTrips(t *testing.T) {
	b, err := json.Marshal(Metric(1.03))
	require.NoError(t, err)
	assert.Equal(t, "1.03", string(b))

	var m Metric
	require.NoError(t, json.Unmarshal([]byte("812.5"), &m))
	assert.Equal(t, Metric(812.5), m)
}

func TestResult_Trusted(t *testing.T) {
	r := &Result{Status: StatusSucceeded}
	assert.True(t, r.Trusted())
	r.Status = StatusDegraded
	assert.False(t, r.Trusted())
	r.Status = StatusFailed
	assert.False(t, r.Trusted())
}
