package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))
	// registering twice is harmless
	require.NoError(t, m.Register(reg))

	m.ChainHeight.Set(42)
	m.RejectedBlocks.WithLabelValues("bad-bits").Inc()

	assert.Equal(t, float64(42), testutil.ToFloat64(m.ChainHeight))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RejectedBlocks.WithLabelValues("bad-bits")))

	n, err := testutil.GatherAndCount(reg, "concordia_chain_height", "concordia_rewards_store_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
