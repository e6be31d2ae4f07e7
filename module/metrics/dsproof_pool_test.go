package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestDSProofPoolCollector(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	c := NewDSProofPoolCollector(registry)

	c.ProofAdded()
	c.ProofAdded()
	c.ProofRemoved()
	c.OrphansReaped(3)
	c.PoolSize(7, 2)
	c.ProofRejected()
	c.RejectsFilterReset()

	require.Equal(t, float64(2), testutil.ToFloat64(c.proofsAdded))
	require.Equal(t, float64(1), testutil.ToFloat64(c.proofsRemoved))
	require.Equal(t, float64(3), testutil.ToFloat64(c.orphansReaped))
	require.Equal(t, float64(7), testutil.ToFloat64(c.poolSize))
	require.Equal(t, float64(2), testutil.ToFloat64(c.orphanCount))
	require.Equal(t, float64(1), testutil.ToFloat64(c.proofsRejected))
	require.Equal(t, float64(1), testutil.ToFloat64(c.rejectsFilterResets))
}
