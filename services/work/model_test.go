package work

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddBatch(t *testing.T) {
	w := &Work{}

	w.AddBatch(0, 0, 0, 0)
	require.Zero(t, w.AvgCostPerLead)
	require.Zero(t, w.PerformanceScore)

	w.AddBatch(150, 1000, 40, 2)
	w.AddBatch(50, 500, 10, 2)

	require.Equal(t, 200.0, w.TotalSpent)
	require.Equal(t, int64(1500), w.TotalImpressions)
	require.Equal(t, int64(50), w.TotalClicks)
	require.Equal(t, int64(4), w.TotalLeads)
	require.Equal(t, 50.0, w.AvgCostPerLead)
	require.Equal(t, 2.0, w.PerformanceScore)
}
