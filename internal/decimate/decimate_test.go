package decimate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEveryKeepsUniformlySpacedIndexes(t *testing.T) {
	samples := make([]int, 15360)
	for i := range samples {
		samples[i] = i
	}

	out := Every(samples, ECGFactor(len(samples)))
	require.Len(t, out, 3840)
	for i, v := range out {
		require.Equal(t, i*4, v)
	}
}

func TestEveryHandlesShortAndUnitFactors(t *testing.T) {
	require.Equal(t, []int{1, 2, 3}, Every([]int{1, 2, 3}, 1))
	require.Equal(t, []int{1, 4}, Every([]int{1, 2, 3, 4, 5}, 3))
	require.Empty(t, Every([]int{}, 4))
}

func TestFactors(t *testing.T) {
	require.Equal(t, 1, RouteFactor(1000))
	require.Equal(t, 4, RouteFactor(1001))
	require.Equal(t, 5, RouteFactor(5001))
	require.Equal(t, 1, ECGFactor(5000))
	require.Equal(t, 4, ECGFactor(5001))
}
