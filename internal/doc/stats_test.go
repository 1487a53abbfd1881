package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	blocks := []Block{
		{Kind: KindDimension, Confidence: 0.95, Page: 1},
		{Kind: KindDimension, Confidence: 0.81, Page: 1},
		{Kind: KindTolerance, Confidence: 0.8, Page: 2},
		{Kind: KindAnnotation, Confidence: 0.5, Page: 2},
		{Kind: KindMaterial, Confidence: 0.49, Page: 2},
	}

	s := ComputeStats(blocks, 3)

	assert.Equal(t, 5, s.TotalBlocks)
	assert.Equal(t, 3, s.PageCount)
	assert.Equal(t, 2, s.PagesWithText)
	assert.InDelta(t, 0.71, s.AvgConfidence, 0.0001)

	assert.Equal(t, 2, s.KindCounts[KindDimension])
	assert.Equal(t, 1, s.KindCounts[KindTolerance])
	assert.Equal(t, 1, s.KindCounts[KindAnnotation])
	assert.Equal(t, 1, s.KindCounts[KindMaterial])

	// high > 0.8, medium in [0.5, 0.8], low < 0.5
	assert.Equal(t, 2, s.Tiers.High)
	assert.Equal(t, 2, s.Tiers.Medium)
	assert.Equal(t, 1, s.Tiers.Low)
}

func TestComputeStats_Empty(t *testing.T) {
	s := ComputeStats(nil, 2)
	assert.Equal(t, 0, s.TotalBlocks)
	assert.Equal(t, 2, s.PageCount)
	assert.Equal(t, 0, s.PagesWithText)
	assert.Zero(t, s.AvgConfidence)
}

func TestComputeStats_TierBoundaries(t *testing.T) {
	blocks := []Block{
		{Confidence: 0.8, Page: 1},  // medium: not strictly above 0.8
		{Confidence: 0.5, Page: 1},  // medium: inclusive lower bound
		{Confidence: 0.81, Page: 1}, // high
	}
	s := ComputeStats(blocks, 1)
	assert.Equal(t, 1, s.Tiers.High)
	assert.Equal(t, 2, s.Tiers.Medium)
	assert.Equal(t, 0, s.Tiers.Low)
}
