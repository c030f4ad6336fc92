package imagediff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ai-autopilot/incident-core/pkg/risk/imagediff"
)

func TestAdjustMagnitudeNonComparableLeavesBaseUnchanged(t *testing.T) {
	got := imagediff.AdjustMagnitude(45, imagediff.Result{Comparable: false})
	assert.Equal(t, 45.0, got)
}

func TestAdjustMagnitudeDigestIdenticalCapsLow(t *testing.T) {
	got := imagediff.AdjustMagnitude(75, imagediff.Result{Comparable: true, DigestIdentical: true})
	assert.Equal(t, 20.0, got)
}

func TestAdjustMagnitudeMultiLayerDiffRaisesScore(t *testing.T) {
	got := imagediff.AdjustMagnitude(45, imagediff.Result{Comparable: true, LayerCountDelta: 3})
	assert.Equal(t, 55.0, got)
}

func TestAdjustMagnitudeSingleLayerDiffLeavesBaseUnchanged(t *testing.T) {
	got := imagediff.AdjustMagnitude(45, imagediff.Result{Comparable: true, LayerCountDelta: 1})
	assert.Equal(t, 45.0, got)
}
