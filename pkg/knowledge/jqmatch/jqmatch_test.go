package jqmatch_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ai-autopilot/incident-core/pkg/knowledge/jqmatch"
)

type record struct {
	Service  string `json:"service"`
	Severity string `json:"severity"`
	Value    float64 `json:"value"`
}

func TestMatchesEvaluatesTruthyFilter(t *testing.T) {
	r := record{Service: "checkout", Severity: "critical", Value: 99.5}
	assert.True(t, jqmatch.Matches(`.severity == "critical"`, r))
	assert.False(t, jqmatch.Matches(`.severity == "low"`, r))
}

func TestMatchesTreatsCompileErrorAsNonMatching(t *testing.T) {
	assert.False(t, jqmatch.Matches(`.[`, record{}))
}

func TestMatchesTreatsEmptyFilterAsNonMatching(t *testing.T) {
	assert.False(t, jqmatch.Matches("", record{Severity: "critical"}))
}

func TestMatchesTreatsNonBooleanResultAsNonMatching(t *testing.T) {
	assert.False(t, jqmatch.Matches(`.service`, record{Service: "checkout"}))
}

func TestMatchesCachesCompiledFilter(t *testing.T) {
	filter := `.value > 50`
	assert.True(t, jqmatch.Matches(filter, record{Value: 99.5}))
	// second call against a different record exercises the cached query path
	assert.False(t, jqmatch.Matches(filter, record{Value: 1}))
}
