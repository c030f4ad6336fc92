package risk_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/risk"
	"github.com/ai-autopilot/incident-core/pkg/store/inmemstore"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

func TestAssessLowRiskPatchDeployOffPeak(t *testing.T) {
	s := inmemstore.New()
	a := risk.New(s, zap.NewNop())
	ctx := context.Background()

	assessment, err := a.Assess(ctx, risk.Input{
		DeploymentID:    "d1",
		Service:         "internal-batch",
		Version:         "1.2.4",
		PreviousVersion: "1.2.3",
		At:              time.Date(2026, 7, 28, 3, 0, 0, 0, time.UTC), // Tuesday 3am
	})
	require.NoError(t, err)
	assert.True(t, assessment.ShouldProceed)
	assert.False(t, assessment.RequiresApproval)
}

func TestAssessCriticalRiskMajorDeployFridayAfternoonOnTier1(t *testing.T) {
	s := inmemstore.New()
	a := risk.New(s, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, a.RecordDeployOutcome(ctx, "payments-api", i < 6)) // 40% failure rate
	}

	assessment, err := a.Assess(ctx, risk.Input{
		DeploymentID:            "d2",
		Service:                 "payments-api",
		Version:                 "2.0.0",
		PreviousVersion:         "1.9.0",
		HasDBMigration:          true,
		HasConfigChange:         true,
		FilesChanged:            150,
		RecentAnomalyCount:      10,
		RecentIncidentCount24h:  4,
		DependencyAnomalyCounts: map[string]int{"db": 3, "cache": 3, "queue": 3},
		At:                      time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC), // Friday 3pm
	})
	require.NoError(t, err)
	assert.Equal(t, types.RiskCritical, assessment.RiskLevel)
	assert.False(t, assessment.ShouldProceed)
	assert.True(t, assessment.RequiresApproval)
	assert.True(t, assessment.AutoRollbackEnabled)

	joined := strings.Join(assessment.Recommendations, "\n")
	assert.Contains(t, joined, "Deployment blocked")
	assert.Contains(t, joined, "20% error rate")
	assert.Contains(t, joined, "tier-1")
	assert.NotEmpty(t, assessment.HistoricalContext)
}

func TestRecordDeployOutcomeFeedsHistoricalFactor(t *testing.T) {
	s := inmemstore.New()
	a := risk.New(s, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, a.RecordDeployOutcome(ctx, "checkout", false))
	}

	assessment, err := a.Assess(ctx, risk.Input{DeploymentID: "d3", Service: "checkout", Version: "1.0.1", PreviousVersion: "1.0.0"})
	require.NoError(t, err)
	historical := findFactor(assessment.Factors, "historical")
	require.NotNil(t, historical)
	assert.Equal(t, 85.0, historical.Score)
}

func TestShouldAutoRollbackUsesLatestAssessmentThreshold(t *testing.T) {
	s := inmemstore.New()
	a := risk.New(s, zap.NewNop())
	ctx := context.Background()

	_, err := a.Assess(ctx, risk.Input{
		DeploymentID:           "d4",
		Service:                "checkout",
		Version:                "2.0.0",
		PreviousVersion:        "1.0.0",
		HasDBMigration:         true,
		RecentAnomalyCount:     6,
		RecentIncidentCount24h: 4,
		At:                     time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rollback, reason := a.ShouldAutoRollback(ctx, "checkout", 35)
	assert.True(t, rollback)
	assert.NotEmpty(t, reason)
}

func TestShouldAutoRollbackDefaultsWithNoAssessment(t *testing.T) {
	s := inmemstore.New()
	a := risk.New(s, zap.NewNop())
	ctx := context.Background()

	rollback, _ := a.ShouldAutoRollback(ctx, "unknown-service", 65)
	assert.False(t, rollback)

	rollback, _ = a.ShouldAutoRollback(ctx, "unknown-service", 75)
	assert.True(t, rollback)
}

func findFactor(factors []types.RiskFactor, name string) *types.RiskFactor {
	for i := range factors {
		if factors[i].Name == name {
			return &factors[i]
		}
	}
	return nil
}
