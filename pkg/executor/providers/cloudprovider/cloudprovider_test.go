package cloudprovider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ai-autopilot/incident-core/pkg/executor/providers/cloudprovider"
)

type fakeClient struct {
	restarted   string
	cleanupDays int
	failErr     error
}

func (f *fakeClient) RestartInstance(_ context.Context, instanceID string) error {
	f.restarted = instanceID
	return f.failErr
}
func (f *fakeClient) SetInstanceState(context.Context, string, bool) error { return f.failErr }
func (f *fakeClient) AdjustLoadBalancer(context.Context, string, map[string]interface{}) error {
	return f.failErr
}
func (f *fakeClient) UpdateSecurityGroup(context.Context, string, map[string]interface{}) error {
	return f.failErr
}
func (f *fakeClient) FailoverDNS(context.Context, string, string, string) error { return f.failErr }
func (f *fakeClient) CleanupStorage(_ context.Context, _ string, days int) (int, error) {
	f.cleanupDays = days
	return 3, f.failErr
}
func (f *fakeClient) CreateSnapshot(context.Context, string) (string, error) { return "snap-1", f.failErr }
func (f *fakeClient) RestoreSnapshot(context.Context, string, string) error  { return f.failErr }
func (f *fakeClient) AdjustAutoscaling(context.Context, string, int, int, int) error {
	return f.failErr
}
func (f *fakeClient) InvokeFunction(context.Context, string, map[string]interface{}) (map[string]interface{}, error) {
	return nil, f.failErr
}
func (f *fakeClient) ManageAlarm(context.Context, string, bool) error { return f.failErr }

func TestInstanceRestart(t *testing.T) {
	c := &fakeClient{}
	p := cloudprovider.New(c, zap.NewNop())

	result, err := p.Execute(context.Background(), "instance_restart", map[string]interface{}{"instanceID": "i-123"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "i-123", c.restarted)
}

func TestStorageCleanupReportsCount(t *testing.T) {
	c := &fakeClient{}
	p := cloudprovider.New(c, zap.NewNop())

	result, err := p.Execute(context.Background(), "storage_cleanup", map[string]interface{}{
		"bucket":        "logs",
		"olderThanDays": 14,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 14, c.cleanupDays)
	assert.Equal(t, 3, result.Details["removed"])
}

func TestDryRunSkipsClient(t *testing.T) {
	c := &fakeClient{}
	p := cloudprovider.New(c, zap.NewNop())

	result, err := p.Execute(context.Background(), "instance_restart", map[string]interface{}{
		"instanceID": "i-123",
		"__dry_run":  true,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.DryRun)
	assert.Empty(t, c.restarted)
}

func TestUnsupportedActionType(t *testing.T) {
	p := cloudprovider.New(&fakeClient{}, zap.NewNop())
	_, err := p.Execute(context.Background(), "unknown", nil)
	assert.Error(t, err)
}
