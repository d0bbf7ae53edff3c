package app

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homico/internal/config"
	"homico/internal/domain"
	"homico/internal/engine"
)

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte("marketplace:\n  job_ttl_days: 7\n  bidding_categories: [roofing]\n"), 0o644))

	rt, err := Open(context.Background(), Options{Workspace: ws, Async: true})
	require.NoError(t, err)
	require.NotNil(t, rt.Queue)
	assert.Equal(t, 7, rt.Config.Marketplace.JobTTLDays)
	assert.True(t, rt.Config.BiddingAllowed("Roofing"))
	assert.False(t, rt.Config.BiddingAllowed("renovation"))

	job, err := rt.Engine.CreateJob(context.Background(), engine.JobCreateOptions{
		ClientID: "client-1",
		Title:    "New roof",
		Category: "roofing",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobOpen, job.Status)
	assert.Equal(t, int64(1), job.DisplayNumber)

	require.NoError(t, rt.Close(context.Background()))
}

func TestOpenWithoutConfigFileUsesDefaults(t *testing.T) {
	rt, err := Open(context.Background(), Options{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer rt.Close(context.Background())
	assert.Nil(t, rt.Queue)
	assert.Equal(t, 30, rt.Config.Marketplace.JobTTLDays)
	assert.True(t, rt.Config.Sweep.Enabled)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte("sweep:\n  enabled: true\n  schedule: \"not a cron\"\n"), 0o644))
	_, err := Open(context.Background(), Options{Workspace: ws})
	assert.ErrorContains(t, err, "load config")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "json", "info")
	require.NoError(t, err)
	logger.Info("hello", "job_id", "j1")
	assert.Contains(t, buf.String(), `"job_id":"j1"`)

	_, err = NewLogger(&buf, "xml", "")
	assert.Error(t, err)
	_, err = NewLogger(&buf, "text", "loud")
	assert.Error(t, err)
}
