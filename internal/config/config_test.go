package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30*24*time.Hour, cfg.JobTTL())
	assert.True(t, cfg.Sweep.Enabled)
	assert.True(t, cfg.BiddingAllowed("renovation"))
	assert.True(t, cfg.BiddingAllowed("Architecture"))
	assert.False(t, cfg.BiddingAllowed("plumbing"))
	assert.Equal(t, 5*time.Second, cfg.Outbound.Timeout())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Marketplace.JobTTLDays)
}

func TestLoadOverridesKeepDefaults(t *testing.T) {
	dir := t.TempDir()
	data := []byte("marketplace:\n  job_ttl_days: 7\n  bidding_categories: []\noutbound:\n  notify_url: http://notify.local\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "homico.yml"), data, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cfg.JobTTL())
	assert.True(t, cfg.BiddingAllowed("plumbing"), "empty allow-list admits everything")
	assert.Equal(t, "http://notify.local", cfg.Outbound.NotifyURL)
	assert.Equal(t, 4, cfg.Outbound.Workers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad schedule", yaml: "sweep:\n  enabled: true\n  schedule: \"not a cron\"\n"},
		{name: "empty category", yaml: "marketplace:\n  bidding_categories: [\"\"]\n"},
		{name: "webhook without url", yaml: "webhooks:\n  - events: [job.created]\n"},
		{name: "negative ttl", yaml: "marketplace:\n  job_ttl_days: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
