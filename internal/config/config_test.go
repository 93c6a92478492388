package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "UTC", cfg.Organization.Timezone)
	assert.Equal(t, 3, cfg.Escalation.ManagerAfterDays)
	assert.Equal(t, 7, cfg.Escalation.UrgentAfterDays)
	assert.Equal(t, 5*time.Minute, cfg.Schedule.JobTimeout.Duration)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
organization:
  name: Acme
  timezone: Europe/Paris
  language: fr
schedule:
  job_timeout: 90s
`))
	require.NoError(t, err)
	assert.Equal(t, "Acme", cfg.Organization.Name)
	assert.Equal(t, "Europe/Paris", cfg.Location().String())
	assert.Equal(t, 90*time.Second, cfg.Schedule.JobTimeout.Duration)
	assert.Equal(t, 32, cfg.Rollup.MaxDepth)
	assert.Equal(t, "@hourly", cfg.Schedule.Analytics)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"timezone":   "organization:\n  timezone: Mars/Olympus\n",
		"depth":      "rollup:\n  max_depth: 0\n",
		"retries":    "rollup:\n  cas_retries: -1\n",
		"thresholds": "escalation:\n  manager_after_days: 5\n  urgent_after_days: 2\n",
		"cron":       "schedule:\n  overdue: every morning\n",
		"duration":   "schedule:\n  job_timeout: soon\n",
		"yaml":       "rollup: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = Load(dir)
	assert.ErrorContains(t, err, "not found")

	require.NoError(t, os.WriteFile(Path(dir), []byte(GenerateDefault("HR")), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "HR", cfg.Organization.Name)
}
