package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "disruptions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "Europe/London", config.Timezone)
	assert.Equal(t, 365, config.Days)
	assert.Equal(t, int64(100), config.Queue.BatchSize)
	assert.Equal(t, 90*time.Minute, config.DedupeTTL)

	location, err := config.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/London", location.String())
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
timezone: Europe/Paris
gtfs_path: /data/gtfs.zip
days: 60
redis:
  address: redis:6379
queue:
  name: events
  batch_size: 10
  poll_interval: 500ms
dedupe_ttl: 1h
filter: 'Contributor != "test"'
feeds:
  - name: network-rail
    type: stomp
    format: siri-sx
    address: stomp.example.com:61618
    destination: /topic/situations
  - name: alerts
    type: http
    format: gtfs-realtime
    address: https://example.com/alerts.pb
    interval: 30s
`)

	t.Setenv("DISRUPTIONS_REDIS_ADDRESS", "cache:6380")
	t.Setenv("DISRUPTIONS_QUEUE_BATCH_SIZE", "25")
	t.Setenv("DISRUPTIONS_DEDUPE_TTL", "2h")

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Europe/Paris", config.Timezone)
	assert.Equal(t, "/data/gtfs.zip", config.GTFSPath)
	assert.Equal(t, 60, config.Days)
	assert.Equal(t, "cache:6380", config.Redis.Address)
	assert.Equal(t, "events", config.Queue.Name)
	assert.Equal(t, int64(25), config.Queue.BatchSize)
	assert.Equal(t, 500*time.Millisecond, config.Queue.PollInterval)
	assert.Equal(t, 2*time.Hour, config.DedupeTTL)
	assert.Equal(t, `Contributor != "test"`, config.Filter)
	require.Len(t, config.Feeds, 2)
	assert.Equal(t, 30*time.Second, config.Feeds[1].Interval)

	// Defaults survive for keys the file leaves out
	assert.Equal(t, "disruptions", config.MongoDB.Database)
}

func TestLoadValidation(t *testing.T) {
	tests := map[string]string{
		"unknown timezone":          "timezone: Mars/Olympus\n",
		"zero days":                 "days: 0\n",
		"feed type":                 "feeds:\n  - {name: a, type: ftp, format: siri-sx, address: x}\n",
		"stomp without destination": "feeds:\n  - {name: a, type: stomp, format: siri-sx, address: x}\n",
		"amqp without destination":  "feeds:\n  - {name: a, type: amqp, format: siri-sx, address: x}\n",
		"http without interval":     "feeds:\n  - {name: a, type: http, format: gtfs-realtime, address: x}\n",
	}

	for name, contents := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, contents))
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvironmentErrors(t *testing.T) {
	t.Setenv("DISRUPTIONS_DAYS", "many")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
