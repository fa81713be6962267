package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

const minimalSettings = `
google_drive:
  token:
    client_id: id
    client_secret: secret
    refresh_token: refresh
pollers:
  - targets: ["AID#MOVIES"]
    dispatchers:
      - class: DummyDispatcher
`

func TestLoadAppliesDefaults(t *testing.T) {
	settings, err := Load(writeSettings(t, minimalSettings))
	require.NoError(t, err)

	assert.Equal(t, 60, *settings.PollingInterval)
	assert.Equal(t, -1, *settings.TaskCheckInterval)
	assert.Equal(t, 100, *settings.PageSize)
	assert.True(t, *settings.IgnoreFolder)
	assert.Equal(t, []string{".*"}, settings.Patterns)
	assert.Equal(t, "debug", settings.Logging.Level)
	assert.Equal(t, []string{"drive.readonly", "drive.activity.readonly"}, settings.GoogleDrive.Scopes)
	assert.Equal(t, 10*time.Minute, settings.GoogleDrive.CacheTTL())
}

func TestLoadRejectsMissingToken(t *testing.T) {
	_, err := Load(writeSettings(t, `
pollers:
  - targets: ["AID"]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google_drive.token")
}

func TestLoadRejectsPollerWithoutTargets(t *testing.T) {
	_, err := Load(writeSettings(t, `
google_drive:
  token: {client_id: a, client_secret: b, refresh_token: c}
pollers:
  - name: empty
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestMaterialiseInheritsAndOverrides(t *testing.T) {
	settings, err := Load(writeSettings(t, `
polling_interval: 120
ignore_folder: false
patterns: ["^/MOVIES/"]
google_drive:
  token: {client_id: a, client_secret: b, refresh_token: c}
pollers:
  - targets: ["AID#MOVIES"]
    dispatchers:
      - class: DummyDispatcher
  - name: shows
    polling_interval: 30
    buffer_interval: 10
    targets: ["BID#SHOWS"]
    dispatchers:
      - class: KavitaDispatcher
        url: http://localhost:5000
        apikey: key
      - class: KavitaDispatcher
        buffer_interval: 5
        url: http://localhost:5001
        apikey: key
`))
	require.NoError(t, err)

	pollers := settings.Materialise()
	require.Len(t, pollers, 2)

	first := pollers[0]
	assert.Equal(t, "poller-0", first.Name)
	assert.Equal(t, 2*time.Minute, first.PollingInterval)
	assert.False(t, first.IgnoreFolder)
	assert.Equal(t, []string{"^/MOVIES/"}, first.Patterns)

	second := pollers[1]
	assert.Equal(t, "shows", second.Name)
	assert.Equal(t, 30*time.Second, second.PollingInterval)
	require.Len(t, second.Dispatchers, 2)
	assert.Equal(t, 10*time.Second, second.Dispatchers[0].BufferInterval)
	assert.Equal(t, 5*time.Second, second.Dispatchers[1].BufferInterval)
	assert.Equal(t, "http://localhost:5000", second.Dispatchers[0].Options["url"])
}

func TestMaterialiseDeepCopiesSharedOptions(t *testing.T) {
	settings, err := Load(writeSettings(t, `
google_drive:
  token: {client_id: a, client_secret: b, refresh_token: c}
pollers:
  - targets: ["AID"]
    dispatchers:
      - &shared
        class: PlexDispatcher
        url: http://localhost:32400
        token: tok
  - targets: ["BID"]
    dispatchers:
      - *shared
`))
	require.NoError(t, err)

	pollers := settings.Materialise()
	require.Len(t, pollers, 2)

	pollers[0].Dispatchers[0].Options["url"] = "mutated"
	assert.Equal(t, "http://localhost:32400", pollers[1].Dispatchers[0].Options["url"])
}

func TestDispatcherUnknownKeysLandInOptions(t *testing.T) {
	settings, err := Load(writeSettings(t, `
google_drive:
  token: {client_id: a, client_secret: b, refresh_token: c}
pollers:
  - targets: ["AID"]
    dispatchers:
      - class: CommandDispatcher
        command: /bin/true
        wait_for_process: true
        timeout: 60
`))
	require.NoError(t, err)

	d := settings.Pollers[0].Dispatchers[0]
	assert.Equal(t, "CommandDispatcher", d.Class)
	assert.Equal(t, "/bin/true", d.Options["command"])
	assert.Equal(t, true, d.Options["wait_for_process"])
}
