package model_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/CZERTAINLY/sensord/internal/model"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
service:
  verbose: true
  log: /var/log/sensord.log
  format: text
  listen: "127.0.0.1:9000"
  journal: /var/lib/sensord/journal.db
  maintenance:
    cron: "0 3 * * *"
readiness:
  webhook:
    url: https://ui.example.com
sensors:
  - id: 1
    name: fingerprint
    latency: 100ms
  - id: 2
    name: face
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.True(t, cfg.Service.Verbose)
	require.Equal(t, "/var/log/sensord.log", cfg.Service.Log)
	require.Equal(t, model.FormatText, cfg.Service.Format)
	require.Equal(t, "127.0.0.1:9000", cfg.Service.Listen)
	require.Equal(t, model.DefaultHistory, cfg.Service.History)
	require.NotNil(t, cfg.Service.Maintenance)
	require.Equal(t, "0 3 * * *", cfg.Service.Maintenance.Cron)
	require.NotNil(t, cfg.Readiness.Webhook)
	require.Equal(t, "https://ui.example.com", cfg.Readiness.Webhook.URL)
	timeout, err := cfg.Readiness.Webhook.TimeoutDuration()
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, timeout)

	require.Len(t, cfg.Sensors, 2)
	require.Equal(t, "face", cfg.Sensors[1].Name)
	latency, err := cfg.Sensors[1].LatencyDuration()
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, latency)
}

func TestLoadConfig_Defaults(t *testing.T) {
	yml := `
version: 0
service: {}
sensors:
  - id: 1
    name: fingerprint
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.False(t, cfg.Service.Verbose)
	require.Equal(t, model.LogStderr, cfg.Service.Log)
	require.Equal(t, model.FormatJSON, cfg.Service.Format)
	require.Equal(t, model.DefaultListen, cfg.Service.Listen)
	require.Empty(t, cfg.Service.Journal)
	require.Nil(t, cfg.Service.Maintenance)
	require.Nil(t, cfg.Readiness.Webhook)
}

func TestLoadConfig_Fail(t *testing.T) {
	for _, tc := range []struct {
		name string
		yml  string
	}{
		{
			name: "no sensors",
			yml: `
version: 0
service: {}
sensors: []
`,
		},
		{
			name: "bad format",
			yml: `
version: 0
service:
  format: xml
sensors: [{id: 1, name: fp}]
`,
		},
		{
			name: "unknown field",
			yml: `
version: 0
service:
  mode: manual
sensors: [{id: 1, name: fp}]
`,
		},
		{
			name: "both maintenance kinds",
			yml: `
version: 0
service:
  maintenance: {cron: "@hourly", duration: PT1H}
sensors: [{id: 1, name: fp}]
`,
		},
		{
			name: "duplicate sensor",
			yml: `
version: 0
service: {}
sensors: [{id: 1, name: fp}, {id: 1, name: face}]
`,
		},
		{
			name: "bad cron",
			yml: `
version: 0
service:
  maintenance: {cron: "61 * * * *"}
sensors: [{id: 1, name: fp}]
`,
		},
		{
			name: "bad version",
			yml: `
version: 1
service: {}
sensors: [{id: 1, name: fp}]
`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := model.LoadConfig(strings.NewReader(tc.yml))
			require.Error(t, err)
		})
	}
}

func TestCueErrDetails(t *testing.T) {
	yml := `
version: 0
service:
  mode: manual
sensors: [{id: 1, name: fp}]
`
	_, err := model.LoadConfig(strings.NewReader(yml))
	require.Error(t, err)
	details := model.CueErrDetails(err)
	require.NotEmpty(t, details)
	require.Equal(t, "unknown_field", details[0].Code)
	require.NotEmpty(t, details[0].Pos.Filename)
	require.Contains(t, details[0].Message, "mode")
}

func TestDefaultConfig(t *testing.T) {
	var buf bytes.Buffer
	err := yaml.NewEncoder(&buf).Encode(model.DefaultConfig())
	require.NoError(t, err)

	cfg, err := model.LoadConfig(&buf)
	require.NoError(t, err)
	require.Equal(t, model.DefaultConfig(), cfg)
}
