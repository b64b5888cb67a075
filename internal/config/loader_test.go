package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Full(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GWT_TEST_TOKEN", "s3cret")

	path := writeConfig(t, dir, `
service:
  name: ci-trigger
  log_level: debug
  log_format: text
state:
  path: state/queue.db
webhook:
  listen: 0.0.0.0:9090
tokens:
  deploy: ${GWT_TEST_TOKEN}
jobs:
  - name: deploy
    token_ref: deploy
    quiet_period: 5
    override_quiet_period: true
    parameters:
      - name: BRANCH
        default: main
      - name: DRY
        type: boolean
        default: "false"
    variables:
      - key: ref
        expression: $.ref
    header_variables:
      - key: X-GitHub-Event
    regexp_filter_text: $ref
    regexp_filter_expression: ^refs/heads/main$
  - name: nightly
    enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ci-trigger", cfg.Service.Name)
	assert.Equal(t, "text", cfg.Service.LogFormat)
	assert.Equal(t, filepath.Join(dir, "state/queue.db"), cfg.State.Path)
	assert.Equal(t, "0.0.0.0:9090", cfg.Webhook.Listen)
	assert.Equal(t, DefaultWebhookPath, cfg.Webhook.Path)
	assert.Equal(t, DefaultMaxBodySize, cfg.Webhook.MaxBodySize)

	require.Len(t, cfg.Jobs, 2)
	deploy := cfg.Jobs[0]
	assert.Equal(t, "s3cret", deploy.Token)
	assert.Equal(t, 5, deploy.QuietPeriod)
	assert.True(t, deploy.OverrideQuietPeriod)
	assert.True(t, deploy.IsEnabled())
	require.Len(t, deploy.Parameters, 2)
	assert.Equal(t, "boolean", deploy.Parameters[1].Type)
	assert.Equal(t, "$.ref", deploy.Variables[0].Expression)
	assert.False(t, cfg.Jobs[1].IsEnabled())
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "jobs: []\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "gwtrigger", cfg.Service.Name)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GWT_ENV_FILE_TOKEN=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GWT_ENV_FILE_TOKEN") })

	path := writeConfig(t, dir, `
service:
  env_file: .env
jobs:
  - name: build
    token: ${GWT_ENV_FILE_TOKEN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Jobs[0].Token)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown token ref",
			content: "jobs:\n  - name: a\n    token_ref: missing\n",
			wantErr: `token_ref "missing" not found`,
		},
		{
			name:    "unset env var in token",
			content: "jobs:\n  - name: a\n    token: ${GWT_DEFINITELY_UNSET_VAR}\n",
			wantErr: "GWT_DEFINITELY_UNSET_VAR",
		},
		{
			name:    "duplicate job",
			content: "jobs:\n  - name: a\n  - name: a\n",
			wantErr: "duplicate job name",
		},
		{
			name:    "missing job name",
			content: "jobs:\n  - token: x\n",
			wantErr: "jobs[0].name is required",
		},
		{
			name:    "bad log level",
			content: "service:\n  log_level: loud\n",
			wantErr: "service.log_level",
		},
		{
			name:    "bad boolean default",
			content: "jobs:\n  - name: a\n    parameters:\n      - name: p\n        type: boolean\n        default: maybe\n",
			wantErr: "boolean default",
		},
		{
			name:    "bad filter expression",
			content: "jobs:\n  - name: a\n    regexp_filter_expression: \"(\"\n",
			wantErr: "regexp_filter_expression",
		},
		{
			name:    "bad expression type",
			content: "jobs:\n  - name: a\n    variables:\n      - key: k\n        expression: x\n        expression_type: xpath\n",
			wantErr: "expression_type",
		},
		{
			name:    "bad jsonpath",
			content: "jobs:\n  - name: a\n    variables:\n      - key: k\n        expression: \"$.commits[\"\n",
			wantErr: "invalid jsonpath",
		},
		{
			name:    "negative quiet period",
			content: "jobs:\n  - name: a\n    quiet_period: -3\n",
			wantErr: "quiet_period",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestInterpolateEnv(t *testing.T) {
	t.Setenv("GWT_INTERP", "value")
	assert.Equal(t, "a value b", interpolateEnv("a ${GWT_INTERP} b"))
	assert.Equal(t, "${GWT_NOT_SET_AT_ALL}", interpolateEnv("${GWT_NOT_SET_AT_ALL}"))
}
