package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"APP_ENV", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_MAX_TOKENS", "OPENAI_TIMEOUT",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"GOOGLE_CALENDAR_CLIENT_ID", "GOOGLE_CALENDAR_CLIENT_SECRET", "GOOGLE_CALENDAR_REDIRECT_URI",
	"GOOGLE_CALENDAR_REFRESH_TOKEN", "GOOGLE_CALENDAR_ID",
	"PIPEFY_API_TOKEN", "PIPEFY_PIPE_ID", "PIPEFY_API_URL",
	"COMPANY_NAME", "AGENT_DAYS_AHEAD", "AGENT_EXTRACT_WITH_LLM",
	"HTTP_ADDR", "HTTP_REQUEST_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
		"env": "production",
		"llm": {"api_key": "sk-file", "model": "gpt-4o", "max_tokens": 512},
		"redis": {"addr": "localhost:6379", "db": 2},
		"pipefy": {"api_token": "tok", "pipe_id": "306"},
		"agent": {"company_name": "Acme", "days_ahead": 5, "extract_with_llm": true}
	}`)

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, conf.Env)
	assert.Equal(t, "sk-file", conf.LLM.APIKey)
	assert.Equal(t, "gpt-4o", conf.LLM.Model)
	assert.Equal(t, 512, conf.LLM.MaxTokens)
	assert.Equal(t, "localhost:6379", conf.Redis.Addr)
	assert.Equal(t, 2, conf.Redis.DB)
	assert.True(t, conf.Pipefy.Enabled())
	assert.False(t, conf.Google.Enabled())
	assert.Equal(t, "Acme", conf.Agent.CompanyName)
	assert.Equal(t, 5, conf.Agent.DaysAhead)
	assert.True(t, conf.Agent.ExtractWithLLM)
	// untouched sections keep their defaults
	assert.Equal(t, ":8080", conf.HTTP.Addr)
	assert.Equal(t, "America/Sao_Paulo", conf.Google.TimeZone)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{"llm": {"api_key": "sk-file", "model": "gpt-4o"}}`)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("COMPANY_NAME", "Verzel Labs")
	t.Setenv("AGENT_DAYS_AHEAD", "10")
	t.Setenv("HTTP_REQUEST_TIMEOUT", "15s")
	t.Setenv("GOOGLE_CALENDAR_CLIENT_ID", "cid")
	t.Setenv("GOOGLE_CALENDAR_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_CALENDAR_REFRESH_TOKEN", "refresh")

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", conf.LLM.APIKey)
	assert.Equal(t, "gpt-4o", conf.LLM.Model)
	assert.Equal(t, "Verzel Labs", conf.Agent.CompanyName)
	assert.Equal(t, 10, conf.Agent.DaysAhead)
	assert.Equal(t, 15*time.Second, conf.HTTP.RequestTimeout.Std())
	assert.True(t, conf.Google.Enabled())
}

func TestLoadWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")

	conf, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, conf.Env)
	assert.Equal(t, "gpt-4o-mini", conf.LLM.Model)
	assert.Equal(t, "Verzel", conf.Agent.CompanyName)
	assert.Equal(t, 7, conf.Agent.DaysAhead)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing api key", func(t *testing.T) {
		clearEnv(t)
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "APIKey")
	})

	t.Run("pipefy token without pipe id", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "sk")
		t.Setenv("PIPEFY_API_TOKEN", "tok")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PipeID")
	})

	t.Run("malformed number", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "sk")
		t.Setenv("AGENT_DAYS_AHEAD", "soon")
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "AGENT_DAYS_AHEAD")
	})

	t.Run("unknown env", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "sk")
		t.Setenv("APP_ENV", "staging")
		_, err := Load("")
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
	})

	t.Run("broken json", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(writeConfig(t, `{"llm":`))
		require.Error(t, err)
	})

	t.Run("malformed duration", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(writeConfig(t, `{"llm": {"api_key": "sk", "timeout": "soon"}}`))
		require.Error(t, err)
	})

	t.Run("negative duration", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(writeConfig(t, `{"llm": {"api_key": "sk"}, "http": {"request_timeout": "-1s"}}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RequestTimeout")
	})
}

func TestLoadDurationsFromFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
		"llm": {"api_key": "sk", "timeout": 30},
		"http": {"request_timeout": "1m30s"}
	}`)

	conf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, conf.LLM.Timeout.Std())
	assert.Equal(t, 90*time.Second, conf.HTTP.RequestTimeout.Std())
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"250ms"`)))
	assert.Equal(t, 250*time.Millisecond, d.Std())
	require.NoError(t, d.UnmarshalJSON([]byte(`1.5`)))
	assert.Equal(t, 1500*time.Millisecond, d.Std())

	out, err := Duration(90 * time.Second).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
	require.NoError(t, d.UnmarshalJSON(out))
	assert.Equal(t, 90*time.Second, d.Std())

	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, EnvDevelopment).Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")

	buf.Reset()
	prod := newLogger(&buf, EnvProduction)
	prod.Debug("hidden")
	assert.Empty(t, buf.String())
	prod.Info("shown", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
