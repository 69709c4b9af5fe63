package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/tutorbench/internal/llm"
)

// isolate points every config source at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	for _, names := range fallbackEnv {
		for _, n := range names {
			t.Setenv(n, "")
		}
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(LoadOptions{EnvFile: filepath.Join(dir, "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, DefaultPlatformURL, cfg.Platform.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Platform.Timeout)
	assert.Equal(t, llm.ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.LLM.Retry.MaxAttempts)
	assert.Equal(t, 10, cfg.Assessment.MaxTurns)
	assert.Equal(t, 0.9, cfg.Assessment.HighConfidenceThreshold)
	assert.Equal(t, 3, cfg.Runner.Concurrency)
	assert.Equal(t, "mini_dev", cfg.Runner.Dataset)
}

func TestLoad_EnvOverridesAndFallbacks(t *testing.T) {
	dir := isolate(t)
	t.Setenv("KNOWUNITY_API_KEY", "platform-key")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("TUTORBENCH_ASSESSMENT_MAX_TURNS", "6")
	t.Setenv("TUTORBENCH_LLM_RETRY_INITIAL_WAIT", "250ms")

	cfg, err := Load(LoadOptions{EnvFile: filepath.Join(dir, "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "platform-key", cfg.Platform.APIKey)
	assert.Equal(t, "sk-fallback", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, 6, cfg.Assessment.MaxTurns)
	assert.Equal(t, 250*time.Millisecond, cfg.LLM.Retry.InitialWait)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_PrefixedEnvBeatsFallback(t *testing.T) {
	dir := isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("TUTORBENCH_LLM_OPENAI_API_KEY", "sk-prefixed")

	cfg, err := Load(LoadOptions{EnvFile: filepath.Join(dir, "missing.env")})
	require.NoError(t, err)
	assert.Equal(t, "sk-prefixed", cfg.LLM.OpenAI.APIKey)
}

func TestLoad_ConfigFileAndDotenv(t *testing.T) {
	dir := isolate(t)

	cfgFile := filepath.Join(dir, "tutorbench.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
[llm]
provider = "mock"

[assessment]
max_turns = 4
blend_base = 0.6
blend_span = 0.2

[runner]
concurrency = 8
dataset = "dev"
`), 0o600))

	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("KNOWUNITY_API_KEY=from-dotenv\n"), 0o600))
	// godotenv never overrides a variable that is set, even to "".
	require.NoError(t, os.Unsetenv("KNOWUNITY_API_KEY"))

	cfg, err := Load(LoadOptions{ConfigFile: cfgFile, EnvFile: envFile})
	require.NoError(t, err)

	assert.Equal(t, llm.ProviderMock, cfg.LLM.Provider)
	assert.Equal(t, 4, cfg.Assessment.MaxTurns)
	assert.Equal(t, 0.6, cfg.Assessment.BlendBase)
	assert.Equal(t, 8, cfg.Runner.Concurrency)
	assert.Equal(t, "dev", cfg.Runner.Dataset)
	assert.Equal(t, "from-dotenv", cfg.Platform.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	dir := isolate(t)
	_, err := Load(LoadOptions{
		ConfigFile: filepath.Join(dir, "nope.toml"),
		EnvFile:    filepath.Join(dir, "missing.env"),
	})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Platform.APIKey = "k"
		c.LLM.Provider = llm.ProviderMock
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"no platform key", func(c *Config) { c.Platform.APIKey = "" }},
		{"no base url", func(c *Config) { c.Platform.BaseURL = "" }},
		{"llm key missing", func(c *Config) { c.LLM.Provider = llm.ProviderAnthropic }},
		{"zero max turns", func(c *Config) { c.Assessment.MaxTurns = 0 }},
		{"threshold above one", func(c *Config) { c.Assessment.HighConfidenceThreshold = 1.5 }},
		{"blend over one", func(c *Config) { c.Assessment.BlendBase = 0.8 }},
		{"zero concurrency", func(c *Config) { c.Runner.Concurrency = 0 }},
		{"unknown dataset", func(c *Config) { c.Runner.Dataset = "prod" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mut(&c)
			assert.Error(t, c.Validate())
		})
	}
}
