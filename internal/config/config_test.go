package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizgrade/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Quiz struct {
		CacheTTL time.Duration
		Prefix   string
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad(t *testing.T) {
	p := writeFile(t, "config.yaml", `
http:
  port: 9090
quiz:
  cachettl: 5m
`)

	var c testConfig
	c.Quiz.Prefix = "default"
	require.NoError(t, config.Load(p, &c))

	assert.EqualValues(t, 9090, c.HTTP.Port)
	assert.Equal(t, 5*time.Minute, c.Quiz.CacheTTL)
	assert.Equal(t, "default", c.Quiz.Prefix, "unset keys should keep the default")
}

func TestLoad_EnvOverride(t *testing.T) {
	p := writeFile(t, "config.yaml", "http:\n  port: 9090\n")
	t.Setenv("HTTP_PORT", "7070")

	var c testConfig
	require.NoError(t, config.Load(p, &c))
	assert.EqualValues(t, 7070, c.HTTP.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	var c testConfig
	assert.Error(t, config.Load(filepath.Join(t.TempDir(), "missing.yaml"), &c))
}

func TestLoadDotEnv(t *testing.T) {
	p := writeFile(t, ".env", "QUIZGRADE_TEST_VAR=from-dotenv\n")
	t.Setenv("QUIZGRADE_TEST_VAR", "")
	require.NoError(t, os.Unsetenv("QUIZGRADE_TEST_VAR"))

	require.NoError(t, config.LoadDotEnv(p, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "from-dotenv", os.Getenv("QUIZGRADE_TEST_VAR"))
}
