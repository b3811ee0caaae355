package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadConfig_MergesEnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
server:
  port: ":8080"
db:
  host: localhost
  port: 5432
  password: ${PONDFLOW_TEST_DB_PASSWORD}
`)
	writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
`)
	writeFile(t, dir, "secrets.env", `
# comment
PONDFLOW_TEST_DB_PASSWORD="s3cret"
`)

	merged, err := LoadConfig("production", dir)
	require.NoError(t, err)

	db := merged["db"].(map[string]interface{})
	assert.Equal(t, "db.internal", db["host"])
	assert.Equal(t, 5432, db["port"])
	assert.Equal(t, "s3cret", db["password"])
	assert.Equal(t, ":8080", merged["server"].(map[string]interface{})["port"])
}

func TestLoadConfig_MissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base.yaml")
}

func TestLoadInto_DecodesTypedStruct(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
  name: pondflow
jwt:
  secret: ${PONDFLOW_TEST_JWT}
`)
	t.Setenv("PONDFLOW_TEST_JWT", "from-env")

	var out struct {
		DB  DBConfig  `yaml:"db"`
		JWT JWTConfig `yaml:"jwt"`
	}
	require.NoError(t, LoadInto("local", dir, &out))

	assert.Equal(t, "localhost", out.DB.Host)
	assert.Equal(t, 5432, out.DB.Port)
	assert.Equal(t, "pondflow", out.DB.Name)
	assert.Equal(t, "from-env", out.JWT.Secret)
}

func TestMergeMaps_DoesNotMutateInputs(t *testing.T) {
	base := map[string]interface{}{"a": map[string]interface{}{"x": 1, "y": 2}}
	overlay := map[string]interface{}{"a": map[string]interface{}{"y": 3}}

	merged := mergeMaps(base, overlay)

	assert.Equal(t, 3, merged["a"].(map[string]interface{})["y"])
	assert.Equal(t, 1, merged["a"].(map[string]interface{})["x"])
	assert.Equal(t, 2, base["a"].(map[string]interface{})["y"])
}

func TestOverrideDBFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "envhost")
	t.Setenv("DB_PORT", "6543")

	cfg := DBConfig{Host: "localhost", Port: 5432}
	OverrideDBFromEnv(&cfg)

	assert.Equal(t, "envhost", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
}
