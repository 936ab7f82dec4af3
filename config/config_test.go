package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Router.Replicas)
	assert.True(t, cfg.HasRole(RoleRouter))
	assert.True(t, cfg.HasRole(RoleValidator))
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing org", func(c *Config) { c.Platform.Org = "" }},
		{"org with bad characters", func(c *Config) { c.Platform.Org = "c 360!" }},
		{"missing id", func(c *Config) { c.Platform.ID = "" }},
		{"no NATS urls", func(c *Config) { c.NATS.URLs = nil }},
		{"zero replicas", func(c *Config) { c.Router.Replicas = 0 }},
		{"negative replicas", func(c *Config) { c.Router.Replicas = -2 }},
		{"replica id out of range", func(c *Config) { c.Validator.ReplicaID = 3 }},
		{"negative replica id", func(c *Config) { c.Validator.ReplicaID = -1 }},
		{"validator without dsn", func(c *Config) { c.Postgres.DSN = "" }},
		{"no roles", func(c *Config) { c.Roles = nil }},
		{"unknown role", func(c *Config) { c.Roles = []Role{"chauffeur"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateNoStoreRolesSkipDSNCheck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Postgres.DSN = ""
	cfg.Roles = []Role{RoleRouter, RoleBroadcaster}
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{
		"platform": {"org": "c360", "id": "gridstream-test"},
		"nats": {"urls": ["nats://broker:4222"], "reconnect_wait": "500ms", "connect_retry": "3s"},
		"postgres": {"dsn": "postgres://u:p@db:5432/grid?sslmode=disable", "connect_retry": "2s"},
		"router": {"replicas": 5},
		"validator": {"replica_id": 2},
		"roles": ["validator"]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gridstream-test", cfg.Platform.ID)
	assert.Equal(t, []string{"nats://broker:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 500*time.Millisecond, cfg.NATS.ReconnectWait)
	assert.Equal(t, 3*time.Second, cfg.NATS.ConnectRetry)
	assert.Equal(t, 2*time.Second, cfg.Postgres.ConnectRetry)
	assert.Equal(t, 5, cfg.Router.Replicas)
	assert.Equal(t, 2, cfg.Validator.ReplicaID)
	assert.Equal(t, []Role{RoleValidator}, cfg.Roles)
	// Defaults survive for fields the file omits
	assert.Equal(t, 8765, cfg.Broadcast.Port)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader().Load("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().Load("")
	require.NoError(t, err)
	assert.Equal(t, "gridstream", cfg.Platform.ID)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GRIDSTREAM_NATS_URLS", "nats://a:4222,nats://b:4222")
	t.Setenv("GRIDSTREAM_POSTGRES_DSN", "postgres://env@db/grid")
	t.Setenv("GRIDSTREAM_REPLICAS", "7")
	t.Setenv("GRIDSTREAM_REPLICA_ID", "4")
	t.Setenv("GRIDSTREAM_ROLES", "validator, broadcaster")

	cfg, err := NewLoader().Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "postgres://env@db/grid", cfg.Postgres.DSN)
	assert.Equal(t, 7, cfg.Router.Replicas)
	assert.Equal(t, 4, cfg.Validator.ReplicaID)
	assert.Equal(t, []Role{RoleValidator, RoleBroadcaster}, cfg.Roles)
}

func TestNATSURL(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL())

	cfg.NATS.URLs = []string{"nats://a:4222", "nats://b:4222"}
	assert.Equal(t, "nats://a:4222,nats://b:4222", cfg.NATSURL())

	cfg.NATS.URLs = nil
	assert.Equal(t, "", cfg.NATSURL())
}
