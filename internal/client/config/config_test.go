package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	in := &Config{
		DataDir:             "/tmp/mbox",
		User:                "alice@example.com",
		DeviceID:            "device-1",
		ServerURL:           "http://localhost:9999",
		SyncIntervalSeconds: 15,
	}
	require.NoError(t, in.Save(path))

	out, err := LoadClientConfig(path)
	require.NoError(t, err)

	assert.Equal(t, in.User, out.User)
	assert.Equal(t, in.DeviceID, out.DeviceID)
	assert.Equal(t, in.DataDir, out.DataDir)
	assert.Equal(t, in.ServerURL, out.ServerURL)
	assert.Equal(t, path, out.Path)
	assert.Equal(t, 15*time.Second, out.SyncInterval())
}

func TestConfig_LoadFillsDeviceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	in := &Config{
		DataDir:   "/tmp/mbox",
		User:      "alice@example.com",
		ServerURL: DefaultServerURL,
	}
	require.NoError(t, in.Save(path))

	out, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.NotEmpty(t, out.DeviceID)
}

func TestConfig_Validate(t *testing.T) {
	valid := &Config{User: "a@b.c", DataDir: "/tmp/x", ServerURL: "http://localhost:8080"}
	assert.NoError(t, valid.Validate())

	assert.Error(t, (&Config{DataDir: "/tmp/x", ServerURL: "s"}).Validate())
	assert.Error(t, (&Config{User: "a@b.c", ServerURL: "s"}).Validate())
	assert.Error(t, (&Config{User: "a@b.c", DataDir: "/tmp/x"}).Validate())
}

func TestConfig_DefaultSyncInterval(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, DefaultSyncIntervalSeconds*time.Second, cfg.SyncInterval())
}
