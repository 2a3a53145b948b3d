package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/merklebox/merklebox/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".merklebox", "config.json")
	DefaultDataDir    = filepath.Join(home, "MerkleBox")
	DefaultServerURL  = "http://localhost:8080"
)

const DefaultSyncIntervalSeconds = 30

type Config struct {
	DataDir             string `json:"data_dir"`
	User                string `json:"user"`
	DeviceID            string `json:"device_id"`
	ServerURL           string `json:"server_url"`
	SyncIntervalSeconds int    `json:"sync_interval_seconds"`
	Path                string `json:"-"`
}

func (c *Config) SyncInterval() time.Duration {
	if c.SyncIntervalSeconds <= 0 {
		return DefaultSyncIntervalSeconds * time.Second
	}
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.User == "" {
		return errors.New("user is required")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func LoadClientConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Path = path
	if cfg.DeviceID == "" {
		cfg.DeviceID = GenerateDeviceID()
	}

	return &cfg, nil
}

// GenerateDeviceID derives a stable per-machine identifier, falling back to a
// random one when the machine id is unavailable (containers, stripped-down
// systems).
func GenerateDeviceID() string {
	id, err := machineid.ProtectedID("merklebox")
	if err != nil {
		return uuid.NewString()
	}
	return id
}
