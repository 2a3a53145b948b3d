package server

import (
	"os"

	"github.com/merklebox/merklebox/internal/blob"
)

const DefaultAddr = "127.0.0.1:8080"

type Config struct {
	HTTP   HTTPConfig
	Blob   blob.S3Config
	DBPath string

	// UseMemoryBlob switches the blob backend to the in-process store for
	// local development and tests.
	UseMemoryBlob bool
}

type HTTPConfig struct {
	Addr     string
	CertFile string
	KeyFile  string
}

// ConfigFromEnv builds a config from environment variables, typically loaded
// from a .env file via godotenv.
func ConfigFromEnv() *Config {
	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:     envOr("MBOX_ADDR", DefaultAddr),
			CertFile: os.Getenv("MBOX_CERT_FILE"),
			KeyFile:  os.Getenv("MBOX_KEY_FILE"),
		},
		Blob: blob.S3Config{
			BucketName: envOr("MBOX_S3_BUCKET", "merklebox"),
			Region:     envOr("MBOX_S3_REGION", "us-east-1"),
			Endpoint:   os.Getenv("MBOX_S3_ENDPOINT"),
			AccessKey:  os.Getenv("MBOX_S3_ACCESS_KEY"),
			SecretKey:  os.Getenv("MBOX_S3_SECRET_KEY"),
		},
		DBPath:        envOr("MBOX_DB_PATH", "merklebox.db"),
		UseMemoryBlob: os.Getenv("MBOX_MEMORY_BLOB") == "1",
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
