package config

import (
	"os"

	"github.com/joho/godotenv"
)

// ServerVersion is reported by GET /api/stats.
const ServerVersion = "2.0.0"

type Config struct {
	ListenAddr  string
	DBPath      string
	StorageRoot string
	KeysFile    string
	JWTSecret   string
}

// Load reads configuration from the environment, with a .env file as
// fallback and local-development defaults throughout.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		ListenAddr:  getenv("ASSET_SERVER_ADDR", ":5000"),
		DBPath:      getenv("ASSET_SERVER_DB", "asset_server.sqlite3"),
		StorageRoot: getenv("ASSET_SERVER_STORAGE_ROOT", "storage_root"),
		KeysFile:    getenv("ASSET_SERVER_KEYS_FILE", "api_keys.yaml"),
		JWTSecret:   getenv("ASSET_SERVER_JWT_SECRET", "dev-secret-change"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
