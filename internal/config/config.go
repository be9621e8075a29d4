// Package config loads process configuration from flags, environment
// variables and an optional .env file, and resolves the persistent
// state layout under the data directory.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config holds the process-wide settings resolved at startup.
type Config struct {
	Host   string
	Port   int
	DBPath string

	DataDir    string
	VectorDir  string
	DoclingDir string
	LogDir     string

	HFEndpoint string

	RedisAddr     string
	RedisDB       int
	RedisPassword string

	QdrantAddr string
}

// Load parses flags and environment variables into a Config. It calls
// flag.Parse() itself, matching the teacher's single-binary startup
// sequence (godotenv.Load best-effort, then flag.Parse).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// No .env file is not fatal; environment variables still apply.
	}

	dataDir := os.Getenv("KF_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default data dir: %w", err)
		}
		dataDir = filepath.Join(home, ".knowledge-focus")
	}

	port := flag.Int("port", 60315, "HTTP listen port")
	host := flag.String("host", "127.0.0.1", "HTTP listen host")
	dbPath := flag.String("db-path", filepath.Join(dataDir, "knowledge-focus.db"), "SQLite database path")
	flag.Parse()

	cfg := &Config{
		Host:       *host,
		Port:       *port,
		DBPath:     *dbPath,
		DataDir:    dataDir,
		VectorDir:  filepath.Join(dataDir, "vector_store"),
		DoclingDir: filepath.Join(dataDir, "docling_cache"),
		LogDir:     filepath.Join(dataDir, "logs"),
		HFEndpoint: os.Getenv("HF_ENDPOINT"),
		RedisAddr:  envOr("REDIS_ADDR", "127.0.0.1:6379"),
		RedisDB:    0,
		QdrantAddr: envOr("QDRANT_ADDR", "127.0.0.1:6334"),
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	for _, dir := range []string{cfg.DataDir, cfg.VectorDir, cfg.DoclingDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
