// Package config loads orgdir settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"orgdirectory/internal/blob"
)

// Environment variable names.
const (
	EnvStorageDriver     = "ORGDIR_STORAGE_DRIVER"
	EnvSQLitePath        = "ORGDIR_SQLITE_PATH"
	EnvPostgresDSN       = "ORGDIR_POSTGRES_DSN"
	EnvBlobDriver        = "ORGDIR_BLOB_DRIVER"
	EnvBlobFSRoot        = "ORGDIR_BLOB_FS_ROOT"
	EnvBlobS3Bucket      = "ORGDIR_BLOB_S3_BUCKET"
	EnvBlobS3Region      = "ORGDIR_BLOB_S3_REGION"
	EnvBlobS3Endpoint    = "ORGDIR_BLOB_S3_ENDPOINT"
	EnvBlobS3PathStyle   = "ORGDIR_BLOB_S3_PATH_STYLE"
	EnvBlobS3AccessKey   = "ORGDIR_BLOB_S3_ACCESS_KEY_ID"
	EnvBlobS3SecretKey   = "ORGDIR_BLOB_S3_SECRET_ACCESS_KEY"
	EnvLogLevel          = "ORGDIR_LOG_LEVEL"
	EnvLogFormat         = "ORGDIR_LOG_FORMAT"
	EnvTreeMaxLevel      = "ORGDIR_TREE_MAX_LEVEL"
	defaultStorageDriver = "sqlite"
	defaultSQLitePath    = "./orgdirectory.db"
	defaultTreeMaxLevel  = 3
)

// Storage selects the persistence backend.
type Storage struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Log configures the zap logger.
type Log struct {
	Level  string
	Format string
}

// Config is the full orgdir configuration.
type Config struct {
	Storage      Storage
	Blob         blob.Config
	Log          Log
	TreeMaxLevel int
}

// Load reads .env from the working directory when present, then the process
// environment. Variables already set in the environment win over .env.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is ignored.
func LoadFile(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from ORGDIR_* variables only.
func FromEnv() (Config, error) {
	var cfg Config
	cfg.Storage.Driver = strings.ToLower(getEnv(EnvStorageDriver, defaultStorageDriver))
	cfg.Storage.SQLitePath = getEnv(EnvSQLitePath, defaultSQLitePath)
	cfg.Storage.PostgresDSN = os.Getenv(EnvPostgresDSN)
	switch cfg.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("%s: unknown storage driver %q", EnvStorageDriver, cfg.Storage.Driver)
	}

	cfg.Blob.Driver = blob.Driver(strings.ToLower(getEnv(EnvBlobDriver, string(blob.DriverFilesystem))))
	cfg.Blob.FSRoot = getEnv(EnvBlobFSRoot, blob.DefaultFSRoot)
	cfg.Blob.S3 = blob.S3Config{
		Bucket:          os.Getenv(EnvBlobS3Bucket),
		Region:          os.Getenv(EnvBlobS3Region),
		Endpoint:        os.Getenv(EnvBlobS3Endpoint),
		AccessKeyID:     os.Getenv(EnvBlobS3AccessKey),
		SecretAccessKey: os.Getenv(EnvBlobS3SecretKey),
	}
	if v := os.Getenv(EnvBlobS3PathStyle); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvBlobS3PathStyle, err)
		}
		cfg.Blob.S3.PathStyle = b
	}

	cfg.Log.Level = getEnv(EnvLogLevel, "info")
	cfg.Log.Format = getEnv(EnvLogFormat, "json")

	cfg.TreeMaxLevel = defaultTreeMaxLevel
	if v := os.Getenv(EnvTreeMaxLevel); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("%s: must be a positive integer, got %q", EnvTreeMaxLevel, v)
		}
		cfg.TreeMaxLevel = n
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
