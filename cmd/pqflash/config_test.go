package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Store.Kind)
	assert.Equal(t, ".", cfg.Store.Dir)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.NoError(t, cfg.validate())
}

func TestLoadConfig_Layers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pqflash.yaml", `
store:
  kind: local
  dir: /data/indexes
  mmap: true
index:
  name: sift
  bfs_cache: 10
  block_cache: lru
log:
  level: info
`)
	envFile := writeFile(t, dir, ".env", "PQFLASH_LOG_FORMAT=json\n")
	t.Cleanup(func() { _ = os.Unsetenv("PQFLASH_LOG_FORMAT") })
	t.Setenv("PQFLASH_INDEX_BFS_CACHE", "20")
	t.Setenv("PQFLASH_INDEX_IO_BYTES_PER_SEC", "1048576")

	cfg, err := loadConfig(path, envFile)
	require.NoError(t, err)
	require.NoError(t, cfg.validate())

	assert.Equal(t, "/data/indexes", cfg.Store.Dir)
	assert.True(t, cfg.Store.Mmap)
	assert.Equal(t, "sift", cfg.Index.Name)
	assert.Equal(t, "lru", cfg.Index.BlockCache)
	assert.Equal(t, 20, cfg.Index.BFSCache)
	assert.Equal(t, int64(1<<20), cfg.Index.IOBytesPerSec)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NotEmpty(t, cfg.options())
}

func TestLoadConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := loadConfig(filepath.Join(dir, "missing.yaml"), "")
	assert.Error(t, err)

	_, err = loadConfig(writeFile(t, dir, "typo.yaml", "index:\n  nmae: sift\n"), "")
	assert.Error(t, err)

	tests := []struct {
		name string
		cfg  func(*Config)
	}{
		{"unknown kind", func(c *Config) { c.Store.Kind = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Store.Kind = "s3" }},
		{"minio without endpoint", func(c *Config) { c.Store.Kind = "minio"; c.Store.Bucket = "b" }},
		{"block cache", func(c *Config) { c.Index.BlockCache = "arc" }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.cfg(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestOpenStore_S3AndMinio(t *testing.T) {
	s, err := openStore(t.Context(), StoreConfig{
		Kind:         "s3",
		Bucket:       "indexes",
		Region:       "us-east-1",
		Endpoint:     "http://localhost:9000",
		AccessKey:    "key",
		SecretKey:    "secret",
		UsePathStyle: true,
	})
	require.NoError(t, err)
	assert.NotNil(t, s)

	s, err = openStore(t.Context(), StoreConfig{
		Kind:      "minio",
		Bucket:    "indexes",
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)
	assert.NotNil(t, s)
}
