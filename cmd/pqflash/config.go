package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/pqflash"
)

// envPrefix prefixes environment overrides, e.g. PQFLASH_STORE_BUCKET.
const envPrefix = "PQFLASH"

// Config is the CLI configuration. Values come from the YAML file, then the
// environment (after loading the .env file), then flags.
type Config struct {
	Store StoreConfig `yaml:"store"`
	Index IndexConfig `yaml:"index"`
	Log   LogConfig   `yaml:"log"`
}

// StoreConfig selects where the index blobs live.
type StoreConfig struct {
	// Kind is local, s3 or minio.
	Kind string `yaml:"kind"`
	// Dir is the local index directory.
	Dir string `yaml:"dir"`
	// Mmap maps local files instead of reading them with pread.
	Mmap bool `yaml:"mmap"`

	Bucket       string `yaml:"bucket"`
	RootPrefix   string `yaml:"root_prefix" split_words:"true"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key" split_words:"true"`
	SecretKey    string `yaml:"secret_key" split_words:"true"`
	UsePathStyle bool   `yaml:"use_path_style" split_words:"true"`
	Secure       bool   `yaml:"secure"`
}

// IndexConfig configures the opened index.
type IndexConfig struct {
	// Name is the index prefix: Name_disk.index and Name_pq.bin.
	Name       string `yaml:"name"`
	NumThreads int    `yaml:"num_threads" split_words:"true"`
	// BFSCache caches this many nodes around the entry points at open.
	BFSCache int `yaml:"bfs_cache" split_words:"true"`
	// CacheList names a cache-list artifact loaded at open.
	CacheList string `yaml:"cache_list" split_words:"true"`
	// BlockCache is none, ristretto or lru.
	BlockCache      string `yaml:"block_cache" split_words:"true"`
	BlockCacheBytes int64  `yaml:"block_cache_bytes" split_words:"true"`
	MemoryLimit     int64  `yaml:"memory_limit" split_words:"true"`
	IOBytesPerSec   int64  `yaml:"io_bytes_per_sec" split_words:"true"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{Kind: "local", Dir: ".", Secure: true},
		Index: IndexConfig{BlockCacheBytes: 256 << 20},
		Log:   LogConfig{Level: "warn", Format: "text"},
	}
}

// loadConfig reads envFile (when it exists) into the process environment,
// then path (when set), then applies PQFLASH_* overrides.
func loadConfig(path, envFile string) (Config, error) {
	cfg := defaultConfig()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Kind {
	case "local":
	case "s3", "minio":
		if c.Store.Bucket == "" {
			return fmt.Errorf("store %s requires a bucket", c.Store.Kind)
		}
		if c.Store.Kind == "minio" && c.Store.Endpoint == "" {
			return errors.New("store minio requires an endpoint")
		}
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	switch c.Index.BlockCache {
	case "", "none", "ristretto", "lru":
	default:
		return fmt.Errorf("unknown block cache %q", c.Index.BlockCache)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return l, nil
}

func (c Config) logger() *pqflash.Logger {
	level, _ := parseLevel(c.Log.Level)
	if strings.EqualFold(c.Log.Format, "json") {
		return pqflash.NewJSONLogger(level)
	}
	return pqflash.NewTextLogger(level)
}

// options maps the index settings to pqflash options. The cache list is
// applied by openIndex because it needs the store.
func (c Config) options() []pqflash.Option {
	opts := []pqflash.Option{
		pqflash.WithLogger(c.logger()),
		pqflash.WithResourceLimits(pqflash.ResourceLimits{
			MemoryLimitBytes: c.Index.MemoryLimit,
			IOBytesPerSec:    c.Index.IOBytesPerSec,
		}),
	}
	if c.Index.NumThreads > 0 {
		opts = append(opts, pqflash.WithNumThreads(c.Index.NumThreads))
	}
	if c.Index.BFSCache > 0 {
		opts = append(opts, pqflash.WithBFSCache(c.Index.BFSCache))
	}
	switch c.Index.BlockCache {
	case "ristretto":
		opts = append(opts, pqflash.WithBlockCache(c.Index.BlockCacheBytes))
	case "lru":
		opts = append(opts, pqflash.WithLRUBlockCache(c.Index.BlockCacheBytes))
	}
	return opts
}
