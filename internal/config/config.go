// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package config loads the core's deployment configuration: a YAML file
// overridden by WIKIFY_*-prefixed environment variables, with an
// optional .env file loaded first for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/northbound/wikify/internal/logx"
)

// ServerConfig controls the reference HTTP/WebSocket layer in cmd/.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// ManagerConfig mirrors internal/manager.Config in a serializable form.
type ManagerConfig struct {
	MaxConcurrentIndexing int           `mapstructure:"max_concurrent_indexing"`
	MaxConcurrentQueries  int           `mapstructure:"max_concurrent_queries"`
	IndexingQueueTimeout  time.Duration `mapstructure:"indexing_queue_timeout"`
	QueryTimeout          time.Duration `mapstructure:"query_timeout"`
	RetryAttempts         int           `mapstructure:"retry_attempts"`
	HealthCheckInterval   time.Duration `mapstructure:"health_check_interval"`
	StuckThreshold        time.Duration `mapstructure:"stuck_threshold"`
	AutoRecoverStuck      bool          `mapstructure:"auto_recover_stuck"`
	QueryCacheSize        int           `mapstructure:"query_cache_size"`
	QueryCacheTTL         time.Duration `mapstructure:"query_cache_ttl"`
	EmbedBatchSize        int           `mapstructure:"embed_batch_size"`
	RemoveCancelWait      time.Duration `mapstructure:"remove_cancel_wait"`
}

// ProviderConfig configures an Embedder or ChatModel capability.
type ProviderConfig struct {
	Provider string            `mapstructure:"provider"`
	Options  map[string]string `mapstructure:"options"`
}

// FetcherConfig controls where working copies are cloned to.
type FetcherConfig struct {
	WorkspaceRoot string `mapstructure:"workspace_root"`
}

// StoreConfig controls the repository metadata database and vector
// collection root.
type StoreConfig struct {
	DatabasePath  string `mapstructure:"database_path"`
	VectorRoot    string `mapstructure:"vector_root"`
	VectorBackend string `mapstructure:"vector_backend"` // "json" or "qdrant"
	QdrantAddr    string `mapstructure:"qdrant_addr"`
}

// QueueConfig selects the job queue backend.
type QueueConfig struct {
	Backend  string `mapstructure:"backend"` // "memory" or "redis"
	Capacity int    `mapstructure:"capacity"`
}

// AppConfig is the complete deployment configuration.
type AppConfig struct {
	Server    ServerConfig   `mapstructure:"server"`
	Manager   ManagerConfig  `mapstructure:"manager"`
	Embedder  ProviderConfig `mapstructure:"embedder"`
	ChatModel ProviderConfig `mapstructure:"chat_model"`
	Fetcher   FetcherConfig  `mapstructure:"fetcher"`
	Store     StoreConfig    `mapstructure:"store"`
	Queue     QueueConfig    `mapstructure:"queue"`
}

// LoadConfig loads configuration from configPath (or ~/.wikify/config.yaml
// if empty), generating a default file on first run, then applies
// WIKIFY_*-prefixed environment overrides on top. A .env file in the
// working directory is loaded first if present, so local development can
// keep provider API keys out of the YAML file entirely.
func LoadConfig(configPath string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logx.Warnf("config: .env present but unreadable: %v", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		configDir := filepath.Join(home, ".wikify")
		configFile := filepath.Join(configDir, "config.yaml")
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			return nil, fmt.Errorf("create config directory: %w", err)
		}
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			if err := os.WriteFile(configFile, []byte(defaultConfigYAML), 0o644); err != nil {
				return nil, fmt.Errorf("write default config: %w", err)
			}
		}
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logx.Printf("config: no config file found, using defaults")
	}

	v.SetEnvPrefix("WIKIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Provider options have no default, so their keys are bound
	// explicitly for the environment to reach them.
	for _, key := range []string{"embedder.options.api_key", "chat_model.options.api_key"} {
		_ = v.BindEnv(key)
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	v.WatchConfig()
	v.OnConfigChange(func(fsnotify.Event) {
		logx.Printf("config: file changed, restart to pick up changes")
	})

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")

	v.SetDefault("manager.max_concurrent_indexing", 3)
	v.SetDefault("manager.max_concurrent_queries", 10)
	v.SetDefault("manager.indexing_queue_timeout", 5*time.Minute)
	v.SetDefault("manager.query_timeout", 30*time.Second)
	v.SetDefault("manager.retry_attempts", 3)
	v.SetDefault("manager.health_check_interval", 30*time.Second)
	v.SetDefault("manager.stuck_threshold", 10*time.Minute)
	v.SetDefault("manager.auto_recover_stuck", true)
	v.SetDefault("manager.query_cache_size", 1000)
	v.SetDefault("manager.query_cache_ttl", 5*time.Minute)
	v.SetDefault("manager.embed_batch_size", 64)
	v.SetDefault("manager.remove_cancel_wait", 10*time.Second)

	v.SetDefault("embedder.provider", "mock")
	v.SetDefault("chat_model.provider", "mock")

	v.SetDefault("fetcher.workspace_root", "./workspace")

	v.SetDefault("store.database_path", "./wikify.db")
	v.SetDefault("store.vector_root", "./vectors")
	v.SetDefault("store.vector_backend", "json")
	v.SetDefault("store.qdrant_addr", "localhost:6334")

	v.SetDefault("queue.backend", "memory")
	v.SetDefault("queue.capacity", 256)
}

const defaultConfigYAML = `# Wikify core configuration
# Provider API keys are read from the environment (WIKIFY_EMBEDDER_OPTIONS_API_KEY etc)
# or a .env file; this file holds everything else.

server:
  address: ":8080"

manager:
  max_concurrent_indexing: 3
  max_concurrent_queries: 10
  indexing_queue_timeout: 5m
  query_timeout: 30s
  retry_attempts: 3
  health_check_interval: 30s
  stuck_threshold: 10m
  auto_recover_stuck: true
  query_cache_size: 1000
  query_cache_ttl: 5m
  embed_batch_size: 64
  remove_cancel_wait: 10s

embedder:
  provider: mock

chat_model:
  provider: mock

fetcher:
  workspace_root: ./workspace

store:
  database_path: ./wikify.db
  vector_root: ./vectors
  vector_backend: json
  qdrant_addr: localhost:6334

queue:
  backend: memory
  capacity: 256
`
