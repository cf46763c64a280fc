package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	SourceFile    = "file"
	SourceStorage = "storage"
)

type Config struct {
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	LogFormat   string            `json:"log_format" yaml:"log_format"`
	API         APIConfig         `json:"api" yaml:"api"`
	Definitions DefinitionsConfig `json:"definitions" yaml:"definitions"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Ingest      IngestConfig      `json:"ingest" yaml:"ingest"`
	History     HistoryConfig     `json:"history" yaml:"history"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
}

type APIConfig struct {
	Addr         string `json:"addr" yaml:"addr"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// DefinitionsConfig selects where indicator definitions are read from at
// startup: the YAML file at Path, or the storage table.
type DefinitionsConfig struct {
	Source string `json:"source" yaml:"source"`
	Path   string `json:"path" yaml:"path"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type IngestConfig struct {
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type HistoryConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		API:       APIConfig{Addr: ":8000", MaxBodyBytes: 1 << 20},
		Definitions: DefinitionsConfig{
			Source: SourceFile,
			Path:   "data/indicator_definitions.yaml",
		},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:osintwarn.db?_pragma=busy_timeout(5000)"},
		Ingest: IngestConfig{
			Kafka: KafkaConfig{Enabled: false, Topic: "osint-events", GroupID: "osintwarn"},
		},
		History: HistoryConfig{StoreLimit: 1000},
		Metrics: MetricsConfig{Enabled: true},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.API.MaxBodyBytes <= 0 {
		cfg.API.MaxBodyBytes = 1 << 20
	}
	if cfg.Definitions.Source == "" {
		cfg.Definitions.Source = SourceFile
	}
	cfg.Definitions.Source = strings.ToLower(cfg.Definitions.Source)
	if cfg.History.StoreLimit <= 0 {
		cfg.History.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Addr == "" {
		return errors.New("api.addr required")
	}
	switch cfg.Definitions.Source {
	case SourceFile:
		if cfg.Definitions.Path == "" {
			return errors.New("definitions.path required when definitions.source is file")
		}
	case SourceStorage:
		if !cfg.Storage.Enabled {
			return errors.New("storage.enabled required when definitions.source is storage")
		}
	default:
		return fmt.Errorf("definitions.source must be %q or %q, got %q", SourceFile, SourceStorage, cfg.Definitions.Source)
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver unsupported: %q", cfg.Storage.Driver)
		}
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	return nil
}

// ResolvePath makes a relative path absolute against the working directory.
func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}

// RelativeTo resolves a path found inside the config file against the
// directory holding that file.
func RelativeTo(configPath, path string) string {
	if path == "" || filepath.IsAbs(path) || configPath == "" {
		return path
	}
	return filepath.Join(filepath.Dir(configPath), path)
}
