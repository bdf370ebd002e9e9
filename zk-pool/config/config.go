package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kysee/zkpool/zk-pool/proof"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Home is the directory of the state store. Empty keeps state in memory.
	Home      string `yaml:"home"`
	ChainID   string `yaml:"chain_id"`
	LogLevel  string `yaml:"log_level"`
	TreeDepth int    `yaml:"tree_depth"`

	Proof    ProofConfig    `yaml:"proof"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Store    StoreConfig    `yaml:"store"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ProofConfig struct {
	ParamsDir string `yaml:"params_dir"`
	CacheSize int    `yaml:"cache_size"`
}

type PipelineConfig struct {
	// Workers bounds the concurrent checks of one phase. 0 means one per CPU.
	Workers int `yaml:"workers"`
}

type StoreConfig struct {
	Sync bool `yaml:"sync"`
}

type MetricsConfig struct {
	// Listen is the address of the prometheus endpoint. Empty disables it.
	Listen string `yaml:"listen"`
}

func Default() *Config {
	return &Config{
		ChainID:   "zkpool-local",
		LogLevel:  "info",
		TreeDepth: 16,
		Proof: ProofConfig{
			ParamsDir: "params",
			CacheSize: proof.DefaultCacheSize,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(bz, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	// relative dirs are relative to the config file
	base := filepath.Dir(path)
	cfg.Home = resolve(base, cfg.Home)
	cfg.Proof.ParamsDir = resolve(base, cfg.Proof.ParamsDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.ChainID == "" {
		return errors.New("chain_id is empty")
	}
	if cfg.TreeDepth < 1 || cfg.TreeDepth > proof.MaxDepth {
		return fmt.Errorf("tree_depth must be in [1, %d], got %d", proof.MaxDepth, cfg.TreeDepth)
	}
	if cfg.Proof.ParamsDir == "" {
		return errors.New("proof.params_dir is empty")
	}
	if cfg.Proof.CacheSize < 0 {
		return fmt.Errorf("proof.cache_size must not be negative, got %d", cfg.Proof.CacheSize)
	}
	if cfg.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers must not be negative, got %d", cfg.Pipeline.Workers)
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Write saves cfg as yaml.
func (cfg *Config) Write(path string) error {
	bz, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, bz, 0o644)
}

func resolve(base, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}
