package config

import (
	"encoding/json"
	"log"
	"os"
)

type Config struct {
	App       AppConfig                 `json:"app"`
	Gateways  map[string]GatewayConfig  `json:"gateways"`
	Providers map[string]ProviderConfig `json:"providers"`
	Memory    MemoryConfig              `json:"memory"`
	Engine    EngineConfig              `json:"engine"`
}

type AppConfig struct {
	Name       string `json:"name"`
	ScratchDir string `json:"scratch_dir"`
}

type GatewayConfig struct {
	Token   string `json:"token"`
	Enabled bool   `json:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	Enabled bool   `json:"enabled"`
}

type MemoryConfig struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// EngineConfig carries the execution bounds. Zero values are replaced with
// the defaults below at load time.
type EngineConfig struct {
	MaxRetries           int `json:"max_retries"`             // per step, before it fails
	MaxIterationsPerStep int `json:"max_iterations_per_step"` // model round-trips per step
	MaxIterations        int `json:"max_iterations"`          // ceiling for the whole plan
	CompactionThreshold  int `json:"compaction_threshold"`    // history length that triggers compaction
	MemoryLimit          int `json:"memory_limit"`            // memories retrieved per invocation
	LearningLimit        int `json:"learning_limit"`          // learnings retrieved per invocation
}

// DefaultEngine returns the engine bounds used when the config omits them.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		MaxRetries:           2,
		MaxIterationsPerStep: 5,
		MaxIterations:        30,
		CompactionThreshold:  20,
		MemoryLimit:          10,
		LearningLimit:        5,
	}
}

func (e *EngineConfig) applyDefaults() {
	d := DefaultEngine()
	if e.MaxRetries <= 0 {
		e.MaxRetries = d.MaxRetries
	}
	if e.MaxIterationsPerStep <= 0 {
		e.MaxIterationsPerStep = d.MaxIterationsPerStep
	}
	if e.MaxIterations <= 0 {
		e.MaxIterations = d.MaxIterations
	}
	if e.CompactionThreshold <= 0 {
		e.CompactionThreshold = d.CompactionThreshold
	}
	if e.MemoryLimit <= 0 {
		e.MemoryLimit = d.MemoryLimit
	}
	if e.LearningLimit <= 0 {
		e.LearningLimit = d.LearningLimit
	}
}

func LoadConfig(path string) *Config {
	file, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config file: %v", err)
	}

	cfg.Engine.applyDefaults()
	return &cfg
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.Gateways["telegram"]
	if ok && tg.Enabled {
		return tg, true
	}
	return GatewayConfig{}, false
}
