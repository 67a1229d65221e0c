package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"facet/internal/classify"
)

type Config struct {
	Input struct {
		File   string `yaml:"file"`
		Column string `yaml:"column"`
	} `yaml:"input"`
	Taxonomy struct {
		Hierarchy string `yaml:"hierarchy"`
		Templates string `yaml:"templates"`
	} `yaml:"taxonomy"`
	Run struct {
		MaxStage    int `yaml:"max_stage"`
		BatchSize   int `yaml:"batch_size"`
		Concurrency int `yaml:"concurrency"`
	} `yaml:"run"`
	AI struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		APIKey      string  `yaml:"api_key"`
		Temperature float32 `yaml:"temperature"`
	} `yaml:"ai"`
	Output struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`
}

func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	// 3. Override with Environment Variables if present
	if apiKey := os.Getenv("FACET_API_KEY"); apiKey != "" {
		cfg.AI.APIKey = apiKey
	}
	if provider := os.Getenv("FACET_AI_PROVIDER"); provider != "" {
		cfg.AI.Provider = provider
	}
	if model := os.Getenv("FACET_AI_MODEL"); model != "" {
		cfg.AI.Model = model
	}
	if stage := os.Getenv("FACET_MAX_STAGE"); stage != "" {
		n, err := strconv.Atoi(stage)
		if err != nil {
			return nil, fmt.Errorf("FACET_MAX_STAGE: %w", err)
		}
		cfg.Run.MaxStage = n
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Input.Column == "" {
		c.Input.Column = "comment"
	}
	if c.Run.MaxStage == 0 {
		c.Run.MaxStage = 4
	}
	if c.Run.BatchSize == 0 {
		c.Run.BatchSize = classify.DefaultBatchSize
	}
	if c.Run.Concurrency == 0 {
		c.Run.Concurrency = classify.DefaultConcurrency
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "gemini"
	}
	if c.AI.Model == "" {
		c.AI.Model = "gemini-2.0-flash"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "results"
	}
}

func (c *Config) validate() error {
	if c.Input.File == "" {
		return fmt.Errorf("config: input.file is required")
	}
	if c.Taxonomy.Hierarchy == "" {
		return fmt.Errorf("config: taxonomy.hierarchy is required")
	}
	if c.Taxonomy.Templates == "" {
		return fmt.Errorf("config: taxonomy.templates is required")
	}
	if c.Run.MaxStage < 1 || c.Run.MaxStage > 4 {
		return fmt.Errorf("config: run.max_stage must be between 1 and 4, got %d", c.Run.MaxStage)
	}
	if c.Run.BatchSize < 1 {
		return fmt.Errorf("config: run.batch_size must be positive, got %d", c.Run.BatchSize)
	}
	if c.Run.Concurrency < 1 {
		return fmt.Errorf("config: run.concurrency must be positive, got %d", c.Run.Concurrency)
	}
	return nil
}
