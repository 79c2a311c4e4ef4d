// Package config holds the run configuration for the digits command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/lhermann/mnist-ml-project/internal/architecture"
	"github.com/lhermann/mnist-ml-project/internal/engine"
	"github.com/lhermann/mnist-ml-project/internal/pipeline"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config captures the knobs of a training run.
type Config struct {
	Architecture string `yaml:"architecture"`
	Backend      string `yaml:"backend"`
	DataDir      string `yaml:"data_dir"`
	Synthetic    bool   `yaml:"synthetic"`
	Seed         int64  `yaml:"seed"`

	// MaxExamples caps each loaded MNIST split; 0 keeps every example.
	MaxExamples int `yaml:"max_examples"`

	Train   Train   `yaml:"train"`
	Predict Predict `yaml:"predict"`
}

// Train configures pipeline training.
type Train struct {
	BatchSize     int     `yaml:"batch_size"`
	Epochs        int     `yaml:"epochs"`
	TrainDataSize int     `yaml:"train_data_size"`
	TestDataSize  int     `yaml:"test_data_size"`
	Background    bool    `yaml:"background"`
	LearningRate  float64 `yaml:"learning_rate"`

	// ProgressEvery prints a progress line every n batches; 0 prints epoch
	// lines only.
	ProgressEvery int `yaml:"progress_every"`
}

// Predict configures evaluation.
type Predict struct {
	TestDataSize int `yaml:"test_data_size"`
}

// Overrides captures CLI supplied values. Zero values leave the config alone,
// except Seed, which applies whenever it is non-nil.
type Overrides struct {
	Architecture  string
	Backend       string
	DataDir       string
	Synthetic     bool
	Seed          *int64
	MaxExamples   int
	LearningRate  float64
	ProgressEvery int
	BatchSize     int
	Epochs        int
	TrainDataSize int
	TestDataSize  int
	PredictSize   int
	Background    bool
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Architecture: architecture.Default,
		Backend:      engine.BackendCPU,
		DataDir:      "./data",
		Seed:         1,
		Train: Train{
			BatchSize:     pipeline.DefaultBatchSize,
			Epochs:        pipeline.DefaultEpochs,
			TrainDataSize: pipeline.DefaultTrainDataSize,
			TestDataSize:  pipeline.DefaultTestDataSize,
			LearningRate:  engine.DefaultLearningRate,
		},
		Predict: Predict{TestDataSize: pipeline.DefaultPredictSize},
	}
}

// Load reads a YAML file on top of Default and validates the result.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Architecture != "" {
		c.Architecture = o.Architecture
	}
	if o.Backend != "" {
		c.Backend = o.Backend
	}
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.Synthetic {
		c.Synthetic = true
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
	if o.MaxExamples > 0 {
		c.MaxExamples = o.MaxExamples
	}
	if o.LearningRate > 0 {
		c.Train.LearningRate = o.LearningRate
	}
	if o.ProgressEvery > 0 {
		c.Train.ProgressEvery = o.ProgressEvery
	}
	if o.BatchSize > 0 {
		c.Train.BatchSize = o.BatchSize
	}
	if o.Epochs > 0 {
		c.Train.Epochs = o.Epochs
	}
	if o.TrainDataSize > 0 {
		c.Train.TrainDataSize = o.TrainDataSize
	}
	if o.TestDataSize > 0 {
		c.Train.TestDataSize = o.TestDataSize
	}
	if o.PredictSize > 0 {
		c.Predict.TestDataSize = o.PredictSize
	}
	if o.Background {
		c.Train.Background = true
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if !architecture.Has(c.Architecture) {
		return fmt.Errorf("%w: unknown architecture %q", ErrInvalidConfig, c.Architecture)
	}
	if !slices.Contains(engine.Backends(), c.Backend) {
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}
	if !c.Synthetic && c.DataDir == "" {
		return fmt.Errorf("%w: data_dir must be set unless synthetic is true", ErrInvalidConfig)
	}
	if c.Train.BatchSize <= 0 {
		return fmt.Errorf("%w: train.batch_size must be > 0 (got %d)", ErrInvalidConfig, c.Train.BatchSize)
	}
	if c.Train.Epochs <= 0 {
		return fmt.Errorf("%w: train.epochs must be > 0 (got %d)", ErrInvalidConfig, c.Train.Epochs)
	}
	if c.Train.TrainDataSize <= 0 {
		return fmt.Errorf("%w: train.train_data_size must be > 0 (got %d)", ErrInvalidConfig, c.Train.TrainDataSize)
	}
	if c.Train.TestDataSize <= 0 {
		return fmt.Errorf("%w: train.test_data_size must be > 0 (got %d)", ErrInvalidConfig, c.Train.TestDataSize)
	}
	if c.Train.LearningRate <= 0 {
		return fmt.Errorf("%w: train.learning_rate must be > 0 (got %g)", ErrInvalidConfig, c.Train.LearningRate)
	}
	if c.Train.ProgressEvery < 0 {
		return fmt.Errorf("%w: train.progress_every must be >= 0 (got %d)", ErrInvalidConfig, c.Train.ProgressEvery)
	}
	if c.MaxExamples < 0 {
		return fmt.Errorf("%w: max_examples must be >= 0 (got %d)", ErrInvalidConfig, c.MaxExamples)
	}
	if c.Predict.TestDataSize <= 0 {
		return fmt.Errorf("%w: predict.test_data_size must be > 0 (got %d)", ErrInvalidConfig, c.Predict.TestDataSize)
	}
	return nil
}

// TrainConfig converts the train section for the pipeline.
func (c *Config) TrainConfig() pipeline.TrainConfig {
	return pipeline.TrainConfig{
		BatchSize:     c.Train.BatchSize,
		Epochs:        c.Train.Epochs,
		TrainDataSize: c.Train.TrainDataSize,
		TestDataSize:  c.Train.TestDataSize,
		Background:    c.Train.Background,
	}
}
