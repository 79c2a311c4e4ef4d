// Package main provides the digits CLI: list, inspect, train and evaluate
// the digit-classifier architectures.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/cpuid/v2"

	"github.com/lhermann/mnist-ml-project/internal/analyzer"
	"github.com/lhermann/mnist-ml-project/internal/architecture"
	"github.com/lhermann/mnist-ml-project/internal/config"
	"github.com/lhermann/mnist-ml-project/internal/dataset"
	"github.com/lhermann/mnist-ml-project/internal/engine"
	"github.com/lhermann/mnist-ml-project/internal/pipeline"
	"github.com/lhermann/mnist-ml-project/internal/report"
)

const version = "v0.1.0"

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("digits", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(fs) }

	cfgPath := fs.String("config", "", "Path to YAML config")
	arch := fs.String("arch", "", "Architecture name")
	dataDir := fs.String("data", "", "Directory containing MNIST IDX files (optionally .gz)")
	synthetic := fs.Bool("synthetic", false, "Use generated digit patterns instead of MNIST files")
	backend := fs.String("backend", "", "Tensor backend: "+strings.Join(engine.Backends(), ", "))
	epochs := fs.Int("epochs", 0, "Number of training epochs")
	batchSize := fs.Int("batch", 0, "Training batch size")
	trainSize := fs.Int("train-size", 0, "Training examples per run")
	testSize := fs.Int("test-size", 0, "Test examples per run")
	predictSize := fs.Int("predict-size", 0, "Examples used for evaluation")
	background := fs.Bool("background", false, "Train without live progress")
	seed := fs.Int64("seed", 1, "PRNG seed")
	lr := fs.Float64("lr", 0, "Adam learning rate")
	maxExamples := fs.Int("max-examples", 0, "Use at most this many examples of each MNIST split")
	progressEvery := fs.Int("progress-every", 0, "Print training progress every n batches")
	verbose := fs.Bool("v", false, "Verbose logging")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var seedOverride *int64
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			seedOverride = seed
		}
	})

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			logger.Error("failed to load config", "path", *cfgPath, "err", err)
			return 1
		}
	}
	cfg.ApplyOverrides(config.Overrides{
		Architecture:  *arch,
		Backend:       *backend,
		DataDir:       *dataDir,
		Synthetic:     *synthetic,
		Seed:          seedOverride,
		MaxExamples:   *maxExamples,
		LearningRate:  *lr,
		ProgressEvery: *progressEvery,
		BatchSize:     *batchSize,
		Epochs:        *epochs,
		TrainDataSize: *trainSize,
		TestDataSize:  *testSize,
		PredictSize:   *predictSize,
		Background:    *background,
	})
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		return 1
	}

	cmd := fs.Arg(0)
	var err error
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "digits %s\n", version)
	case "architectures":
		err = listArchitectures(stdout)
	case "summary":
		err = printSummary(stdout, cfg.Architecture)
	case "train":
		err = train(cfg, stdout, logger)
	case "evaluate":
		cfg.Train.Background = true
		err = train(cfg, stdout, logger)
	default:
		usage(fs)
		err = errUsage
	}
	if errors.Is(err, errUsage) {
		return 2
	}
	if err != nil {
		logger.Error("command failed", "command", cmd, "err", err)
		return 1
	}
	return 0
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, "Usage: digits [flags] <command>\n\n")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  architectures  List the available architectures")
	fmt.Fprintln(w, "  summary        Show the layer table of an architecture")
	fmt.Fprintln(w, "  train          Train, then report accuracy and confusion matrix")
	fmt.Fprintln(w, "  evaluate       Like train, without live progress")
	fmt.Fprintln(w, "  version        Show version")
	fmt.Fprintln(w, "\nFlags:")
	fs.PrintDefaults()
}

func listArchitectures(w io.Writer) error {
	for _, name := range architecture.Names() {
		spec, err := architecture.Build(name)
		if err != nil {
			return err
		}
		infos, err := architecture.InferShapes(spec.WithOutput())
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		marker := ""
		if name == architecture.Default {
			marker = " (default)"
		}
		fmt.Fprintf(w, "%-10s %3d layers %8d params%s\n", name, len(infos), architecture.TotalParams(infos), marker)
	}
	return nil
}

func printSummary(w io.Writer, name string) error {
	spec, err := architecture.Build(name)
	if err != nil {
		return err
	}
	lines, err := architecture.Summarize(spec.WithOutput())
	if err != nil {
		return err
	}
	fmt.Fprintln(w, strings.Join(lines, "\n"))
	return nil
}

func train(cfg *config.Config, stdout io.Writer, logger *slog.Logger) error {
	logger.Info("host",
		"cpu", cpuid.CPU.BrandName,
		"cores", cpuid.CPU.PhysicalCores,
		"threads", cpuid.CPU.LogicalCores,
		"avx2", cpuid.CPU.Supports(cpuid.AVX2),
		"avx512", cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ),
	)

	rt, err := engine.Open(cfg.Backend,
		engine.WithSeed(cfg.Seed),
		engine.WithLearningRate(float32(cfg.Train.LearningRate)),
		engine.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("close engine", "err", err)
		}
	}()
	logger.Info("engine ready", "backend", rt.Name())

	src, err := openSource(cfg, rt, logger)
	if err != nil {
		return err
	}

	reporter := report.NewConsole(stdout)
	reporter.BatchEvery = cfg.Train.ProgressEvery
	p := pipeline.New(rt, src, reporter, pipeline.WithLogger(logger))
	defer p.Close()

	if err := p.InitModel(cfg.Architecture); err != nil {
		return err
	}
	if _, err := p.Train(cfg.TrainConfig()); err != nil {
		return err
	}

	res, err := analyzer.Evaluate(p, reporter, cfg.Predict.TestDataSize)
	if err != nil {
		return err
	}
	acc, err := analyzer.Overall(res)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\naccuracy: %.2f%% (%d examples)\n", acc*100, res.Len())

	if live := rt.Live(); live != 0 {
		logger.Warn("tensors still alive after run", "count", live)
	}
	return nil
}

func openSource(cfg *config.Config, rt engine.Runtime, logger *slog.Logger) (*dataset.Source, error) {
	if cfg.Synthetic {
		// The validation batch is drawn from the test split with the
		// training size, so the test split must hold at least that many.
		trainN := cfg.Train.TrainDataSize
		testN := max(cfg.Train.TrainDataSize, cfg.Predict.TestDataSize)
		logger.Info("using synthetic data", "train", trainN, "test", testN)
		return dataset.NewSource(rt, dataset.Synthetic(trainN, cfg.Seed), dataset.Synthetic(testN, cfg.Seed+1), cfg.Seed)
	}

	train, test, err := dataset.LoadIDX(cfg.DataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("MNIST files not found in %s (run with -synthetic to use generated data): %w", cfg.DataDir, err)
		}
		return nil, err
	}
	train, test = train.Limit(cfg.MaxExamples), test.Limit(cfg.MaxExamples)
	logger.Info("loaded MNIST", "dir", cfg.DataDir, "train", train.Len(), "test", test.Len())
	return dataset.NewSource(rt, train, test, cfg.Seed)
}
