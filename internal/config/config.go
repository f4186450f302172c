// Package config loads run configuration from YAML and command line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/resnet/internal/device"
	"gopkg.in/yaml.v3"
)

// Dataset sources.
const (
	DatasetCIFAR10   = "cifar10"
	DatasetSynthetic = "synthetic"
)

// Config captures the knobs of a training run.
type Config struct {
	DataDir     string `yaml:"data_dir"`
	Download    bool   `yaml:"download"`
	DownloadURL string `yaml:"download_url"`

	Dataset          string `yaml:"dataset"`           // cifar10 or synthetic
	SyntheticSamples int    `yaml:"synthetic_samples"` // synthetic only
	ImageSize        int    `yaml:"image_size"`        // synthetic only; CIFAR-10 is always 32

	StemChannels int   `yaml:"stem_channels"`
	StageWidths  []int `yaml:"stage_widths"`

	BatchSize int     `yaml:"batch_size"`
	ValidSize float64 `yaml:"valid_size"`
	Epochs    int     `yaml:"epochs"`
	Optimizer string  `yaml:"optimizer"`
	LR        float64 `yaml:"lr"`
	Momentum  float64 `yaml:"momentum"`
	Seed      int64   `yaml:"seed"`

	Device     string `yaml:"device"`  // auto, cpu or webgpu
	Workers    int    `yaml:"workers"` // kernel goroutines, 0 sizes from the CPU
	Prefetch   int    `yaml:"prefetch"`
	Checkpoint string `yaml:"checkpoint"`

	// TestFromTrain evaluates on the training images instead of the held-out test batch.
	TestFromTrain bool `yaml:"test_from_train"`
}

// Default returns the configuration of the reference run: ResNet-18 on CIFAR-10,
// batch 16, 20% validation, 20 epochs of Adam at lr 0.005.
func Default() Config {
	return Config{
		DataDir:          "data",
		Download:         true,
		Dataset:          DatasetCIFAR10,
		SyntheticSamples: 1000,
		ImageSize:        32,
		StemChannels:     64,
		StageWidths:      []int{64, 128, 256, 512},
		BatchSize:        16,
		ValidSize:        0.2,
		Epochs:           20,
		Optimizer:        "adam",
		LR:               0.005,
		Momentum:         0.9,
		Seed:             1,
		Device:           string(device.Auto),
		Prefetch:         2,
		Checkpoint:       "model_cifar.pt",
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := decode(f, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	switch c.Dataset {
	case DatasetCIFAR10:
		if c.DataDir == "" {
			return errors.New("data_dir must be set for cifar10")
		}
	case DatasetSynthetic:
		if c.SyntheticSamples <= 0 {
			return fmt.Errorf("synthetic_samples must be > 0 (got %d)", c.SyntheticSamples)
		}
		if c.ImageSize <= 0 {
			return fmt.Errorf("image_size must be > 0 (got %d)", c.ImageSize)
		}
	default:
		return fmt.Errorf("dataset must be %s or %s (got %q)", DatasetCIFAR10, DatasetSynthetic, c.Dataset)
	}
	if c.StemChannels <= 0 || len(c.StageWidths) == 0 {
		return errors.New("stem_channels and stage_widths must be set")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.ValidSize < 0 || c.ValidSize >= 1 {
		return fmt.Errorf("valid_size must be in [0, 1) (got %v)", c.ValidSize)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.LR <= 0 {
		return fmt.Errorf("lr must be > 0 (got %v)", c.LR)
	}
	switch strings.ToLower(c.Optimizer) {
	case "adam", "sgd":
	default:
		return fmt.Errorf("optimizer must be adam or sgd (got %q)", c.Optimizer)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return fmt.Errorf("momentum must be in [0, 1) (got %v)", c.Momentum)
	}
	if _, err := device.ParsePreference(c.Device); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0 (got %d)", c.Workers)
	}
	if c.Prefetch < 0 {
		return fmt.Errorf("prefetch must be >= 0 (got %d)", c.Prefetch)
	}
	if c.Checkpoint == "" {
		return errors.New("checkpoint path must be set")
	}
	return nil
}

// Overrides holds command line values. Only flags the user actually set
// replace values from the file.
type Overrides struct {
	fs     *flag.FlagSet
	values Config
}

// RegisterFlags defines one flag per config field on fs.
func RegisterFlags(fs *flag.FlagSet) *Overrides {
	o := &Overrides{fs: fs}
	d := Default()
	v := &o.values

	fs.StringVar(&v.DataDir, "data-dir", d.DataDir, "directory holding cifar-10-batches-bin")
	fs.BoolVar(&v.Download, "download", d.Download, "download CIFAR-10 if missing")
	fs.StringVar(&v.DownloadURL, "download-url", d.DownloadURL, "CIFAR-10 archive URL (empty for the default)")
	fs.StringVar(&v.Dataset, "dataset", d.Dataset, "cifar10 or synthetic")
	fs.IntVar(&v.SyntheticSamples, "synthetic-samples", d.SyntheticSamples, "number of synthetic images")
	fs.IntVar(&v.ImageSize, "image-size", d.ImageSize, "synthetic image side")
	fs.IntVar(&v.StemChannels, "stem-channels", d.StemChannels, "channels of the 3x3 stem convolution")
	v.StageWidths = d.StageWidths
	fs.Var((*intList)(&v.StageWidths), "stage-widths", "comma-separated channel width of each residual stage")
	fs.IntVar(&v.BatchSize, "batch", d.BatchSize, "batch size")
	fs.Float64Var(&v.ValidSize, "valid-size", d.ValidSize, "fraction of training data held out for validation")
	fs.IntVar(&v.Epochs, "epochs", d.Epochs, "number of training epochs")
	fs.StringVar(&v.Optimizer, "optimizer", d.Optimizer, "adam or sgd")
	fs.Float64Var(&v.LR, "lr", d.LR, "learning rate")
	fs.Float64Var(&v.Momentum, "momentum", d.Momentum, "SGD momentum")
	fs.Int64Var(&v.Seed, "seed", d.Seed, "seed for weights, split and shuffling")
	fs.StringVar(&v.Device, "device", d.Device, "auto, cpu or webgpu")
	fs.IntVar(&v.Workers, "workers", d.Workers, "kernel worker goroutines (0 = all cores)")
	fs.IntVar(&v.Prefetch, "prefetch", d.Prefetch, "batches prepared ahead of training")
	fs.StringVar(&v.Checkpoint, "checkpoint", d.Checkpoint, "best-model checkpoint path")
	fs.BoolVar(&v.TestFromTrain, "test-from-train", d.TestFromTrain, "evaluate on training images instead of test_batch.bin")
	return o
}

// ApplyOverrides copies every flag that was set on the command line into c.
func (c *Config) ApplyOverrides(o *Overrides) {
	v := o.values
	o.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data-dir":
			c.DataDir = v.DataDir
		case "download":
			c.Download = v.Download
		case "download-url":
			c.DownloadURL = v.DownloadURL
		case "dataset":
			c.Dataset = v.Dataset
		case "synthetic-samples":
			c.SyntheticSamples = v.SyntheticSamples
		case "image-size":
			c.ImageSize = v.ImageSize
		case "stem-channels":
			c.StemChannels = v.StemChannels
		case "stage-widths":
			c.StageWidths = v.StageWidths
		case "batch":
			c.BatchSize = v.BatchSize
		case "valid-size":
			c.ValidSize = v.ValidSize
		case "epochs":
			c.Epochs = v.Epochs
		case "optimizer":
			c.Optimizer = v.Optimizer
		case "lr":
			c.LR = v.LR
		case "momentum":
			c.Momentum = v.Momentum
		case "seed":
			c.Seed = v.Seed
		case "device":
			c.Device = v.Device
		case "workers":
			c.Workers = v.Workers
		case "prefetch":
			c.Prefetch = v.Prefetch
		case "checkpoint":
			c.Checkpoint = v.Checkpoint
		case "test-from-train":
			c.TestFromTrain = v.TestFromTrain
		}
	})
}

// intList is a flag.Value for comma-separated positive integers such as "64,128,256,512".
type intList []int

func (l *intList) String() string {
	if l == nil {
		return ""
	}
	parts := make([]string, len(*l))
	for i, n := range *l {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func (l *intList) Set(s string) error {
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("%q is not an integer", part)
		}
		if n <= 0 {
			return fmt.Errorf("width %d must be positive", n)
		}
		out = append(out, n)
	}
	*l = out
	return nil
}
