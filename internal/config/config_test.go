package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 16, cfg.BatchSize)
	assert.InDelta(t, 0.2, cfg.ValidSize, 1e-12)
	assert.Equal(t, 20, cfg.Epochs)
	assert.InDelta(t, 0.005, cfg.LR, 1e-12)
	assert.Equal(t, "adam", cfg.Optimizer)
	assert.Equal(t, "model_cifar.pt", cfg.Checkpoint)
	assert.False(t, cfg.TestFromTrain)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "dataset: synthetic\nsynthetic_samples: 64\nimage_size: 8\nepochs: 2\nlr: 0.01\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DatasetSynthetic, cfg.Dataset)
	assert.Equal(t, 64, cfg.SyntheticSamples)
	assert.Equal(t, 2, cfg.Epochs)
	assert.InDelta(t, 0.01, cfg.LR, 1e-12)
	assert.Equal(t, 16, cfg.BatchSize, "unset keys keep defaults")
}

func TestLoad_EmptyAndMissing(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeFile(t, "batchsize: 32\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"dataset", func(c *Config) { c.Dataset = "mnist" }},
		{"batch", func(c *Config) { c.BatchSize = 0 }},
		{"valid size", func(c *Config) { c.ValidSize = 1 }},
		{"epochs", func(c *Config) { c.Epochs = 0 }},
		{"lr", func(c *Config) { c.LR = 0 }},
		{"optimizer", func(c *Config) { c.Optimizer = "lbfgs" }},
		{"momentum", func(c *Config) { c.Momentum = 1 }},
		{"device", func(c *Config) { c.Device = "tpu" }},
		{"prefetch", func(c *Config) { c.Prefetch = -1 }},
		{"checkpoint", func(c *Config) { c.Checkpoint = "" }},
		{"synthetic samples", func(c *Config) {
			c.Dataset = DatasetSynthetic
			c.SyntheticSamples = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-epochs", "3", "-device", "cpu", "-test-from-train"}))

	cfg := Default()
	cfg.BatchSize = 64 // from a file; the flag was not set
	cfg.ApplyOverrides(o)

	assert.Equal(t, 3, cfg.Epochs)
	assert.Equal(t, "cpu", cfg.Device)
	assert.True(t, cfg.TestFromTrain)
	assert.Equal(t, 64, cfg.BatchSize)
}

func TestApplyOverrides_Widths(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	o := RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"-stem-channels", "16", "-stage-widths", "16, 32,64"}))

	cfg := Default()
	cfg.ApplyOverrides(o)
	assert.Equal(t, 16, cfg.StemChannels)
	assert.Equal(t, []int{16, 32, 64}, cfg.StageWidths)
	assert.NoError(t, cfg.Validate())

	untouched := Default()
	untouched.StageWidths = []int{8}
	untouched.ApplyOverrides(RegisterFlags(flag.NewFlagSet("empty", flag.ContinueOnError)))
	assert.Equal(t, []int{8}, untouched.StageWidths)

	for _, bad := range []string{"64,x", "64,0", ""} {
		fs := flag.NewFlagSet("bad", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		RegisterFlags(fs)
		assert.Error(t, fs.Parse([]string{"-stage-widths", bad}), "%q", bad)
	}
}

func TestLoad_ShippedConfigs(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "configs", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			cfg, err := Load(path)
			require.NoError(t, err)
			assert.NoError(t, cfg.Validate())
		})
	}
}
