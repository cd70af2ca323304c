package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"go-blur/convolve"
	"go-blur/filter"
	"go-blur/imaging"
	"go-blur/partition"
	"go-blur/spigot"
)

// Environment variables read by LoadConfig.
const (
	EnvConfigFile    = "BLUR_CONFIG"
	EnvFilterWidth   = "BLUR_FILTER_WIDTH"
	EnvFilterKind    = "BLUR_FILTER_KIND"
	EnvAlignQuantum  = "BLUR_ALIGN_QUANTUM"
	EnvBandCount     = "BLUR_BAND_COUNT"
	EnvBandRatios    = "BLUR_BAND_RATIOS"
	EnvDropTail      = "BLUR_DROP_TAIL"
	EnvDigitGroups   = "BLUR_DIGIT_GROUPS"
	EnvWorkGroupRows = "BLUR_WORK_GROUP_ROWS"
	EnvMaxWidth      = "BLUR_MAX_WIDTH"
	EnvMaxHeight     = "BLUR_MAX_HEIGHT"
	EnvMaxChannels   = "BLUR_MAX_CHANNELS"
	EnvLogLevel      = "BLUR_LOG_LEVEL"
	EnvLogFile       = "BLUR_LOG_FILE"
	EnvDevMode       = "BLUR_DEV_MODE"
	EnvHistoryDB     = "BLUR_HISTORY_DB"
	EnvNvidiaSMI     = "BLUR_NVIDIA_SMI"
	EnvDevices       = "BLUR_DEVICES"
)

// Config holds all configuration values
type Config struct {
	// Filter
	FilterWidth int    `yaml:"filter_width"`
	FilterKind  string `yaml:"filter_kind"`

	// Partitioning
	AlignQuantum int    `yaml:"align_quantum"`
	BandCount    int    `yaml:"band_count"`
	BandRatios   string `yaml:"band_ratios"`
	DropTail     bool   `yaml:"drop_tail"`

	// Workloads
	DigitGroups   int `yaml:"digit_groups"`
	WorkGroupRows int `yaml:"work_group_rows"`

	// Bounds checked before any allocation
	MaxWidth    int `yaml:"max_width"`
	MaxHeight   int `yaml:"max_height"`
	MaxChannels int `yaml:"max_channels"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	DevMode  bool   `yaml:"dev_mode"`

	// HistoryDB is the SQLite run history path. Empty disables history.
	HistoryDB string `yaml:"history_db"`

	// Devices
	NvidiaSMI string   `yaml:"nvidia_smi"`
	Devices   []string `yaml:"devices"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	limits := imaging.DefaultLimits()
	return &Config{
		FilterWidth:   filter.DefaultWidth,
		FilterKind:    filter.KindBlur.String(),
		AlignQuantum:  partition.DefaultQuantum,
		BandCount:     len(partition.DefaultRatios) + 1,
		BandRatios:    partition.FormatRatios(partition.DefaultRatios),
		DigitGroups:   spigot.DefaultGroups,
		WorkGroupRows: convolve.DefaultWorkGroupRows,
		MaxWidth:      limits.MaxWidth,
		MaxHeight:     limits.MaxHeight,
		MaxChannels:   limits.MaxChannels,
		LogLevel:      "info",
		NvidiaSMI:     "nvidia-smi",
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file at
// path (skipped when path is empty), then BLUR_* environment variables, and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, ErrInvalidConfig(EnvConfigFile, fmt.Sprintf("%s is not valid YAML: %v", path, err))
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields with any BLUR_* variables that are set.
// Unparseable numbers keep the current value.
func (c *Config) applyEnv() {
	c.FilterWidth = ParseIntEnv(EnvFilterWidth, c.FilterWidth)
	c.FilterKind = GetEnvOrDefault(EnvFilterKind, c.FilterKind)

	c.AlignQuantum = ParseIntEnv(EnvAlignQuantum, c.AlignQuantum)
	c.BandCount = ParseIntEnv(EnvBandCount, c.BandCount)
	c.BandRatios = GetEnvOrDefault(EnvBandRatios, c.BandRatios)
	c.DropTail = ParseBoolEnv(EnvDropTail, c.DropTail)

	c.DigitGroups = ParseIntEnv(EnvDigitGroups, c.DigitGroups)
	c.WorkGroupRows = ParseIntEnv(EnvWorkGroupRows, c.WorkGroupRows)

	c.MaxWidth = ParseIntEnv(EnvMaxWidth, c.MaxWidth)
	c.MaxHeight = ParseIntEnv(EnvMaxHeight, c.MaxHeight)
	c.MaxChannels = ParseIntEnv(EnvMaxChannels, c.MaxChannels)

	c.LogLevel = GetEnvOrDefault(EnvLogLevel, c.LogLevel)
	c.LogFile = GetEnvOrDefault(EnvLogFile, c.LogFile)
	c.DevMode = ParseBoolEnv(EnvDevMode, c.DevMode)

	c.HistoryDB = GetEnvOrDefault(EnvHistoryDB, c.HistoryDB)
	c.NvidiaSMI = GetEnvOrDefault(EnvNvidiaSMI, c.NvidiaSMI)
	c.Devices = ParseListEnv(EnvDevices, c.Devices)
}

// Validate checks every value and returns a *CLIError for the first one out
// of range.
func (c *Config) Validate() error {
	if c.FilterWidth < 1 {
		return ErrInvalidConfig(EnvFilterWidth, fmt.Sprintf("must be at least 1, got %d", c.FilterWidth))
	}
	if _, err := filter.ParseKind(c.FilterKind); err != nil {
		return ErrInvalidConfig(EnvFilterKind, err.Error())
	}
	if c.AlignQuantum < 1 {
		return ErrInvalidConfig(EnvAlignQuantum, fmt.Sprintf("must be at least 1, got %d", c.AlignQuantum))
	}

	ratios, err := partition.ParseRatios(c.BandRatios)
	if err != nil {
		return ErrInvalidConfig(EnvBandRatios, err.Error())
	}
	if c.BandCount != 1 && c.BandCount != len(ratios)+1 {
		return ErrInvalidConfig(EnvBandCount, fmt.Sprintf("must be 1 or %d, got %d", len(ratios)+1, c.BandCount))
	}

	if c.DigitGroups < 1 || c.DigitGroups > spigot.MaxGroups {
		return ErrInvalidConfig(EnvDigitGroups, fmt.Sprintf("must be between 1 and %d, got %d", spigot.MaxGroups, c.DigitGroups))
	}
	if c.WorkGroupRows < 1 {
		return ErrInvalidConfig(EnvWorkGroupRows, fmt.Sprintf("must be at least 1, got %d", c.WorkGroupRows))
	}

	bounds := []struct {
		key   string
		value int
	}{
		{EnvMaxWidth, c.MaxWidth},
		{EnvMaxHeight, c.MaxHeight},
		{EnvMaxChannels, c.MaxChannels},
	}
	for _, b := range bounds {
		if b.value < 1 {
			return ErrInvalidConfig(b.key, fmt.Sprintf("must be at least 1, got %d", b.value))
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return ErrInvalidConfig(EnvLogLevel, fmt.Sprintf("unknown level %q (use debug, info, warn or error)", c.LogLevel))
	}
	return nil
}

// Ratios returns the parsed band ratios.
func (c *Config) Ratios() ([]partition.Ratio, error) {
	return partition.ParseRatios(c.BandRatios)
}

// Kind returns the parsed filter kind.
func (c *Config) Kind() (filter.Kind, error) {
	return filter.ParseKind(c.FilterKind)
}

// Limits returns the image bounds.
func (c *Config) Limits() imaging.Limits {
	return imaging.Limits{MaxWidth: c.MaxWidth, MaxHeight: c.MaxHeight, MaxChannels: c.MaxChannels}
}

// KernelOptions returns the convolution options. Parallelism is left to
// the kernel's default.
func (c *Config) KernelOptions() convolve.Options {
	return convolve.Options{WorkGroupRows: c.WorkGroupRows, MaxChannels: c.MaxChannels}
}
