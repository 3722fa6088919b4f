// Package config loads workload descriptions for the gpusched command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/gpusched/gpucore"
)

// Backend names accepted in Config.Backend.
const (
	BackendNoop = "noop"
	BackendFake = "fake"
)

// Config describes one workload run.
type Config struct {
	// Backend selects the device: "noop" (wgpu HAL noop backend) or
	// "fake" (in-memory device with scripted completion).
	Backend string `yaml:"backend"`

	// Streams is the number of schedulers submitting concurrently through
	// one shared arbiter.
	Streams int `yaml:"streams"`

	// Frames is the number of frames each stream records.
	Frames int `yaml:"frames"`

	// PassesPerFrame is the number of render passes per frame. Passes
	// alternate between two targets so that every pass is a real switch.
	PassesPerFrame int `yaml:"passes_per_frame"`

	ColorAttachments int  `yaml:"color_attachments"`
	Depth            bool `yaml:"depth"`
	Stencil          bool `yaml:"stencil"`

	// FinishEvery makes every Nth frame end with Finish instead of Flush.
	// Zero never finishes before Close.
	FinishEvery int `yaml:"finish_every"`

	// DeferPerFrame is the number of deferred callbacks queued per frame.
	DeferPerFrame int `yaml:"defer_per_frame"`

	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`

	// AutoComplete makes the fake backend complete submissions at once.
	// Otherwise a background goroutine retires them.
	AutoComplete bool `yaml:"auto_complete"`

	// Profile enables the backend profiler when it has one.
	Profile bool `yaml:"profile"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend:          BackendNoop,
		Streams:          1,
		Frames:           60,
		PassesPerFrame:   2,
		ColorAttachments: 1,
		Depth:            true,
		FinishEvery:      0,
		DeferPerFrame:    1,
		Width:            256,
		Height:           256,
		AutoComplete:     true,
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration describes a runnable workload.
func (c *Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendNoop, BackendFake:
	default:
		errs = append(errs, fmt.Errorf("backend %q: must be %q or %q", c.Backend, BackendNoop, BackendFake))
	}
	if c.Streams < 1 {
		errs = append(errs, fmt.Errorf("streams %d: must be at least 1", c.Streams))
	}
	if c.Frames < 0 {
		errs = append(errs, fmt.Errorf("frames %d: must not be negative", c.Frames))
	}
	if c.PassesPerFrame < 0 {
		errs = append(errs, fmt.Errorf("passes_per_frame %d: must not be negative", c.PassesPerFrame))
	}
	if c.ColorAttachments < 0 || c.ColorAttachments > gpucore.MaxColorAttachments {
		errs = append(errs, fmt.Errorf("color_attachments %d: must be in [0, %d]", c.ColorAttachments, gpucore.MaxColorAttachments))
	}
	if c.ColorAttachments == 0 && !c.Depth {
		errs = append(errs, errors.New("a pass needs at least one color attachment or depth"))
	}
	if c.Stencil && !c.Depth {
		errs = append(errs, errors.New("stencil requires depth"))
	}
	if c.FinishEvery < 0 {
		errs = append(errs, fmt.Errorf("finish_every %d: must not be negative", c.FinishEvery))
	}
	if c.DeferPerFrame < 0 {
		errs = append(errs, fmt.Errorf("defer_per_frame %d: must not be negative", c.DeferPerFrame))
	}
	if c.Width == 0 || c.Height == 0 {
		errs = append(errs, fmt.Errorf("size %dx%d: must be non-zero", c.Width, c.Height))
	}
	return errors.Join(errs...)
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
