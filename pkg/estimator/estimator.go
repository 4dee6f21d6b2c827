// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package estimator describes the shape of a training job: entry point,
// compute resources, stopping conditions and hyperparameters. The values come
// from an optional YAML file next to the trainer directory.
package estimator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/agext/levenshtein"
	"github.com/spf13/afero"
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up relative to the working directory.
const DefaultConfigFile = "config.yaml"

// Defaults applied when the config file or a field is absent.
const (
	DefaultEntryPoint    = "train.py"
	DefaultInstanceCount = 1
	DefaultInstanceType  = "ml.m5.large"
	DefaultBaseJobName   = "trainer"
	DefaultVolumeSizeGB  = 30
	DefaultMaxRunSeconds = 24 * 60 * 60
)

// Config mirrors config.yaml.
type Config struct {
	EntryPoint       string                 `yaml:"entry_point"`
	InstanceCount    int                    `yaml:"instance_count"`
	InstanceType     string                 `yaml:"instance_type"`
	BaseJobName      string                 `yaml:"base_job_name"`
	UseSpotInstances bool                   `yaml:"use_spot_instances"`
	MaxRun           *int                   `yaml:"max_run"`
	MaxWait          *int                   `yaml:"max_wait"`
	VolumeSize       int                    `yaml:"volume_size"`
	Hyperparameters  map[string]interface{} `yaml:"hyperparameters"`
}

var knownKeys = []string{
	"entry_point",
	"instance_count",
	"instance_type",
	"base_job_name",
	"use_spot_instances",
	"max_run",
	"max_wait",
	"volume_size",
	"hyperparameters",
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path from fs. A missing file yields Default().
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read estimator config %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("estimator config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates YAML estimator configuration.
func Parse(data []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(raw) == 0 {
		return Default(), nil
	}
	keys := maps.Keys(raw)
	slices.Sort(keys)
	for _, key := range keys {
		if err := checkKey(key); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode YAML: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkKey(key string) error {
	best, bestDist := "", -1
	for _, k := range knownKeys {
		if k == key {
			return nil
		}
		if d := levenshtein.Distance(key, k, nil); bestDist < 0 || d < bestDist {
			best, bestDist = k, d
		}
	}
	if bestDist >= 0 && bestDist <= len(best)/2 {
		return fmt.Errorf("unknown field %q, did you mean %q?", key, best)
	}
	return fmt.Errorf("unknown field %q", key)
}

func (c *Config) applyDefaults() {
	if c.EntryPoint == "" {
		c.EntryPoint = DefaultEntryPoint
	}
	if c.InstanceCount == 0 {
		c.InstanceCount = DefaultInstanceCount
	}
	if c.InstanceType == "" {
		c.InstanceType = DefaultInstanceType
	}
	if c.BaseJobName == "" {
		c.BaseJobName = DefaultBaseJobName
	}
	if c.VolumeSize == 0 {
		c.VolumeSize = DefaultVolumeSizeGB
	}
	if c.Hyperparameters == nil {
		c.Hyperparameters = map[string]interface{}{}
	}
}

// Validate checks field ranges, the spot-instance constraints and that every
// hyperparameter can be encoded.
func (c *Config) Validate() error {
	if err := checkRange("instance_count", c.InstanceCount); err != nil {
		return err
	}
	if err := checkRange("volume_size", c.VolumeSize); err != nil {
		return err
	}
	if _, err := c.EncodedHyperparameters(); err != nil {
		return err
	}
	if !c.UseSpotInstances {
		return nil
	}
	if c.MaxWait == nil {
		return fmt.Errorf("max_wait is required when use_spot_instances is true")
	}
	maxRun := c.MaxRunSeconds()
	if err := checkRange("max_run", maxRun); err != nil {
		return err
	}
	if err := checkRange("max_wait", *c.MaxWait); err != nil {
		return err
	}
	if *c.MaxWait < maxRun {
		return fmt.Errorf("max_wait (%d) must be greater than or equal to max_run (%d)", *c.MaxWait, maxRun)
	}
	return nil
}

// checkRange bounds v to what the training API accepts (a positive int32).
func checkRange(field string, v int) error {
	if v < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", field, v)
	}
	if v > math.MaxInt32 {
		return fmt.Errorf("%s must be at most %d, got %d", field, math.MaxInt32, v)
	}
	return nil
}

// MaxRunSeconds is the job's runtime limit. max_run only applies to spot jobs.
func (c *Config) MaxRunSeconds() int {
	if c.UseSpotInstances && c.MaxRun != nil {
		return *c.MaxRun
	}
	return DefaultMaxRunSeconds
}

// MaxWaitSeconds returns the spot wait limit, or 0 for on-demand jobs.
func (c *Config) MaxWaitSeconds() int {
	if !c.UseSpotInstances || c.MaxWait == nil {
		return 0
	}
	return *c.MaxWait
}

// EncodedHyperparameters JSON-encodes each value, which is the form the
// training containers expect.
func (c *Config) EncodedHyperparameters() (map[string]string, error) {
	out := make(map[string]string, len(c.Hyperparameters))
	for k, v := range c.Hyperparameters {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode hyperparameter %q: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

// HyperparameterNames returns the hyperparameter keys in sorted order.
func (c *Config) HyperparameterNames() []string {
	keys := maps.Keys(c.Hyperparameters)
	slices.Sort(keys)
	return keys
}
