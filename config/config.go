/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type NANDConfig struct {
	Root        string `yaml:"root"`                   // Configured NAND root (required)
	SessionRoot string `yaml:"session_root,omitempty"` // NAND of the running guest, defaults to Root
}

type DeviceConfig struct {
	NGID         uint32 `yaml:"ng_id"`                   // Console ID personalised tickets must match
	CommonKey    HexKey `yaml:"common_key,omitempty"`    // Unwraps title keys stored in tickets
	SharedSecret HexKey `yaml:"shared_secret,omitempty"` // Unpersonalises device-bound tickets
}

type ExportConfig struct {
	VerifyHash bool `yaml:"verify_hash"` // Check content SHA-1 while exporting
}

type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"` // "-" for JSON on stderr, empty for console text
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"` // Write metrics here after each command
}

type Config struct {
	NAND    *NANDConfig    `yaml:"nand"`
	Device  *DeviceConfig  `yaml:"device"`
	Export  *ExportConfig  `yaml:"export,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`

	path string
}

func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := new(Config)
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	config.path = path
	if err := config.Normalize(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Path returns the file the configuration was read from, if any
func (config *Config) Path() string {
	return config.path
}

// Normalize fills in defaults for omitted sections and validates the result.
// Every problem found is reported.
func (config *Config) Normalize() error {
	if config.NAND == nil {
		config.NAND = new(NANDConfig)
	}
	if config.Device == nil {
		config.Device = new(DeviceConfig)
	}
	if config.Export == nil {
		config.Export = new(ExportConfig)
	}
	if config.Log == nil {
		config.Log = new(LogConfig)
	}
	if config.Metrics == nil {
		config.Metrics = new(MetricsConfig)
	}
	config.NAND.Root = os.ExpandEnv(config.NAND.Root)
	config.NAND.SessionRoot = os.ExpandEnv(config.NAND.SessionRoot)
	if config.NAND.SessionRoot == "" {
		config.NAND.SessionRoot = config.NAND.Root
	}
	var errs []error
	if config.NAND.Root == "" {
		errs = append(errs, errors.New("nand.root is required"))
	}
	if err := config.Device.CommonKey.validate(); err != nil {
		errs = append(errs, fmt.Errorf("device.common_key: %w", err))
	}
	if err := config.Device.SharedSecret.validate(); err != nil {
		errs = append(errs, fmt.Errorf("device.shared_secret: %w", err))
	}
	if config.Log.Level != "" {
		if _, err := zerolog.ParseLevel(config.Log.Level); err != nil {
			errs = append(errs, fmt.Errorf("log.level: %w", err))
		}
	}
	return errors.Join(errs...)
}
