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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/esnand/estitle/config"
	"github.com/esnand/estitle/es"
	"github.com/esnand/estitle/internal/eslog"
	"github.com/esnand/estitle/lib/titlecrypt"
)

var logCloser io.Closer

// InitConfig loads the configuration file and sets up logging. It is a no-op
// once a configuration has been loaded.
func InitConfig() error {
	if CurrentConfig != nil {
		return nil
	}
	usedDefault := false
	if ArgConfig == "" {
		ArgConfig = config.DefaultConfig()
		if ArgConfig == "" {
			return errors.New("--config not specified")
		}
		usedDefault = true
	}
	cfg, err := config.ReadFile(ArgConfig)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && usedDefault {
			return fmt.Errorf("--config not specified and default config at %s does not exist", ArgConfig)
		}
		return err
	}
	closer, err := eslog.SetupLogging(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	logCloser = closer
	if ArgMetricsFile == "" {
		ArgMetricsFile = cfg.Metrics.Textfile
	}
	CurrentConfig = cfg
	return nil
}

// DeviceOptions translates the configuration into engine options
func DeviceOptions(cfg *config.Config) es.Options {
	opts := es.Options{
		Root:             cfg.NAND.Root,
		SessionRoot:      cfg.NAND.SessionRoot,
		Keys:             es.DeviceKeys{NGID: cfg.Device.NGID},
		VerifyExportHash: cfg.Export.VerifyHash,
		Logger:           &log.Logger,
	}
	if len(cfg.Device.CommonKey) != 0 {
		opts.Keys.CommonKey = []byte(cfg.Device.CommonKey)
	}
	if key, ok := cfg.Device.SharedSecret.Key(); ok {
		opts.Keys.SharedSecret = es.StaticSharedSecret(titlecrypt.Key(key))
	}
	return opts
}

// OpenDevice loads the configuration and opens the NAND it names
func OpenDevice() (*es.Device, error) {
	if err := InitConfig(); err != nil {
		return nil, err
	}
	return es.New(DeviceOptions(CurrentConfig))
}

// Fail prints err and exits with a software error status. It returns nil
// when err is nil.
func Fail(err error) error {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		closeLogging()
		os.Exit(70)
	}
	return err
}

func writeMetrics(cmd *cobra.Command, args []string) {
	if ArgMetricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(ArgMetricsFile, prometheus.DefaultGatherer); err != nil {
		log.Warn().Err(err).Str("path", ArgMetricsFile).Msg("failed to write metrics")
	}
}

func closeLogging() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}
