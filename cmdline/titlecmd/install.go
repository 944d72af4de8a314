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

package titlecmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/esnand/estitle/cmdline/shared"
	"github.com/esnand/estitle/es"
	"github.com/esnand/estitle/lib/nandpath"
	"github.com/esnand/estitle/lib/wad"
)

var InstallCmd = &cobra.Command{
	Use:   "install <file.wad>...",
	Short: "Install titles from WAD packages",
	RunE:  installCmd,
}

func init() {
	shared.RootCmd.AddCommand(InstallCmd)
}

func installCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("expected 1 or more WAD files")
	}
	d, err := shared.OpenDevice()
	if err != nil {
		return err
	}
	defer d.Close()
	for _, name := range args {
		if err := installOne(d, name); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func installOne(d *es.Device, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	r, err := wad.NewReader(f)
	if err != nil {
		return err
	}
	if err := InstallWAD(d, r); err != nil {
		return err
	}
	tmd := r.ParsedTMD()
	log.Info().
		Str("title", nandpath.FormatTitleID(tmd.TitleID())).
		Str("game_id", tmd.GameID()).
		Uint16("version", tmd.TitleVersion()).
		Msg("installed title")
	return nil
}
