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
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/esnand/estitle/cmdline/shared"
	"github.com/esnand/estitle/lib/atomicfile"
	"github.com/esnand/estitle/lib/nandpath"
)

var ExportCmd = &cobra.Command{
	Use:   "export <title-id> <out.wad>",
	Short: "Export an installed title as a WAD package",
	Args:  cobra.ExactArgs(2),
	RunE:  exportCmd,
}

var argCertChain string

func init() {
	shared.RootCmd.AddCommand(ExportCmd)
	ExportCmd.Flags().StringVar(&argCertChain, "certs", "", "Certificate chain to embed in the WAD")
}

func exportCmd(cmd *cobra.Command, args []string) error {
	titleID, err := shared.ParseTitleIDArg(args[0])
	if err != nil {
		return err
	}
	var certs []byte
	if argCertChain != "" {
		certs, err = os.ReadFile(argCertChain)
		if err != nil {
			return err
		}
	}
	d, err := shared.OpenDevice()
	if err != nil {
		return err
	}
	defer d.Close()
	out, err := atomicfile.WriteAny(args[1])
	if err != nil {
		return err
	}
	defer out.Close()
	if err := ExportWAD(d, titleID, certs, out); err != nil {
		return err
	}
	if err := out.Commit(); err != nil {
		return errors.Join(errors.New("failed to write WAD"), err)
	}
	log.Info().Str("title", nandpath.FormatTitleID(titleID)).Str("path", args[1]).Msg("exported title")
	return nil
}
