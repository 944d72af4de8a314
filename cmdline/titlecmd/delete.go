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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/esnand/estitle/cmdline/shared"
	"github.com/esnand/estitle/es"
)

type deleteFunc func(d *es.Device, titleID uint64) error

func deleteCommand(use, short string, fn deleteFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <title-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := shared.OpenDevice()
			if err != nil {
				return err
			}
			defer d.Close()
			for _, arg := range args {
				titleID, err := shared.ParseTitleIDArg(arg)
				if err != nil {
					return err
				}
				if err := fn(d, titleID); err != nil {
					return fmt.Errorf("%w (code %d)", err, es.CodeOf(err))
				}
			}
			return nil
		},
	}
}

func init() {
	shared.RootCmd.AddCommand(
		deleteCommand("delete-title", "Delete installed titles and their data", (*es.Device).DeleteTitle),
		deleteCommand("delete-ticket", "Delete the tickets of titles", (*es.Device).DeleteTicket),
		deleteCommand("delete-content", "Delete the private contents of titles, keeping their metadata", (*es.Device).DeleteTitleContent),
	)
}
