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
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/esnand/estitle/cmdline/shared"
	"github.com/esnand/estitle/es"
	"github.com/esnand/estitle/lib/nandpath"
)

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed titles or tickets",
	RunE:  listCmd,
}

var argTickets bool

func init() {
	shared.RootCmd.AddCommand(ListCmd)
	ListCmd.Flags().BoolVar(&argTickets, "tickets", false, "List titles that have a ticket instead")
}

func listCmd(cmd *cobra.Command, args []string) error {
	d, err := shared.OpenDevice()
	if err != nil {
		return err
	}
	defer d.Close()
	if argTickets {
		return ListTickets(d, os.Stdout)
	}
	return ListTitles(d, os.Stdout)
}

// ListTitles prints one line per installed title with the size of its
// contents that are present
func ListTitles(d *es.Device, w io.Writer) error {
	titles, err := d.InstalledTitles()
	if err != nil {
		return err
	}
	for _, titleID := range titles {
		tmd, err := d.InstalledTMD(titleID)
		if err != nil {
			fmt.Fprintf(w, "%s  (no TMD)\n", nandpath.FormatTitleID(titleID))
			continue
		}
		stored, err := d.StoredContents(tmd)
		if err != nil {
			return err
		}
		var size uint64
		for _, c := range stored {
			size += c.Size
		}
		fmt.Fprintf(w, "%s  %-6s v%-5d %d/%d contents  %s\n",
			nandpath.FormatTitleID(titleID), tmd.GameID(), tmd.TitleVersion(),
			len(stored), tmd.NumContents(), humanize.IBytes(size))
	}
	return nil
}

func ListTickets(d *es.Device, w io.Writer) error {
	titles, err := d.TitlesWithTickets()
	if err != nil {
		return err
	}
	for _, titleID := range titles {
		fmt.Fprintln(w, nandpath.FormatTitleID(titleID))
	}
	return nil
}
