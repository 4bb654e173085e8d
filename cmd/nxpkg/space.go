package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jchantrell/nxpkg/internal/storage"
	"github.com/jchantrell/nxpkg/internal/utils"
)

var spaceCmd = &cobra.Command{
	Use:   "space",
	Short: "Show total and free space of every partition",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mounts, err := openMounts()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PARTITION\tTOTAL\tFREE\tUSED")
		for _, p := range storage.AllPartitions {
			if _, ok := mounts.Backend(p); !ok {
				fmt.Fprintf(w, "%s\t-\t-\tnot mounted\n", p.Prefix())
				continue
			}

			total, free := mounts.TotalSpace(p), mounts.FreeSpace(p)
			var used uint64
			if total > free {
				used = total - free
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Prefix(), utils.FormatSize(total), utils.FormatSize(free), utils.FormatSize(used))
		}
		return w.Flush()
	},
}
