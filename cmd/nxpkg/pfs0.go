package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/nxpkg/internal/pfs0"
	"github.com/jchantrell/nxpkg/internal/storage"
	"github.com/jchantrell/nxpkg/internal/utils"
)

var pfs0Cmd = &cobra.Command{
	Use:   "pfs0",
	Short: "Inspect and extract PFS0 package containers",
}

var pfs0LsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List the entries of a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mounts, err := openMounts()
		if err != nil {
			return err
		}

		reader, err := openContainer(mounts, args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tNAME\tSIZE\tOFFSET")
		var total uint64
		for i, e := range reader.Entries() {
			fmt.Fprintf(w, "%d\t%s\t%s\t0x%X\n", i, e.Name, utils.FormatSize(e.Size), reader.HeaderSize()+e.Offset)
			total += e.Size
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\n%s entries, %s\n", utils.Number(int64(reader.Count())), utils.FormatSize(total))
		return nil
	},
}

var pfs0ExtractCmd = &cobra.Command{
	Use:   "extract <path> <name> <dest>",
	Short: "Extract one entry of a container",
	Long: `Extract copies the named entry out of the container into dest. The name is
matched case-insensitively. Interrupting the command stops the copy after the
current chunk and leaves the partial file behind.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mounts, err := openMounts()
		if err != nil {
			return err
		}

		reader, err := openContainer(mounts, args[0])
		if err != nil {
			return err
		}

		idx := reader.IndexOf(args[1])
		if pfs0.IsInvalidIndex(idx) {
			return fmt.Errorf("%s has no entry named %q", args[0], args[1])
		}

		dst, dstPath, err := mounts.Resolve(args[2])
		if err != nil {
			return err
		}

		size := reader.FileSize(idx)
		slog.Info("Extracting", "entry", reader.FileName(idx), "size", utils.FormatSize(size), "dest", args[2])

		progress := utils.NewProgress(size, !noProgress)
		progress.SetDescription(reader.FileName(idx))

		start := time.Now()
		written, err := reader.ExtractToProgress(idx, dst, dstPath, func(written, total uint64) bool {
			progress.Update(written)
			return ctx.Err() == nil
		})
		progress.Finish()

		if errors.Is(err, pfs0.ErrExtractCanceled) {
			slog.Warn("Extraction canceled", "written", utils.FormatSize(written), "dest", args[2])
			return err
		}
		if err != nil {
			return fmt.Errorf("extracting %s: %w", reader.FileName(idx), err)
		}

		elapsed := time.Since(start)
		slog.Info("Extraction complete",
			"written", utils.FormatSize(written),
			"duration", utils.Duration(elapsed),
			"rate", utils.Rate(float64(written)/elapsed.Seconds()))
		return nil
	},
}

// openContainer opens a prefixed container path and rejects invalid containers
func openContainer(mounts *storage.Mounts, full string) (*pfs0.Reader, error) {
	backend, inner, err := mounts.Resolve(full)
	if err != nil {
		return nil, err
	}

	reader, err := pfs0.Open(backend, inner, pfs0.WithWorkBufferSize(cfg.WorkBufferSize))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", full, err)
	}
	if !reader.IsValid() {
		return nil, fmt.Errorf("%s is not a PFS0 container", full)
	}
	return reader, nil
}

func init() {
	pfs0Cmd.AddCommand(pfs0LsCmd)
	pfs0Cmd.AddCommand(pfs0ExtractCmd)
}
