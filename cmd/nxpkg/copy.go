package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/nxpkg/internal/storage"
	"github.com/jchantrell/nxpkg/internal/utils"
)

var copyCmd = &cobra.Command{
	Use:   "copy <src> <dst>",
	Short: "Copy a file or directory between partitions",
	Long: `Copy moves a file or a whole directory tree between two prefixed paths, for
example from bis-user:/Contents to sdmc:/backup. Files of 4 GiB or more copied
onto the SD card are stored as split concatenation files.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, dst := args[0], args[1]

		mounts, err := openMounts()
		if err != nil {
			return err
		}

		srcBackend, srcPath, err := mounts.Resolve(src)
		if err != nil {
			return err
		}

		var progress *utils.Progress
		startFile := func(name string, total uint64) {
			if progress != nil {
				progress.Finish()
			}
			progress = utils.NewProgress(total, !noProgress)
			progress.SetDescription(name)
		}
		onChunk := func(written, total uint64) bool {
			if progress != nil {
				progress.Update(written)
			}
			return ctx.Err() == nil
		}

		start := time.Now()
		var copied uint64
		if srcBackend.IsDirectory(srcPath) {
			copied, err = mounts.CopyDirectoryProgress(src, dst,
				func(dir string) { slog.Debug("Copying directory", "dir", dir) },
				startFile,
				onChunk)
		} else {
			copied, err = mounts.CopyFileProgress(src, dst,
				func(total uint64) { startFile(srcPath, total) },
				onChunk)
		}
		if progress != nil {
			progress.Finish()
		}

		if errors.Is(err, storage.ErrCopyCanceled) {
			slog.Warn("Copy canceled", "copied", utils.FormatSize(copied))
			return err
		}
		if err != nil {
			return fmt.Errorf("copying %s to %s: %w", src, dst, err)
		}

		elapsed := time.Since(start)
		slog.Info("Copy complete",
			"copied", utils.FormatSize(copied),
			"duration", utils.Duration(elapsed),
			"rate", utils.Rate(float64(copied)/elapsed.Seconds()))
		return nil
	},
}
