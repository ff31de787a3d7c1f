package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lautarocerruti/nachos-go/internal/disk"
	"github.com/lautarocerruti/nachos-go/internal/fs"
)

// newFormatCmd lays down a fresh filesystem, checks it, and reports the
// disk's sector count and sector size. The underlying disk device is out of
// scope: there is no real disk image file to persist to, so
// this demonstrates the same format pass `selftest` runs, against a
// freshly allocated in-memory disk.
func newFormatCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "format",
		Short: "Lay down an empty filesystem on a fresh in-memory disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := disk.New(cfg.NumSectors)
			gate, sched, main := bootScheduler()
			fsys, err := fs.New(d, gate, sched, true)
			if err != nil {
				return fmt.Errorf("format: %w", err)
			}
			fsys.InitThreadCWD(main)

			if err := fsys.Check(); err != nil {
				return fmt.Errorf("format: consistency check failed immediately after format: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "formatted %d sectors (%d bytes each)\n", cfg.NumSectors, disk.SectorSize)
			return nil
		},
	}
}
