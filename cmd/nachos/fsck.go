package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lautarocerruti/nachos-go/internal/disk"
	"github.com/lautarocerruti/nachos-go/internal/fs"
)

// newFsckCmd runs the filesystem consistency check (recovered from
// file_system.cc's FileSystem::Check) against a freshly populated
// in-memory filesystem: a handful of files and a subdirectory, exercising
// the same indirection-walking Check used by selftest. Real disk-image
// persistence between separate `nachos` invocations is out of scope (the
// raw disk device is treated as an external collaborator); this
// demonstrates the check against this run's own state.
func newFsckCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "fsck",
		Short: "Run the filesystem consistency check against a populated scratch filesystem",
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, sched, main := bootScheduler()
			d := disk.New(cfg.NumSectors)
			fsys, err := fs.New(d, gate, sched, true)
			if err != nil {
				return fmt.Errorf("fsck: %w", err)
			}
			fsys.InitThreadCWD(main)

			if err := fsys.Mkdir(main, "scratch"); err != nil {
				return fmt.Errorf("fsck: %w", err)
			}
			if err := fsys.Create(main, "notes", 64, false); err != nil {
				return fmt.Errorf("fsck: %w", err)
			}
			if err := fsys.Chdir(main, "scratch"); err != nil {
				return fmt.Errorf("fsck: %w", err)
			}
			if err := fsys.Create(main, "inner", 32, false); err != nil {
				return fmt.Errorf("fsck: %w", err)
			}

			if err := fsys.Check(); err != nil {
				return fmt.Errorf("fsck: consistency check failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "filesystem consistent")
			return nil
		},
	}
}
