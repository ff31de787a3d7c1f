package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newPsCmd lists live threads, demonstrating the Ps syscall's underlying
// Scheduler.Ps table walk. A fresh `nachos ps` invocation has only its own
// bootstrap thread to show; `selftest` exercises this against a populated
// scheduler mid-run.
func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List live threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, sched, _ := bootScheduler()
			for _, info := range sched.Ps() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-4d %-10s pri=%-3d %s\n", info.SpaceID, info.Name, info.Priority, info.State)
			}
			return nil
		},
	}
}
