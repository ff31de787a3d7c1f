// Command nachos drives the kernel's subsystems against freshly allocated
// in-memory fakes (no disk image file is read or written) and exposes an
// operator surface: formatting a fresh filesystem, checking one's consistency,
// running the seeded test scenarios, and listing live threads.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lautarocerruti/nachos-go/internal/kernel"
	"github.com/lautarocerruti/nachos-go/internal/kthread"
)

// cfg is populated by viper from flags/env before each command runs.
var cfg kernel.Config

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nachos",
		Short: "A Go port of the NACHOS teaching kernel's core",
	}

	flags := pflag.NewFlagSet("nachos", pflag.ContinueOnError)
	flags.String("disk", "nachos.disk", "disk image path (unused: every command runs on an in-memory disk)")
	flags.Int("sectors", kernel.DefaultConfig().NumSectors, "number of disk sectors")
	flags.Int("phys-pages", kernel.DefaultConfig().NumPhysPages, "number of physical memory frames")
	flags.Int("stack-size", kernel.DefaultConfig().StackSize, "user stack size in bytes")
	flags.Bool("use-tlb", false, "simulate a hardware TLB instead of direct page-table access")
	flags.Bool("demand-loading", false, "load user pages on first access instead of eagerly")
	flags.Bool("swap", false, "back demand-loaded pages with a per-process swap file")
	flags.Bool("use-lru", false, "evict the least-recently-used frame instead of FIFO")
	flags.Bool("semaphore-test", false, "set Config.SemaphoreTest (selftest runs its producer/consumer scenario either way)")
	root.PersistentFlags().AddFlagSet(flags)

	v := viper.New()
	v.SetEnvPrefix("nachos")
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg = kernel.Config{
			SemaphoreTest: v.GetBool("semaphore-test"),
			UseTLB:        v.GetBool("use-tlb"),
			DemandLoading: v.GetBool("demand-loading"),
			Swap:          v.GetBool("swap"),
			UseLRU:        v.GetBool("use-lru"),
			NumSectors:    v.GetInt("sectors"),
			NumPhysPages:  v.GetInt("phys-pages"),
			StackSize:     v.GetInt("stack-size"),
		}
		return nil
	}

	root.AddCommand(newFormatCmd(v), newFsckCmd(v), newSelftestCmd(), newPsCmd())
	return root
}

// bootScheduler returns a fresh Gate/Scheduler pair with its bootstrap
// thread already running, for commands that drive internal/fs or
// internal/kernel directly without a full kernel.New.
func bootScheduler() (*kthread.Gate, *kthread.Scheduler, *kthread.Thread) {
	gate := kthread.NewGate()
	sched := kthread.NewScheduler(gate, nil)
	main := sched.NewThread("main", kthread.DefaultPriority, true)
	sched.Boot(main)
	return gate, sched, main
}

func newZapLogger() *kernel.SugaredLogger {
	z, err := zap.NewDevelopment()
	if err != nil {
		z = zap.NewNop()
	}
	return kernel.NewLogger(z)
}
