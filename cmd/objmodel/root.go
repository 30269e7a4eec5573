package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/objmodel/config"
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configFile string
	json       bool
	allocator  string
	workers    int
}

type app struct {
	flags rootFlags
	cfg   *config.Config
	log   *zap.Logger
	out   io.Writer
	errw  *os.File
}

func newApp() *app {
	return &app{out: os.Stdout, errw: os.Stderr, log: zap.NewNop()}
}

// newRootCmd creates the top-level command with global flags and all
// subcommands registered.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "objmodel",
		Short: "Reference-counted objects over scoped allocators",
		Long: `objmodel runs a concurrent workload against the object model: every
worker binds its own allocator scope, creates blobs, shares them under two
capabilities and releases everything, then the registry is torn down and
the allocators and live objects are reported.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.log.Sync()
		},
	}
	root.SetOut(a.out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configFile, "config", "", "config file (default: ./objmodel.yaml)")
	pf.BoolVar(&a.flags.json, "json", false, "output in JSON format")
	pf.StringVar(&a.flags.allocator, "allocator", config.AllocatorHeap, "default allocator: heap, mmap or linear")
	pf.IntVar(&a.flags.workers, "workers", 4, "number of concurrent workers")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newCapabilitiesCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newVersionCmd(a))
	return root
}

// setup loads configuration and installs the loggers.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	a.out = cmd.OutOrStdout()

	l := config.NewLoader()
	pf := cmd.Root().PersistentFlags()
	if err := l.BindFlag(config.KeyAllocatorKind, pf.Lookup("allocator")); err != nil {
		return err
	}
	if err := l.BindFlag(config.KeyWorkers, pf.Lookup("workers")); err != nil {
		return err
	}
	cfg, err := l.Load(a.flags.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := newLogger(cfg.Log, a.errw)
	if err != nil {
		return err
	}
	a.log = log
	installLogger(log)
	if used := l.Used(); used != "" {
		log.Debug("config loaded", zap.String("file", used))
	}
	return nil
}
