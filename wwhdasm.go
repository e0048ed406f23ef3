package main

import (
	"context"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"wwhdasm/pkg/diff"
	"wwhdasm/pkg/linker"
	"wwhdasm/pkg/toolchain"
	"wwhdasm/pkg/utils"
)

var _ linker.Toolchain = (*toolchain.DevkitPPC)(nil)

func main() {
	if err := NewRootCommand(afero.NewOsFs()).ExecuteContext(context.Background()); err != nil {
		utils.Fatal(err)
	}
}

func NewRootCommand(fs afero.Fs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wwhdasm",
		Short: "Assemble and relocate patches into diffs against the game executable",
		Example: "  wwhdasm --root .\n" +
			"  DEVKITPPC=/opt/devkitpro/devkitPPC wwhdasm --log-level debug",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	AddFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		v, err := NewViper(fs, cmd.Flags())
		if err != nil {
			return err
		}
		cfg, err := LoadConfig(v)
		if err != nil {
			return err
		}

		log := utils.GetDefaultLogger(cfg.LogLevel)

		devkit, err := toolchain.DefaultRoot(cfg.DevkitPPC)
		if err != nil {
			return err
		}

		workDir, cleanup, err := toolchain.NewWorkspace()
		if err != nil {
			return err
		}
		defer cleanup()

		tc := toolchain.NewDevkitPPC(devkit, workDir, toolchain.ExecRunner{Dir: workDir}, log.WithName("toolchain"))
		return Run(cmd.Context(), fs, cfg, tc, log)
	}
	return cmd
}

// Run purges old diffs, builds every patch and writes the results.
func Run(ctx context.Context, fs afero.Fs, cfg Config, tc linker.Toolchain, log logr.Logger) error {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return errors.Wrapf(err, "bad root %s", cfg.Root)
	}

	w := diff.NewWriter(fs, root, log.WithName("diff"))
	if err := w.Purge(); err != nil {
		return err
	}

	args := linker.ContextArgs{
		Root:   root,
		Layout: cfg.Layout,
		CFlags: cfg.CFlags,
	}
	lc := linker.NewContext(args, fs, tc, log.WithName("linker"))

	// fail before compiling or writing anything
	patches, err := linker.ListPatches(lc)
	if err != nil {
		return err
	}
	if err := w.CheckSources(patches); err != nil {
		return err
	}

	result, err := linker.Build(ctx, lc)
	if err != nil {
		return err
	}

	if _, err := w.WriteSymbols(result.Globals.Public()); err != nil {
		return err
	}
	return w.WriteDiffs(result.Diffs)
}
