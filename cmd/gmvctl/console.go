package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harunnryd/gmvctl/internal/console"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive operator shell",
	Long:  `Open the interactive shell: log in, walk the scope cascade, pull products, trigger syncs, and manage policies from one prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		workspace, err := bindWorkspace(ctx, cmd, components)
		if err != nil {
			return err
		}

		bindings, err := workspace.TTB.Bindings(ctx)
		if err != nil {
			return fmt.Errorf("list bindings: %w", err)
		}
		if err := workspace.Machine.Hydrate(ctx, bindings); err != nil {
			return fmt.Errorf("restore scope: %w", err)
		}

		shell := console.New(console.Params{
			Gate:        components.Gate,
			Flow:        components.Flow,
			Machine:     workspace.Machine,
			ProductsFor: workspace.ProductsFor,
			Sync:        workspace.Sync,
			Policies:    components.Policies,
			GMVMax:      workspace.GMVMax,
			TTB:         workspace.TTB,
			Bus:         components.Bus,
			Cache:       components.Cache,
			Out:         os.Stdout,
		})
		return shell.Run(ctx, os.Stdin)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
