package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harunnryd/gmvctl/cmd/gmvctl/runtime"
	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/console"
	"github.com/harunnryd/gmvctl/internal/feedback"
	"github.com/harunnryd/gmvctl/internal/scope"
)

var gmvmaxCmd = &cobra.Command{
	Use:   "gmvmax",
	Short: "GMV Max scope, products, and sync",
	Long:  `Inspect and adjust the GMV Max working scope, pull the product pool, and trigger product syncs.`,
}

// hydratedWorkspace binds the workspace, restores the persisted scope, and
// applies any scope override flags on top.
func hydratedWorkspace(ctx context.Context, cmd *cobra.Command, components *runtime.Components) (*runtime.WorkspaceComponents, error) {
	workspace, err := bindWorkspace(ctx, cmd, components)
	if err != nil {
		return nil, err
	}

	bindings, err := workspace.TTB.Bindings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	if err := workspace.Machine.Hydrate(ctx, bindings); err != nil {
		return nil, fmt.Errorf("restore scope: %w", err)
	}

	if authID, _ := cmd.Flags().GetString("auth-id"); authID != "" {
		workspace.Machine.SetBinding(authID)
		if err := workspace.Machine.LoadOptions(ctx); err != nil {
			return nil, fmt.Errorf("load options: %w", err)
		}
	}
	if bcID, _ := cmd.Flags().GetString("bc"); bcID != "" {
		workspace.Machine.SetBC(bcID)
	}
	if advertiserID, _ := cmd.Flags().GetString("advertiser"); advertiserID != "" {
		workspace.Machine.SetAdvertiser(advertiserID)
	}
	if storeID, _ := cmd.Flags().GetString("store"); storeID != "" {
		workspace.Machine.SetStore(storeID)
	}

	return workspace, nil
}

func flushNotices(bus *feedback.Bus) {
	if notice, ok := bus.Current(); ok {
		fmt.Println(console.NewRenderer().Notice(notice))
		bus.Dismiss()
	}
}

var gmvmaxScopeCmd = &cobra.Command{
	Use:   "scope",
	Short: "Show the working scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		workspace, err := hydratedWorkspace(ctx, cmd, components)
		if err != nil {
			return err
		}

		fmt.Println(console.NewRenderer().Scope(workspace.Machine.Selection()))
		return nil
	},
}

var gmvmaxOptionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Show the scope cascade options",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		workspace, err := hydratedWorkspace(ctx, cmd, components)
		if err != nil {
			return err
		}

		if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
			if err := workspace.Machine.RefreshOptions(ctx); err != nil {
				flushNotices(components.Bus)
				return err
			}
			flushNotices(components.Bus)
		}

		fmt.Print(console.NewRenderer().OptionsSnapshot(workspace.Machine.Snapshot()))
		return nil
	},
}

var gmvmaxProductsCmd = &cobra.Command{
	Use:   "products",
	Short: "Pull the product page for the current scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		workspace, err := hydratedWorkspace(ctx, cmd, components)
		if err != nil {
			return err
		}

		sel := workspace.Machine.Selection()
		if !sel.Complete() {
			return fmt.Errorf("scope is incomplete, set an advertiser and store (have %s)", describeScope(sel))
		}

		page, _ := cmd.Flags().GetInt("page")
		if page < 1 {
			page = 1
		}

		result, err := workspace.GMVMax.Products(ctx, sel.AuthID, productParams(sel, page))
		if err != nil {
			return fmt.Errorf("fetch products: %w", err)
		}

		fmt.Println(console.NewRenderer().Products(result))
		return nil
	},
}

var gmvmaxSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger a product sync and wait for the run to settle",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		workspace, err := hydratedWorkspace(ctx, cmd, components)
		if err != nil {
			return err
		}

		sel := workspace.Machine.Selection()
		if sel.AdvertiserID == "" {
			return fmt.Errorf("scope is incomplete, set at least an advertiser (have %s)", describeScope(sel))
		}

		eligibility, _ := cmd.Flags().GetString("eligibility")

		run, err := workspace.Sync.Trigger(ctx, sel.AuthID, sel, eligibility)
		flushNotices(components.Bus)
		if err != nil {
			return err
		}

		fmt.Printf("Run #%s finished: %s\n", run.ID, run.Status)
		return nil
	},
}

var gmvmaxSyncStatusCmd = &cobra.Command{
	Use:   "sync-status",
	Short: "Show the last observed sync run for the current binding",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		workspace, err := hydratedWorkspace(ctx, cmd, components)
		if err != nil {
			return err
		}

		sel := workspace.Machine.Selection()
		last, ok := workspace.Sync.LastRun(sel.AuthID)
		if !ok {
			fmt.Println("No sync runs recorded for this binding")
			return nil
		}

		run, err := workspace.GMVMax.SyncRun(ctx, sel.AuthID, last.RunID)
		if err != nil {
			fmt.Printf("Run #%s last seen as %s (status fetch failed: %v)\n", last.RunID, last.Status, err)
			return nil
		}

		fmt.Printf("Run #%s: %s\n", run.ID, run.Status)
		return nil
	},
}

var gmvmaxSaveCmd = &cobra.Command{
	Use:   "save-config",
	Short: "Persist the working scope server-side",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		workspace, err := hydratedWorkspace(ctx, cmd, components)
		if err != nil {
			return err
		}

		autoSync, _ := cmd.Flags().GetBool("autosync")
		if err := workspace.Machine.SaveConfig(ctx, autoSync); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println("✓ Scope saved")
		return nil
	},
}

var gmvmaxBindingsCmd = &cobra.Command{
	Use:   "bindings",
	Short: "List the provider account bindings",
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

		fmt.Println(console.NewRenderer().Bindings(bindings))
		return nil
	},
}

func productParams(sel scope.Selection, page int) api.ProductListParams {
	return api.ProductListParams{
		AdvertiserID: sel.AdvertiserID,
		StoreID:      sel.StoreID,
		Page:         page,
	}
}

func describeScope(sel scope.Selection) string {
	return fmt.Sprintf("binding=%s bc=%s advertiser=%s store=%s",
		orNone(sel.AuthID), orNone(sel.BCID), orNone(sel.AdvertiserID), orNone(sel.StoreID))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func init() {
	for _, cmd := range []*cobra.Command{gmvmaxScopeCmd, gmvmaxOptionsCmd, gmvmaxProductsCmd, gmvmaxSyncCmd, gmvmaxSyncStatusCmd, gmvmaxSaveCmd} {
		cmd.Flags().String("auth-id", "", "override the account binding")
		cmd.Flags().String("bc", "", "override the business center")
		cmd.Flags().String("advertiser", "", "override the advertiser")
		cmd.Flags().String("store", "", "override the store")
	}

	gmvmaxOptionsCmd.Flags().Bool("refresh", false, "conditional refresh against the held entity tag")
	gmvmaxProductsCmd.Flags().Int("page", 1, "page number")
	gmvmaxSyncCmd.Flags().String("eligibility", "", "product eligibility filter (gmv_max when unset)")
	gmvmaxSaveCmd.Flags().Bool("autosync", false, "enable auto product sync on the saved config")

	gmvmaxCmd.AddCommand(gmvmaxScopeCmd)
	gmvmaxCmd.AddCommand(gmvmaxOptionsCmd)
	gmvmaxCmd.AddCommand(gmvmaxProductsCmd)
	gmvmaxCmd.AddCommand(gmvmaxSyncCmd)
	gmvmaxCmd.AddCommand(gmvmaxSyncStatusCmd)
	gmvmaxCmd.AddCommand(gmvmaxSaveCmd)
	gmvmaxCmd.AddCommand(gmvmaxBindingsCmd)
	rootCmd.AddCommand(gmvmaxCmd)
}
