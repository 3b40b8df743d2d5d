package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harunnryd/gmvctl/cmd/gmvctl/runtime"
	"github.com/harunnryd/gmvctl/internal/console"
	"github.com/harunnryd/gmvctl/internal/strategy"
)

var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Tune the per-campaign automation strategy",
	Long:  `Inspect, adjust, preview, and review metrics for a campaign's automation strategy.`,
}

func strategyEditor(ctx context.Context, cmd *cobra.Command, components *runtime.Components) (*strategy.Editor, error) {
	workspace, err := hydratedWorkspace(ctx, cmd, components)
	if err != nil {
		return nil, err
	}

	sel := workspace.Machine.Selection()
	if sel.AuthID == "" {
		return nil, fmt.Errorf("no account binding selected")
	}

	campaignID, _ := cmd.Flags().GetString("campaign")
	if campaignID == "" {
		return nil, fmt.Errorf("--campaign is required")
	}

	editor := strategy.NewEditor(workspace.GMVMax, components.Bus, components.Cache, sel.AuthID, campaignID)
	if err := editor.Load(ctx); err != nil {
		return nil, fmt.Errorf("load strategy: %w", err)
	}
	return editor, nil
}

var strategyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		editor, err := strategyEditor(ctx, cmd, components)
		if err != nil {
			return err
		}

		draft := editor.Draft()
		fmt.Printf("Enabled:  %t\n", draft.Enabled)
		fmt.Printf("Cooldown: %d min\n", draft.CooldownMinutes)
		if draft.MinRuntimeMinutes != nil {
			fmt.Printf("Min runtime: %d min\n", *draft.MinRuntimeMinutes)
		}
		if draft.Thresholds.TargetROI != nil {
			fmt.Printf("Target ROI: %.2f\n", *draft.Thresholds.TargetROI)
		}
		for _, rule := range draft.Rules {
			fmt.Printf("Rule %s: %s %s %.2f -> %s\n", rule.ID, rule.Metric, rule.Op, rule.Value, rule.Action)
		}
		return nil
	},
}

var strategySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Adjust and save the strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		editor, err := strategyEditor(ctx, cmd, components)
		if err != nil {
			return err
		}

		draft := editor.Draft()
		if cmd.Flags().Changed("enabled") {
			draft.Enabled, _ = cmd.Flags().GetBool("enabled")
		}
		if cmd.Flags().Changed("cooldown") {
			draft.CooldownMinutes, _ = cmd.Flags().GetInt("cooldown")
		}
		if cmd.Flags().Changed("target-roi") {
			roi, _ := cmd.Flags().GetFloat64("target-roi")
			draft.Thresholds.TargetROI = &roi
		}
		editor.SetDraft(draft)

		if !editor.Dirty() {
			fmt.Println("Nothing to save")
			return nil
		}

		if err := editor.Save(ctx); err != nil {
			return fmt.Errorf("save strategy: %w", err)
		}
		flushNotices(components.Bus)

		saved := editor.Draft()
		if saved.CooldownMinutes != draft.CooldownMinutes {
			fmt.Printf("Cooldown clamped to %d min\n", saved.CooldownMinutes)
		}
		return nil
	},
}

var strategyPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Evaluate the strategy server-side without saving",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		editor, err := strategyEditor(ctx, cmd, components)
		if err != nil {
			return err
		}

		verdict, err := editor.Preview(ctx)
		if err != nil {
			return fmt.Errorf("preview: %w", err)
		}

		keys := make([]string, 0, len(verdict))
		for k := range verdict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %v\n", k, verdict[k])
		}
		return nil
	},
}

var strategyMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarize campaign metrics over a date range",
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
		if sel.AuthID == "" {
			return fmt.Errorf("no account binding selected")
		}

		campaignID, _ := cmd.Flags().GetString("campaign")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		if campaignID == "" || from == "" || to == "" {
			return fmt.Errorf("--campaign, --from, and --to are required")
		}

		entries, err := workspace.GMVMax.Metrics(ctx, sel.AuthID, campaignID, from, to)
		if err != nil {
			return fmt.Errorf("fetch metrics: %w", err)
		}

		by, _ := cmd.Flags().GetString("by")
		var dim strategy.Dimension
		switch strings.ToLower(by) {
		case "creative":
			dim = strategy.ByCreative
		case "product":
			dim = strategy.ByProduct
		case "date", "":
			by = "date"
			dim = strategy.ByDate
		default:
			return fmt.Errorf("unknown dimension %q (want creative, product, or date)", by)
		}

		fmt.Println(console.NewRenderer().MetricsSummary(strategy.GroupBy(entries, dim), by))
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{strategyShowCmd, strategySetCmd, strategyPreviewCmd, strategyMetricsCmd} {
		cmd.Flags().String("campaign", "", "campaign id")
		cmd.Flags().String("auth-id", "", "override the account binding")
		cmd.Flags().String("bc", "", "override the business center")
		cmd.Flags().String("advertiser", "", "override the advertiser")
		cmd.Flags().String("store", "", "override the store")
	}

	strategySetCmd.Flags().Bool("enabled", false, "enable or disable the automation loop")
	strategySetCmd.Flags().Int("cooldown", 0, "cooldown between adjustments, in minutes")
	strategySetCmd.Flags().Float64("target-roi", 0, "target ROI threshold")

	strategyMetricsCmd.Flags().String("from", "", "range start (YYYY-MM-DD)")
	strategyMetricsCmd.Flags().String("to", "", "range end (YYYY-MM-DD)")
	strategyMetricsCmd.Flags().String("by", "date", "group by creative, product, or date")

	strategyCmd.AddCommand(strategyShowCmd)
	strategyCmd.AddCommand(strategySetCmd)
	strategyCmd.AddCommand(strategyPreviewCmd)
	strategyCmd.AddCommand(strategyMetricsCmd)
	rootCmd.AddCommand(strategyCmd)
}
