package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/console"
	"github.com/harunnryd/gmvctl/internal/policyadmin"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage access policies",
	Long:  `List, create, update, toggle, and dry-run the platform access policies.`,
}

var policyLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List policies",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		if _, err := ensureAuthenticated(ctx, cmd, components); err != nil {
			return err
		}

		provider, _ := cmd.Flags().GetString("provider")
		mode, _ := cmd.Flags().GetString("mode")
		domain, _ := cmd.Flags().GetString("domain")
		status, _ := cmd.Flags().GetString("status")
		page, _ := cmd.Flags().GetInt("page")

		params := components.Policies.Params()
		params.ProviderKey = provider
		params.Mode = mode
		params.Domain = domain
		params.Status = status
		if page > 0 {
			params.Page = page
		}

		result, err := api.NewPolicyService(components.Client).List(ctx, params)
		if err != nil {
			return fmt.Errorf("list policies: %w", err)
		}

		fmt.Println(console.NewRenderer().Policies(result))
		return nil
	},
}

var policyApplyCmd = &cobra.Command{
	Use:   "apply [id]",
	Short: "Create a policy, or update one when an id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		if _, err := ensureAuthenticated(ctx, cmd, components); err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		provider, _ := cmd.Flags().GetString("provider")
		mode, _ := cmd.Flags().GetString("mode")
		enforcement, _ := cmd.Flags().GetString("enforcement")
		domains, _ := cmd.Flags().GetStringSlice("domains")
		scopesJSON, _ := cmd.Flags().GetString("scopes")
		description, _ := cmd.Flags().GetString("description")
		enabled, _ := cmd.Flags().GetBool("enabled")
		windowCron, _ := cmd.Flags().GetString("window-cron")

		form := policyadmin.PolicyForm{
			Name:            name,
			ProviderKey:     provider,
			Mode:            strings.ToUpper(mode),
			EnforcementMode: strings.ToUpper(enforcement),
			Domains:         domains,
			ScopesJSON:      scopesJSON,
			Description:     description,
			IsEnabled:       enabled,
			Limits:          api.PolicyLimits{WindowCron: windowCron},
		}

		id := ""
		if len(args) == 1 {
			id = args[0]
		}

		policy, err := components.Policies.Save(ctx, id, form)
		if err != nil {
			var verr *policyadmin.ValidationError
			if errors.As(err, &verr) {
				for _, problem := range verr.Problems {
					fmt.Printf("  ✗ %s\n", problem)
				}
				return errors.New("policy rejected by validation")
			}
			return fmt.Errorf("save policy: %w", err)
		}

		fmt.Printf("✓ Policy %s saved\n", policy.ID)
		return nil
	},
}

var policyToggleCmd = &cobra.Command{
	Use:   "toggle <id> <on|off>",
	Short: "Enable or disable a policy",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		if _, err := ensureAuthenticated(ctx, cmd, components); err != nil {
			return err
		}

		enabled := strings.EqualFold(args[1], "on")
		if !enabled && !strings.EqualFold(args[1], "off") {
			return fmt.Errorf("bad state %q, use on or off", args[1])
		}

		if err := components.Policies.Toggle(ctx, args[0], enabled); err != nil {
			return fmt.Errorf("toggle policy: %w", err)
		}

		fmt.Printf("✓ Policy %s is now %s\n", args[0], args[1])
		return nil
	},
}

var policyRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		if _, err := ensureAuthenticated(ctx, cmd, components); err != nil {
			return err
		}

		if err := components.Policies.Delete(ctx, args[0]); err != nil {
			return fmt.Errorf("delete policy: %w", err)
		}

		fmt.Printf("✓ Policy %s deleted\n", args[0])
		return nil
	},
}

var policyDryRunCmd = &cobra.Command{
	Use:   "dry-run <id> <domain>...",
	Short: "Evaluate candidate domains against a policy without side effects",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		if _, err := ensureAuthenticated(ctx, cmd, components); err != nil {
			return err
		}

		verdict, err := components.Policies.DryRun(ctx, args[0], args[1:])
		if err != nil {
			return fmt.Errorf("dry-run: %w", err)
		}

		fmt.Println(string(verdict))
		return nil
	},
}

var policyProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the provider keys policies can target",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		if _, err := ensureAuthenticated(ctx, cmd, components); err != nil {
			return err
		}

		providers, err := components.Policies.Providers(ctx)
		if err != nil {
			return fmt.Errorf("list providers: %w", err)
		}

		for _, p := range providers {
			fmt.Printf("- %s (%s)\n", p.Key, p.Name)
		}
		return nil
	},
}

func init() {
	policyLsCmd.Flags().String("provider", "", "filter by provider key")
	policyLsCmd.Flags().String("mode", "", "filter by mode (WHITELIST/BLACKLIST)")
	policyLsCmd.Flags().String("domain", "", "filter by domain substring")
	policyLsCmd.Flags().String("status", "", "filter by status (enabled/disabled)")
	policyLsCmd.Flags().Int("page", 0, "page number")

	policyApplyCmd.Flags().String("name", "", "policy name")
	policyApplyCmd.Flags().String("provider", "", "provider key")
	policyApplyCmd.Flags().String("mode", "", "WHITELIST or BLACKLIST")
	policyApplyCmd.Flags().String("enforcement", "", "ENFORCE, DRYRUN, or OFF")
	policyApplyCmd.Flags().StringSlice("domains", nil, "matched domains")
	policyApplyCmd.Flags().String("scopes", "", "business scopes as JSON (include/exclude)")
	policyApplyCmd.Flags().String("description", "", "free-text description")
	policyApplyCmd.Flags().Bool("enabled", false, "enable immediately")
	policyApplyCmd.Flags().String("window-cron", "", "active window cron expression")

	policyCmd.AddCommand(policyLsCmd)
	policyCmd.AddCommand(policyApplyCmd)
	policyCmd.AddCommand(policyToggleCmd)
	policyCmd.AddCommand(policyRmCmd)
	policyCmd.AddCommand(policyDryRunCmd)
	policyCmd.AddCommand(policyProvidersCmd)
	rootCmd.AddCommand(policyCmd)
}
