package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harunnryd/gmvctl/internal/authflow"
	"github.com/harunnryd/gmvctl/internal/session"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify credentials against the platform",
	Long:  `Log in with --username/--password and report the session. With --init, bootstrap the very first owner account instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()
		ctx := cmd.Context()

		username, password := credentials(cmd)
		if username == "" || password == "" {
			return errors.New("pass --username and --password (or GMVCTL_USERNAME/GMVCTL_PASSWORD)")
		}

		if ownerInit, _ := cmd.Flags().GetBool("init"); ownerInit {
			if err := components.Flow.OwnerInit(ctx, username, password); err != nil {
				if errors.Is(err, authflow.ErrPasswordTooWeak) {
					return errors.New("password too weak: use 8+ characters mixing case, digits, and symbols")
				}
				if errors.Is(err, authflow.ErrAlreadyInitialized) {
					return errors.New("platform owner already exists, log in normally")
				}
				return fmt.Errorf("owner init: %w", err)
			}
			fmt.Println("Owner account created.")
			return nil
		}

		remember, _ := cmd.Flags().GetBool("remember")
		workspaceID, _ := cmd.Flags().GetString("workspace.id")

		var choice *session.WorkspaceChoiceError
		if workspaceID != "" {
			_, err = components.Flow.LoginWorkspace(ctx, username, password, remember, workspaceID)
		} else {
			_, err = components.Flow.Login(ctx, username, password, remember)
		}
		if errors.As(err, &choice) {
			fmt.Println("Account spans multiple workspaces, rerun with --workspace.id:")
			for _, tenant := range choice.Tenants {
				fmt.Printf("  %s  %s\n", tenant.WorkspaceID, tenant.CompanyName)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		sess, _ := components.Gate.Session()
		fmt.Printf("✓ Logged in as %s (workspace %s)\n", sess.Username, sess.WorkspaceID)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the session this invocation would run as",
	RunE: func(cmd *cobra.Command, args []string) error {
		components, err := buildComponents(cmd)
		if err != nil {
			return err
		}
		defer components.Stop()

		sess, err := ensureAuthenticated(cmd.Context(), cmd, components)
		if err != nil {
			return err
		}

		fmt.Printf("%s (workspace %s)\n", sess.Username, sess.WorkspaceID)
		return nil
	},
}

func init() {
	loginCmd.Flags().Bool("remember", false, "remember the username locally")
	loginCmd.Flags().Bool("init", false, "bootstrap the first owner account")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(whoamiCmd)
}
