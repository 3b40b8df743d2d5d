package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harunnryd/gmvctl/cmd/gmvctl/runtime"
	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/session"
)

func buildComponents(cmd *cobra.Command) (*runtime.Components, error) {
	return runtime.NewBuilder().
		WithContext(cmd.Context()).
		WithConfig(cfg).
		Build()
}

func credentials(cmd *cobra.Command) (username, password string) {
	username, _ = cmd.Flags().GetString("username")
	password, _ = cmd.Flags().GetString("password")
	if username == "" {
		username = os.Getenv("GMVCTL_USERNAME")
	}
	if password == "" {
		password = os.Getenv("GMVCTL_PASSWORD")
	}
	return username, password
}

// ensureAuthenticated boots the session gate and, when the server has no
// session for us, logs in with the credentials from flags or environment.
// A multi-workspace account needs --workspace.id to disambiguate.
func ensureAuthenticated(ctx context.Context, cmd *cobra.Command, c *runtime.Components) (api.Session, error) {
	status, needsOwnerInit, err := c.Gate.Boot(ctx)
	if err != nil && status == session.Unknown {
		return api.Session{}, fmt.Errorf("probe session: %w", err)
	}
	if needsOwnerInit {
		return api.Session{}, errors.New("platform has no owner account yet, run: gmvctl login --init")
	}

	if status == session.Authenticated {
		sess, _ := c.Gate.Session()
		return sess, nil
	}

	username, password := credentials(cmd)
	if username == "" || password == "" {
		return api.Session{}, errors.New("not logged in, pass --username/--password or set GMVCTL_USERNAME/GMVCTL_PASSWORD")
	}

	workspaceID, _ := cmd.Flags().GetString("workspace.id")
	if workspaceID == "" {
		workspaceID = cfg.Workspace.ID
	}

	var sess api.Session
	if workspaceID != "" {
		sess, err = c.Flow.LoginWorkspace(ctx, username, password, false, workspaceID)
	} else {
		sess, err = c.Flow.Login(ctx, username, password, false)
	}

	var choice *session.WorkspaceChoiceError
	if errors.As(err, &choice) {
		fmt.Fprintln(os.Stderr, "Account spans multiple workspaces, rerun with --workspace.id:")
		for _, tenant := range choice.Tenants {
			fmt.Fprintf(os.Stderr, "  %s  %s\n", tenant.WorkspaceID, tenant.CompanyName)
		}
		return api.Session{}, errors.New("workspace not chosen")
	}
	if err != nil {
		return api.Session{}, fmt.Errorf("login: %w", err)
	}
	return sess, nil
}

// bindWorkspace authenticates and wires the workspace surfaces in one step;
// most subcommands start here.
func bindWorkspace(ctx context.Context, cmd *cobra.Command, c *runtime.Components) (*runtime.WorkspaceComponents, error) {
	sess, err := ensureAuthenticated(ctx, cmd, c)
	if err != nil {
		return nil, err
	}
	return c.BindWorkspace(sess.WorkspaceID)
}
