package main

import (
	"fmt"
	"os"

	"github.com/harunnryd/gmvctl/internal/config"
	"github.com/harunnryd/gmvctl/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gmvctl",
	Short: "GMV Max operations console",
	Long:  `gmvctl drives the GMV Max advertising surfaces: scope selection, product sync, access policies, and strategy tuning.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Server.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gmvctl/config.yaml)")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("server.base_url", config.DefaultServerBaseURL, "API base URL")
	rootCmd.PersistentFlags().String("workspace.id", "", "workspace to operate on when the account spans several")
	rootCmd.PersistentFlags().String("username", "", "login username (or GMVCTL_USERNAME)")
	rootCmd.PersistentFlags().String("password", "", "login password (or GMVCTL_PASSWORD)")
}
