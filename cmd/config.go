package cmd

import (
	"fmt"

	"github.com/killallgit/chatnote/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the settings file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with the default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.BuildSettingsPath("settings.yaml")
		}
		if err := config.WriteDefaults(path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config file:   %s\n", config.GetConfigFileUsed())
		fmt.Fprintf(out, "api:           %s (model %s, timeout %s)\n", cfg.API.BaseURL, cfg.API.Model, cfg.API.Timeout)
		fmt.Fprintf(out, "stream:        read timeout %s\n", cfg.Stream.ReadTimeout)
		fmt.Fprintf(out, "drafts:        enabled=%t db=%s watch=%s\n", cfg.Drafts.Enabled, config.ResolvePath(cfg.Drafts.Database), config.ResolvePath(cfg.Drafts.WatchDir))
		fmt.Fprintf(out, "card index:    enabled=%t embedder=%s\n", cfg.Cards.Index.Enabled, cfg.Cards.Index.Embedder.Provider)
		fmt.Fprintf(out, "reminders:     enabled=%t\n", cfg.Reminders.Enabled)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
