package cmd

import (
	"fmt"
	"os"

	"github.com/killallgit/chatnote/pkg/config"
	"github.com/killallgit/chatnote/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chatnote",
	Short: "Chat, cards and reflections from the terminal",
	Long: `chatnote talks to a chatnote server: stream chat replies, keep unsent
drafts across sessions, manage note cards and answer reflection questions.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .chatnote/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("api", "", "server base URL")
	viper.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("api"))
}

func initConfig() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	logger.Debug("config loaded from %q, api %s", config.GetConfigFileUsed(), cfg.API.BaseURL)
	return nil
}
