package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprintboard/internal/config"
)

// newRootCmd builds the command tree. Flags are bound to viper keys so a
// flag overrides the environment, which overrides the config file.
func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	root := &cobra.Command{
		Use:          "sprintboard",
		Short:        "Agile board with ordered work items and sprint lifecycle",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./sprintboard.yaml or $HOME/.sprintboard/sprintboard.yaml)")
	flags.String("db", "", "path to sqlite database file")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")
	bind(v, root, config.KeyDBPath, "db")
	bind(v, root, config.KeyLogLevel, "log-level")
	bind(v, root, config.KeyLogFormat, "log-format")

	load := func() (config.Config, error) {
		return config.Load(v, cfgFile)
	}

	root.AddCommand(newServeCmd(v, load))
	root.AddCommand(newMigrateCmd(load))
	return root
}

func bind(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if f := cmd.PersistentFlags().Lookup(flag); f != nil {
		_ = v.BindPFlag(key, f)
	} else if f := cmd.Flags().Lookup(flag); f != nil {
		_ = v.BindPFlag(key, f)
	}
}
