package commands

import (
	"github.com/spf13/cobra"

	"github.com/epdlink/go-typec/internal/config"
)

type options struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "pdaltd",
		Short:         "USB-C power delivery sink with DisplayPort alternate mode",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return configureLogger(cmd.ErrOrStderr(), config.DefaultConfig(), o.logLevel)
			}
			cfg, err := config.Load(o.configPath)
			if err != nil {
				return err
			}
			o.cfg = cfg
			return configureLogger(cmd.ErrOrStderr(), cfg, o.logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&o.configPath, "config", config.DefaultPath(), "Config file")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Override log level (debug|info|warn|error)")

	cmd.AddCommand(
		newInitCmd(o),
		newRunCmd(o),
		newCapsCmd(o),
	)

	return cmd
}
