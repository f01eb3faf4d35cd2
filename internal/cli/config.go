package cli

import (
	"github.com/spf13/cobra"
	"github.com/tphakala/logwatch/internal/conf"
)

const redacted = "[redacted]"

// configCmd prints the effective settings after defaults, the config file,
// the environment and flags have been applied.
func configCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := conf.Load(a.v, a.configFile)
			if err != nil {
				return err
			}
			if settings.MQTT.Password != "" {
				settings.MQTT.Password = redacted
			}
			if settings.Sentry.DSN != "" {
				settings.Sentry.DSN = redacted
			}

			out, err := settings.YAML()
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(out)
			return err
		},
	}
}
