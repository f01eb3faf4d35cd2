// Package cli implements the logwatch command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tphakala/logwatch/internal/conf"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// app carries state shared by the commands of one invocation.
type app struct {
	v           *viper.Viper
	configFile  string
	output      string
	keepServing bool

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// RootCmd builds the logwatch command tree. stdin, stdout and stderr are
// injected so tests can drive the command without a terminal.
func RootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:      conf.NewViper(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	cmd := &cobra.Command{
		Use:   "logwatch [access.log]",
		Short: "logwatch monitors an HTTP access log for traffic spikes.",
		Long: `logwatch reads a CSV HTTP access log from a file or standard input,
prints a traffic summary every summary interval, and raises an alert while
the average request rate over the alert window is at or above the threshold.

Settings are read from logwatch.yaml in the working directory or
$HOME/.config/logwatch (or the file given with --config), LOGWATCH_*
environment variables, and flags, in increasing order of precedence.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := ""
			if len(args) == 1 {
				input = args[0]
			}
			return a.run(cmd.Context(), input)
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default ./logwatch.yaml or $HOME/.config/logwatch/logwatch.yaml)")
	addSettingsFlags(cmd.PersistentFlags())
	cmd.Flags().StringVarP(&a.output, "output", "o", "", "write alerts and summaries to this file instead of stdout")
	cmd.Flags().BoolVar(&a.keepServing, "keep-serving", false, "keep the HTTP API running after the input ends, until interrupted")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return bindFlags(a.v, cmd.Flags())
	}

	cmd.AddCommand(
		configCmd(a),
		versionCmd(a),
	)
	return cmd
}

// addSettingsFlags registers one flag per conf.FlagKeys entry.
func addSettingsFlags(flags *pflag.FlagSet) {
	d := conf.Defaults()
	flags.Int("max-series-length", d.Store.MaxSeriesLength, "buckets kept per metric series")
	flags.Float64("threshold", d.Alert.Threshold, "average requests per second that raise the alert")
	flags.Duration("alert-window", d.Alert.Window.Std(), "span the alert rate is averaged over")
	flags.Duration("summary-interval", d.Summary.Interval.Std(), "data time between traffic summaries")
	flags.Duration("summary-window", d.Summary.Window.Std(), "span each summary covers")
	flags.StringSlice("interesting", d.Summary.Interesting, "metric name fragments reported in summaries")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", d.Log.Format, "log format (text, json)")
	flags.String("listen", d.HTTP.Listen, "address for the HTTP API, e.g. :8080 (disabled when empty)")
	flags.String("history-db", d.History.DSN, "alert history database DSN (disabled when empty)")
	flags.String("mqtt-broker", d.MQTT.Broker, "MQTT broker URL for alert events, e.g. tcp://localhost:1883")
	flags.StringArray("notify-url", d.Notify.URLs, "shoutrrr service URL to notify on alerts (repeatable)")
}

// bindFlags makes explicitly set flags override file and environment
// values. Flags left at their defaults do not shadow lower layers.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range conf.FlagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", name, err)
		}
	}
	return nil
}

// Execute runs the command line with the process's standard streams and
// returns the exit code. Cancelling ctx stops a running monitor.
func Execute(ctx context.Context) int {
	cmd := RootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func versionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.stdout, "logwatch %s\n", Version)
			return err
		},
	}
}
