// Package cmd holds the keyrelay command line: the relay server and the two
// client counterparts.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"keyrelay/logging"
)

func Execute() error {
	return newRootCmd().Execute()
}

type globalFlags struct {
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	rootCmd := &cobra.Command{
		Use:          "keyrelay",
		Short:        "Relay key and button events from users to shared virtual devices",
		Long:         "keyrelay runs the group relay that lets users drive shared output devices, plus the output device client and a headless watcher.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(
		newServeCmd(),
		newOutputCmd(&g),
		newWatchCmd(&g),
	)
	return rootCmd
}

func (g *globalFlags) logger() *slog.Logger {
	return logging.New(g.logLevel, g.logFormat)
}

// bindFlags binds viper keys to the named flags of fs.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for key, flag := range keys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return err
		}
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
