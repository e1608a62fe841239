package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"keyrelay/userclient"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	var opts userclient.Options
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Join a group as a headless user and print its state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()
			return userclient.NewWatcher(opts, os.Stdout, g.logger()).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&opts.URL, "url", "ws://localhost:8000/ws/user", "relay user endpoint")
	cmd.Flags().StringVar(&opts.GroupID, "group", "", "group id to join (empty creates a new group)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Color, "color", "", "display color, e.g. #3a7bd5")
	return cmd
}
