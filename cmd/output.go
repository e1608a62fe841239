package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"keyrelay/outputclient"
)

type outputFlags struct {
	settings  string
	host      string
	port      int
	ipVersion string
	secure    bool
	group     string
	name      string
}

func newOutputCmd(g *globalFlags) *cobra.Command {
	var f outputFlags
	cmd := &cobra.Command{
		Use:   "output",
		Short: "Host virtual output devices and register them with a relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := g.logger()
			slog.SetDefault(logger)

			settings, err := outputclient.LoadSettings(f.settings, logger)
			if err != nil {
				return err
			}
			conn := &settings.Connection
			flags := cmd.Flags()
			if flags.Changed("host") {
				conn.Host = f.host
			}
			if flags.Changed("port") {
				conn.Port = f.port
			}
			if flags.Changed("ip-version") {
				conn.IPVersion = f.ipVersion
			}
			if flags.Changed("secure") {
				conn.Secure = f.secure
			}
			if flags.Changed("group") {
				conn.GroupID = f.group
			}

			devices, err := settings.BuildDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				profile := outputclient.Profiles["xbox360"]
				name := f.name
				if name == "" {
					name = "Virtual Xbox 360 Controller"
				}
				devices = append(devices, outputclient.Device{
					Name:           name,
					GroupID:        conn.GroupID,
					Profile:        profile,
					AllowedEvents:  profile.AllowedEvents,
					KeybindPresets: profile.DefaultPresets,
				})
			}

			table := outputclient.NewDeviceTable(outputclient.LogEmitter{Logger: logger}, logger)
			for _, d := range devices {
				table.Add(d)
				logger.Info("Created device", slog.String("device", d.Name), slog.String("type", d.Profile.Key))
			}

			connector, err := outputclient.NewConnector(outputclient.Options{
				Host:      conn.Host,
				Port:      conn.Port,
				IPVersion: conn.IPVersion,
				Secure:    conn.Secure,
			}, table, logger)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()
			return connector.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&f.settings, "settings", "device_settings.yaml", "YAML settings file")
	cmd.Flags().StringVar(&f.host, "host", "localhost", "relay host")
	cmd.Flags().IntVar(&f.port, "port", 8000, "relay port")
	cmd.Flags().StringVar(&f.ipVersion, "ip-version", "auto", "address family: 4, 6 or auto")
	cmd.Flags().BoolVar(&f.secure, "secure", false, "use wss")
	cmd.Flags().StringVar(&f.group, "group", "", "group id to join (empty lets the relay pick one)")
	cmd.Flags().StringVar(&f.name, "name", "", "display name when no devices are configured")
	return cmd
}
