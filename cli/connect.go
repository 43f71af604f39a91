package cli

import (
	"github.com/mobile-next/adbctl/commands"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect [host:port]",
	Short: "Connect to a device over the network",
	Long:  `Asks the adb server to connect to a device listening on host:port, dropping any stale connection to it first.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResponse(commands.ConnectCommand(commands.ConnectRequest{Address: args[0]}))
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect [host:port]",
	Short: "Disconnect a network device",
	Long:  `Asks the adb server to drop a network device. With --offline, every device the server reports offline is dropped.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.DisconnectRequest{Offline: disconnectOffline}
		if len(args) == 1 {
			req.Address = args[0]
		}
		return printResponse(commands.DisconnectCommand(req))
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)

	disconnectCmd.Flags().BoolVar(&disconnectOffline, "offline", false, "disconnect all offline devices")
}
