package cli

import (
	"github.com/mobile-next/adbctl/commands"
	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push [local] [remote]",
	Short: "Copy a file to a device",
	Long:  `Copies a local file to the device over the adb sync protocol. A remote path ending in "/" keeps the local file name.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.PushRequest{
			DeviceID:   deviceId,
			LocalPath:  args[0],
			RemotePath: args[1],
			Mode:       pushMode,
		}
		return printResponse(commands.PushCommand(req))
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)

	pushCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to push to")
	pushCmd.Flags().StringVar(&pushMode, "mode", "", "octal permissions on the device, e.g. 0644 (default: local file's)")
}
