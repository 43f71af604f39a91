package cli

import (
	"github.com/mobile-next/adbctl/commands"
	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Device management commands",
	Long:  `Commands for managing individual devices including rebooting and getting device information.`,
}

var deviceRebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Reboot a connected device or emulator",
	Long:  `Reboots a specified device (using its ID).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.RebootRequest{
			DeviceID: deviceId,
		}
		return printResponse(commands.RebootCommand(req))
	},
}

var deviceInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Get device info",
	Long:  `Get detailed information about a connected device, such as version and screen size. With --negotiate, also the SDK level and the input and screenshot strategies in use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.InfoRequest{
			DeviceID:  deviceId,
			Negotiate: infoNegotiate,
		}
		return printResponse(commands.InfoCommand(req))
	},
}

func init() {
	rootCmd.AddCommand(deviceCmd)

	// add device subcommands
	deviceCmd.AddCommand(deviceRebootCmd)
	deviceCmd.AddCommand(deviceInfoCmd)

	// device command flags
	deviceRebootCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to reboot")
	deviceInfoCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to get info from")
	deviceInfoCmd.Flags().BoolVar(&infoNegotiate, "negotiate", false, "also report sdk level and capabilities")
}
