package cli

import (
	"github.com/mobile-next/adbctl/commands"
	"github.com/spf13/cobra"
)

var (
	showAllDevices bool
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List connected devices",
	Long:  `List all Android devices known to the adb server, both real devices and emulators. With --all, offline devices and AVDs that are not running are listed too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResponse(commands.DevicesCommand(showAllDevices))
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)

	// devices command flags
	devicesCmd.Flags().BoolVar(&showAllDevices, "all", false, "show all devices including offline ones")
}
