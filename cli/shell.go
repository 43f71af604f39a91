package cli

import (
	"fmt"

	"github.com/mobile-next/adbctl/commands"
	"github.com/spf13/cobra"
)

var shellRaw bool

var shellCmd = &cobra.Command{
	Use:   "shell -- [command...]",
	Short: "Run a command on a device",
	Long:  `Runs a command through the device shell and prints its output. With --raw the output is written as is instead of wrapped in JSON.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := commands.ShellRequest{
			DeviceID: deviceId,
			Command:  args,
		}

		response := commands.ShellCommand(req)
		if shellRaw && response.Status == "ok" {
			if shellResp, ok := response.Data.(commands.ShellResponse); ok {
				fmt.Print(shellResp.Output)
				return nil
			}
		}
		return printResponse(response)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)

	shellCmd.Flags().StringVar(&deviceId, "device", "", "ID of the device to run the command on")
	shellCmd.Flags().BoolVar(&shellRaw, "raw", false, "print command output without the JSON envelope")
}
