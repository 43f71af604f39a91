package cli

import (
	"fmt"

	"github.com/mobile-next/adbctl/daemon"
	"github.com/mobile-next/adbctl/server"
	"github.com/spf13/cobra"
)

const defaultServerAddress = "localhost:12000"

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "JSON-RPC server management commands",
	Long:  `Commands for managing the adbctl JSON-RPC server, which exposes the device commands over HTTP and WebSocket.`,
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the adbctl JSON-RPC server",
	Long:  `Serves device commands as JSON-RPC on /rpc (HTTP POST) and /ws (WebSocket).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr := rpcListenAddr
		if listenAddr == "" {
			listenAddr = defaultServerAddress
		}

		if rpcDaemon && !daemon.IsChild() {
			_, err := daemon.Daemonize()
			if err != nil {
				return fmt.Errorf("failed to start daemon: %w", err)
			}

			fmt.Printf("Server daemon spawned, attempting to listen on %s\n", listenAddr)
			return nil
		}

		return server.StartServer(listenAddr, rpcEnableCORS)
	},
}

var serverKillCmd = &cobra.Command{
	Use:   "kill",
	Short: "Stop a running adbctl JSON-RPC server",
	Long:  `Connects to the server and sends a shutdown command via JSON-RPC.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := rpcListenAddr
		if addr == "" {
			addr = defaultServerAddress
		}

		err := daemon.KillServer(addr)
		if err != nil {
			return err
		}

		fmt.Printf("Server shutdown command sent successfully\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverKillCmd)

	serverStartCmd.Flags().StringVar(&rpcListenAddr, "listen", "", "Address to listen on (e.g., 'localhost:12000' or '0.0.0.0:13000')")
	serverStartCmd.Flags().BoolVar(&rpcEnableCORS, "cors", false, "Enable CORS support")
	serverStartCmd.Flags().BoolVarP(&rpcDaemon, "daemon", "d", false, "Run server in daemon mode (background)")

	serverKillCmd.Flags().StringVar(&rpcListenAddr, "listen", "", fmt.Sprintf("Address of server to kill (default: %s)", defaultServerAddress))
}
