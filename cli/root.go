package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mobile-next/adbctl/commands"
	"github.com/mobile-next/adbctl/config"
	"github.com/mobile-next/adbctl/utils"
	"github.com/spf13/cobra"
)

const version = "dev"

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "adbctl",
	Short: "Drive Android devices through the adb server",
	Long:  `Lists, connects to and controls Android devices and emulators over the adb server protocol: screenshots, input, file push and shell commands.`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func GetVersion() string {
	return version
}

// initConfig loads the config file and applies flag overrides.
func initConfig() error {
	utils.SetVerbose(verbose)

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if serverAddress != "" {
		cfg.Server.Address = serverAddress
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	utils.Verbose("using adb server %s", cfg.Server.Address)
	commands.Configure(cfg)
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.ini (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&serverAddress, "server", "", "adb server address as host:port")
}

// Execute runs the root command
func Execute() error {
	// enable microseconds in logs
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx := context.Background()
	shutdown, err := initTracing(ctx)
	if err != nil {
		utils.Warn("tracing disabled: %v", err)
	} else {
		defer func() {
			if err := shutdown(ctx); err != nil {
				utils.Verbose("flushing traces: %v", err)
			}
		}()
	}

	return rootCmd.Execute()
}

// printJson is a helper function to print JSON responses
func printJson(data interface{}) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(jsonData))
}

// printResponse prints response and turns an error status into an error.
func printResponse(response *commands.CommandResponse) error {
	printJson(response)
	if response.Status == "error" {
		return fmt.Errorf("%s", response.Error)
	}
	return nil
}
