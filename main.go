package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mobile-next/adbctl/cli"
	"github.com/mobile-next/adbctl/commands"
	"github.com/mobile-next/adbctl/devices"
	"github.com/mobile-next/adbctl/rendezvous"
)

func main() {
	// controllers opened by commands are closed on exit
	registry := devices.NewDeviceRegistry()
	commands.SetRegistry(registry)

	cleanup := func() {
		registry.CleanupAll()
		_ = rendezvous.CloseDefault()
	}

	// setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// run command in goroutine
	done := make(chan error, 1)
	go func() {
		done <- cli.Execute()
	}()

	// wait for command completion or signal
	select {
	case <-sigChan:
		cleanup()
		os.Exit(130)
	case err := <-done:
		cleanup()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}
