package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version will be set at build time
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "card-relay",
	Short: "Turns project emails into Trello cards",
	Long: `card-relay reads recent mail, asks a language model whether each new
message is a project request, and files the projects as Trello cards with
their attachments and file links.

It can run as:
  - A service with an HTTP control surface (serve, default)
  - A single pass for external schedulers (run-once)`,
	SilenceUsage: true,
}

func main() {
	rootCmd.Version = version
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunOnceCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
