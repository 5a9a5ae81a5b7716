package main

import (
	"github.com/spf13/cobra"

	"smart-card-relay-go/internal/app"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the service with the HTTP control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Serve()
		},
	}
}
