package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// @title           Pluto Tax API
// @version         1.0
// @description     Company scoped taxes, conditional tax rules and rate resolution.
// @host            localhost:8080
// @BasePath        /
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pluto",
		Short:         "Tax configuration service",
		Long:          "Pluto stores company taxes and their B2C/country rules and resolves the rate that applies to a sale.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}
