// Package cli holds the forecast-service command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/kjstillabower/forecast-service/internal/config"
)

var loadConfig = config.Load

// New returns the root command. Without a subcommand it runs the server.
func New() *cobra.Command {
	serveCmd := newServeCommand()
	root := &cobra.Command{
		Use:           "forecast-service",
		Short:         "Day-cached weather forecasts over HTTP and on the command line",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}
	root.AddCommand(serveCmd, newGetCommand(openFromConfig))
	return root
}
