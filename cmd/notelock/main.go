// notelock is the local core behind the notelock clients: it owns the record
// store, the background sync workers, and the message-channel command surface
// a UI drives it through.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/notelock/core/internal/config"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "notelock",
	Short: "Local notelock core",
	Long: `The notelock core runs next to a UI client and does the heavy lifting:
local storage, full-text search, and background sync against the remote
service. Clients talk to it over a message channel (in-process) or the
websocket gateway (external).

Start the core:
  notelock serve

Probe a running core:
  notelock ping`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the core version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("notelock %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config",
		filepath.Join(".notelock", "config.yml"), "path to the config file")
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file named by --config. A missing file leaves
// the defaults standing.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
