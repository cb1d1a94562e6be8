// Kazi — workspace file management and sandboxed script execution service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kazi",
	Short: "Kazi — workspace-confined file management and script execution over HTTP and MCP.",
	Long: `Kazi is a small service that confines all file operations and script
executions to a single workspace directory. It exposes the same tool set over
an HTTP API and the Model Context Protocol, with per-script timeouts and
resource limits enforced by a process sandbox.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
