// Command curator runs the record lifecycle service: the HTTP API, the
// identifier reconciliation worker, and schema migrations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "curator",
	Short: "Record lifecycle service",
	Long: `curator manages the deletion lifecycle of published records:
tombstones, version chains, persistent identifier registration, and
deletion policies.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
