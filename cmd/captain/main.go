package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarterdeck/captain/pkg/client"
	"github.com/quarterdeck/captain/pkg/discovery"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "captain",
	Short: "Captain - chore scheduler for a crew of sailors",
	Long: `Captain is the controller of a small chore scheduler. It keeps a
registry of worker hosts (sailors), accepts shell-script chores from
users, matches queued work onto free capacity, and archives finished
chores.

Run "captain serve" on one machine and point sailors and CLIs at it.
Client subcommands find the running captain through its serve.json
discovery file; pass --server to talk to a remote one.`,
	Version: Version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Captain version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Captain version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("server", "", "Captain address, e.g. host:8000 (default: discovered)")
	rootCmd.PersistentFlags().String("data-dir", "./data", "Data directory, used for discovery and serving")
	rootCmd.PersistentFlags().Bool("json", false, "Print raw JSON instead of tables")

	rootCmd.AddCommand(versionCmd)
}

// apiClient resolves the captain's address from --server or the
// discovery file and returns a client for it.
func apiClient(cmd *cobra.Command) (*client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	if server != "" {
		if !strings.Contains(server, "://") {
			server = "http://" + server
		}
		return client.New(server), nil
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	rec, err := discovery.Read(discovery.Path(dataDir))
	if err != nil {
		return nil, fmt.Errorf("no running captain found, pass --server or start one with 'captain serve': %w", err)
	}
	return client.New(rec.URL), nil
}

// printJSON emits v as indented JSON when --json is set, reporting
// whether it handled the output.
func printJSON(cmd *cobra.Command, v interface{}) (bool, error) {
	asJSON, _ := cmd.Flags().GetBool("json")
	if !asJSON {
		return false, nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return true, fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return true, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
