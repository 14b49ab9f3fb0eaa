// Package commands implements the CLI commands for the chunkflowctl
// upload client.
package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/SajanLamichhane/chunkflow/internal/logger"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	serverURL string
	stateDir  string
	verbose   bool
)

// rootCmd represents the base command when called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "chunkflowctl",
	Short: "ChunkFlow upload client",
	Long: `chunkflowctl uploads files to a ChunkFlow server in verified chunks.

Uploads run chunk-parallel with per-chunk retries, survive restarts
through persisted progress, and skip data the server already holds.

Use "chunkflowctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "WARN"
		if verbose {
			level = "DEBUG"
		}
		logger.InitWithWriter(os.Stderr, level, "text", false)
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "ChunkFlow server URL")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Directory for resumable upload state (default: $XDG_STATE_HOME/chunkflowctl)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(pendingCmd)
}

// getStateDir resolves the resume state directory.
func getStateDir() string {
	if stateDir != "" {
		return stateDir
	}
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "chunkflowctl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chunkflowctl"
	}
	return filepath.Join(home, ".local", "state", "chunkflowctl")
}
