package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/calpilot/internal/config"
)

// rootCmd represents the base command for the calpilot application
var rootCmd = &cobra.Command{
	Use:   "calpilot",
	Short: "Calendar assistant with conflict-aware scheduling and a learned working profile",
	Long: `calpilot manages a calendar on behalf of an AI assistant. It detects
conflicts, finds free time, proposes rearrangements and learns the user's
working patterns so suggestions fit how they actually work.

Events live in a local SQLite database or in a Google Calendar. Every
change is recorded as a changeset that can be undone.

It can run as:
  - An MCP (Model Context Protocol) server for AI assistants
  - A set of maintenance commands (analyze, import, undo)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

var (
	configPath string
	debugMode  bool
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "calpilot version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the YAML configuration file. Can also use CALPILOT_CONFIG env var.")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newUndoCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
